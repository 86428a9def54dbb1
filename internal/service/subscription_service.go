package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/repository"
	"tribune/internal/validation"
)

// SubscriptionService manages newsletter sign-ups. Addresses are stored
// lower-cased; an unsubscribed address keeps its row and is reactivated on
// the next subscribe.
type SubscriptionService struct {
	repo repository.SubscriberRepository
	now  func() time.Time
}

func NewSubscriptionService(repo repository.SubscriberRepository) *SubscriptionService {
	return &SubscriptionService{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *SubscriptionService) Subscribe(ctx context.Context, email string) (*models.Subscriber, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, models.NewValidationError("Email is required")
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	now := s.now()
	switch {
	case existing == nil:
		sub := &models.Subscriber{Email: email, SubscribedAt: now}
		if err := s.repo.Create(ctx, sub); err != nil {
			return nil, err
		}
		middleware.Logger.InfoContext(ctx, "newsletter subscribed", slog.Uint64("subscriber_id", uint64(sub.ID)))
		return sub, nil
	case existing.IsActive:
		return nil, models.NewConflictError("Email is already subscribed")
	default:
		if err := s.repo.Activate(ctx, existing.ID, now); err != nil {
			return nil, err
		}
		existing.IsActive = true
		existing.SubscribedAt = now
		existing.UnsubscribedAt = nil
		middleware.Logger.InfoContext(ctx, "newsletter resubscribed", slog.Uint64("subscriber_id", uint64(existing.ID)))
		return existing, nil
	}
}

// Unsubscribe deactivates the address. Unknown or already inactive addresses
// are not an error.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return models.NewValidationError("Email is required")
	}
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing == nil || !existing.IsActive {
		return nil
	}
	if err := s.repo.Deactivate(ctx, existing.ID, s.now()); err != nil {
		return err
	}
	middleware.Logger.InfoContext(ctx, "newsletter unsubscribed", slog.Uint64("subscriber_id", uint64(existing.ID)))
	return nil
}

func (s *SubscriptionService) IsSubscribed(ctx context.Context, email string) (bool, error) {
	email = normalizeEmail(email)
	if email == "" {
		return false, nil
	}
	existing, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return existing != nil && existing.IsActive, nil
}

// ActiveEmails lists every address eligible for the newsletter.
func (s *SubscriptionService) ActiveEmails(ctx context.Context) ([]string, error) {
	subs, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	emails := make([]string, 0, len(subs))
	for _, sub := range subs {
		emails = append(emails, sub.Email)
	}
	return emails, nil
}

// ListActive returns full subscriber records for the admin view.
func (s *SubscriptionService) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	return s.repo.ListActive(ctx)
}

func (s *SubscriptionService) CountActive(ctx context.Context) (int64, error) {
	return s.repo.CountActive(ctx)
}

package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"tribune/internal/cache"
	"tribune/internal/database"
	"tribune/internal/models"
	"tribune/internal/observability"

	"gorm.io/gorm"
)

// SubscriberRepository defines persistence operations for newsletter subscribers.
type SubscriberRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Subscriber, error)
	Create(ctx context.Context, sub *models.Subscriber) error
	Activate(ctx context.Context, id uint, at time.Time) error
	Deactivate(ctx context.Context, id uint, at time.Time) error
	ListActive(ctx context.Context) ([]models.Subscriber, error)
	CountActive(ctx context.Context) (int64, error)
}

type subscriberRepository struct {
	db  *gorm.DB
	log *observability.RepoLogger
}

// NewSubscriberRepository returns a GORM-backed SubscriberRepository.
func NewSubscriberRepository(db *gorm.DB) SubscriberRepository {
	return &subscriberRepository{db: db, log: observability.NewRepoLogger("subscribers")}
}

// GetByEmail returns nil, nil for an unknown address. Callers normalise email.
func (r *subscriberRepository) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	defer observability.TrackQuery("get", "subscribers")()

	var sub models.Subscriber
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, models.NewInternalError(err)
	}
	return &sub, nil
}

func (r *subscriberRepository) Create(ctx context.Context, sub *models.Subscriber) error {
	defer observability.TrackQuery("create", "subscribers")()

	if sub.SubscribedAt.IsZero() {
		sub.SubscribedAt = time.Now().UTC()
	}
	sub.IsActive = true
	if err := r.db.WithContext(ctx).Create(sub).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.NewConflictError("Email is already subscribed")
		}
		r.log.LogError(ctx, "create", err)
		return models.NewInternalError(err)
	}
	cache.Invalidate(ctx, cache.SubscriberCountKey)
	r.log.LogWrite(ctx, "create", slog.Uint64("subscriber_id", uint64(sub.ID)))
	return nil
}

func (r *subscriberRepository) Activate(ctx context.Context, id uint, at time.Time) error {
	return r.setActive(ctx, "activate", id, map[string]interface{}{
		"is_active":       true,
		"subscribed_at":   at,
		"unsubscribed_at": nil,
	})
}

func (r *subscriberRepository) Deactivate(ctx context.Context, id uint, at time.Time) error {
	return r.setActive(ctx, "deactivate", id, map[string]interface{}{
		"is_active":       false,
		"unsubscribed_at": at,
	})
}

func (r *subscriberRepository) setActive(ctx context.Context, op string, id uint, fields map[string]interface{}) error {
	defer observability.TrackQuery(op, "subscribers")()

	result := r.db.WithContext(ctx).Model(&models.Subscriber{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		r.log.LogError(ctx, op, result.Error)
		return models.NewInternalError(result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Subscriber", id)
	}
	cache.Invalidate(ctx, cache.SubscriberCountKey)
	r.log.LogWrite(ctx, op, slog.Uint64("subscriber_id", uint64(id)))
	return nil
}

func (r *subscriberRepository) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	defer observability.TrackQuery("list_active", "subscribers")()

	var subs []models.Subscriber
	if err := readDB(r.db).WithContext(ctx).
		Where("is_active = ?", true).
		Order("subscribed_at ASC").
		Find(&subs).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return subs, nil
}

// CountActive is cached in Redis for SubscriberCountTTL and invalidated on writes.
func (r *subscriberRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := cache.Aside(ctx, cache.SubscriberCountKey, &count, cache.SubscriberCountTTL, func() error {
		defer observability.TrackQuery("count_active", "subscribers")()
		if err := readDB(r.db).WithContext(ctx).
			Model(&models.Subscriber{}).
			Where("is_active = ?", true).
			Count(&count).Error; err != nil {
			return models.NewInternalError(err)
		}
		return nil
	})
	return count, err
}

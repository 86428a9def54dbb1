package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tribune/internal/featureflags"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/notifications"
	"tribune/internal/observability"
)

const newsletterDispatchTimeout = 10 * time.Second

// RecipientSource lists newsletter-eligible addresses.
type RecipientSource interface {
	ActiveEmails(ctx context.Context) ([]string, error)
}

// NewsletterNotifier mails subscribers when a new post shows up. It is a
// store observer: the first observation only records a baseline, and later
// observations dispatch when the post count grew because of a post this
// instance created. Growth seen through a plain refresh (another instance
// created the post) only moves the baseline, so each post is mailed once.
type NewsletterNotifier struct {
	recipients RecipientSource
	mailer     notifications.Mailer
	flags      *featureflags.Manager
	baseURL    string
	lifetime   context.Context
	wg         sync.WaitGroup

	mu       sync.Mutex
	observed bool
	version  uint64
	last     int
}

func NewNewsletterNotifier(recipients RecipientSource, mailer notifications.Mailer, flags *featureflags.Manager, publicBaseURL string) *NewsletterNotifier {
	if mailer == nil {
		mailer = notifications.LogMailer{}
	}
	return &NewsletterNotifier{
		recipients: recipients,
		mailer:     mailer,
		flags:      flags,
		baseURL:    publicBaseURL,
		lifetime:   context.Background(),
	}
}

// WithLifetime ties background dispatches to ctx; they are cancelled when it is.
func (n *NewsletterNotifier) WithLifetime(ctx context.Context) *NewsletterNotifier {
	n.lifetime = ctx
	return n
}

// Eligible returns the active subscriber addresses.
func (n *NewsletterNotifier) Eligible(ctx context.Context) ([]string, error) {
	return n.recipients.ActiveEmails(ctx)
}

// Observe records the post count at version and schedules a dispatch for
// added when the count grew from a non-zero value. Observations at or below
// the last seen version are ignored. It reports whether a dispatch was
// scheduled; use Wait to block until scheduled dispatches finish.
func (n *NewsletterNotifier) Observe(ctx context.Context, version uint64, count int, added *models.Post) bool {
	n.mu.Lock()
	if n.observed && version <= n.version {
		n.mu.Unlock()
		return false
	}
	prev := n.last
	n.version, n.last, n.observed = version, count, true
	n.mu.Unlock()

	if count <= prev || prev == 0 || added == nil {
		return false
	}
	if !n.flags.EnabledGlobally(featureflags.Newsletter) {
		observability.NewsletterDispatches.WithLabelValues("disabled").Inc()
		return false
	}
	if n.lifetime.Err() != nil {
		observability.NewsletterDispatches.WithLabelValues("failed").Inc()
		middleware.Logger.WarnContext(ctx, "newsletter skipped during shutdown", slog.String("post_id", added.ID))
		return false
	}

	// Keep request values for logging but not the request's cancellation.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), newsletterDispatchTimeout)
	stop := context.AfterFunc(n.lifetime, cancel)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		defer cancel()
		defer stop()
		n.dispatch(dctx, added)
	}()
	return true
}

// Wait blocks until every scheduled dispatch has returned.
func (n *NewsletterNotifier) Wait() {
	n.wg.Wait()
}

func (n *NewsletterNotifier) dispatch(ctx context.Context, post *models.Post) {
	emails, err := n.Eligible(ctx)
	if err != nil {
		observability.NewsletterDispatches.WithLabelValues("failed").Inc()
		middleware.Logger.ErrorContext(ctx, "newsletter recipients lookup failed",
			slog.String("post_id", post.ID), slog.String("error", err.Error()))
		return
	}
	if len(emails) == 0 {
		observability.NewsletterDispatches.WithLabelValues("no_recipients").Inc()
		return
	}

	mail := notifications.NewPostMail{
		PostID:     post.ID,
		Title:      post.Title,
		Recipients: emails,
	}
	if n.baseURL != "" {
		mail.URL = n.baseURL + "/posts/" + post.ID
	}
	if err := n.mailer.SendNewPost(ctx, mail); err != nil {
		observability.NewsletterDispatches.WithLabelValues("failed").Inc()
		middleware.Logger.ErrorContext(ctx, "newsletter dispatch failed",
			slog.String("post_id", post.ID), slog.String("error", err.Error()))
		return
	}
	observability.NewsletterDispatches.WithLabelValues("sent").Inc()
	middleware.Logger.InfoContext(ctx, "newsletter queued",
		slog.String("post_id", post.ID), slog.Int("recipients", len(emails)))
}

// LastObserved returns the last recorded post count and whether any
// observation has happened yet.
func (n *NewsletterNotifier) LastObserved() (int, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last, n.observed
}

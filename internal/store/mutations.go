package store

import (
	"context"
	"log/slog"

	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/observability"
	"tribune/internal/repository"
	"tribune/internal/session"
)

// Add persists post and re-syncs. The insert and its refresh share the
// refresh lock, so the Change observers receive names post as Added and no
// other refresh on this store can report the growth first.
func (s *Store) Add(ctx context.Context, post *models.Post) (*models.Post, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}
	logResyncFailure(ctx, "add", s.refreshLocked(ctx, post))
	return post.Clone(), nil
}

// Update applies changes to post id and re-syncs.
func (s *Store) Update(ctx context.Context, id string, changes repository.PostChanges) (*models.Post, error) {
	updated, err := s.repo.Update(ctx, id, changes)
	if err != nil {
		return nil, err
	}
	s.resync(ctx, "update")
	return updated, nil
}

// Delete removes post id and re-syncs.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.resync(ctx, "delete")
	return nil
}

// LikeResult is the confirmed state after a toggle.
type LikeResult struct {
	PostID string `json:"post_id"`
	Liked  bool   `json:"liked"`
	Likes  int64  `json:"likes"`
}

// ToggleLike flips viewer's like on post id.
//
// The mirror is first updated tentatively, then the repository write runs.
// On success the confirmed count replaces the tentative one; on failure the
// tentative delta is reverted and the error returned. A second toggle by the
// same viewer on the same post while one is in flight is rejected.
func (s *Store) ToggleLike(ctx context.Context, viewer uint, id string) (*LikeResult, error) {
	if viewer == 0 {
		observability.LikeToggles.WithLabelValues("unauthenticated").Inc()
		return nil, models.ErrNotAuthenticated
	}

	key := likeKey{viewer: viewer, postID: id}
	if !s.claimToggle(key) {
		return nil, models.NewConflictError("A like change for this post is already in progress")
	}
	defer s.releaseToggle(key)

	liked, err := s.likedSet(ctx, viewer)
	if err != nil {
		observability.LikeToggles.WithLabelValues("failed").Inc()
		return nil, err
	}
	_, wasLiked := liked[id]

	// Phase one: tentative.
	var delta int64
	found := s.patch(id, func(p *models.Post) {
		if wasLiked {
			if p.Likes > 0 {
				delta = -1
			}
		} else {
			delta = 1
		}
		p.Likes += delta
	})
	if !found {
		return nil, models.NewNotFoundError("Post", id)
	}

	// Phase two: confirm or roll back.
	nowLiked, likes, err := s.repo.ToggleLike(ctx, viewer, id)
	if err != nil {
		s.patch(id, func(p *models.Post) {
			p.Likes -= delta
			if p.Likes < 0 {
				p.Likes = 0
			}
		})
		observability.LikeToggles.WithLabelValues("failed").Inc()
		middleware.Logger.WarnContext(ctx, "like toggle rolled back",
			slog.String("post_id", id), slog.Uint64("user_id", uint64(viewer)),
			slog.String("error", err.Error()))
		return nil, err
	}
	s.patch(id, func(p *models.Post) { p.Likes = likes })

	if nowLiked {
		observability.LikeToggles.WithLabelValues("liked").Inc()
	} else {
		observability.LikeToggles.WithLabelValues("unliked").Inc()
	}
	s.resync(ctx, "toggle_like")
	return &LikeResult{PostID: id, Liked: nowLiked, Likes: likes}, nil
}

func (s *Store) claimToggle(key likeKey) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, busy := s.inflight[key]; busy {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Store) releaseToggle(key likeKey) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
}

// RecordView counts a view of post id for sess, at most once per session.
// It reports whether the count went up. Persistence failures are logged and
// dropped; the session claim is released so a later view can retry.
func (s *Store) RecordView(ctx context.Context, sess *session.Session, id string) bool {
	if sess == nil {
		return false
	}
	if !sess.ClaimView(id) {
		observability.PostViewsRecorded.WithLabelValues("duplicate").Inc()
		return false
	}

	s.mu.RLock()
	_, known := s.byID[id]
	s.mu.RUnlock()
	if !known {
		sess.ReleaseView(id)
		observability.PostViewsRecorded.WithLabelValues("unknown").Inc()
		return false
	}

	views, err := s.repo.IncrementViews(ctx, id)
	if err != nil {
		sess.ReleaseView(id)
		observability.PostViewsRecorded.WithLabelValues("failed").Inc()
		middleware.Logger.WarnContext(ctx, "view increment dropped",
			slog.String("post_id", id), slog.String("error", err.Error()))
		return false
	}

	s.patch(id, func(p *models.Post) {
		if views > p.Views {
			p.Views = views
		}
	})
	observability.PostViewsRecorded.WithLabelValues("counted").Inc()
	return true
}

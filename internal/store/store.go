// Package store holds the authoritative in-memory mirror of all posts.
//
// Every mutation writes through the repository first and then re-syncs the
// mirror, advancing Version. Readers always get copies; the derived-feed cache
// is keyed by Version so any advance invalidates it.
package store

import (
	"context"
	"log/slog"
	"sync"

	"tribune/internal/feed"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/observability"
	"tribune/internal/repository"

	"golang.org/x/sync/errgroup"
)

// Change describes the mirror installed by a successful refresh.
type Change struct {
	Version uint64
	Count   int
	// Newest is the most recently published post, nil when empty.
	Newest *models.Post
	// Added is the post this store just created. Plain refreshes, including
	// those triggered by events from other instances, leave it nil.
	Added *models.Post
}

// Observer is called after every successful refresh. Calls are serialised
// and arrive in version order.
type Observer func(ctx context.Context, ch Change)

// Options configures a Store.
type Options struct {
	// CacheSize bounds the derived-feed cache; zero uses feed.DefaultCacheSize.
	CacheSize int
}

// Store owns the post mirror.
type Store struct {
	repo  repository.PostRepository
	cache *feed.Cache

	mu      sync.RWMutex
	posts   []*models.Post // newest first; replaced, never mutated in place
	byID    map[string]int
	version uint64

	refreshMu sync.Mutex

	obsMu     sync.RWMutex
	observers []Observer

	inflightMu sync.Mutex
	inflight   map[likeKey]struct{}
}

type likeKey struct {
	viewer uint
	postID string
}

// New creates an empty store; call Refresh to load it.
func New(repo repository.PostRepository, opts Options) *Store {
	return &Store{
		repo:     repo,
		cache:    feed.NewCache(opts.CacheSize),
		byID:     make(map[string]int),
		inflight: make(map[likeKey]struct{}),
	}
}

// Subscribe registers fn to run after each successful refresh.
func (s *Store) Subscribe(fn Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	s.obsMu.Unlock()
}

// Version increases whenever the mirror changes.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Refresh re-synchronises the mirror from the repository. On failure the
// previous mirror is kept.
func (s *Store) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.refreshLocked(ctx, nil)
}

// refreshLocked reloads the mirror and notifies observers. Callers hold
// s.refreshMu; added is the post a local Add just persisted, if any.
func (s *Store) refreshLocked(ctx context.Context, added *models.Post) error {
	ctx, span := observability.StartSpan(ctx, "store", "refresh")
	posts, err := s.repo.List(ctx)
	if err != nil {
		observability.StoreRefreshes.WithLabelValues("error").Inc()
		observability.EndSpan(span, err)
		return err
	}

	s.mu.Lock()
	s.install(posts)
	ch := Change{Version: s.version, Count: len(s.posts), Newest: newestOf(s.posts), Added: added}
	s.mu.Unlock()

	observability.StoreRefreshes.WithLabelValues("ok").Inc()
	observability.StorePosts.Set(float64(ch.Count))
	observability.EndSpan(span, nil)

	s.notify(ctx, ch)
	return nil
}

// install replaces the mirror; callers hold s.mu.
func (s *Store) install(posts []*models.Post) {
	byID := make(map[string]int, len(posts))
	for i, p := range posts {
		byID[p.ID] = i
	}
	s.posts = posts
	s.byID = byID
	s.version++
}

func (s *Store) notify(ctx context.Context, ch Change) {
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()
	for _, fn := range observers {
		c := ch
		c.Newest, c.Added = ch.Newest.Clone(), ch.Added.Clone()
		fn(ctx, c)
	}
}

func newestOf(posts []*models.Post) *models.Post {
	var newest *models.Post
	for _, p := range posts {
		if newest == nil || p.PublishedAt.After(newest.PublishedAt) {
			newest = p
		}
	}
	return newest
}

// snapshot returns the current version and post slice. The slice must not be modified.
func (s *Store) snapshot() (uint64, []*models.Post) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version, s.posts
}

// patch applies fn to a copy of post id and installs it as a new version.
// It reports false when id is not mirrored.
func (s *Store) patch(id string, fn func(p *models.Post)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.byID[id]
	if !ok {
		return false
	}
	next := make([]*models.Post, len(s.posts))
	copy(next, s.posts)
	cp := next[i].Clone()
	fn(cp)
	next[i] = cp
	s.posts = next
	s.version++
	return true
}

// resync refreshes after a write that already succeeded. A failed refresh is
// logged; the write is not reported as failed because it is durable.
func (s *Store) resync(ctx context.Context, op string) {
	logResyncFailure(ctx, op, s.Refresh(ctx))
}

func logResyncFailure(ctx context.Context, op string, err error) {
	if err != nil {
		middleware.Logger.WarnContext(ctx, "post store refresh after write failed",
			slog.String("operation", op), slog.String("error", err.Error()))
	}
}

func cloneAll(posts []*models.Post, liked map[string]struct{}) []*models.Post {
	out := make([]*models.Post, len(posts))
	for i, p := range posts {
		cp := p.Clone()
		_, cp.Liked = liked[p.ID]
		out[i] = cp
	}
	return out
}

// likedSet loads the viewer's liked post ids; anonymous viewers like nothing.
func (s *Store) likedSet(ctx context.Context, viewer uint) (map[string]struct{}, error) {
	if viewer == 0 {
		return nil, nil
	}
	ids, err := s.repo.LikedPostIDs(ctx, viewer)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// All returns every post, newest first, without viewer state.
func (s *Store) All() []*models.Post {
	_, posts := s.snapshot()
	return cloneAll(posts, nil)
}

// Len reports the number of mirrored posts.
func (s *Store) Len() int {
	_, posts := s.snapshot()
	return len(posts)
}

// GetByID returns a copy of the post with the viewer's liked flag.
func (s *Store) GetByID(ctx context.Context, viewer uint, id string) (*models.Post, error) {
	s.mu.RLock()
	i, ok := s.byID[id]
	var p *models.Post
	if ok {
		p = s.posts[i]
	}
	s.mu.RUnlock()
	if !ok {
		return nil, models.NewNotFoundError("Post", id)
	}

	liked, err := s.likedSet(ctx, viewer)
	if err != nil {
		return nil, err
	}
	cp := p.Clone()
	_, cp.Liked = liked[id]
	return cp, nil
}

// ByCategory returns the category's posts, newest first.
func (s *Store) ByCategory(ctx context.Context, viewer uint, category string) ([]*models.Post, error) {
	return s.Feed(ctx, viewer, feed.Query{Category: category, Sort: feed.SortLatest})
}

// Categories returns the distinct categories in use with their post counts.
func (s *Store) Categories() map[string]int {
	_, posts := s.snapshot()
	counts := make(map[string]int)
	for _, p := range posts {
		counts[p.Category]++
	}
	return counts
}

// Feed derives the visible posts for q and marks the ones viewer liked.
func (s *Store) Feed(ctx context.Context, viewer uint, q feed.Query) ([]*models.Post, error) {
	version, posts := s.snapshot()

	var (
		derived []*models.Post
		liked   map[string]struct{}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		derived = s.cache.Get(version, posts, q)
		return nil
	})
	g.Go(func() error {
		var err error
		liked, err = s.likedSet(gctx, viewer)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return cloneAll(derived, liked), nil
}

// Featured returns the most-viewed post, or nil when there are none.
func (s *Store) Featured() *models.Post {
	_, posts := s.snapshot()
	return feed.Featured(posts).Clone()
}

// Related returns up to n posts sharing post's category.
func (s *Store) Related(post *models.Post, n int) []*models.Post {
	_, posts := s.snapshot()
	return cloneAll(feed.Related(posts, post, n), nil)
}

// LikedPosts returns the viewer's liked posts, most recently liked first.
func (s *Store) LikedPosts(ctx context.Context, viewer uint) ([]*models.Post, error) {
	if viewer == 0 {
		return nil, models.ErrNotAuthenticated
	}
	ids, err := s.repo.LikedPostIDs(ctx, viewer)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*models.Post, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			cp := s.posts[i].Clone()
			cp.Liked = true
			out = append(out, cp)
		}
	}
	s.mu.RUnlock()
	return out, nil
}

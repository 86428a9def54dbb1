package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"tribune/internal/feed"
	"tribune/internal/models"
	"tribune/internal/repository"
	"tribune/internal/session"
	"tribune/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// stubRepo delegates to a real repository unless a hook is set.
type stubRepo struct {
	repository.PostRepository
	listFn           func(ctx context.Context) ([]*models.Post, error)
	toggleLikeFn     func(ctx context.Context, userID uint, postID string) (bool, int64, error)
	incrementViewsFn func(ctx context.Context, id string) (int64, error)
}

func (s *stubRepo) List(ctx context.Context) ([]*models.Post, error) {
	if s.listFn != nil {
		return s.listFn(ctx)
	}
	return s.PostRepository.List(ctx)
}

func (s *stubRepo) ToggleLike(ctx context.Context, userID uint, postID string) (bool, int64, error) {
	if s.toggleLikeFn != nil {
		return s.toggleLikeFn(ctx, userID, postID)
	}
	return s.PostRepository.ToggleLike(ctx, userID, postID)
}

func (s *stubRepo) IncrementViews(ctx context.Context, id string) (int64, error) {
	if s.incrementViewsFn != nil {
		return s.incrementViewsFn(ctx, id)
	}
	return s.PostRepository.IncrementViews(ctx, id)
}

type fixture struct {
	db     *gorm.DB
	repo   *stubRepo
	store  *Store
	author *models.User
	reader *models.User
	a, b   *models.Post
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	f := &fixture{db: db, repo: &stubRepo{PostRepository: repository.NewPostRepository(db)}}
	f.author = testutil.CreateUser(t, db, true)
	f.reader = testutil.CreateUser(t, db, false)
	f.a = testutil.CreatePost(t, db, f.author, models.Post{
		Title: "React hooks guide", Category: "Web Development", Views: 10, Likes: 0,
		PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	f.b = testutil.CreatePost(t, db, f.author, models.Post{
		Title: "Kubernetes basics", Category: "DevOps", Views: 50,
		PublishedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Tags:        []string{"k8s"},
	})
	f.store = New(f.repo, Options{})
	require.NoError(t, f.store.Refresh(context.Background()))
	return f
}

func ids(posts []*models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestRefreshAndReads(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Equal(t, uint64(1), f.store.Version())
	assert.Equal(t, 2, f.store.Len())
	assert.Equal(t, []string{f.b.ID, f.a.ID}, ids(f.store.All()))

	popular, err := f.store.Feed(ctx, 0, feed.Query{Sort: feed.SortPopular})
	require.NoError(t, err)
	assert.Equal(t, []string{f.b.ID, f.a.ID}, ids(popular))

	search, err := f.store.Feed(ctx, 0, feed.Query{Search: "kubernetes"})
	require.NoError(t, err)
	assert.Equal(t, []string{f.b.ID}, ids(search))

	web, err := f.store.ByCategory(ctx, 0, "Web Development")
	require.NoError(t, err)
	assert.Equal(t, []string{f.a.ID}, ids(web))

	assert.Equal(t, map[string]int{"DevOps": 1, "Web Development": 1}, f.store.Categories())
	assert.Equal(t, f.b.ID, f.store.Featured().ID)

	got, err := f.store.GetByID(ctx, 0, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, "React hooks guide", got.Title)

	_, err = f.store.GetByID(ctx, 0, "missing")
	assert.Equal(t, 404, models.StatusFor(err))
}

func TestReadsReturnCopies(t *testing.T) {
	f := newFixture(t)
	all := f.store.All()
	all[0].Title = "mutated"
	all[0].Tags[0] = "mutated"
	fresh := f.store.All()
	assert.Equal(t, "Kubernetes basics", fresh[0].Title)
	assert.Equal(t, "k8s", fresh[0].Tags[0])
}

func TestRefreshNotifiesObservers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var changes []Change
	f.store.Subscribe(func(_ context.Context, ch Change) {
		changes = append(changes, ch)
	})

	created, err := f.store.Add(ctx, &models.Post{
		Title: "Fresh", Content: "c", Excerpt: "e", Category: "Career",
		AuthorID: f.author.ID, Author: f.author.DisplayName(),
		PublishedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NoError(t, f.store.Refresh(ctx))

	require.Len(t, changes, 2)
	assert.Equal(t, uint64(2), changes[0].Version)
	assert.Equal(t, 3, changes[0].Count)
	require.NotNil(t, changes[0].Newest)
	assert.Equal(t, created.ID, changes[0].Newest.ID)
	require.NotNil(t, changes[0].Added)
	assert.Equal(t, created.ID, changes[0].Added.ID)

	// A plain refresh sees the same collection but attributes nothing to itself.
	assert.Equal(t, uint64(3), changes[1].Version)
	assert.Equal(t, 3, changes[1].Count)
	assert.Nil(t, changes[1].Added)
}

func TestAddedIsTheCreatedPostEvenWhenBackdated(t *testing.T) {
	f := newFixture(t)

	var added *models.Post
	f.store.Subscribe(func(_ context.Context, ch Change) { added = ch.Added })

	created, err := f.store.Add(context.Background(), &models.Post{
		Title: "Archive piece", Content: "c", Excerpt: "e", Category: "Career",
		AuthorID: f.author.ID, Author: f.author.DisplayName(),
		PublishedAt: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotNil(t, added)
	assert.Equal(t, created.ID, added.ID)
}

func TestObserversSeeVersionsInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		versions []uint64
	)
	f.store.Subscribe(func(_ context.Context, ch Change) {
		mu.Lock()
		versions = append(versions, ch.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.store.Refresh(ctx))
		}()
	}
	wg.Wait()

	require.Len(t, versions, 8)
	for i := 1; i < len(versions); i++ {
		assert.Less(t, versions[i-1], versions[i])
	}
}

func TestRefreshFailureKeepsMirror(t *testing.T) {
	f := newFixture(t)
	f.repo.listFn = func(context.Context) ([]*models.Post, error) { return nil, errors.New("db down") }

	assert.Error(t, f.store.Refresh(context.Background()))
	assert.Equal(t, 2, f.store.Len())
	assert.Equal(t, uint64(1), f.store.Version())
}

func TestUpdateAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	title := "Kubernetes in depth"
	updated, err := f.store.Update(ctx, f.b.ID, repository.PostChanges{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	got, err := f.store.GetByID(ctx, 0, f.b.ID)
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)

	require.NoError(t, f.store.Delete(ctx, f.a.ID))
	assert.Equal(t, 1, f.store.Len())
	assert.Error(t, f.store.Delete(ctx, f.a.ID))
}

func TestToggleLikeRequiresViewer(t *testing.T) {
	f := newFixture(t)
	before := f.store.Version()

	_, err := f.store.ToggleLike(context.Background(), 0, f.a.ID)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
	assert.Equal(t, before, f.store.Version())

	_, err = f.store.LikedPosts(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrNotAuthenticated)
}

func TestToggleLikeTwiceRestoresState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.store.ToggleLike(ctx, f.reader.ID, f.a.ID)
	require.NoError(t, err)
	assert.True(t, res.Liked)
	assert.Equal(t, int64(1), res.Likes)

	post, err := f.store.GetByID(ctx, f.reader.ID, f.a.ID)
	require.NoError(t, err)
	assert.True(t, post.Liked)
	assert.Equal(t, int64(1), post.Likes)

	liked, err := f.store.LikedPosts(ctx, f.reader.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{f.a.ID}, ids(liked))

	others, err := f.store.GetByID(ctx, f.author.ID, f.a.ID)
	require.NoError(t, err)
	assert.False(t, others.Liked, "liked flag is per viewer")

	res, err = f.store.ToggleLike(ctx, f.reader.ID, f.a.ID)
	require.NoError(t, err)
	assert.False(t, res.Liked)
	assert.Zero(t, res.Likes)

	post, err = f.store.GetByID(ctx, f.reader.ID, f.a.ID)
	require.NoError(t, err)
	assert.False(t, post.Liked)
	assert.Zero(t, post.Likes)
}

func TestToggleLikeFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	f.repo.toggleLikeFn = func(context.Context, uint, string) (bool, int64, error) {
		close(entered)
		<-release
		return false, 0, models.NewInternalError(errors.New("write failed"))
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.store.ToggleLike(ctx, f.reader.ID, f.a.ID)
		done <- err
	}()

	<-entered
	tentative, err := f.store.GetByID(ctx, 0, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), tentative.Likes, "tentative like is visible while in flight")

	_, err = f.store.ToggleLike(ctx, f.reader.ID, f.a.ID)
	assert.Equal(t, 409, models.StatusFor(err), "a second click while in flight is rejected")

	close(release)
	require.Error(t, <-done)

	after, err := f.store.GetByID(ctx, 0, f.a.ID)
	require.NoError(t, err)
	assert.Zero(t, after.Likes)

	var relations int64
	require.NoError(t, f.db.Model(&models.Like{}).Count(&relations).Error)
	assert.Zero(t, relations)
}

func TestToggleLikeUnknownPost(t *testing.T) {
	f := newFixture(t)
	_, err := f.store.ToggleLike(context.Background(), f.reader.ID, "missing")
	assert.Equal(t, 404, models.StatusFor(err))
}

func TestRecordViewOncePerSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	reg := session.NewRegistry(session.RegistryConfig{})
	sess := reg.Create()

	counted := 0
	for i := 0; i < 5; i++ {
		if f.store.RecordView(ctx, sess, f.a.ID) {
			counted++
		}
	}
	assert.Equal(t, 1, counted)
	post, err := f.store.GetByID(ctx, 0, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11), post.Views)

	other := reg.Create()
	assert.True(t, f.store.RecordView(ctx, other, f.a.ID))
	assert.False(t, f.store.RecordView(ctx, nil, f.a.ID))
	assert.False(t, f.store.RecordView(ctx, other, "missing"))
	assert.False(t, other.HasViewed("missing"))
}

func TestRecordViewConcurrentSameSession(t *testing.T) {
	f := newFixture(t)
	var calls atomic.Int32
	f.repo.incrementViewsFn = func(ctx context.Context, id string) (int64, error) {
		calls.Add(1)
		return f.repo.PostRepository.IncrementViews(ctx, id)
	}
	sess := session.NewRegistry(session.RegistryConfig{}).Create()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.store.RecordView(context.Background(), sess, f.b.ID)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestRecordViewFailureIsDroppedAndRetryable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := session.NewRegistry(session.RegistryConfig{}).Create()

	f.repo.incrementViewsFn = func(context.Context, string) (int64, error) {
		return 0, errors.New("db down")
	}
	assert.False(t, f.store.RecordView(ctx, sess, f.a.ID))
	assert.False(t, sess.HasViewed(f.a.ID))

	f.repo.incrementViewsFn = nil
	assert.True(t, f.store.RecordView(ctx, sess, f.a.ID))
}

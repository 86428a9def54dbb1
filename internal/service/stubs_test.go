package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tribune/internal/models"
	"tribune/internal/notifications"
	"tribune/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn       func(context.Context, uint) (*models.User, error)
	getByEmailFn    func(context.Context, string) (*models.User, error)
	getByUsernameFn func(context.Context, string) (*models.User, error)
	createFn        func(context.Context, *models.User) error
	setAdminFn      func(context.Context, uint, bool) error
	listFn          func(context.Context, int, int) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	return s.setAdminFn(ctx, id, isAdmin)
}
func (s *userRepoStub) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.listFn(ctx, limit, offset)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:       func(_ context.Context, id uint) (*models.User, error) { return &models.User{ID: id}, nil },
		getByEmailFn:    func(context.Context, string) (*models.User, error) { return nil, nil },
		getByUsernameFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:        func(context.Context, *models.User) error { return nil },
		setAdminFn:      func(context.Context, uint, bool) error { return nil },
		listFn:          func(context.Context, int, int) ([]models.User, error) { return nil, nil },
	}
}

// adminRepo resolves id 1 as an admin and every other id as a reader.
func adminRepo() *userRepoStub {
	repo := noopUserRepo()
	repo.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		if id == 1 {
			return &models.User{ID: 1, Username: "editor", FullName: "Ada Editor", IsAdmin: true}, nil
		}
		return &models.User{ID: id, Username: "reader"}, nil
	}
	return repo
}

// subscriberRepoStub is a stub for repository.SubscriberRepository.
type subscriberRepoStub struct {
	getByEmailFn  func(context.Context, string) (*models.Subscriber, error)
	createFn      func(context.Context, *models.Subscriber) error
	activateFn    func(context.Context, uint, time.Time) error
	deactivateFn  func(context.Context, uint, time.Time) error
	listActiveFn  func(context.Context) ([]models.Subscriber, error)
	countActiveFn func(context.Context) (int64, error)
}

var _ repository.SubscriberRepository = (*subscriberRepoStub)(nil)

func (s *subscriberRepoStub) GetByEmail(ctx context.Context, email string) (*models.Subscriber, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *subscriberRepoStub) Create(ctx context.Context, sub *models.Subscriber) error {
	return s.createFn(ctx, sub)
}
func (s *subscriberRepoStub) Activate(ctx context.Context, id uint, at time.Time) error {
	return s.activateFn(ctx, id, at)
}
func (s *subscriberRepoStub) Deactivate(ctx context.Context, id uint, at time.Time) error {
	return s.deactivateFn(ctx, id, at)
}
func (s *subscriberRepoStub) ListActive(ctx context.Context) ([]models.Subscriber, error) {
	return s.listActiveFn(ctx)
}
func (s *subscriberRepoStub) CountActive(ctx context.Context) (int64, error) {
	return s.countActiveFn(ctx)
}

func noopSubscriberRepo() *subscriberRepoStub {
	return &subscriberRepoStub{
		getByEmailFn:  func(context.Context, string) (*models.Subscriber, error) { return nil, nil },
		createFn:      func(context.Context, *models.Subscriber) error { return nil },
		activateFn:    func(context.Context, uint, time.Time) error { return nil },
		deactivateFn:  func(context.Context, uint, time.Time) error { return nil },
		listActiveFn:  func(context.Context) ([]models.Subscriber, error) { return nil, nil },
		countActiveFn: func(context.Context) (int64, error) { return 0, nil },
	}
}

// postWriterStub is a stub for PostWriter.
type postWriterStub struct {
	addFn    func(context.Context, *models.Post) (*models.Post, error)
	updateFn func(context.Context, string, repository.PostChanges) (*models.Post, error)
	deleteFn func(context.Context, string) error
}

func (s *postWriterStub) Add(ctx context.Context, post *models.Post) (*models.Post, error) {
	return s.addFn(ctx, post)
}
func (s *postWriterStub) Update(ctx context.Context, id string, changes repository.PostChanges) (*models.Post, error) {
	return s.updateFn(ctx, id, changes)
}
func (s *postWriterStub) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func noopPostWriter() *postWriterStub {
	return &postWriterStub{
		addFn: func(_ context.Context, p *models.Post) (*models.Post, error) {
			out := p.Clone()
			out.ID = "new-post"
			return out, nil
		},
		updateFn: func(_ context.Context, id string, _ repository.PostChanges) (*models.Post, error) {
			return &models.Post{ID: id}, nil
		},
		deleteFn: func(context.Context, string) error { return nil },
	}
}

// mailerStub records SendNewPost calls.
type mailerStub struct {
	sendFn func(context.Context, notifications.NewPostMail) error

	mu   sync.Mutex
	sent []notifications.NewPostMail
}

func (m *mailerStub) SendNewPost(ctx context.Context, mail notifications.NewPostMail) error {
	m.mu.Lock()
	m.sent = append(m.sent, mail)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, mail)
	}
	return nil
}

func assertAppErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

// assertValidationError asserts that err is an AppError with code VALIDATION_ERROR.
func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeValidation)
}

// assertUnauthorizedError asserts that err is an AppError with code UNAUTHORIZED.
func assertUnauthorizedError(t *testing.T, err error) {
	t.Helper()
	assertAppErrorCode(t, err, models.CodeUnauthorized)
}

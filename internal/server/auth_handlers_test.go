package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tribune/internal/config"
	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/service"
	"tribune/internal/testutil"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// MockUserRepository is a mock of the UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) SetAdmin(ctx context.Context, id uint, isAdmin bool) error {
	args := m.Called(ctx, id, isAdmin)
	return args.Error(0)
}

func (m *MockUserRepository) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]models.User), args.Error(1)
}

func TestSignup(t *testing.T) {
	app := fiber.New()
	mockRepo := new(MockUserRepository)

	s := &Server{
		config:      &config.Config{JWTSecret: "test_secret"},
		userService: service.NewUserService(mockRepo).WithBcryptCost(bcrypt.MinCost),
	}

	app.Post("/signup", s.Signup)

	tests := []struct {
		name           string
		body           map[string]string
		mockSetup      func()
		expectedStatus int
	}{
		{
			name: "Success",
			body: map[string]string{
				"username":  "testuser",
				"full_name": "Test User",
				"email":     "test@example.com",
				"password":  "Correct-Horse-9",
			},
			mockSetup: func() {
				mockRepo.On("GetByEmail", mock.Anything, "test@example.com").Return(nil, nil)
				mockRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "Duplicate User",
			body: map[string]string{
				"username": "testuser",
				"email":    "exists@example.com",
				"password": "Correct-Horse-9",
			},
			mockSetup: func() {
				mockRepo.On("GetByEmail", mock.Anything, "exists@example.com").Return(&models.User{ID: 1}, nil)
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "Weak Password",
			body: map[string]string{
				"username": "testuser",
				"email":    "weak@example.com",
				"password": "short",
			},
			mockSetup:      func() {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			body, _ := json.Marshal(tt.body)
			req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.expectedStatus, resp.StatusCode)
		})
	}
	mockRepo.AssertExpectations(t)
}

func TestAdminRequired(t *testing.T) {
	mockRepo := new(MockUserRepository)
	s := &Server{userService: service.NewUserService(mockRepo)}

	mockRepo.On("GetByID", mock.Anything, uint(1)).Return(&models.User{ID: 1, IsAdmin: true}, nil)
	mockRepo.On("GetByID", mock.Anything, uint(2)).Return(&models.User{ID: 2}, nil)
	mockRepo.On("GetByID", mock.Anything, uint(3)).Return(nil, models.NewNotFoundError("User", 3))

	tests := []struct {
		name   string
		userID uint
		want   int
	}{
		{"admin", 1, http.StatusOK},
		{"reader", 2, http.StatusForbidden},
		{"deleted account", 3, http.StatusUnauthorized},
		{"anonymous", 0, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/admin", func(c *fiber.Ctx) error {
				if tt.userID != 0 {
					c.Locals("userID", tt.userID)
				}
				return c.Next()
			}, s.AdminRequired(), func(c *fiber.Ctx) error {
				return c.SendStatus(fiber.StatusOK)
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/admin", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestAuthFlow_SignupLoginLogout(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"username": "grace", "full_name": "Grace Hopper",
		"email": "Grace@Example.com", "password": "Correct-Horse-9",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	signup := decode[authResponse](t, body)
	assert.NotEmpty(t, signup.Token)
	assert.Equal(t, "grace@example.com", signup.User.Email)

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "grace@example.com", "password": "wrong-Password-1",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "grace@example.com", "password": "Correct-Horse-9",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	token := decode[authResponse](t, body).Token

	resp, body = env.do(t, http.MethodGet, "/api/me", nil, withToken(token))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	me := decode[map[string]interface{}](t, body)
	assert.Equal(t, "grace", me["user"].(map[string]interface{})["username"])
	assert.Contains(t, me["feature_flags"], "newsletter")

	resp, _ = env.do(t, http.MethodPost, "/api/auth/logout", nil, withToken(token))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/me", nil, withToken(token))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, string(body), "revoked")
}

func TestAuthRequired_RejectsBadTokens(t *testing.T) {
	env := newTestEnv(t, "")
	user := testutil.CreateUser(t, env.db, false)

	forged, _, err := middleware.IssueToken("other-secret", user.ID, user.Username, time.Now())
	require.NoError(t, err)

	for name, opts := range map[string][]reqOpt{
		"missing": nil,
		"garbage": {withToken("not-a-jwt")},
		"forged":  {withToken(forged)},
		"scheme":  {withHeader("Authorization", "Basic abc")},
	} {
		t.Run(name, func(t *testing.T) {
			resp, _ := env.do(t, http.MethodGet, "/api/me", nil, opts...)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t, "")
	user := testutil.CreateUser(t, env.db, false)

	resp, _ := env.do(t, http.MethodPost, "/api/ws/ticket", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/ws/ticket", nil, withToken(tokenFor(t, user)))
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	ticket := decode[map[string]interface{}](t, body)["ticket"].(string)
	require.True(t, env.mr.Exists(wsTicketKey(ticket)))
	assert.Positive(t, int64(env.mr.TTL(wsTicketKey(ticket))))

	// No upgrade headers: the ticket is redeemed by auth, then the handler refuses.
	resp, _ = env.do(t, http.MethodGet, "/api/ws/feed?ticket="+ticket, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
	assert.False(t, env.mr.Exists(wsTicketKey(ticket)))

	resp, _ = env.do(t, http.MethodGet, "/api/ws/feed?ticket="+ticket, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFeedWebSocket_FlagOff(t *testing.T) {
	env := newTestEnv(t, "live_feed=off")
	user := testutil.CreateUser(t, env.db, false)

	resp, _ := env.do(t, http.MethodGet, "/api/ws/feed", nil,
		withToken(tokenFor(t, user)),
		withHeader("Connection", "Upgrade"),
		withHeader("Upgrade", "websocket"),
		withHeader("Sec-WebSocket-Version", "13"),
		withHeader("Sec-WebSocket-Key", "dGhlIHNhbXBsZSBub25jZQ=="),
	)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

package service

import (
	"context"
	"log/slog"
	"strings"

	"tribune/internal/middleware"
	"tribune/internal/models"
	"tribune/internal/repository"
	"tribune/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

// maxFullNameLength bounds the author display name stored on posts.
const maxFullNameLength = 128

type UserService struct {
	userRepo repository.UserRepository
	cost     int
}

type SignupInput struct {
	Username string
	FullName string
	Email    string
	Password string
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{userRepo: userRepo, cost: bcrypt.DefaultCost}
}

// WithBcryptCost overrides the hashing cost. Tests use bcrypt.MinCost.
func (s *UserService) WithBcryptCost(cost int) *UserService {
	s.cost = cost
	return s
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))

	if in.Username == "" || in.Email == "" || in.Password == "" {
		return nil, models.NewValidationError("Username, email, and password are required")
	}
	if err := validation.ValidateUsername(in.Username); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(in.Email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if len([]rune(in.FullName)) > maxFullNameLength {
		return nil, models.NewValidationError("Full name too long (max 128 characters)")
	}

	existing, err := s.userRepo.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewConflictError("User already exists")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Username: in.Username,
		FullName: in.FullName,
		Email:    in.Email,
		Password: string(hashed),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	middleware.Logger.InfoContext(ctx, "user signed up",
		slog.Uint64("user_id", uint64(user.ID)),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Authenticate checks credentials. Unknown email and wrong password produce
// the same error.
func (s *UserService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	invalid := models.NewUnauthorizedError("Invalid credentials")
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, invalid
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, invalid
	}
	if cmpErr := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); cmpErr != nil {
		return nil, invalid
	}
	return user, nil
}

// GetIdentity resolves the current user. A zero id means nobody is signed in.
func (s *UserService) GetIdentity(ctx context.Context, userID uint) (*models.User, error) {
	if userID == 0 {
		return nil, models.ErrNotAuthenticated
	}
	return s.userRepo.GetByID(ctx, userID)
}

// GetByID satisfies UserLookup for PostService.
func (s *UserService) GetByID(ctx context.Context, userID uint) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context, limit, offset int) ([]models.User, error) {
	return s.userRepo.List(ctx, limit, offset)
}

// SetAdmin grants or revokes admin rights for the account with the given email.
func (s *UserService) SetAdmin(ctx context.Context, email string, isAdmin bool) (*models.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", email)
	}
	if err := s.userRepo.SetAdmin(ctx, user.ID, isAdmin); err != nil {
		return nil, err
	}
	user.IsAdmin = isAdmin
	return user, nil
}

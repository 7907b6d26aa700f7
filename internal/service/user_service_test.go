package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"order-fulfillment/internal/domain"
	"order-fulfillment/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"golang.org/x/crypto/bcrypt"
)

// Mock repositories for testing
type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	if _, exists := m.users[user.Email]; exists {
		return repository.ErrUserAlreadyExists
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) Upsert(ctx context.Context, user *domain.User) error {
	if existing, ok := m.users[user.Email]; ok {
		user.ID = existing.ID
	}
	m.users[user.Email] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, exists := m.users[email]
	if !exists {
		return nil, repository.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

// mockRefreshTokenRepository keys tokens by digest like the real repository.
type mockRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken
}

func newMockRefreshTokenRepository() *mockRefreshTokenRepository {
	return &mockRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
	}
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken, clear string) error {
	token.TokenDigest = repository.DigestToken(clear)
	m.tokens[token.TokenDigest] = token
	return nil
}

func (m *mockRefreshTokenRepository) FindByToken(ctx context.Context, clear string) (*domain.RefreshToken, error) {
	refreshToken, exists := m.tokens[repository.DigestToken(clear)]
	if !exists {
		return nil, repository.ErrRefreshTokenNotFound
	}
	if refreshToken.Revoked {
		return nil, repository.ErrRefreshTokenRevoked
	}
	return refreshToken, nil
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, clear string) error {
	refreshToken, exists := m.tokens[repository.DigestToken(clear)]
	if !exists {
		return repository.ErrRefreshTokenNotFound
	}
	refreshToken.Revoked = true
	return nil
}

func newTestUserService() (UserService, *mockUserRepository, *mockRefreshTokenRepository) {
	userRepo := newMockUserRepository()
	refreshTokenRepo := newMockRefreshTokenRepository()
	return NewUserService(userRepo, refreshTokenRepo, "test-secret-key", TokenTTL{}), userRepo, refreshTokenRepo
}

// bcrypt is slow, keep the run count modest.
func bcryptProperties() *gopter.Properties {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	return gopter.NewProperties(params)
}

var (
	genEmail    = gen.RegexMatch(`[a-z]{3,10}@[a-z]{3,8}\.(com|org|net)`)
	genPassword = gen.RegexMatch(`[A-Za-z0-9!@#$%]{8,20}`)
	genName     = gen.RegexMatch(`[A-Z][a-z]{2,15}`)
)

// Feature: order-fulfillment, Property 10: Registration creates hashed passwords for buyers
func TestProperty_RegistrationCreatesHashedBuyer(t *testing.T) {
	properties := bcryptProperties()

	properties.Property("passwords are hashed and new accounts are buyers", prop.ForAll(
		func(email string, password string, name string) bool {
			service, userRepo, _ := newTestUserService()
			ctx := context.Background()

			user, err := service.Register(ctx, email, password, name)
			if err != nil {
				t.Logf("FAIL: Registration failed: %v", err)
				return false
			}

			if user.PasswordHash == password {
				t.Logf("FAIL: Password stored as plaintext for email %s", email)
				return false
			}
			if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
				t.Logf("FAIL: Password hash doesn't match: %v", err)
				return false
			}
			if user.Role != domain.RoleBuyer {
				t.Logf("FAIL: Expected BUYER role, got %s", user.Role)
				return false
			}

			stored, err := userRepo.FindByEmail(ctx, email)
			return err == nil && stored.PasswordHash == user.PasswordHash && stored.Name == name
		},
		genEmail, genPassword, genName,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestRegister_DuplicateEmail(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := service.Register(ctx, "pembeli@example.com", "password123", "Pembeli"); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := service.Register(ctx, "pembeli@example.com", "password123", "Pembeli"); !errors.Is(err, repository.ErrUserAlreadyExists) {
		t.Fatalf("expected ErrUserAlreadyExists, got %v", err)
	}
}

// Feature: order-fulfillment, Property 11: JWT tokens carry user id and role
func TestProperty_JWTTokensContainRequiredClaims(t *testing.T) {
	properties := bcryptProperties()

	properties.Property("access tokens contain user ID and role claims", prop.ForAll(
		func(email string, password string, name string, role domain.Role) bool {
			service, userRepo, _ := newTestUserService()
			ctx := context.Background()

			user, err := service.Register(ctx, email, password, name)
			if err != nil {
				return false
			}

			// Reviewer accounts are seeded, not registered
			user.Role = role
			userRepo.users[email] = user

			accessToken, _, _, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			claims, err := service.ValidateToken(accessToken)
			if err != nil {
				t.Logf("FAIL: Token validation failed: %v", err)
				return false
			}

			return claims.UserID == user.ID &&
				claims.Role == role &&
				claims.ExpiresAt != nil &&
				claims.IssuedAt != nil
		},
		genEmail, genPassword, genName,
		gen.OneConstOf(domain.RoleBuyer, domain.RoleCS1, domain.RoleCS2),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: order-fulfillment, Property 12: Refresh tokens are stored as digests and round trip
func TestProperty_TokenRefreshRoundTrip(t *testing.T) {
	properties := bcryptProperties()

	properties.Property("valid refresh token returns new valid access token", prop.ForAll(
		func(email string, password string, name string) bool {
			service, _, tokenRepo := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, email, password, name); err != nil {
				return false
			}

			_, refreshToken, user, err := service.Login(ctx, email, password)
			if err != nil {
				t.Logf("FAIL: Login failed: %v", err)
				return false
			}

			for digest := range tokenRepo.tokens {
				if digest == refreshToken {
					t.Logf("FAIL: refresh token stored in clear")
					return false
				}
			}

			newAccessToken, err := service.RefreshToken(ctx, refreshToken)
			if err != nil {
				t.Logf("FAIL: Token refresh failed: %v", err)
				return false
			}

			claims, err := service.ValidateToken(newAccessToken)
			if err != nil {
				return false
			}

			return claims.UserID == user.ID &&
				claims.Role == user.Role &&
				time.Now().Before(claims.ExpiresAt.Time)
		},
		genEmail, genPassword, genName,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: order-fulfillment, Property 13: Logout invalidates refresh token
func TestProperty_LogoutInvalidatesRefreshToken(t *testing.T) {
	properties := bcryptProperties()

	properties.Property("logout marks refresh token as revoked", prop.ForAll(
		func(email string, password string, name string) bool {
			service, _, tokenRepo := newTestUserService()
			ctx := context.Background()

			if _, err := service.Register(ctx, email, password, name); err != nil {
				return false
			}

			_, refreshToken, _, err := service.Login(ctx, email, password)
			if err != nil {
				return false
			}

			if err := service.Logout(ctx, refreshToken); err != nil {
				t.Logf("FAIL: Logout failed: %v", err)
				return false
			}

			if _, err := service.RefreshToken(ctx, refreshToken); !errors.Is(err, ErrInvalidToken) {
				t.Logf("FAIL: Expected ErrInvalidToken, got: %v", err)
				return false
			}

			_, err = tokenRepo.FindByToken(ctx, refreshToken)
			return errors.Is(err, repository.ErrRefreshTokenRevoked)
		},
		genEmail, genPassword, genName,
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestLogin_WrongPassword(t *testing.T) {
	service, _, _ := newTestUserService()
	ctx := context.Background()

	if _, err := service.Register(ctx, "cs1@example.com", "password123", "CS One"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}

	if _, _, _, err := service.Login(ctx, "cs1@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, _, err := service.Login(ctx, "nobody@example.com", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestLogout_UnknownTokenIsNoop(t *testing.T) {
	service, _, _ := newTestUserService()
	if err := service.Logout(context.Background(), "never-issued"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

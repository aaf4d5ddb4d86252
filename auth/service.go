package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"agriflow/content"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrInvalidRole signals a role that cannot be self-assigned.
	ErrInvalidRole = errors.New("auth: invalid role")
)

const defaultTokenTTL = 24 * time.Hour

// Service handles authentication business logic.
type Service struct {
	repo      Repository
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// NewService creates a new authentication service.
func NewService(repo Repository, jwtSecret string) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  defaultTokenTTL,
		now:       time.Now,
	}
}

// WithTokenTTL overrides the token lifetime. Non-positive values are ignored.
func (s *Service) WithTokenTTL(ttl time.Duration) *Service {
	if ttl > 0 {
		s.tokenTTL = ttl
	}
	return s
}

// WithClock overrides the time source used for token timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Register creates a new user account. Admins cannot self-register.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}

	email := strings.TrimSpace(req.Email)
	fullName := strings.TrimSpace(req.FullName)
	if email == "" || fullName == "" {
		return nil, fmt.Errorf("auth: email and full_name are required")
	}

	role := Role(strings.TrimSpace(string(req.Role)))
	if role == "" {
		role = RoleFarmer
	}
	if role != RoleFarmer && role != RoleProvider {
		return nil, fmt.Errorf("%w %q", ErrInvalidRole, role)
	}

	lang := content.DefaultLanguage
	if strings.TrimSpace(req.Language) != "" {
		l, err := content.Lookup(req.Language)
		if err != nil {
			return nil, fmt.Errorf("auth: language %q: %w", req.Language, err)
		}
		lang = l.ID
	}

	var phone *string
	if p := strings.TrimSpace(req.Phone); p != "" {
		phone = &p
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        email,
		FullName:     fullName,
		PasswordHash: string(passwordHash),
		Phone:        phone,
		Language:     lang,
		Role:         role,
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a JWT token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresAt, err := s.generateToken(user.ID, user.Role)
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: generate token: %w", err)
	}

	return LoginResult{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
	}, nil
}

// GetUserByID retrieves user information by ID.
func (s *Service) GetUserByID(ctx context.Context, userID string) (*User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// VerifyToken validates a JWT token and returns the user ID and role.
func (s *Service) VerifyToken(tokenString string) (string, Role, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", fmt.Errorf("auth: parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", fmt.Errorf("auth: invalid token")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", "", fmt.Errorf("auth: invalid user_id in token")
	}
	roleStr, ok := claims["role"].(string)
	if !ok {
		return "", "", fmt.Errorf("auth: invalid role in token")
	}
	role := Role(roleStr)
	if !isValidRole(role) {
		return "", "", fmt.Errorf("auth: invalid role %q in token", roleStr)
	}
	return userID, role, nil
}

func (s *Service) generateToken(userID string, role Role) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.tokenTTL)
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    string(role),
		"exp":     expiresAt.Unix(),
		"iat":     now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

func isValidRole(role Role) bool {
	switch role {
	case RoleFarmer, RoleProvider, RoleAdmin:
		return true
	default:
		return false
	}
}

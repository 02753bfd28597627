package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"karte-backend/internal/apperror"
	"karte-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Session roles carried in the "role" claim
const (
	RoleAdmin    = "admin"
	RoleCustomer = "customer"
)

// Session is the validated content of a session token
type Session struct {
	Subject string
	Role    string
}

// AuthService issues and validates session tokens and manages admin accounts
type AuthService struct {
	admins            AdminStore
	jwtSecret         string
	adminTTL          time.Duration
	customerTTL       time.Duration
	allowRegistration bool
	now               func() time.Time
}

// AuthOptions configures an AuthService
type AuthOptions struct {
	JWTSecret         string
	AdminTTL          time.Duration
	CustomerTTL       time.Duration
	AllowRegistration bool
}

// NewAuthService creates a new auth service
func NewAuthService(admins AdminStore, opts AuthOptions) *AuthService {
	return &AuthService{
		admins:            admins,
		jwtSecret:         opts.JWTSecret,
		adminTTL:          opts.AdminTTL,
		customerTTL:       opts.CustomerTTL,
		allowRegistration: opts.AllowRegistration,
		now:               time.Now,
	}
}

// Register creates an admin account through the public endpoint, which is
// only open when registration is allowed.
func (s *AuthService) Register(ctx context.Context, email, password string) (*models.Admin, string, error) {
	if !s.allowRegistration {
		return nil, "", fmt.Errorf("admin registration is closed: %w", apperror.ErrForbidden)
	}
	admin, err := s.CreateAdmin(ctx, email, password)
	if err != nil {
		return nil, "", err
	}
	token, err := s.IssueSession(admin.ID, RoleAdmin)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// CreateAdmin creates an admin account unconditionally
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*models.Admin, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < 8 {
		return nil, fmt.Errorf("email and a password of 8+ characters are required: %w", apperror.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	admin := &models.Admin{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.admins.Create(ctx, admin); err != nil {
		return nil, err
	}
	return admin, nil
}

// Login checks admin credentials and returns a session token
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.Admin, string, error) {
	admin, err := s.admins.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, "", fmt.Errorf("admin %s: %w", email, apperror.ErrInvalidCredentials)
		}
		return nil, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("admin %s: %w", email, apperror.ErrInvalidCredentials)
	}

	token, err := s.IssueSession(admin.ID, RoleAdmin)
	if err != nil {
		return nil, "", err
	}
	return admin, token, nil
}

// IssueSession signs a session token for the subject
func (s *AuthService) IssueSession(subject, role string) (string, error) {
	ttl := s.adminTTL
	if role == RoleCustomer {
		ttl = s.customerTTL
	}

	now := s.now()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  now.Add(ttl).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateSession validates a session token
func (s *AuthService) ValidateSession(tokenString string) (*Session, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid token claims")
	}

	subject, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if subject == "" {
		return nil, fmt.Errorf("sub not found in token")
	}
	if role != RoleAdmin && role != RoleCustomer {
		return nil, fmt.Errorf("unknown role %q in token", role)
	}

	return &Session{Subject: subject, Role: role}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

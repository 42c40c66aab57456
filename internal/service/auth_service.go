package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "sheetdl"

var (
	// ErrInvalidCredentials indicates that the provided API password is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken indicates a missing, expired or forged bearer token.
	ErrInvalidToken = errors.New("invalid token")
	// ErrAuthNotConfigured is returned when a token is requested but no password hash is configured.
	ErrAuthNotConfigured = errors.New("api authentication is not configured")
)

// AuthService guards the local control API with a shared password and
// short-lived bearer tokens.
type AuthService interface {
	Enabled() bool
	IssueToken(password string) (string, time.Time, error)
	VerifyToken(token string) (*jwt.RegisteredClaims, error)
}

type authService struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthService returns an AuthService. An empty secret disables authentication.
func NewAuthService(secret, passwordHash string, ttl time.Duration) AuthService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &authService{
		secret:       []byte(strings.TrimSpace(secret)),
		passwordHash: []byte(strings.TrimSpace(passwordHash)),
		ttl:          ttl,
		now:          time.Now,
	}
}

func (s *authService) Enabled() bool {
	return len(s.secret) > 0
}

func (s *authService) IssueToken(password string) (string, time.Time, error) {
	if !s.Enabled() || len(s.passwordHash) == 0 {
		return "", time.Time{}, ErrAuthNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(strings.TrimSpace(password))); err != nil {
		return "", time.Time{}, ErrInvalidCredentials
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "api",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (s *authService) VerifyToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HashPassword produces the bcrypt hash stored in auth.passwordhash.
func HashPassword(password string) (string, error) {
	password = strings.TrimSpace(password)
	if len(password) < 8 {
		return "", errors.New("password must be at least 8 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

package services

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fintrack/apiserver/internal/store"
	"github.com/fintrack/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	passwordSpecials  = "@$!%*?&"
)

var (
	nameRegexp  = regexp.MustCompile(`^[A-Za-z ]{3,}$`)
	emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// AuthService issues and verifies session credentials and owns the
// registration and login rules. Token verification is stateless: a token
// resolves to an account id without touching the store.
type AuthService struct {
	repo     UserRepository
	secret   []byte
	tokenTTL time.Duration
}

func NewAuthService(repo UserRepository, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{
		repo:     repo,
		secret:   []byte(jwtSecret),
		tokenTTL: tokenTTL,
	}
}

// Register creates a new account and mints a session token for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (types.User, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if !nameRegexp.MatchString(name) {
		return types.User{}, "", &ValidationError{Field: "name", Message: "name must be at least 3 characters and contain only letters and spaces"}
	}
	if !emailRegexp.MatchString(email) {
		return types.User{}, "", &ValidationError{Field: "email", Message: "email must be a valid email address"}
	}
	if !validPassword(password) {
		return types.User{}, "", &ValidationError{Field: "password", Message: "password must be at least 6 characters and include uppercase, lowercase, number, and special character"}
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return types.User{}, "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, "", err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return types.User{}, "", err
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		// The unique index backstops the lookup above under concurrent registers.
		if errors.Is(err, store.ErrDuplicateEmail) {
			return types.User{}, "", ErrEmailTaken
		}
		return types.User{}, "", err
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials and mints a session token. Failures collapse
// into ErrInvalidCredentials regardless of cause.
func (s *AuthService) Login(ctx context.Context, email, password string) (types.User, string, error) {
	email = strings.TrimSpace(email)

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, "", ErrInvalidCredentials
		}
		return types.User{}, "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, "", ErrInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		return types.User{}, "", err
	}
	return user, token, nil
}

// ResolveIdentity verifies a session token and returns the account id it
// encodes. It performs no store access and has no side effects.
func (s *AuthService) ResolveIdentity(tokenString string) (int, error) {
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	userID, err := strconv.Atoi(strings.TrimSpace(claims.Subject))
	if err != nil || userID < 1 {
		return 0, ErrInvalidToken
	}
	return userID, nil
}

func (s *AuthService) issueToken(userID int) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.Itoa(userID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// validPassword checks the registration password policy: at least six
// characters drawn only from letters, digits, and the special set, with
// at least one lowercase, one uppercase, one digit, and one special.
func validPassword(password string) bool {
	if len(password) < minPasswordLength {
		return false
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r) && r <= unicode.MaxASCII:
			hasLower = true
		case unicode.IsUpper(r) && r <= unicode.MaxASCII:
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		default:
			return false
		}
	}
	return hasLower && hasUpper && hasDigit && hasSpecial
}

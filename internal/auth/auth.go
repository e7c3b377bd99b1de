// Package auth manages accounts and bearer tokens. Account lookup and
// creation are separate decisions: a login against an unknown account fails
// with ErrUnknownAccount, and only the caller decides whether to register.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"nxsync/internal/metastore"
	"nxsync/pkg/models"
)

const collection = "users"

// tokenTTL matches the original seven-day session length.
const tokenTTL = 7 * 24 * time.Hour

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrEmailTaken     = errors.New("email already registered")
)

// Service owns the users collection and token signing.
type Service struct {
	store  *metastore.Store
	secret []byte
	now    func() time.Time
}

// NewService wires the service to its store and signing secret.
func NewService(store *metastore.Store, secret string) *Service {
	return &Service{store: store, secret: []byte(secret), now: time.Now}
}

// Register creates an account. The email is the collection key, so duplicate
// registration is rejected inside a single update round.
func (s *Service) Register(email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("email and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UnixMilli(),
	}
	err = s.store.Update(collection, func(records map[string]json.RawMessage) error {
		if _, exists := records[email]; exists {
			return ErrEmailTaken
		}
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		records[email] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate checks the password for an existing account. An absent account
// and a wrong password are distinct failures so callers never misread a
// transport or storage problem as "needs registration".
func (s *Service) Authenticate(email, password string) (*models.User, error) {
	var user models.User
	err := s.store.Get(collection, normalizeEmail(email), &user)
	if errors.Is(err, metastore.ErrNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return &user, nil
}

// IssueToken signs a bearer token for the user.
func (s *Service) IssueToken(userID string) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// VerifyToken validates a bearer token and returns the user id it names.
func (s *Service) VerifyToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadCredentials, err)
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrBadCredentials
	}
	return claims.Subject, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Package pairing issues short-lived single-use pairing codes and verifies
// them. Codes live in the metadata store, so the single-writer discipline of
// the collection makes concurrent verifies race-free: exactly one caller can
// observe and consume a given code.
package pairing

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nxsync/internal/metastore"
	"nxsync/pkg/models"
)

const (
	collection = "pairing_codes"

	// Ambiguous characters (0/O, 1/I) are excluded so codes survive being
	// read aloud or typed from a screen.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6

	// TTL is how long a generated code stays valid.
	TTL = 5 * time.Minute
)

var (
	// ErrCodeNotFound means the code was never issued or already consumed.
	ErrCodeNotFound = errors.New("pairing code not found")
	// ErrCodeExpired means the code existed but its deadline passed; the
	// entry is removed as a side effect of observing this.
	ErrCodeExpired = errors.New("pairing code expired")

	errCollision = errors.New("pairing code collision")
)

const maxGenerateAttempts = 5

// Service owns the pairing-code table.
type Service struct {
	store *metastore.Store
	now   func() time.Time
}

// NewService wires the service to its backing store.
func NewService(store *metastore.Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Generate draws a fresh code, associates a server-generated client id with
// it and stores the pair. Expired entries are swept opportunistically on each
// call. A collision with a live code is retried with a new draw, never
// overwritten, so one client's association can't leak to another's code.
func (s *Service) Generate() (*models.PairingCode, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := drawCode()
		if err != nil {
			return nil, err
		}
		now := s.now()
		rec := models.PairingCode{
			Code:      code,
			ClientID:  uuid.NewString(),
			CreatedAt: now.UnixMilli(),
			ExpiresAt: now.Add(TTL).UnixMilli(),
		}
		err = s.store.Update(collection, func(records map[string]json.RawMessage) error {
			sweep(records, now)
			if _, exists := records[code]; exists {
				return errCollision
			}
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			records[code] = data
			return nil
		})
		if errors.Is(err, errCollision) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &rec, nil
	}
	return nil, fmt.Errorf("could not draw a unique pairing code after %d attempts", maxGenerateAttempts)
}

// Verify consumes the code. Success returns the associated client id; both
// the success and the expired paths remove the entry, so a code is good for
// exactly one verification. The removal commits in the same update round as
// the lookup, which is what makes concurrent verifies single-winner.
func (s *Service) Verify(code string) (string, error) {
	now := s.now()
	var (
		clientID string
		verdict  error
	)
	err := s.store.Update(collection, func(records map[string]json.RawMessage) error {
		raw, ok := records[code]
		if !ok {
			verdict = ErrCodeNotFound
			return nil
		}
		delete(records, code)
		var rec models.PairingCode
		if err := json.Unmarshal(raw, &rec); err != nil {
			return err
		}
		if now.UnixMilli() >= rec.ExpiresAt {
			verdict = ErrCodeExpired
			return nil
		}
		clientID = rec.ClientID
		return nil
	})
	if err != nil {
		return "", err
	}
	if verdict != nil {
		return "", verdict
	}
	return clientID, nil
}

// Sweep discards every entry past its deadline.
func (s *Service) Sweep() error {
	now := s.now()
	return s.store.Update(collection, func(records map[string]json.RawMessage) error {
		sweep(records, now)
		return nil
	})
}

func sweep(records map[string]json.RawMessage, now time.Time) {
	cutoff := now.UnixMilli()
	for key, raw := range records {
		var rec models.PairingCode
		if err := json.Unmarshal(raw, &rec); err != nil || rec.ExpiresAt <= cutoff {
			delete(records, key)
		}
	}
}

func drawCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("draw pairing code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

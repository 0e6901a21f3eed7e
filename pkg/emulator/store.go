package emulator

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = errors.New("record not found")

const bucketTokens = "tokens"

const tokenLength = 32

// Store keeps issued access tokens in a bbolt database.
type Store struct {
	db  *bolt.DB
	now func() time.Time
}

// OpenStore opens (or creates) the token database at dbPath.
func OpenStore(dbPath string) (*Store, error) {
	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketTokens)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketTokens, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// IssueToken generates a random access token valid for ttl and stores it.
func (s *Store) IssueToken(ttl time.Duration) (string, error) {
	b := make([]byte, tokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)

	expiresAt := s.now().Add(ttl).Unix()
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTokens)).Put([]byte(token), []byte(strconv.FormatInt(expiresAt, 10)))
	})
	if err != nil {
		return "", fmt.Errorf("failed to store token: %w", err)
	}

	return token, nil
}

// ValidateToken reports whether token was issued and has not expired.
// Expired tokens are removed.
func (s *Store) ValidateToken(token string) (bool, error) {
	var raw []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketTokens)).Get([]byte(token))
		if data == nil {
			return ErrNotFound
		}
		raw = append([]byte(nil), data...)
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get token: %w", err)
	}

	expiresAt, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return false, fmt.Errorf("failed to parse expiration time: %w", err)
	}

	if s.now().Unix() >= expiresAt {
		_ = s.RevokeToken(token)
		return false, nil
	}

	return true, nil
}

// RevokeToken deletes a token.
func (s *Store) RevokeToken(token string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTokens)).Delete([]byte(token))
	})
}

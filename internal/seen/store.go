// Package seen persists links emitted by earlier runs so they are not
// selected again.
package seen

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketName = "seen_links"
	DefaultTTL = 30 * 24 * time.Hour
)

// Store is a bbolt-backed map of link to last-seen time.
type Store struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// Open opens or creates the store at path. A non-positive ttl uses DefaultTTL.
func Open(path string, ttl time.Duration) (*Store, error) {
	if path == "" {
		return nil, errors.New("seen store path is empty")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create seen store dir: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open seen store: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create seen bucket: %w", err)
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// SetClock replaces the time source used for TTL checks.
func (s *Store) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Seen reports whether link was marked within the TTL.
func (s *Store) Seen(link string) bool {
	var found bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(bucketName)).Get([]byte(link))
		if v == nil {
			return nil
		}
		at, err := time.Parse(time.RFC3339, string(v))
		if err != nil {
			return nil
		}
		found = s.now().Sub(at) < s.ttl
		return nil
	})
	return found
}

// MarkAll records links as seen at the given time.
func (s *Store) MarkAll(links []string, at time.Time) error {
	if len(links) == 0 {
		return nil
	}
	stamp := []byte(at.UTC().Format(time.RFC3339))
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for _, l := range links {
			if l == "" {
				continue
			}
			if err := b.Put([]byte(l), stamp); err != nil {
				return fmt.Errorf("mark %s: %w", l, err)
			}
		}
		return nil
	})
}

// Prune deletes entries older than the TTL and returns how many were removed.
func (s *Store) Prune(now time.Time) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		var stale [][]byte
		if err := b.ForEach(func(k, v []byte) error {
			at, err := time.Parse(time.RFC3339, string(v))
			if err != nil || now.Sub(at) >= s.ttl {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune seen store: %w", err)
	}
	return removed, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	return s.db.Close()
}

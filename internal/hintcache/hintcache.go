// Package hintcache persists per-host discovery hints across sessions, so a
// host that was extracted once can be re-extracted without rerunning the
// expensive layers. The cache is an explicit object with its own lifecycle;
// nothing reads or writes it implicitly.
package hintcache

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketHints = []byte("hints")

// Hints is what a successful extraction leaves behind for a host.
type Hints struct {
	// EndpointURL is the verified endpoint.
	EndpointURL string `json:"endpoint_url"`
	// DateParamNames are the names that carried the date filter.
	DateParamNames []string `json:"date_param_names"`
	// PickerSelector is the control selector Layer 2 used, if any.
	PickerSelector string `json:"picker_selector,omitempty"`
	// UpdatedAt is when the hint was recorded.
	UpdatedAt time.Time `json:"updated_at"`
}

// Cache is a bbolt-backed hint store.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// Open opens (or creates) the cache file. ttl bounds hint staleness; zero
// means hints never expire.
func Open(path string, ttl time.Duration) (*Cache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open hint cache: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketHints)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize hint cache: %w", err)
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns the hints for a host. Stale hints are reported as absent.
func (c *Cache) Get(host string) (Hints, bool) {
	var hints Hints
	found := false

	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHints).Get([]byte(host))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &hints); err != nil {
			return nil
		}
		found = true
		return nil
	})

	if !found {
		return Hints{}, false
	}
	if c.ttl > 0 && time.Since(hints.UpdatedAt) > c.ttl {
		return Hints{}, false
	}
	return hints, true
}

// Put stores hints for a host, stamping UpdatedAt.
func (c *Cache) Put(host string, hints Hints) error {
	hints.UpdatedAt = time.Now()
	data, err := json.Marshal(hints)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHints).Put([]byte(host), data)
	})
}

// Evict removes a host's hints, e.g. after a cached endpoint stops
// verifying.
func (c *Cache) Evict(host string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketHints).Delete([]byte(host))
	})
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.db.Close()
}

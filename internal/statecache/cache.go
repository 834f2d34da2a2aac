// ABOUTME: Bbolt-backed cache of the last mirrored player state
// ABOUTME: Lets a restarted client show the previous queue while reconnecting
package statecache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/TeaqariaWTF/spmp/internal/playerstate"
	"go.etcd.io/bbolt"
)

var playerBucket = []byte("player")

var snapshotKey = []byte("snapshot")

// Cache persists player-state snapshots between runs. It also carries the
// opaque radio continuation token, which would otherwise be lost on restart.
type Cache struct {
	db *bbolt.DB
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Cache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state cache: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(playerBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create player bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

// Save stores the snapshot, replacing any previous one.
func (c *Cache) Save(snap playerstate.Snapshot) error {
	value, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("serialize snapshot: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(playerBucket).Put(snapshotKey, value)
	})
}

// Load returns the stored snapshot; ok is false when none has been saved.
func (c *Cache) Load() (snap playerstate.Snapshot, ok bool, err error) {
	err = c.db.View(func(tx *bbolt.Tx) error {
		value := tx.Bucket(playerBucket).Get(snapshotKey)
		if value == nil {
			return nil
		}
		if err := json.Unmarshal(value, &snap); err != nil {
			return fmt.Errorf("deserialize snapshot: %w", err)
		}
		ok = true
		return nil
	})
	return snap, ok, err
}

// Close releases the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

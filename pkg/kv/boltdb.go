package kv

import (
	"fmt"
	"path/filepath"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// bucketKV is the single bucket all control-plane keys live in. bbolt
// keeps keys in lexicographic order within a bucket, which is what lets
// GetDir implement a directory listing as an ordered-cursor prefix scan
// instead of needing a real tree structure.
var bucketKV = []byte("kv")

// BoltStore is a Store backed by a local bbolt file. It gives the
// hierarchical KV the control plane depends on genuine directory
// semantics over a flat, sorted key space.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a bbolt database under
// dataDir for use as the control plane's KV store.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "commissaire.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open kv database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the underlying database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get returns the value stored at key.
func (s *BoltStore) Get(key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketKV).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		value = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set writes value at key.
func (s *BoltStore) Set(key string, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), value)
	})
}

// Delete removes key.
func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKV)
		if b.Get([]byte(key)) == nil {
			return ErrNotFound
		}
		return b.Delete([]byte(key))
	})
}

// GetDir returns the immediate children of prefix. A child whose key
// equals prefix+name (no further "/"), i.e. a leaf, carries its value;
// an intermediate directory entry carries a nil value. If nothing under
// prefix exists, GetDir returns ErrNotFound: this implementation has no
// explicit directory markers, so an emptied-out directory and one that
// was never created are indistinguishable, matching how an etcd
// directory node disappears once its last child is removed.
func (s *BoltStore) GetDir(prefix string) ([]Entry, error) {
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var entries []Entry
	seen := make(map[string]bool)

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketKV).Cursor()
		prefixBytes := []byte(prefix)
		for k, v := c.Seek(prefixBytes); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			childKey := prefix + rest
			var childValue []byte
			if idx := strings.IndexByte(rest, '/'); idx >= 0 {
				childKey = prefix + rest[:idx]
			} else {
				childValue = append([]byte(nil), v...)
			}
			if seen[childKey] {
				continue
			}
			seen[childKey] = true
			entries = append(entries, Entry{Key: childKey, Value: childValue})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		return nil, ErrNotFound
	}
	return entries, nil
}

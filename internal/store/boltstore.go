package store

import (
	"bytes"
	"fmt"
	"time"

	"github.com/boltdb/bolt"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// DefaultBucket is the bolt bucket used when none is configured.
const DefaultBucket = "entries"

// BoltStore keeps entries in a single bolt bucket. Every call runs in its own
// bolt transaction. Keys enumerate in byte order.
type BoltStore struct {
	db     *bolt.DB
	bucket []byte
}

// Compile-time check to ensure BoltStore implements kv.Store.
var _ kv.Store = (*BoltStore)(nil)

// OpenBoltStore opens (or creates) the bolt file at path.
func OpenBoltStore(path, bucket string) (*BoltStore, error) {
	if bucket == "" {
		bucket = DefaultBucket
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}

	s := &BoltStore{db: db, bucket: []byte(bucket)}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return s, nil
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Get seeks to key so that an empty stored value is still found.
func (s *BoltStore) Get(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(s.bucket).Cursor()
		k, v := c.Seek([]byte(key))
		if k != nil && bytes.Equal(k, []byte(key)) {
			value, found = string(v), true
		}
		return nil
	})
	return value, found, err
}

func (s *BoltStore) Set(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), []byte(value))
	})
}

func (s *BoltStore) Delete(key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Clear drops and recreates the bucket.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(s.bucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
}

func (s *BoltStore) Keys() ([]string, error) {
	keys := []string{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *BoltStore) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(s.bucket).Stats().KeyN
		return nil
	})
	return n, err
}

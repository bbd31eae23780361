package kv

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
)

// Storage presents a synchronous Store as deferred operations. Every method
// returns immediately and runs its store calls on their own goroutine; calls
// with an invalid key return an already settled future.
//
// Batches are not atomic: the Multi* methods issue one independent store
// call per item.
type Storage struct {
	store  Store
	logger hclog.Logger
}

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger used for swallowed merge failures.
func WithLogger(logger hclog.Logger) Option {
	return func(s *Storage) {
		s.logger = logger
	}
}

// New wraps store.
func New(store Store, opts ...Option) *Storage {
	s := &Storage{
		store:  store,
		logger: hclog.NewNullLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetItem resolves with the stored value, or Absent if the key is not set.
func (s *Storage) GetItem(key string) *Future[Item] {
	if err := validKey(key); err != nil {
		return Rejected[Item](err)
	}
	return Go(func() (Item, error) {
		return s.getItem(key)
	})
}

// SetItem creates or overwrites the entry for key.
func (s *Storage) SetItem(key, value string) *Future[Done] {
	if err := validKey(key); err != nil {
		return Rejected[Done](err)
	}
	return Go(func() (Done, error) {
		if err := s.store.Set(key, value); err != nil {
			return Done{}, fmt.Errorf("set %q: %w", key, err)
		}
		return Done{}, nil
	})
}

// RemoveItem deletes the entry for key. Removing an absent key succeeds.
func (s *Storage) RemoveItem(key string) *Future[Done] {
	if err := validKey(key); err != nil {
		return Rejected[Done](err)
	}
	return Go(func() (Done, error) {
		if err := s.store.Delete(key); err != nil {
			return Done{}, fmt.Errorf("remove %q: %w", key, err)
		}
		return Done{}, nil
	})
}

// Clear deletes every entry.
func (s *Storage) Clear() *Future[Done] {
	return Go(func() (Done, error) {
		if err := s.store.Clear(); err != nil {
			return Done{}, fmt.Errorf("clear: %w", err)
		}
		return Done{}, nil
	})
}

// GetAllKeys resolves with every key in the store's native order.
func (s *Storage) GetAllKeys() *Future[[]string] {
	return Go(func() ([]string, error) {
		keys, err := s.store.Keys()
		if err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		if keys == nil {
			keys = []string{}
		}
		return keys, nil
	})
}

// Length resolves with the number of entries.
func (s *Storage) Length() *Future[int] {
	return Go(func() (int, error) {
		n, err := s.store.Len()
		if err != nil {
			return 0, fmt.Errorf("length: %w", err)
		}
		return n, nil
	})
}

// MergeItem merges value into the JSON stored under key (see MergeJSON) and
// resolves with the result. The stored entry is left unchanged. Any failure,
// including a missing key or malformed JSON, resolves with Absent rather
// than rejecting.
func (s *Storage) MergeItem(key, value string) *Future[Item] {
	if err := validKey(key); err != nil {
		s.logger.Debug("merge failed", "key", key, "error", err)
		return Resolved(Absent)
	}
	return Go(func() (Item, error) {
		return s.mergeItem(key, value), nil
	})
}

// MultiGet resolves with one Item per key, in input order.
func (s *Storage) MultiGet(keys []string) *Future[[]Item] {
	fs := make([]*Future[Item], len(keys))
	for i, key := range keys {
		fs[i] = s.GetItem(key)
	}
	return All(fs)
}

// MultiSet sets every pair concurrently. It rejects if any set fails, with
// no report of which pairs were applied.
func (s *Storage) MultiSet(pairs []Pair) *Future[[]Done] {
	fs := make([]*Future[Done], len(pairs))
	for i, p := range pairs {
		fs[i] = s.SetItem(p.Key, p.Value)
	}
	return All(fs)
}

// MultiMerge merges every pair concurrently with MergeItem semantics per item.
func (s *Storage) MultiMerge(pairs []Pair) *Future[[]Item] {
	fs := make([]*Future[Item], len(pairs))
	for i, p := range pairs {
		fs[i] = s.MergeItem(p.Key, p.Value)
	}
	return All(fs)
}

// MultiRemove removes every key concurrently.
func (s *Storage) MultiRemove(keys []string) *Future[[]Done] {
	fs := make([]*Future[Done], len(keys))
	for i, key := range keys {
		fs[i] = s.RemoveItem(key)
	}
	return All(fs)
}

func (s *Storage) getItem(key string) (Item, error) {
	if err := validKey(key); err != nil {
		return Absent, err
	}
	value, found, err := s.store.Get(key)
	if err != nil {
		return Absent, fmt.Errorf("get %q: %w", key, err)
	}
	if !found {
		return Absent, nil
	}
	return Present(value), nil
}

func (s *Storage) mergeItem(key, value string) Item {
	merged, err := s.merge(key, value)
	if err != nil {
		s.logger.Debug("merge failed", "key", key, "error", err)
		return Absent
	}
	return Present(merged)
}

func (s *Storage) merge(key, value string) (string, error) {
	item, err := s.getItem(key)
	if err != nil {
		return "", err
	}
	if !item.Found {
		return "", ErrMergeNotFound
	}
	return MergeJSON(item.Value, value)
}

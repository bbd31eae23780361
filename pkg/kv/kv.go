package kv

import (
	"encoding/json"
	"errors"
)

// ErrInvalidKey is returned for operations on an empty key. Bolt buckets and
// S3 object keys cannot hold an empty key, so no backend accepts one.
var ErrInvalidKey = errors.New("kv: key must not be empty")

// Store defines the interface for a synchronous key-value store.
// Implementations of this interface can be swapped out,
// allowing for different storage backends (e.g., in-memory, bolt, Raft-replicated).
// Each individual call must be atomic with respect to other calls.
type Store interface {
	// Get retrieves the value associated with the given key.
	// Returns the value and true if the key exists, or empty string and false if not.
	Get(key string) (string, bool, error)

	// Set stores a key-value pair, overwriting any previous value.
	Set(key, value string) error

	// Delete removes a key from the store.
	// Deleting an absent key is not an error.
	Delete(key string) error

	// Clear removes every key from the store.
	Clear() error

	// Keys returns all keys in the backend's native enumeration order.
	Keys() ([]string, error)

	// Len returns the number of entries.
	Len() (int, error)
}

// Item is the result of a read or merge. Found is false for the absent marker,
// which is distinct from an empty Value.
type Item struct {
	Value string
	Found bool
}

// Absent is the "no value" item.
var Absent = Item{}

// Present wraps a stored value.
func Present(value string) Item {
	return Item{Value: value, Found: true}
}

// MarshalJSON encodes the item as a JSON string, or null when absent.
func (i Item) MarshalJSON() ([]byte, error) {
	if !i.Found {
		return []byte("null"), nil
	}
	return json.Marshal(i.Value)
}

// UnmarshalJSON accepts a JSON string or null.
func (i *Item) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*i = Absent
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*i = Present(s)
	return nil
}

// Pair is a key/value input for batched set and merge.
type Pair struct {
	Key   string
	Value string
}

// Done signals completion of an operation that has no result.
type Done struct{}

func validKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	return nil
}

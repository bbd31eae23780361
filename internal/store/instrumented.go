package store

import (
	"sync/atomic"
	"time"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// Op names a kv.Store operation for metrics.
type Op int

const (
	OpGet Op = iota
	OpSet
	OpDelete
	OpClear
	OpKeys
	OpLen
	numOps
)

var opNames = [numOps]string{"get", "set", "delete", "clear", "keys", "len"}

func (o Op) String() string {
	if o < 0 || o >= numOps {
		return "unknown"
	}
	return opNames[o]
}

// opMetrics holds counters for a single operation.
// Uses atomic operations for thread-safe updates without locks.
type opMetrics struct {
	count     atomic.Uint64
	errors    atomic.Uint64
	latencyNs atomic.Uint64
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
// This pattern works for every backend, local or replicated.
type InstrumentedStore struct {
	store   kv.Store
	metrics [numOps]opMetrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store) *InstrumentedStore {
	return &InstrumentedStore{store: store}
}

// Unwrap returns the wrapped store.
func (s *InstrumentedStore) Unwrap() kv.Store {
	return s.store
}

func (s *InstrumentedStore) record(op Op, start time.Time, err error) {
	m := &s.metrics[op]
	m.count.Add(1)
	m.latencyNs.Add(uint64(time.Since(start).Nanoseconds()))
	if err != nil {
		m.errors.Add(1)
	}
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (string, bool, error) {
	start := time.Now()
	value, found, err := s.store.Get(key)
	s.record(OpGet, start, err)
	return value, found, err
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key, value string) error {
	start := time.Now()
	err := s.store.Set(key, value)
	s.record(OpSet, start, err)
	return err
}

// Delete delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Delete(key string) error {
	start := time.Now()
	err := s.store.Delete(key)
	s.record(OpDelete, start, err)
	return err
}

// Clear delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Clear() error {
	start := time.Now()
	err := s.store.Clear()
	s.record(OpClear, start, err)
	return err
}

// Keys delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Keys() ([]string, error) {
	start := time.Now()
	keys, err := s.store.Keys()
	s.record(OpKeys, start, err)
	return keys, err
}

// Len delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Len() (int, error) {
	start := time.Now()
	n, err := s.store.Len()
	s.record(OpLen, start, err)
	return n, err
}

// GetMetrics returns a snapshot of current metrics.
func (s *InstrumentedStore) GetMetrics() MetricsSnapshot {
	snap := MetricsSnapshot{Ops: make(map[string]OpSnapshot, numOps)}
	for op := Op(0); op < numOps; op++ {
		m := &s.metrics[op]
		count := m.count.Load()
		snap.Ops[op.String()] = OpSnapshot{
			Count:      count,
			Errors:     m.errors.Load(),
			AvgLatency: avgLatency(m.latencyNs.Load(), count),
		}
	}
	return snap
}

// ResetMetrics clears all metrics counters.
func (s *InstrumentedStore) ResetMetrics() {
	for op := range s.metrics {
		s.metrics[op].count.Store(0)
		s.metrics[op].errors.Store(0)
		s.metrics[op].latencyNs.Store(0)
	}
}

func avgLatency(totalNs, count uint64) time.Duration {
	if count == 0 {
		return 0
	}
	return time.Duration(totalNs / count)
}

// MetricsSnapshot is a point-in-time view of metrics keyed by operation name.
type MetricsSnapshot struct {
	Ops map[string]OpSnapshot
}

// OpSnapshot is the view of a single operation.
type OpSnapshot struct {
	Count      uint64
	Errors     uint64
	AvgLatency time.Duration
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heysubinoy/asyncstore/pkg/config"
	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// backends lists a constructor per kv.Store implementation.
func backends() map[string]func(t *testing.T) kv.Store {
	return map[string]func(t *testing.T) kv.Store{
		"memory": func(t *testing.T) kv.Store { return NewMemStore() },
		"bolt":   func(t *testing.T) kv.Store { return createTestBoltStore(t) },
		"sqlite": func(t *testing.T) kv.Store { return createTestSQLiteStore(t) },
		"raft":   func(t *testing.T) kv.Store { return createTestRaftStore(t) },
		"s3":     func(t *testing.T) kv.Store { return NewS3Store(newFakeS3(), "bucket", "app/", time.Second) },
		"instrumented": func(t *testing.T) kv.Store {
			return NewInstrumentedStore(NewMemStore())
		},
	}
}

func createTestBoltStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := OpenBoltStore(filepath.Join(t.TempDir(), "test.bolt"), "")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRaftStore starts a single-node cluster on in-memory transport.
func createTestRaftStore(t *testing.T) *RaftStore {
	t.Helper()

	conf := raft.DefaultConfig()
	conf.LocalID = "node1"
	conf.HeartbeatTimeout = 50 * time.Millisecond
	conf.ElectionTimeout = 50 * time.Millisecond
	conf.LeaderLeaseTimeout = 50 * time.Millisecond
	conf.CommitTimeout = 5 * time.Millisecond
	conf.Logger = hclog.NewNullLogger()

	logs := raft.NewInmemStore()
	snaps := raft.NewInmemSnapshotStore()
	addr, trans := raft.NewInmemTransport("")

	rs, err := newRaftStore(NewMemStore(), conf, logs, logs, snaps, trans)
	require.NoError(t, err)
	t.Cleanup(func() { rs.Close() })

	cfg := raft.Configuration{Servers: []raft.Server{{ID: conf.LocalID, Address: addr}}}
	require.NoError(t, rs.raft.BootstrapCluster(cfg).Error())
	require.NoError(t, rs.WaitForLeader(5*time.Second))
	require.Eventually(t, func() bool { return rs.raft.State() == raft.Leader }, 5*time.Second, 10*time.Millisecond)
	return rs
}

func TestStoreContract(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			t.Run("get absent", func(t *testing.T) {
				s := newStore(t)
				_, found, err := s.Get("missing")
				require.NoError(t, err)
				assert.False(t, found)
			})

			t.Run("set get overwrite", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Set("k", "v1"))
				require.NoError(t, s.Set("k", "v2"))

				v, found, err := s.Get("k")
				require.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, "v2", v)

				n, err := s.Len()
				require.NoError(t, err)
				assert.Equal(t, 1, n)
			})

			t.Run("empty value is present", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Set("empty", ""))

				v, found, err := s.Get("empty")
				require.NoError(t, err)
				assert.True(t, found)
				assert.Equal(t, "", v)
			})

			t.Run("delete idempotent", func(t *testing.T) {
				s := newStore(t)
				require.NoError(t, s.Set("k", "v"))
				require.NoError(t, s.Delete("k"))
				require.NoError(t, s.Delete("k"))

				_, found, err := s.Get("k")
				require.NoError(t, err)
				assert.False(t, found)
			})

			t.Run("keys and clear", func(t *testing.T) {
				s := newStore(t)
				for _, k := range []string{"b", "a", "c"} {
					require.NoError(t, s.Set(k, k+"-value"))
				}

				keys, err := s.Keys()
				require.NoError(t, err)
				assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)

				require.NoError(t, s.Clear())

				keys, err = s.Keys()
				require.NoError(t, err)
				assert.Empty(t, keys)

				n, err := s.Len()
				require.NoError(t, err)
				assert.Equal(t, 0, n)

				// still writable after clear
				require.NoError(t, s.Set("a", "again"))
				v, _, err := s.Get("a")
				require.NoError(t, err)
				assert.Equal(t, "again", v)
			})
		})
	}
}

// TestFacadeOverBackends checks the facade round trips on every backend.
func TestFacadeOverBackends(t *testing.T) {
	for name, newStore := range backends() {
		t.Run(name, func(t *testing.T) {
			s := kv.New(newStore(t))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			_, err := s.MultiSet([]kv.Pair{{Key: "k2", Value: `{"a":1}`}, {Key: "k4", Value: `[1,2]`}}).Await(ctx)
			require.NoError(t, err)

			items, err := s.MultiGet([]string{"k1", "k2", "k3"}).Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, []kv.Item{kv.Absent, kv.Present(`{"a":1}`), kv.Absent}, items)

			merged, err := s.MultiMerge([]kv.Pair{{Key: "k2", Value: `{"b":2}`}, {Key: "k4", Value: `[3,4]`}}).Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, []kv.Item{kv.Present(`{"a":1,"b":2}`), kv.Present(`[1,2,[3,4]]`)}, merged)
			item, err := s.GetItem("k2").Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, kv.Present(`{"a":1}`), item)

			_, err = s.MultiRemove([]string{"k2", "k9"}).Await(ctx)
			require.NoError(t, err)
			keys, err := s.GetAllKeys().Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"k4"}, keys)

			_, err = s.Clear().Await(ctx)
			require.NoError(t, err)
			n, err := s.Length().Await(ctx)
			require.NoError(t, err)
			assert.Equal(t, 0, n)
		})
	}
}

func TestOpen_LocalBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"memory", config.Config{Backend: config.BackendMemory}},
		{"bolt", config.Config{Backend: config.BackendBolt, Bolt: config.BoltConfig{Path: filepath.Join(dir, "o.bolt")}}},
		{"sqlite", config.Config{Backend: config.BackendSQLite, SQLite: config.SQLiteConfig{Path: filepath.Join(dir, "o.db")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(context.Background(), &tt.cfg, hclog.NewNullLogger())
			require.NoError(t, err)
			defer b.Close()

			assert.Nil(t, b.Raft)
			require.NoError(t, b.Store.Set("k", "v"))
			v, found, err := b.Store.Get("k")
			require.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, "v", v)
		})
	}
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{Backend: "etcd"}, hclog.NewNullLogger())
	assert.Error(t, err)
}

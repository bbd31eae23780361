package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// ErrNoLeader is returned when a cluster has not elected a leader in time.
var ErrNoLeader = errors.New("raft: no leader elected")

const (
	opSet    = "set"
	opDelete = "delete"
	opClear  = "clear"
)

// RaftCommand represents a write operation to be applied via Raft.
type RaftCommand struct {
	Op    string // "set", "delete" or "clear"
	Key   string
	Value string // only for set
}

// RaftOptions configures a Raft-backed store.
type RaftOptions struct {
	NodeID       string
	BindAddr     string
	DataDir      string
	Bootstrap    bool
	ApplyTimeout time.Duration
}

// RaftStore wraps a MemStore and applies changes via Raft consensus.
// Reads are served from the local replica.
type RaftStore struct {
	store        *MemStore
	raft         *raft.Raft
	applyTimeout time.Duration
	closers      []io.Closer
}

// Compile-time check to ensure RaftStore implements kv.Store and raft.FSM.
var (
	_ kv.Store = (*RaftStore)(nil)
	_ raft.FSM = (*RaftStore)(nil)
)

// OpenRaftStore starts a Raft node persisting its log in bolt under
// opts.DataDir. With Bootstrap set, a fresh node forms a single-member cluster.
func OpenRaftStore(opts RaftOptions, logger hclog.Logger) (*RaftStore, error) {
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create raft dir: %w", err)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(opts.NodeID)
	conf.Logger = logger

	boltStore, err := raftboltdb.NewBoltStore(filepath.Join(opts.DataDir, "raft.db"))
	if err != nil {
		return nil, fmt.Errorf("open raft log: %w", err)
	}

	snaps, err := raft.NewFileSnapshotStoreWithLogger(opts.DataDir, 2, logger.Named("snapshot"))
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	// A nil advertise address makes the transport advertise the bound
	// listener, which must not be an unspecified IP.
	trans, err := raft.NewTCPTransportWithLogger(opts.BindAddr, nil, 3, 10*time.Second, logger.Named("transport"))
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("open raft transport: %w", err)
	}

	rs, err := newRaftStore(NewMemStore(), conf, boltStore, boltStore, snaps, trans)
	if err != nil {
		trans.Close()
		boltStore.Close()
		return nil, err
	}
	rs.closers = append(rs.closers, trans, boltStore)
	if opts.ApplyTimeout > 0 {
		rs.applyTimeout = opts.ApplyTimeout
	}

	if opts.Bootstrap {
		existing, err := raft.HasExistingState(boltStore, boltStore, snaps)
		if err != nil {
			rs.Close()
			return nil, fmt.Errorf("check raft state: %w", err)
		}
		if !existing {
			cfg := raft.Configuration{Servers: []raft.Server{{
				ID:      conf.LocalID,
				Address: trans.LocalAddr(),
			}}}
			if err := rs.raft.BootstrapCluster(cfg).Error(); err != nil {
				rs.Close()
				return nil, fmt.Errorf("bootstrap raft: %w", err)
			}
		}
	}

	return rs, nil
}

func newRaftStore(mem *MemStore, conf *raft.Config, logs raft.LogStore, stable raft.StableStore, snaps raft.SnapshotStore, trans raft.Transport) (*RaftStore, error) {
	rs := &RaftStore{store: mem, applyTimeout: 5 * time.Second}
	r, err := raft.NewRaft(conf, rs, logs, stable, snaps, trans)
	if err != nil {
		return nil, fmt.Errorf("start raft: %w", err)
	}
	rs.raft = r
	return rs, nil
}

// GetRaft returns the underlying raft.Raft pointer (for API layer leader checks)
func (rs *RaftStore) GetRaft() *raft.Raft {
	return rs.raft
}

// WaitForLeader blocks until the cluster knows a leader or timeout elapses.
func (rs *RaftStore) WaitForLeader(timeout time.Duration) error {
	deadline := time.After(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if addr, _ := rs.raft.LeaderWithID(); addr != "" {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return ErrNoLeader
		}
	}
}

// Close shuts down the Raft node and releases its log storage.
func (rs *RaftStore) Close() error {
	err := rs.raft.Shutdown().Error()
	for _, c := range rs.closers {
		if cerr := c.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

// Apply applies a Raft log entry to the local store.
func (rs *RaftStore) Apply(log *raft.Log) interface{} {
	var cmd RaftCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return err
	}
	switch cmd.Op {
	case opSet:
		return rs.store.Set(cmd.Key, cmd.Value)
	case opDelete:
		return rs.store.Delete(cmd.Key)
	case opClear:
		return rs.store.Clear()
	}
	return fmt.Errorf("unknown raft op %q", cmd.Op)
}

// Snapshot captures the replica contents for log compaction.
func (rs *RaftStore) Snapshot() (raft.FSMSnapshot, error) {
	return &memSnapshot{data: rs.store.Snapshot()}, nil
}

// Restore replaces the replica contents from a snapshot.
func (rs *RaftStore) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var data map[string]string
	if err := json.NewDecoder(rc).Decode(&data); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	rs.store.Restore(data)
	return nil
}

type memSnapshot struct {
	data map[string]string
}

func (s *memSnapshot) Persist(sink raft.SnapshotSink) error {
	if err := json.NewEncoder(sink).Encode(s.data); err != nil {
		sink.Cancel()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return sink.Close()
}

func (s *memSnapshot) Release() {}

func (rs *RaftStore) apply(cmd RaftCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	f := rs.raft.Apply(data, rs.applyTimeout)
	if err := f.Error(); err != nil {
		return err
	}
	if err, ok := f.Response().(error); ok {
		return err
	}
	return nil
}

// Set submits a set command to Raft.
func (rs *RaftStore) Set(key, value string) error {
	return rs.apply(RaftCommand{Op: opSet, Key: key, Value: value})
}

// Delete submits a delete command to Raft.
func (rs *RaftStore) Delete(key string) error {
	return rs.apply(RaftCommand{Op: opDelete, Key: key})
}

// Clear submits a clear command to Raft.
func (rs *RaftStore) Clear() error {
	return rs.apply(RaftCommand{Op: opClear})
}

// Get reads directly from the local store.
func (rs *RaftStore) Get(key string) (string, bool, error) {
	return rs.store.Get(key)
}

// Keys reads directly from the local store.
func (rs *RaftStore) Keys() ([]string, error) {
	return rs.store.Keys()
}

// Len reads directly from the local store.
func (rs *RaftStore) Len() (int, error) {
	return rs.store.Len()
}

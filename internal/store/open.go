package store

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"

	"github.com/heysubinoy/asyncstore/pkg/config"
)

// Backend is an opened, instrumented store plus whatever it needs released.
type Backend struct {
	Store *InstrumentedStore
	// Raft is set only for the raft backend.
	Raft   *raft.Raft
	closer io.Closer
}

// Close releases the backend's files or cluster membership.
func (b *Backend) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

// Open builds the backend selected by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config, logger hclog.Logger) (*Backend, error) {
	logger = logger.Named("store")

	switch cfg.Backend {
	case config.BackendMemory:
		return &Backend{Store: NewInstrumentedStore(NewMemStore())}, nil

	case config.BackendBolt:
		s, err := OpenBoltStore(cfg.Bolt.Path, cfg.Bolt.Bucket)
		if err != nil {
			return nil, err
		}
		logger.Info("opened bolt store", "path", cfg.Bolt.Path)
		return &Backend{Store: NewInstrumentedStore(s), closer: s}, nil

	case config.BackendSQLite:
		s, err := OpenSQLiteStore(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("opened sqlite store", "path", cfg.SQLite.Path)
		return &Backend{Store: NewInstrumentedStore(s), closer: s}, nil

	case config.BackendRaft:
		rs, err := OpenRaftStore(RaftOptions{
			NodeID:       cfg.Raft.NodeID,
			BindAddr:     cfg.Raft.Addr,
			DataDir:      cfg.Raft.Data,
			Bootstrap:    cfg.Raft.Leader,
			ApplyTimeout: cfg.Raft.ApplyTimeout,
		}, logger.Named("raft"))
		if err != nil {
			return nil, err
		}
		logger.Info("started raft node", "node_id", cfg.Raft.NodeID, "addr", cfg.Raft.Addr, "bootstrap", cfg.Raft.Leader)
		return &Backend{Store: NewInstrumentedStore(rs), Raft: rs.GetRaft(), closer: rs}, nil

	case config.BackendS3:
		client, err := newS3Client(ctx, cfg.S3)
		if err != nil {
			return nil, err
		}
		logger.Info("using s3 store", "bucket", cfg.S3.Bucket, "prefix", cfg.S3.Prefix)
		s := NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, cfg.S3.Timeout)
		return &Backend{Store: NewInstrumentedStore(s)}, nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func newS3Client(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Dialer opens a client connection to a storage server.
type Dialer func(addr string) (grpc.ClientConnInterface, func() error, error)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Addr    string
	Timeout time.Duration

	dial Dialer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the asyncstore CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(dialGRPC)
}

func newRootCommand(dial Dialer) *cobra.Command {
	opts := &RootOptions{dial: dial}

	cmd := &cobra.Command{
		Use:   "asyncstore",
		Short: "asyncstore - asynchronous key-value storage",
		Long: `A key-value store with asynchronous get, set, merge and batch operations
over memory, bolt, sqlite, raft or s3 backends.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Addr, "addr", "localhost:9090", "gRPC address of the storage server")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 5*time.Second, "per-command timeout")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewRemoveCommand(opts))
	cmd.AddCommand(NewClearCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewLengthCommand(opts))
	cmd.AddCommand(NewMergeCommand(opts))
	cmd.AddCommand(NewMultiGetCommand(opts))
	cmd.AddCommand(NewMultiSetCommand(opts))
	cmd.AddCommand(NewMultiMergeCommand(opts))
	cmd.AddCommand(NewMultiRemoveCommand(opts))

	return cmd
}

func dialGRPC(addr string) (grpc.ClientConnInterface, func() error, error) {
	conn, err := grpc.NewClient("passthrough:///"+addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, err
	}
	return conn, conn.Close, nil
}

package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/heysubinoy/asyncstore/internal/api"
	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// nilText is printed in text mode for an absent or failed-merge result.
const nilText = "(nil)"

// ItemResult is the JSON payload for a single item.
type ItemResult struct {
	Key   string  `json:"key"`
	Value kv.Item `json:"value"`
}

// KeysResult is the JSON payload for keys and batch acknowledgements.
type KeysResult struct {
	Keys []string `json:"keys"`
}

// LengthResult is the JSON payload for length.
type LengthResult struct {
	Length int `json:"length"`
}

type clientFunc func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error

// runClient dials the server, runs fn under the command timeout and maps
// any gRPC failure to an error envelope and exit code.
func runClient(opts *RootOptions, cmd *cobra.Command, fn clientFunc) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	conn, closeConn, err := opts.dial(opts.Addr)
	if err != nil {
		_ = formatter.Error(ErrCodeUnavailable, err.Error(), nil)
		return WrapExitError(ExitFailure, "dial "+opts.Addr, err)
	}
	defer closeConn()
	formatter.VerboseLog("connected to %s", opts.Addr)

	ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
	defer cancel()

	if err := fn(ctx, api.NewStorageClient(conn), formatter); err != nil {
		return outputRPCError(formatter, err)
	}
	return nil
}

func outputRPCError(formatter *OutputFormatter, err error) error {
	st := status.Convert(err)
	switch st.Code() {
	case codes.InvalidArgument:
		_ = formatter.Error(ErrCodeInvalidArgs, st.Message(), nil)
		return NewExitError(ExitCommandError, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		_ = formatter.Error(ErrCodeUnavailable, st.Message(), st.Code().String())
		return NewExitError(ExitFailure, st.Message())
	}
	_ = formatter.Error(ErrCodeGeneric, st.Message(), st.Code().String())
	return NewExitError(ExitFailure, st.Message())
}

// pairArgs reads alternating key value arguments.
func pairArgs(args []string) ([]kv.Pair, error) {
	if len(args) == 0 || len(args)%2 != 0 {
		return nil, NewExitError(ExitCommandError, "expected key value pairs")
	}
	pairs := make([]kv.Pair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		pairs = append(pairs, kv.Pair{Key: args[i], Value: args[i+1]})
	}
	return pairs, nil
}

func itemText(item kv.Item) string {
	if !item.Found {
		return nilText
	}
	return item.Value
}

func itemResults(keys []string, items []kv.Item) ([]ItemResult, string) {
	results := make([]ItemResult, len(items))
	lines := make([]string, len(items))
	for i, item := range items {
		results[i] = ItemResult{Key: keys[i], Value: item}
		lines[i] = keys[i] + "\t" + itemText(item)
	}
	return results, strings.Join(lines, "\n")
}

func pairKeys(pairs []kv.Pair) []string {
	keys := make([]string, len(pairs))
	for i, p := range pairs {
		keys[i] = p.Key
	}
	return keys
}

func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get the value stored under a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				item, err := c.GetItem(ctx, args[0])
				if err != nil {
					return err
				}
				return f.Success(ItemResult{Key: args[0], Value: item}, itemText(item))
			})
		},
	}
}

func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value under a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				if err := c.SetItem(ctx, args[0], args[1]); err != nil {
					return err
				}
				return f.Success(KeysResult{Keys: args[:1]}, "OK")
			})
		},
	}
}

func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>",
		Short: "Remove a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				if err := c.RemoveItem(ctx, args[0]); err != nil {
					return err
				}
				return f.Success(KeysResult{Keys: args}, "OK")
			})
		},
	}
}

func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				if err := c.Clear(ctx); err != nil {
					return err
				}
				return f.Success(nil, "OK")
			})
		},
	}
}

func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List every key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				keys, err := c.GetAllKeys(ctx)
				if err != nil {
					return err
				}
				return f.Success(KeysResult{Keys: keys}, strings.Join(keys, "\n"))
			})
		},
	}
}

func NewLengthCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "length",
		Short: "Count the stored keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				n, err := c.Length(ctx)
				if err != nil {
					return err
				}
				return f.Success(LengthResult{Length: n}, strconv.Itoa(n))
			})
		},
	}
}

func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "merge <key> <json>",
		Short: "Merge a JSON value into the one stored under a key",
		Long: `Merge a JSON value into the JSON stored under a key and print the result.
The stored value is not changed.

Arrays get the new value appended as a single element; objects are combined
with later fields winning. Prints (nil) when the key is missing or either
side is not valid JSON.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				item, err := c.MergeItem(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return f.Success(ItemResult{Key: args[0], Value: item}, itemText(item))
			})
		},
	}
}

func NewMultiGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mget <key>...",
		Short: "Get several keys at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				items, err := c.MultiGet(ctx, args)
				if err != nil {
					return err
				}
				results, text := itemResults(args, items)
				return f.Success(results, text)
			})
		},
	}
}

func NewMultiSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mset <key> <value> [<key> <value>]...",
		Short: "Set several keys at once",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := pairArgs(args)
			if err != nil {
				return err
			}
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				if err := c.MultiSet(ctx, pairs); err != nil {
					return err
				}
				return f.Success(KeysResult{Keys: pairKeys(pairs)}, fmt.Sprintf("OK (%d)", len(pairs)))
			})
		},
	}
}

func NewMultiMergeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mmerge <key> <json> [<key> <json>]...",
		Short: "Merge into several keys at once",
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := pairArgs(args)
			if err != nil {
				return err
			}
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				items, err := c.MultiMerge(ctx, pairs)
				if err != nil {
					return err
				}
				results, text := itemResults(pairKeys(pairs), items)
				return f.Success(results, text)
			})
		},
	}
}

func NewMultiRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mremove <key>...",
		Short: "Remove several keys at once",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClient(rootOpts, cmd, func(ctx context.Context, c *api.StorageClient, f *OutputFormatter) error {
				if err := c.MultiRemove(ctx, args); err != nil {
					return err
				}
				return f.Success(KeysResult{Keys: args}, fmt.Sprintf("OK (%d)", len(args)))
			})
		},
	}
}

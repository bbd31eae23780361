package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/heysubinoy/asyncstore/internal/api"
	"github.com/heysubinoy/asyncstore/internal/store"
	"github.com/heysubinoy/asyncstore/pkg/kv"
)

// bufDialer starts an in-process storage server over a memory store and
// returns a Dialer that connects to it.
func bufDialer(t *testing.T) Dialer {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterStorageServer(srv, api.NewGRPCServer(kv.New(store.NewMemStore()), nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	return func(string) (grpc.ClientConnInterface, func() error, error) {
		conn, err := grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	}
}

func runCLI(dial Dialer, args ...string) (string, error) {
	cmd := newRootCommand(dial)
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// runSession runs each command in order and records a transcript.
func runSession(t *testing.T, dial Dialer, commands [][]string) []byte {
	t.Helper()
	var transcript bytes.Buffer
	for _, args := range commands {
		out, err := runCLI(dial, args...)
		transcript.WriteString("$ asyncstore " + strings.Join(args, " ") + "\n")
		transcript.WriteString(out)
		if err != nil {
			transcript.WriteString("exit " + strconv.Itoa(GetExitCode(err)) + "\n")
		}
	}
	return transcript.Bytes()
}

func TestCLI_TextSession(t *testing.T) {
	dial := bufDialer(t)

	transcript := runSession(t, dial, [][]string{
		{"set", "user", `{"name":"ann"}`},
		{"get", "user"},
		{"merge", "user", `{"age":30}`},
		{"get", "missing"},
		{"mset", "a", "1", "b", "[1]"},
		{"mmerge", "b", "[2]", "missing", "{}"},
		{"mget", "a", "b", "missing"},
		{"keys"},
		{"length"},
		{"mremove", "a", "b"},
		{"remove", "user"},
		{"clear"},
		{"length"},
	})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "text_session", transcript)
}

func TestCLI_JSONSession(t *testing.T) {
	dial := bufDialer(t)

	transcript := runSession(t, dial, [][]string{
		{"--format", "json", "set", "k", "v"},
		{"--format", "json", "get", "k"},
		{"--format", "json", "get", "nope"},
		{"--format", "json", "merge", "k", "[1]"},
		{"--format", "json", "keys"},
		{"--format", "json", "length"},
		{"--format", "json", "get", ""},
		{"--format", "json", "clear"},
	})

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "json_session", transcript)
}

func TestCLI_InvalidKeyExitCode(t *testing.T) {
	out, err := runCLI(bufDialer(t), "set", "", "v")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestCLI_OddPairArgs(t *testing.T) {
	_, err := runCLI(bufDialer(t), "mset", "a", "1", "b")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_InvalidFormat(t *testing.T) {
	_, err := runCLI(bufDialer(t), "--format", "yaml", "keys")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestCLI_DialFailure(t *testing.T) {
	dial := func(string) (grpc.ClientConnInterface, func() error, error) {
		return nil, nil, errors.New("connection refused")
	}
	out, err := runCLI(dial, "--format", "json", "keys")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"E003"`)
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "asyncstore", cmd.Use)

	for _, name := range []string{"serve", "get", "set", "remove", "clear", "keys", "length", "merge", "mget", "mset", "mmerge", "mremove"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	addrFlag := cmd.PersistentFlags().Lookup("addr")
	require.NotNil(t, addrFlag)
	assert.Equal(t, "localhost:9090", addrFlag.DefValue)

	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	require.NotNil(t, serveCmd.Flags().Lookup("config"))
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "bad", errors.New("x"))))
}

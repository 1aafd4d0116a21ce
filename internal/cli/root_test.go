package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-matching/internal/db"
	"github.com/oggyb/muzz-matching/internal/service/matching"
	"github.com/oggyb/muzz-matching/internal/testutil"
)

// testRoot runs commands against one in-memory core shared across calls.
func testRoot(t *testing.T) (*matching.Core, func(args ...string) (string, error)) {
	t.Helper()
	clock := testutil.NewClock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))
	core := matching.NewCore(testutil.NewApp(t, clock))

	run := func(args ...string) (string, error) {
		opts := &RootOptions{Open: func(context.Context, *RootOptions) (*matching.Core, func(), error) {
			return core, func() {}, nil
		}}
		cmd := newRootCommand(opts)
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		err := cmd.Execute()
		return out.String(), err
	}
	return core, run
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "matchctl", cmd.Use)

	for _, name := range []string{"seed", "reconcile", "sweep", "dispatch"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	_, run := testRoot(t)
	_, err := run("sweep", "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestSeedThenReconcile(t *testing.T) {
	core, run := testRoot(t)

	out, err := run("seed", "--users", "4", "--candidates", "2", "--seed", "42")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 4 users, 4 match sets")

	var n int64
	require.NoError(t, core.App().DB.Model(&db.MatchSet{}).Count(&n).Error)
	assert.Equal(t, int64(4), n)

	out, err = run("reconcile", "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Users   int
			Drifted int
			Failed  int
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 4, resp.Data.Users)
	assert.Zero(t, resp.Data.Failed)

	out, err = run("reconcile", "--user", "user1")
	require.NoError(t, err)
	assert.Contains(t, out, "User user1: activity drift=false, matches drift=false")
}

func TestSweepAndDispatch(t *testing.T) {
	_, run := testRoot(t)

	out, err := run("sweep")
	require.NoError(t, err)
	assert.Equal(t, "Archived 0 conversations\n", out)

	out, err = run("dispatch", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"status": "ok"`)
}

func TestOpenFailureExitCode(t *testing.T) {
	opts := &RootOptions{Open: func(context.Context, *RootOptions) (*matching.Core, func(), error) {
		return nil, nil, errors.New("redis down")
	}}
	cmd := newRootCommand(opts)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"sweep"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("other")))
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
}

package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evoswarm/internal/config"
	"evoswarm/internal/role"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestLocalRunIsRecordedAndShown(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	common := []string{"--store", "sqlite", "--db-path", db, "--log-format", "json", "--log-level", "error"}

	out, err := runCLI(t, append([]string{"local", "--stop", "generations:3", "--population", "6", "--seed", "7"}, common...)...)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "run "), out)
	id := strings.Fields(out)[1]
	assert.Contains(t, out, "after 3 generations")

	out, err = runCLI(t, append([]string{"runs"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "local")

	out, err = runCLI(t, append([]string{"show", id}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "stop rule")
	assert.Contains(t, out, "generations:3")
	assert.Contains(t, out, "replayed fitness")
}

func TestShowUnknownRun(t *testing.T) {
	db := filepath.Join(t.TempDir(), "runs.db")
	_, err := runCLI(t, "show", "missing", "--db-path", db, "--log-level", "error")
	assert.ErrorContains(t, err, "not found")
}

func TestRunsOnEmptyStore(t *testing.T) {
	out, err := runCLI(t, "runs", "--store", "memory", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "no runs recorded")
}

func TestLocalRejectsBadStopRule(t *testing.T) {
	_, err := runCLI(t, "local", "--stop", "whenever", "--store", "memory", "--log-level", "error")
	assert.Error(t, err)
}

func TestChildSentinelRoutesToWorker(t *testing.T) {
	out, err := runCLI(t, role.Sentinel, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "--local-generations")
	assert.Contains(t, out, "--master")
}

func TestChildArgsPointAtBoundPort(t *testing.T) {
	a := &app{cfg: config.Default(), configPath: "/etc/evoswarm.yaml"}
	args := a.childArgs(&fakeAddr{})
	assert.Equal(t, []string{
		"--master", "127.0.0.1:1337",
		"--log-level", "info",
		"--log-format", "auto",
		"--config", "/etc/evoswarm.yaml",
	}, args)
}

type fakeAddr struct{}

func (*fakeAddr) Network() string { return "tcp" }
func (*fakeAddr) String() string  { return "[::]:1337" }

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(&buf, "warn", "json")
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown", "k", 1)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)

	buf.Reset()
	logger, err = newLogger(&buf, "debug", "auto")
	require.NoError(t, err)
	logger.Debug("plain")
	assert.Contains(t, buf.String(), `"msg":"plain"`)

	_, err = newLogger(&buf, "loud", "json")
	assert.Error(t, err)
	_, err = newLogger(&buf, "info", "xml")
	assert.Error(t, err)
}

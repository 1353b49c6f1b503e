package role

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name string
		args []string
		role Role
		rest []string
	}{
		{name: "no args", args: nil, role: Master, rest: nil},
		{name: "master flags", args: []string{"master", "--spawn", "4"}, role: Master, rest: []string{"master", "--spawn", "4"}},
		{name: "sentinel", args: []string{Sentinel, "--master", "127.0.0.1:1337"}, role: Worker, rest: []string{"--master", "127.0.0.1:1337"}},
		{name: "two-arg sentinel", args: []string{"--log-level", "debug", "--type", "child"}, role: Worker, rest: []string{"--log-level", "debug"}},
		{name: "type without child", args: []string{"--type", "parent"}, role: Master, rest: []string{"--type", "parent"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			role, rest := Resolve(tc.args)
			assert.Equal(t, tc.role, role)
			assert.Equal(t, tc.rest, rest)
		})
	}
}

func TestResolveDoesNotTouchInput(t *testing.T) {
	args := []string{"a", Sentinel, "b"}
	_, rest := Resolve(args)
	assert.Equal(t, []string{"a", "b"}, rest)
	assert.Equal(t, []string{"a", Sentinel, "b"}, args)
}

func TestRoleString(t *testing.T) {
	assert.Equal(t, "master", Master.String())
	assert.Equal(t, "worker", Worker.String())
}

func TestCommandCarriesSentinel(t *testing.T) {
	cmd, err := Command(context.Background(), "--master", "127.0.0.1:9000")
	require.NoError(t, err)
	require.Len(t, cmd.Args, 4)
	assert.Equal(t, []string{Sentinel, "--master", "127.0.0.1:9000"}, cmd.Args[1:])
}

// Package role decides once per process whether it runs as master or as a
// spawned worker, and launches worker children.
package role

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
)

// Sentinel marks a process as a spawned worker child.
const Sentinel = "--type=child"

// legacySentinel is the two-argument form of Sentinel.
var legacySentinel = []string{"--type", "child"}

type Role int

const (
	Master Role = iota
	Worker
)

func (r Role) String() string {
	if r == Worker {
		return "worker"
	}
	return "master"
}

// Resolve inspects the process arguments (without the program name) and
// returns the role plus the arguments with the sentinel removed.
func Resolve(args []string) (Role, []string) {
	for i, arg := range args {
		if arg == Sentinel {
			return Worker, slices.Delete(slices.Clone(args), i, i+1)
		}
		if i+1 < len(args) && arg == legacySentinel[0] && args[i+1] == legacySentinel[1] {
			return Worker, slices.Delete(slices.Clone(args), i, i+2)
		}
	}
	return Master, args
}

// Command builds the command for one worker child of the running
// executable. extra is appended after the sentinel.
func Command(ctx context.Context, extra ...string) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	args := append([]string{Sentinel}, extra...)
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

// Spawn starts n worker children. Children already started are killed if a
// later one fails to start.
func Spawn(ctx context.Context, n int, extra ...string) ([]*exec.Cmd, error) {
	children := make([]*exec.Cmd, 0, n)
	for i := 0; i < n; i++ {
		cmd, err := Command(ctx, extra...)
		if err == nil {
			err = cmd.Start()
		}
		if err != nil {
			for _, child := range children {
				_ = child.Process.Kill()
				_ = child.Wait()
			}
			return nil, fmt.Errorf("spawn worker %d: %w", i, err)
		}
		children = append(children, cmd)
	}
	return children, nil
}

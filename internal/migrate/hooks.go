package migrate

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// HookStage tells the orchestrator when a hook runs.
type HookStage int

// Hook stages.
const (
	HookBuild HookStage = iota
	HookTest
)

// Hook is a downstream step run after a record is accepted.
type Hook interface {
	Name() string
	Stage() HookStage
	Run(ctx context.Context) error
}

// CommandHook runs an external command such as the site build.
type CommandHook struct {
	Label   string
	Kind    HookStage
	Command []string
	Dir     string
	Timeout time.Duration
}

// Name implements Hook.
func (h CommandHook) Name() string {
	if h.Label != "" {
		return h.Label
	}
	return strings.Join(h.Command, " ")
}

// Stage implements Hook.
func (h CommandHook) Stage() HookStage { return h.Kind }

// Run executes the command, returning its trimmed output tail on failure.
func (h CommandHook) Run(ctx context.Context) error {
	if len(h.Command) == 0 {
		return errors.New("empty command")
	}
	if h.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, h.Command[0], h.Command[1:]...)
	cmd.Dir = h.Dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, tail(string(out), 20))
	}
	return nil
}

// tail keeps the last n lines of output.
func tail(out string, n int) string {
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

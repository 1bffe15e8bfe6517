package server

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Prober checks that a worker can be reached before it is added.
type Prober interface {
	Probe(ctx context.Context, worker string) error
}

// CommandProber runs an external command, by default an ssh no-op, with
// "{worker}" in its arguments replaced by the worker identity. A non-zero
// exit or a timeout means unreachable.
type CommandProber struct {
	Command []string
	Timeout time.Duration
}

// Probe implements Prober.
func (p CommandProber) Probe(ctx context.Context, worker string) error {
	if len(p.Command) == 0 {
		return nil
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	args := make([]string, len(p.Command))
	for i, a := range p.Command {
		args[i] = strings.ReplaceAll(a, "{worker}", worker)
	}
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: probe timed out after %s", worker, p.Timeout)
		}
		if msg := strings.TrimSpace(out.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", worker, err, msg)
		}
		return fmt.Errorf("%s: %w", worker, err)
	}
	return nil
}

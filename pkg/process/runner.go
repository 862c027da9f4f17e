package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/mywio/pipeline-agent/pkg/masking"
	"github.com/mywio/pipeline-agent/pkg/metrics"
)

// Command describes one external process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the agent's own environment
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Runner starts external processes and relays their output through a masker.
type Runner struct {
	Masker masking.Masker
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer
}

func (r *Runner) masker() masking.Masker {
	if r.Masker == nil {
		return masking.NewEngine()
	}
	return r.Masker
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Run executes cmd and waits for it. Output is relayed line by line with
// registered secrets replaced.
func (r *Runner) Run(ctx context.Context, cmd Command) error {
	m := r.masker()
	r.logger().Info("Running command", "command", m.Mask(cmd.String()), "dir", cmd.Dir)

	stdout := masking.NewWriter(writerOr(r.Stdout, os.Stdout), m)
	stderr := masking.NewWriter(writerOr(r.Stderr, os.Stderr), m)
	stdout.OnRedact = metrics.RedactedLinesTotal.Inc
	stderr.OnRedact = metrics.RedactedLinesTotal.Inc

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)
	c.Stdout = stdout
	c.Stderr = stderr

	err := c.Run()
	if ferr := stdout.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if ferr := stderr.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		metrics.ProcessesTotal.WithLabelValues("failure").Inc()
		return fmt.Errorf("%s: %w", m.Mask(cmd.Name), err)
	}
	metrics.ProcessesTotal.WithLabelValues("success").Inc()
	return nil
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}

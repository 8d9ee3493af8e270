// Package synth produces the cross-engine analysis by handing the collected
// answers to an external language-model process. The process is a black
// box: prompt on stdin, answer file paths as arguments, analysis on stdout.
// Everything about it is bounded (wall clock and output size) because a
// wedged or runaway synthesis must never take the collection run down with
// it.
package synth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Error reports a failed synthesis: process error, timeout, or oversized
// output. Callers report it and finish the run with a nil synthesis.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synth: %s: %v", e.Reason, e.Err)
	}
	return "synth: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// AnswerRef points the synthesis process at one collected answer file.
type AnswerRef struct {
	Engine string
	Path   string
}

// Config configures a Synthesizer.
type Config struct {
	// Command is the external LLM CLI. Default: "claude".
	Command string

	// Args precede the answer file paths. Default: ["-p"].
	Args []string

	// Timeout bounds the process wall clock. Default: 5m.
	Timeout time.Duration

	// MaxOutput caps the analysis size in bytes. Default: 1 MiB.
	MaxOutput int64

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Command == "" {
		c.Command = "claude"
		if c.Args == nil {
			c.Args = []string{"-p"}
		}
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.MaxOutput <= 0 {
		c.MaxOutput = 1 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Synthesizer invokes the external synthesis process.
type Synthesizer struct {
	cfg Config
}

// New creates a Synthesizer.
func New(cfg Config) *Synthesizer {
	cfg.defaults()
	return &Synthesizer{cfg: cfg}
}

// Synthesize runs the external process over the successful answers and
// returns the analysis text. All failures come back as *Error.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, answers []AnswerRef) (string, error) {
	if len(answers) == 0 {
		return "", &Error{Reason: "no answers to synthesize"}
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	args := append([]string(nil), s.cfg.Args...)
	for _, a := range answers {
		args = append(args, a.Path)
	}

	cmd := exec.CommandContext(ctx, s.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(BuildPrompt(query, answers))

	// The CLI spawns children that inherit the stdout pipe; killing only
	// the direct child would leave the pipe open and the read blocked until
	// the orphans exit. Run the process in its own group and kill the whole
	// group on cancel.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &Error{Reason: "stdout pipe", Err: err}
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return "", &Error{Reason: "start process", Err: err}
	}

	// Read one byte past the cap so oversize is detectable without
	// buffering an unbounded stream.
	out, readErr := io.ReadAll(io.LimitReader(stdout, s.cfg.MaxOutput+1))
	oversize := int64(len(out)) > s.cfg.MaxOutput
	if oversize {
		// Stop the writer before Wait, or it blocks on the full pipe.
		cancel()
	}
	waitErr := cmd.Wait()

	switch {
	case oversize:
		return "", &Error{Reason: fmt.Sprintf("output exceeds %d bytes", s.cfg.MaxOutput)}
	case ctx.Err() == context.DeadlineExceeded:
		return "", &Error{Reason: "timed out", Err: ctx.Err()}
	case readErr != nil:
		return "", &Error{Reason: "read output", Err: readErr}
	case waitErr != nil:
		return "", &Error{
			Reason: fmt.Sprintf("process failed (%s)", firstLine(stderr.String())),
			Err:    waitErr,
		}
	}

	text := strings.TrimSpace(string(out))
	if text == "" {
		return "", &Error{Reason: "empty output"}
	}

	s.cfg.Logger.Info("synth: analysis produced",
		"answers", len(answers), "bytes", len(text), "elapsed", time.Since(start))
	return text, nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "no stderr"
	}
	return s
}

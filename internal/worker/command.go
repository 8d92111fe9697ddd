package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"storyloop/internal/router"
	"storyloop/internal/transition"
)

// ErrNoOutcome is returned when a worker process exits without reporting an
// outcome line.
var ErrNoOutcome = errors.New("worker reported no outcome")

// EventHandler is called for every event a worker process emits.
type EventHandler func(event Event)

// CommandWorker runs an external program for each directive.
//
// The directive is written to the program's stdin as a single JSON document.
// The program streams JSON lines on stdout; the last line of type "outcome"
// is returned. Story id and action are also exported as STORYLOOP_STORY_ID
// and STORYLOOP_ACTION.
type CommandWorker struct {
	Command string
	Args    []string
	Dir     string
	Env     []string

	// Tests, when set, re-runs the test suite after the worker reports new
	// code. A failing suite turns the outcome into tests_failed.
	Tests TestRunner

	parser  Parser
	handler EventHandler
	logger  *slog.Logger
}

// NewCommandWorker creates a worker that runs command with args.
func NewCommandWorker(command string, args ...string) *CommandWorker {
	return &CommandWorker{
		Command: command,
		Args:    args,
		parser:  NewParser(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// SetEventHandler registers a handler for streamed events.
func (w *CommandWorker) SetEventHandler(h EventHandler) {
	w.handler = h
}

// SetLogger sets the logger used for stderr lines and streamed log events.
func (w *CommandWorker) SetLogger(l *slog.Logger) {
	if l != nil {
		w.logger = l
	}
}

// Execute runs the worker process for d and returns its reported outcome.
//
// If the process reports an outcome, that outcome is returned even when the
// exit status is non-zero. Without an outcome, a non-zero exit or a start
// failure is an error.
func (w *CommandWorker) Execute(ctx context.Context, d router.Directive) (transition.Outcome, error) {
	if w.Command == "" {
		return transition.Outcome{}, errors.New("worker command not configured")
	}

	input, err := json.Marshal(d)
	if err != nil {
		return transition.Outcome{}, fmt.Errorf("encode directive: %w", err)
	}

	cmd := exec.CommandContext(ctx, w.Command, w.Args...)
	cmd.Dir = w.Dir
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(os.Environ(), w.Env...)
	cmd.Env = append(cmd.Env,
		"STORYLOOP_STORY_ID="+d.StoryID,
		"STORYLOOP_ACTION="+string(d.Action),
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return transition.Outcome{}, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return transition.Outcome{}, fmt.Errorf("start %s: %w", w.Command, err)
	}

	var outcome *transition.Outcome
	for event := range w.parser.Parse(stdout) {
		if w.handler != nil {
			w.handler(event)
		}
		switch {
		case event.IsOutcome():
			o := *event.Outcome
			outcome = &o
		case event.IsText():
			w.logger.Info(event.Message, "story", d.StoryID, "level", event.Level)
		}
	}

	waitErr := cmd.Wait()

	if s := strings.TrimSpace(stderr.String()); s != "" {
		w.logger.Warn("worker stderr", "story", d.StoryID, "stderr", s)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return transition.Outcome{}, ctxErr
	}

	if outcome != nil {
		return w.verify(ctx, d, *outcome)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return transition.Outcome{}, fmt.Errorf("worker exited with code %d: %s", exitErr.ExitCode(), lastLine(stderr.String()))
		}
		return transition.Outcome{}, fmt.Errorf("wait %s: %w", w.Command, waitErr)
	}

	return transition.Outcome{}, ErrNoOutcome
}

// verify runs the configured tests after an outcome that delivers code.
// A runner error means the verdict is unknown, so it aborts the iteration.
func (w *CommandWorker) verify(ctx context.Context, d router.Directive, o transition.Outcome) (transition.Outcome, error) {
	if w.Tests == nil || (o.Kind != transition.KindCommitted && o.Kind != transition.KindFeedbackAddressed) {
		return o, nil
	}

	result, err := w.Tests.Run(ctx, d.StoryID)
	if err != nil {
		return transition.Outcome{}, fmt.Errorf("verify %s: %w", d.StoryID, err)
	}
	if result == TestsPassed {
		return o, nil
	}

	w.logger.Warn("tests failed after worker reported success", "story", d.StoryID, "kind", string(o.Kind))
	return transition.Outcome{
		Kind:              transition.KindTestsFailed,
		Reason:            fmt.Sprintf("tests failed after %s", o.Kind),
		StrategySignature: o.StrategySignature,
		RetryCount:        o.RetryCount,
	}, nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// Trust is the verdict of a [TrustFilter].
type Trust string

const (
	Trusted   Trust = "trusted"
	Untrusted Trust = "untrusted"
)

// TrustFilter classifies externally authored text, such as review comments,
// before a worker acts on it. The orchestrator core never sees raw text.
type TrustFilter interface {
	Classify(ctx context.Context, text string) (Trust, error)
}

// TrustedOnly returns the texts f classifies as trusted, in input order.
func TrustedOnly(ctx context.Context, f TrustFilter, texts []string) ([]string, error) {
	var out []string
	for _, text := range texts {
		verdict, err := f.Classify(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
		if verdict == Trusted {
			out = append(out, text)
		}
	}
	return out, nil
}

// TestResult is the verdict of a [TestRunner].
type TestResult string

const (
	TestsPassed TestResult = "pass"
	TestsFailed TestResult = "fail"
)

// TestRunner runs the test suite for a story's working tree.
type TestRunner interface {
	Run(ctx context.Context, storyID string) (TestResult, error)
}

// CommandTestRunner runs a command and maps its exit status to a [TestResult].
// Exit status zero passes; any other exit status fails. Failing to start the
// command is an error.
type CommandTestRunner struct {
	Command string
	Args    []string
	Dir     string
}

// Run executes the test command with STORYLOOP_STORY_ID set.
func (r *CommandTestRunner) Run(ctx context.Context, storyID string) (TestResult, error) {
	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "STORYLOOP_STORY_ID="+storyID)

	err := cmd.Run()
	if err == nil {
		return TestsPassed, nil
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return TestsFailed, nil
	}
	return "", fmt.Errorf("run tests: %w", err)
}

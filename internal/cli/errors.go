package cli

import (
	"errors"
	"fmt"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// ExitError carries the process exit code out of a cobra RunE function.
//
// Commands never call os.Exit themselves. They report the failure through the
// printer and return an ExitError; [RunWithConfig] turns it into an
// [ExecuteResult] and only [Execute] terminates the process. Tests can then
// assert on the code directly.
type ExitError struct {
	Code int

	// Err is the failure already shown to the operator, if any.
	Err error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("exit status %d: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("exit status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates an [ExitError] with no underlying cause.
func NewExitError(code int) *ExitError {
	return &ExitError{Code: code}
}

// fail prints err and returns an [ExitFailure] exit error wrapping it:
//
//	if err != nil {
//	    return fail(app, err)
//	}
func fail(app *App, err error) error {
	app.Printer.Error("%v", err)
	return &ExitError{Code: ExitFailure, Err: err}
}

// IsExitError reports the exit code carried anywhere in err's chain.
// It returns (0, false) for nil or for errors with no [ExitError].
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

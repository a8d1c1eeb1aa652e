package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // operation ran but reported a failure
	ExitCommandError = 2 // bad invocation: missing database, invalid flags
)

// ExitError carries an exit code alongside the error.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

// WrapExitError attaches an exit code to an underlying error.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code, defaulting to ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Formatter renders command results as text or JSON.
type Formatter struct {
	Format string
	Writer io.Writer
}

// response is the JSON envelope for all command output.
type response struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// JSON reports whether the formatter emits JSON.
func (f *Formatter) JSON() bool { return f.Format == "json" }

// Success emits data in the configured format. Text rendering is handled by
// the caller through text(); JSON always wraps in the standard envelope.
func (f *Formatter) Success(data any, text func(io.Writer)) error {
	if f.JSON() {
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(response{Status: "ok", Data: data})
	}
	text(f.Writer)
	return nil
}

// Fail emits an error result and returns an ExitError for main.
func (f *Formatter) Fail(message string, err error) error {
	if f.JSON() {
		json.NewEncoder(f.Writer).Encode(response{Status: "error", Error: fmt.Sprintf("%s: %v", message, err)})
	} else {
		fmt.Fprintf(f.Writer, "error: %s: %v\n", message, err)
	}
	return WrapExitError(ExitFailure, message, err)
}

func newFormatter(opts *RootOptions, w io.Writer) *Formatter {
	return &Formatter{Format: opts.Format, Writer: w}
}

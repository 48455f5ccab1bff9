package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/biogo/external"
	"github.com/pkg/errors"
)

// Result holds the captured streams of a finished external command.
type Result struct {
	Args   []string
	Stdout []byte
	Stderr []byte
}

// CmdError is returned when an external tool cannot be started or exits
// with a nonzero status. Stdout and Stderr hold whatever the tool printed.
type CmdError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *CmdError) Error() string {
	msg := lastLine(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Tool(), e.ExitCode, msg)
}

func (e *CmdError) Unwrap() error { return e.Err }

// Tool is the base name of the executable.
func (e *CmdError) Tool() string {
	if len(e.Args) == 0 {
		return "unknown"
	}
	return filepath.Base(e.Args[0])
}

// CommandLine renders the argument vector for log records.
func (e *CmdError) CommandLine() string {
	return strings.Join(e.Args, " ")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// Runner runs external tools described by biogo/external command builders.
type Runner interface {
	// Run executes the command and captures both streams.
	Run(b external.CommandBuilder) (*Result, error)
	// RunTo executes the command with stdout written to the file at path.
	RunTo(b external.CommandBuilder, path string) (*Result, error)
}

// ExecRunner runs commands on the local machine with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(b external.CommandBuilder) (*Result, error) {
	cmd, err := b.BuildCommand()
	if err != nil {
		return nil, errors.Wrap(err, "building command")
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err = cmd.Run()
	res := &Result{Args: cmd.Args, Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		return res, newCmdError(cmd, err, stdout.String(), stderr.String())
	}
	return res, nil
}

func (ExecRunner) RunTo(b external.CommandBuilder, path string) (*Result, error) {
	cmd, err := b.BuildCommand()
	if err != nil {
		return nil, errors.Wrap(err, "building command")
	}
	out, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	var stderr bytes.Buffer
	cmd.Stdout = out
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	closeErr := out.Close()
	res := &Result{Args: cmd.Args, Stderr: stderr.Bytes()}
	if runErr != nil {
		return res, newCmdError(cmd, runErr, "", stderr.String())
	}
	if closeErr != nil {
		return res, errors.Wrapf(closeErr, "closing %s", path)
	}
	return res, nil
}

func newCmdError(cmd *exec.Cmd, err error, stdout, stderr string) *CmdError {
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return &CmdError{Args: cmd.Args, ExitCode: code, Stdout: stdout, Stderr: stderr, Err: err}
}

// AsCmdError returns the CmdError in err's chain, or nil.
func AsCmdError(err error) *CmdError {
	var ce *CmdError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// Package index builds the shared bowtie2 contaminant index exactly once,
// however many pipeline invocations ask for it at the same time.
package index

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/biogo/external"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
)

// Program is the run log name of the index stage.
const Program = "INDEX"

// Suffixes of the auxiliary files that make up a bowtie2 index. Each is
// followed by the extension, bt2 for small and bt2l for large indexes.
var Suffixes = []string{".1", ".2", ".3", ".4", ".rev.1", ".rev.2"}

var extensions = []string{"bt2", "bt2l"}

var ErrMissingRequired = errors.New("index: missing required argument")

// Bowtie2Build defines the parameters of a bowtie2-build invocation.
type Bowtie2Build struct {
	Cmd       string `buildarg:"{{if .}}{{.}}{{else}}bowtie2-build{{end}}"`
	Threads   int    `buildarg:"{{if .}}--threads{{split}}{{.}}{{end}}"`
	Quiet     bool   `buildarg:"{{if .}}--quiet{{end}}"`
	Reference string `buildarg:"{{.}}"`
	Prefix    string `buildarg:"{{.}}"`
}

// BuildCommand returns an exec.Cmd built from the parameters in b.
func (b Bowtie2Build) BuildCommand() (*exec.Cmd, error) {
	if b.Reference == "" || b.Prefix == "" {
		return nil, ErrMissingRequired
	}
	cl := external.Must(external.Build(b))
	return exec.Command(cl[0], cl[1:]...), nil
}

// BuildError reports a failed index build. It is fatal to the run because
// every replicate aligns against the index.
type BuildError struct {
	Prefix string
	// Cmd is set when bowtie2-build itself failed.
	Cmd *utils.CmdError
	// Cleanup is set when removing the partial index also failed.
	Cleanup error
	Err     error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("building index %s: %v", e.Prefix, e.Err)
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (cleanup: %v)", e.Cleanup)
	}
	return msg
}

func (e *BuildError) Unwrap() error { return e.Err }

// Complete reports whether every auxiliary file of the index at prefix
// exists and is non-empty.
func Complete(prefix string) bool {
	for _, ext := range extensions {
		if completeWith(prefix, ext) {
			return true
		}
	}
	return false
}

func completeWith(prefix, ext string) bool {
	for _, s := range Suffixes {
		info, err := os.Stat(prefix + s + "." + ext)
		if err != nil || info.Size() == 0 {
			return false
		}
	}
	return true
}

// Files lists the auxiliary files currently present for prefix.
func Files(prefix string) ([]string, error) {
	var files []string
	for _, ext := range extensions {
		matches, err := filepath.Glob(prefix + ".*." + ext)
		if err != nil {
			return nil, errors.Wrapf(err, "listing index files for %s", prefix)
		}
		for _, m := range matches {
			// only names of the form <prefix><suffix>.<ext>
			rest := strings.TrimSuffix(strings.TrimPrefix(m, prefix), "."+ext)
			for _, s := range Suffixes {
				if rest == s {
					files = append(files, m)
					break
				}
			}
		}
	}
	return files, nil
}

// Cleanup removes every auxiliary file of the index at prefix. Files that
// are already gone are not an error.
func Cleanup(prefix string) error {
	files, err := Files(prefix)
	if err != nil {
		return err
	}
	var firstErr error
	for _, f := range files {
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = errors.Wrapf(err, "removing %s", f)
		}
	}
	return firstErr
}

// Builder ensures the index exists, building it with bowtie2-build if needed.
type Builder struct {
	Runner  utils.Runner
	Tool    string
	Threads int
	Logger  *slog.Logger
}

// EnsureIndex makes sure a complete index for reference exists at prefix.
// The existence check and the build run under the lock at LockPath(prefix),
// which is released on every return path. A failed build leaves no index
// files behind.
func (b *Builder) EnsureIndex(reference, prefix string) (err error) {
	lock, err := AcquireLock(LockPath(prefix))
	if err != nil {
		return &BuildError{Prefix: prefix, Err: err}
	}
	defer func() {
		if rErr := lock.Release(); rErr != nil && err == nil {
			err = &BuildError{Prefix: prefix, Err: rErr}
		}
	}()

	if Complete(prefix) {
		utils.Stage(b.Logger, Program, utils.AllFiles, filepath.Base(prefix), utils.StatusSkipped, "REASON", "index complete")
		return nil
	}
	if _, statErr := os.Stat(reference); statErr != nil {
		return &BuildError{Prefix: prefix, Err: errors.Wrap(statErr, "reference")}
	}

	cmd := Bowtie2Build{Cmd: b.Tool, Threads: b.Threads, Reference: reference, Prefix: prefix}
	utils.Stage(b.Logger, Program, utils.AllFiles, filepath.Base(prefix), utils.StatusStarted, "REFERENCE", reference)
	if _, runErr := b.Runner.Run(cmd); runErr != nil {
		return b.fail(prefix, runErr)
	}
	if !Complete(prefix) {
		return b.fail(prefix, errors.New("bowtie2-build succeeded but the index is incomplete"))
	}
	utils.Stage(b.Logger, Program, utils.AllFiles, filepath.Base(prefix), utils.StatusCompleted)
	return nil
}

func (b *Builder) fail(prefix string, cause error) error {
	bErr := &BuildError{Prefix: prefix, Cmd: utils.AsCmdError(cause), Err: cause}
	bErr.Cleanup = Cleanup(prefix)
	attrs := []any{}
	if bErr.Cmd != nil {
		attrs = append(attrs, "CMD", bErr.Cmd.CommandLine(), "STDERR", bErr.Cmd.Stderr, "STDOUT", bErr.Cmd.Stdout)
	}
	utils.Stage(b.Logger, Program, utils.AllFiles, filepath.Base(prefix), fmt.Sprintf("%s - %v", utils.StatusFailed, cause), attrs...)
	return bErr
}

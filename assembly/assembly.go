// Package assembly turns the raw per-file alignment records of a replicate
// into one sorted, indexed and header-sanitized BAM.
package assembly

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gmaffy/rmcontam/alignment"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Run log program names.
const (
	ProgramSort     = "SAMTOOLS_SORT"
	ProgramMerge    = "SAMTOOLS_MERGE"
	ProgramReheader = "REHEADER"
	ProgramIndex    = "SAMTOOLS_INDEX"
)

const (
	partSuffix   = "_mapped_out.bam"
	mergedSuffix = "_mapped.bam"
)

// ConvertError reports a raw record that could not be sorted into a BAM.
type ConvertError struct {
	Raw string
	Cmd *utils.CmdError
	Err error
}

func (e *ConvertError) Error() string {
	return fmt.Sprintf("converting %s: %v", filepath.Base(e.Raw), e.Err)
}

func (e *ConvertError) Unwrap() error { return e.Err }

// MergeError reports a failure while building the replicate artifact.
// Stage is one of merge, reheader or index.
type MergeError struct {
	Replicate string
	Stage     string
	Cmd       *utils.CmdError
	Err       error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Replicate, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// ReplicateArtifact is the single alignment output kept for a replicate.
type ReplicateArtifact struct {
	Replicate string
	Path      string
	Index     string
	Parts     int
	Sanitized bool
}

// Assembler converts and merges alignment records with samtools.
type Assembler struct {
	Tools  *Samtools
	Logger *slog.Logger
}

// PartPath is where Convert writes the sorted BAM for a record.
func PartPath(rec *alignment.AlignmentRecord) string {
	return filepath.Join(filepath.Dir(rec.SAM), rec.Stem+partSuffix)
}

// Convert sorts the raw record of rec into a compact BAM and returns its
// path. It only touches files belonging to rec, so records of one replicate
// may be converted in parallel.
func (a *Assembler) Convert(replicate string, rec *alignment.AlignmentRecord) (string, error) {
	if rec.SAM == "" {
		return "", &ConvertError{Err: errors.New("record has no raw alignment file")}
	}
	out := PartPath(rec)
	utils.Stage(a.Logger, ProgramSort, replicate, filepath.Base(rec.SAM), utils.StatusStarted)
	if err := a.Tools.Sort(rec.SAM, out); err != nil {
		cErr := &ConvertError{Raw: rec.SAM, Cmd: utils.AsCmdError(err), Err: err}
		a.failed(ProgramSort, replicate, filepath.Base(rec.SAM), err)
		return "", cErr
	}
	utils.Stage(a.Logger, ProgramSort, replicate, filepath.Base(rec.SAM), utils.StatusCompleted)
	return out, nil
}

// Merge combines the converted parts of a replicate into
// <dir>/<replicate>_mapped.bam, sanitizes its header, indexes it and then
// removes the parts and any raw records left in dir. Parts are merged in
// lexical order whatever order they are given in, each path once.
func (a *Assembler) Merge(replicate, dir string, parts []string) (*ReplicateArtifact, error) {
	if len(parts) == 0 {
		return nil, &MergeError{Replicate: replicate, Stage: "merge", Err: errors.New("nothing to merge")}
	}
	inputs := lo.Uniq(parts)
	sort.Strings(inputs)
	out := filepath.Join(dir, replicate+mergedSuffix)

	utils.Stage(a.Logger, ProgramMerge, replicate, utils.AllFiles, utils.StatusStarted, "PARTS", len(inputs))
	if err := a.Tools.Merge(out, inputs); err != nil {
		a.failed(ProgramMerge, replicate, utils.AllFiles, err)
		return nil, &MergeError{Replicate: replicate, Stage: "merge", Cmd: utils.AsCmdError(err), Err: err}
	}
	utils.Stage(a.Logger, ProgramMerge, replicate, utils.AllFiles, utils.StatusCompleted)

	sanitized, err := a.Sanitize(replicate, out)
	if err != nil {
		return nil, &MergeError{Replicate: replicate, Stage: "reheader", Cmd: utils.AsCmdError(err), Err: err}
	}

	utils.Stage(a.Logger, ProgramIndex, replicate, filepath.Base(out), utils.StatusStarted)
	if err := a.Tools.Index(out); err != nil {
		a.failed(ProgramIndex, replicate, filepath.Base(out), err)
		return nil, &MergeError{Replicate: replicate, Stage: "index", Cmd: utils.AsCmdError(err), Err: err}
	}
	utils.Stage(a.Logger, ProgramIndex, replicate, filepath.Base(out), utils.StatusCompleted)

	if err := Cleanup(dir, inputs); err != nil {
		utils.OrDefault(a.Logger).Warn("could not remove intermediate files", "REPLICATE", replicate, "error", err)
	}
	return &ReplicateArtifact{
		Replicate: replicate,
		Path:      out,
		Index:     out + ".bai",
		Parts:     len(inputs),
		Sanitized: sanitized,
	}, nil
}

// Sanitize strips disallowed characters from the sequence names in the
// header of the BAM at path, rewriting it in place. A header without
// violations is left untouched and false is returned.
func (a *Assembler) Sanitize(replicate, path string) (bool, error) {
	header, err := a.Tools.Header(path)
	if err != nil {
		a.failed(ProgramReheader, replicate, filepath.Base(path), err)
		return false, err
	}
	clean, changed, err := SanitizeHeader(header)
	if err != nil {
		a.failed(ProgramReheader, replicate, filepath.Base(path), err)
		return false, err
	}
	if !changed {
		return false, nil
	}

	utils.Stage(a.Logger, ProgramReheader, replicate, filepath.Base(path), utils.StatusStarted)
	headerPath := path + ".header.sam"
	tmp := path + ".reheader.tmp"
	defer os.Remove(headerPath)
	if err := os.WriteFile(headerPath, clean, 0644); err != nil {
		return false, errors.Wrap(err, "writing sanitized header")
	}
	if err := a.Tools.Reheader(headerPath, path, tmp); err != nil {
		os.Remove(tmp)
		a.failed(ProgramReheader, replicate, filepath.Base(path), err)
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return false, errors.Wrap(err, "replacing reheadered BAM")
	}
	utils.Stage(a.Logger, ProgramReheader, replicate, filepath.Base(path), utils.StatusCompleted)
	return true, nil
}

// Cleanup removes merged parts plus every raw record and stray part in dir.
func Cleanup(dir string, parts []string) error {
	victims := append([]string(nil), parts...)
	for _, pattern := range []string{"*.sam", "*" + partSuffix} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		victims = append(victims, matches...)
	}
	var failed []string
	for _, v := range victims {
		if err := os.Remove(v); err != nil && !os.IsNotExist(err) {
			failed = append(failed, v)
		}
	}
	if len(failed) > 0 {
		return errors.Errorf("could not remove %s", strings.Join(failed, ", "))
	}
	return nil
}

func (a *Assembler) failed(program, replicate, file string, err error) {
	attrs := []any{}
	if ce := utils.AsCmdError(err); ce != nil {
		attrs = append(attrs, "CMD", ce.CommandLine(), "STDERR", ce.Stderr, "STDOUT", ce.Stdout)
	}
	utils.Stage(a.Logger, program, replicate, file, fmt.Sprintf("%s - %v", utils.StatusFailed, err), attrs...)
}

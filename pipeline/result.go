package pipeline

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/gmaffy/rmcontam/alignment"
	"github.com/gmaffy/rmcontam/assembly"
	"github.com/gmaffy/rmcontam/reads"
	"github.com/gmaffy/rmcontam/report"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// State is the position of a replicate in the pipeline.
type State int

const (
	Pending State = iota
	Grouping
	Aligning
	Assembling
	Done
	// Partial is Done with at least one file or stage skipped.
	Partial
	// Skipped replicates were completed by an earlier run.
	Skipped
)

func (s State) String() string {
	return [...]string{"pending", "grouping", "aligning", "assembling", report.StateDone, report.StatePartial, report.StateSkipped}[s]
}

// Failure stages.
const (
	StageClassify = "classify"
	StageAlign    = "align"
	StageConvert  = "convert"
	StageMerge    = "merge"
)

// Failure is one isolated failure inside a replicate.
type Failure struct {
	Replicate string
	File      string
	Stage     string
	Err       error
}

// Row converts f for the failure table.
func (f Failure) Row() report.FailureRow {
	row := report.FailureRow{Replicate: f.Replicate, File: f.File, Stage: f.Stage, Message: f.Err.Error()}
	if ce := utils.AsCmdError(f.Err); ce != nil {
		row.Tool, row.ExitStatus = ce.Tool(), ce.ExitCode
	}
	return row
}

// ReplicateResult is the outcome of one replicate directory.
type ReplicateResult struct {
	Name  string
	Dir   string
	State State

	Groups       []reads.ReadGroup
	Unrecognized []*reads.UnrecognizedError
	Records      []*alignment.AlignmentRecord
	Parts        []string
	Artifact     *assembly.ReplicateArtifact
	Stats        *assembly.ArtifactStats
	Failures     []Failure

	Counted     bool
	Retained    int
	Contaminant int
}

func (r *ReplicateResult) fail(file, stage string, err error) {
	r.Failures = append(r.Failures, Failure{Replicate: r.Name, File: file, Stage: stage, Err: err})
}

// Row converts r for the summary table.
func (r *ReplicateResult) Row() report.Row {
	row := report.Row{
		Replicate: r.Name,
		State:     r.State.String(),
		Groups:    len(r.Groups),
		Aligned:   len(r.Records),
		Converted: len(r.Parts),
		Failures:  len(r.Failures),
	}
	if r.Artifact != nil {
		row.Artifact = r.Artifact.Path
	}
	if r.Stats != nil {
		if top := r.Stats.Top(1); len(top) > 0 {
			row.TopReference = top[0].Name
		}
	}
	if r.Counted {
		row.SetCounts(r.Retained, r.Contaminant)
	}
	return row
}

// RunReport collects the replicate results of a run in name order.
type RunReport struct {
	Replicates []*ReplicateResult
}

// Rows returns the summary table rows.
func (r *RunReport) Rows() []report.Row {
	return lo.Map(r.Replicates, func(rep *ReplicateResult, _ int) report.Row { return rep.Row() })
}

// Failures returns every failure of the run.
func (r *RunReport) Failures() []report.FailureRow {
	var rows []report.FailureRow
	for _, rep := range r.Replicates {
		for _, f := range rep.Failures {
			rows = append(rows, f.Row())
		}
	}
	return rows
}

// Partial returns the replicates that finished with skipped work.
func (r *RunReport) Partial() []*ReplicateResult {
	return lo.Filter(r.Replicates, func(rep *ReplicateResult, _ int) bool { return rep.State == Partial })
}

// Write stores the summary and failure tables in dir, plus the chart when
// any replicate has read counts.
func (r *RunReport) Write(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "creating %s", dir)
	}
	rows := r.Rows()
	if err := report.WriteSummary(filepath.Join(dir, report.SummaryFile), rows); err != nil {
		return err
	}
	if err := report.WriteFailures(filepath.Join(dir, report.FailuresFile), r.Failures()); err != nil {
		return err
	}
	if lo.SomeBy(rows, func(row report.Row) bool { return row.Counted() }) {
		return report.WriteChart(filepath.Join(dir, report.ChartFile), rows)
	}
	return nil
}

func (r *RunReport) sort() {
	sort.Slice(r.Replicates, func(i, j int) bool { return r.Replicates[i].Name < r.Replicates[j].Name })
}

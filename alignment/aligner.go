// Package alignment runs bowtie2 for one read group against the
// contaminant index and records the files it wrote.
package alignment

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gmaffy/rmcontam/reads"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
)

// Program is the run log name of the alignment stage.
const Program = "BOWTIE2"

// Targets are the directories the outputs of one replicate go to. An empty
// SAMDir disables the raw alignment record.
type Targets struct {
	Replicate   string
	UnmappedDir string
	MappedDir   string
	SAMDir      string
}

// AlignmentRecord lists what one bowtie2 invocation produced.
type AlignmentRecord struct {
	Group reads.ReadGroup
	Stem  string
	// Unmapped holds the decontaminated reads, one file per mate.
	Unmapped []string
	// Mapped holds the contaminant reads, one file per mate.
	Mapped []string
	// SAM is the raw alignment record, if one was requested.
	SAM     string
	Summary Summary
}

// AlignError reports a failed alignment of one group.
type AlignError struct {
	Group reads.ReadGroup
	Cmd   *utils.CmdError
	Err   error
}

func (e *AlignError) Error() string {
	return fmt.Sprintf("aligning %s: %v", e.Group.Name(), e.Err)
}

func (e *AlignError) Unwrap() error { return e.Err }

// Aligner runs bowtie2.
type Aligner struct {
	Runner  utils.Runner
	Tool    string
	Threads int
	// AlignedOnly keeps unaligned reads out of the raw record.
	AlignedOnly bool
	ExtraArgs   []string
	Logger      *slog.Logger
}

// Outputs returns the record Align would produce for g, without running
// anything.
func Outputs(g reads.ReadGroup, t Targets) *AlignmentRecord {
	rec := &AlignmentRecord{Group: g, Stem: g.Stem}
	switch g.Kind {
	case reads.Paired:
		for _, mate := range []string{"1", "2"} {
			rec.Unmapped = append(rec.Unmapped, filepath.Join(t.UnmappedDir, g.Stem+"_unmapped_R"+mate+".fastq.gz"))
			rec.Mapped = append(rec.Mapped, filepath.Join(t.MappedDir, g.Stem+"_mapped_R"+mate+".fastq.gz"))
		}
	default:
		rec.Unmapped = []string{filepath.Join(t.UnmappedDir, g.Stem+"_unmapped.fastq.gz")}
		rec.Mapped = []string{filepath.Join(t.MappedDir, g.Stem+"_mapped.fastq.gz")}
	}
	if t.SAMDir != "" {
		rec.SAM = filepath.Join(t.SAMDir, g.Stem+"_mapped.sam")
	}
	return rec
}

// Command returns the bowtie2 invocation aligning g against index.
func (a *Aligner) Command(g reads.ReadGroup, index string, t Targets) Bowtie2 {
	rec := Outputs(g, t)
	b := Bowtie2{
		Cmd:     a.Tool,
		Threads: a.Threads,
		Index:   index,
		SAM:     rec.SAM,
		NoUnal:  a.AlignedOnly && rec.SAM != "",
		Extra:   a.ExtraArgs,
	}
	if g.Kind == reads.Paired {
		b.Mate1, b.Mate2 = g.R1, g.R2
		b.UnalignedConcord = filepath.Join(t.UnmappedDir, g.Stem+"_unmapped_R%.fastq.gz")
		b.AlignedConcord = filepath.Join(t.MappedDir, g.Stem+"_mapped_R%.fastq.gz")
	} else {
		b.Unpaired = g.R1
		b.Unaligned = rec.Unmapped[0]
		b.Aligned = rec.Mapped[0]
	}
	return b
}

// Align runs bowtie2 for one group. A failure only concerns g; the caller
// decides whether to go on with other groups.
func (a *Aligner) Align(g reads.ReadGroup, index string, t Targets) (*AlignmentRecord, error) {
	if g.Kind != reads.SingleEnd && g.Kind != reads.Paired {
		return nil, &AlignError{Group: g, Err: errors.Errorf("cannot align %s group", g.Kind)}
	}
	for _, f := range g.Files() {
		if _, err := os.Stat(f); err != nil {
			return nil, &AlignError{Group: g, Err: errors.Wrap(err, "input")}
		}
	}

	utils.Stage(a.Logger, Program, t.Replicate, g.Name(), utils.StatusStarted, "KIND", g.Kind.String())
	res, err := a.Runner.Run(a.Command(g, index, t))
	if err != nil {
		ce := utils.AsCmdError(err)
		attrs := []any{}
		if ce != nil {
			attrs = append(attrs, "CMD", ce.CommandLine(), "STDERR", ce.Stderr, "STDOUT", ce.Stdout)
		}
		utils.Stage(a.Logger, Program, t.Replicate, g.Name(), fmt.Sprintf("%s - %v", utils.StatusFailed, err), attrs...)
		return nil, &AlignError{Group: g, Cmd: ce, Err: err}
	}

	rec := Outputs(g, t)
	rec.Summary = ParseSummary(string(res.Stderr))
	utils.Stage(a.Logger, Program, t.Replicate, g.Name(), utils.StatusCompleted,
		"READS", rec.Summary.Reads, "OVERALL_RATE", rec.Summary.OverallRate)
	return rec, nil
}

package pipeline

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/gmaffy/rmcontam/index"
	"github.com/gmaffy/rmcontam/reads"
	"github.com/gmaffy/rmcontam/report"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/gmaffy/rmcontam/utils/runnertest"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	root, input string
	cfg         *utils.Config
	fake        *runnertest.Fake
}

func newFixture(t *testing.T, bam bool) *fixture {
	root := t.TempDir()
	input := filepath.Join(root, "processed_fastqs")
	files := map[string][]string{
		"rep1": {"s_merged.fastq.gz", "s_unpaired.fastq.gz", "s_unmerged_R1_001.fastq.gz", "s_unmerged_R2_001.fastq.gz", "notes.fastq.gz"},
		"rep2": {"bad_merged.fastq.gz", "ok_merged.fastq.gz", "orphan_unmerged_R1.fastq.gz"},
	}
	for rep, names := range files {
		require.NoError(t, os.MkdirAll(filepath.Join(input, rep), 0755))
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(input, rep, n), []byte("@r\nACGT\n+\nIIII\n"), 0644))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "contaminants.fa"), []byte(">UniVec(core)\nACGT\n"), 0644))

	cfg := &utils.Config{
		Input:       input,
		Output:      filepath.Join(root, "filtered"),
		Reference:   filepath.Join(root, "contaminants.fa"),
		IndexPrefix: filepath.Join(root, "contaminants_index"),
		BamFile:     bam,
		CountReads:  true,
		Threads:     2,
		Jobs:        2,
		GroupJobs:   3,
		Bowtie2:     "bowtie2", Bowtie2Build: "bowtie2-build", Samtools: "samtools",
		Markers: utils.Markers{Merged: "merged", Unpaired: "unpaired", Unmerged: "unmerged", R1: "R1", R2: "R2"},
	}
	fake := &runnertest.Fake{Before: func(args []string) error {
		if filepath.Base(args[0]) == "bowtie2" && runnertest.Has(args, "bad_merged") {
			return runnertest.Fail(args, 1, "Error: Read r has more quality values than read characters.")
		}
		return nil
	}}
	return &fixture{root: root, input: input, cfg: cfg, fake: fake}
}

func (f *fixture) coordinator(w io.Writer) *Coordinator {
	return New(f.cfg, f.fake, utils.NewLogger(w, io.Discard, false))
}

func byName(rep *RunReport) map[string]*ReplicateResult {
	m := map[string]*ReplicateResult{}
	for _, r := range rep.Replicates {
		m[r.Name] = r
	}
	return m
}

func TestRunIsolatesFailures(t *testing.T) {
	f := newFixture(t, true)
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)
	require.Len(t, rep.Replicates, 2)
	assert.Len(t, f.fake.CallsTo("bowtie2-build"), 1)

	reps := byName(rep)
	rep1 := reps["rep1"]
	assert.Equal(t, Done, rep1.State)
	assert.Len(t, rep1.Groups, 3)
	assert.Len(t, rep1.Records, 3)
	assert.Len(t, rep1.Parts, 3)
	require.Len(t, rep1.Unrecognized, 1)
	assert.Equal(t, "notes.fastq.gz", filepath.Base(rep1.Unrecognized[0].Path))
	require.NotNil(t, rep1.Artifact)
	assert.True(t, rep1.Artifact.Sanitized)

	samDir := filepath.Join(f.cfg.Output, "rep1", "samtools")
	entries, err := os.ReadDir(samDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"rep1_mapped.bam", "rep1_mapped.bam.bai"}, names)
	assert.FileExists(t, filepath.Join(f.cfg.Output, "rep1", "unmapped", "s_merged_unmapped.fastq.gz"))
	assert.FileExists(t, filepath.Join(f.cfg.Output, "rep1", "unmapped", "s_unmerged_001_unmapped_R2.fastq.gz"))
	assert.FileExists(t, filepath.Join(f.cfg.Output, "rep1", "mapped", "s_unpaired_mapped.fastq.gz"))

	// 2 reads per single-end stream, 1 per pair
	assert.True(t, rep1.Counted)
	assert.Equal(t, 5, rep1.Retained)
	assert.Equal(t, 5, rep1.Contaminant)

	rep2 := reps["rep2"]
	assert.Equal(t, Partial, rep2.State)
	require.Len(t, rep2.Failures, 2)
	assert.Equal(t, "bad_merged.fastq.gz", rep2.Failures[0].File)
	assert.Equal(t, StageAlign, rep2.Failures[0].Stage)
	assert.Equal(t, "orphan_unmerged_R1.fastq.gz", rep2.Failures[1].File)
	assert.Equal(t, StageClassify, rep2.Failures[1].Stage)
	require.NotNil(t, rep2.Artifact)
	assert.Equal(t, 1, rep2.Artifact.Parts)

	rows := rep.Failures()
	require.Len(t, rows, 2)
	assert.Equal(t, "bowtie2", rows[0].Tool)
	assert.Equal(t, 1, rows[0].ExitStatus)
	assert.Empty(t, rows[1].Tool)

	assert.Equal(t, []*ReplicateResult{rep2}, rep.Partial())
}

func TestRunDuplicateStem(t *testing.T) {
	f := newFixture(t, true)
	f.cfg.GroupJobs = 1
	rep1 := filepath.Join(f.input, "rep1")
	require.NoError(t, os.WriteFile(filepath.Join(rep1, "s_merged.fastq"), []byte("@r\nACGT\n+\nIIII\n"), 0644))

	res := f.coordinator(io.Discard).Replicate("rep1", rep1)
	assert.Equal(t, Partial, res.State)
	assert.Len(t, res.Groups, 3)
	assert.Len(t, res.Parts, 3)
	assert.Equal(t, lo.Uniq(res.Parts), res.Parts)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "s_merged.fastq.gz", res.Failures[0].File)
	assert.Equal(t, StageClassify, res.Failures[0].Stage)
	var de *reads.DuplicateStemError
	assert.ErrorAs(t, res.Failures[0].Err, &de)

	aligned := f.fake.CallsTo("bowtie2")
	assert.Len(t, aligned, 3)
	for _, call := range aligned {
		assert.False(t, runnertest.Has(call, "s_merged.fastq.gz"))
	}
	merges := f.fake.CallsTo("samtools", "merge")
	require.Len(t, merges, 1)
	assert.Len(t, lo.Filter(merges[0], func(a string, _ int) bool {
		return filepath.Base(a) == "s_merged_mapped_out.bam"
	}), 1)
	require.NotNil(t, res.Artifact)
	assert.Equal(t, 3, res.Artifact.Parts)
}

func TestRunWithoutBamFile(t *testing.T) {
	f := newFixture(t, false)
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)
	assert.Empty(t, f.fake.CallsTo("samtools"))
	for _, call := range f.fake.CallsTo("bowtie2") {
		assert.NotContains(t, call, "-S")
	}
	for _, r := range rep.Replicates {
		assert.Nil(t, r.Artifact)
		assert.Empty(t, r.Parts)
		assert.NoDirExists(t, filepath.Join(f.cfg.Output, r.Name, "samtools"))
	}
}

func TestRunConvertFailure(t *testing.T) {
	f := newFixture(t, true)
	f.fake.Before = func(args []string) error {
		if filepath.Base(args[0]) == "samtools" && args[1] == "sort" && runnertest.Has(args, "s_unpaired") {
			return runnertest.Fail(args, 1, "[E::sam_parse1] truncated")
		}
		return nil
	}
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)

	rep1 := byName(rep)["rep1"]
	assert.Equal(t, Partial, rep1.State)
	assert.Len(t, rep1.Records, 3)
	assert.Len(t, rep1.Parts, 2)
	require.Len(t, rep1.Failures, 1)
	assert.Equal(t, StageConvert, rep1.Failures[0].Stage)
	require.NotNil(t, rep1.Artifact)
	assert.Equal(t, 2, rep1.Artifact.Parts)
	// the raw record of the failed conversion is cleaned up with the rest
	assert.NoFileExists(t, filepath.Join(f.cfg.Output, "rep1", "samtools", "s_unpaired_mapped.sam"))
}

func TestRunMergeFailure(t *testing.T) {
	f := newFixture(t, true)
	f.fake.Before = func(args []string) error {
		if filepath.Base(args[0]) == "samtools" && args[1] == "merge" && runnertest.Has(args, "rep2") {
			return runnertest.Fail(args, 1, "[bam_merge] failed")
		}
		return nil
	}
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)
	reps := byName(rep)
	assert.Equal(t, Done, reps["rep1"].State)
	rep2 := reps["rep2"]
	assert.Equal(t, Partial, rep2.State)
	assert.Nil(t, rep2.Artifact)
	stages := map[string]bool{}
	for _, fl := range rep2.Failures {
		stages[fl.Stage] = true
	}
	assert.True(t, stages[StageMerge])
}

func TestRunIndexFailureAborts(t *testing.T) {
	f := newFixture(t, true)
	f.fake.Before = func(args []string) error {
		if filepath.Base(args[0]) == "bowtie2-build" {
			return runnertest.Fail(args, 1, "Error: Encountered empty reference sequence")
		}
		return nil
	}
	rep, err := f.coordinator(io.Discard).Run(f.input)
	assert.Nil(t, rep)
	var be *index.BuildError
	require.True(t, errors.As(err, &be))
	assert.Empty(t, f.fake.CallsTo("bowtie2"))
	files, err := index.Files(f.cfg.IndexPrefix)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestRunResume(t *testing.T) {
	f := newFixture(t, false)
	logPath := filepath.Join(f.root, "run.log")
	logFile, err := os.Create(logPath)
	require.NoError(t, err)
	_, err = f.coordinator(logFile).Run(f.input)
	require.NoError(t, err)
	require.NoError(t, logFile.Close())

	entries, err := utils.ParseLogFile(logPath)
	require.NoError(t, err)
	assert.True(t, utils.StageHasCompleted(entries, Program, "rep1", utils.AllFiles))
	assert.False(t, utils.StageHasCompleted(entries, Program, "rep2", utils.AllFiles))

	again := &runnertest.Fake{Before: f.fake.Before}
	c := New(f.cfg, again, utils.NewLogger(io.Discard, io.Discard, false))
	c.Previous = entries
	rep, err := c.Run(f.input)
	require.NoError(t, err)
	reps := byName(rep)
	assert.Equal(t, Skipped, reps["rep1"].State)
	assert.Equal(t, Partial, reps["rep2"].State)
	for _, call := range again.CallsTo("bowtie2") {
		assert.False(t, runnertest.Has(call, "rep1"))
	}
	assert.Empty(t, again.CallsTo("bowtie2-build"))
}

func TestRunSkipsOutputInsideInput(t *testing.T) {
	f := newFixture(t, false)
	f.cfg.Output = filepath.Join(f.input, "filtered")
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)
	assert.Len(t, rep.Replicates, 2)
}

func TestReplicateEmptyAndMissing(t *testing.T) {
	f := newFixture(t, true)
	empty := filepath.Join(f.input, "rep3")
	require.NoError(t, os.MkdirAll(empty, 0755))
	c := f.coordinator(io.Discard)

	res := c.Replicate("rep3", empty)
	assert.Equal(t, Done, res.State)
	assert.Empty(t, res.Groups)

	res = c.Replicate("gone", filepath.Join(f.input, "gone"))
	assert.Equal(t, Partial, res.State)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, StageClassify, res.Failures[0].Stage)
}

func TestReportWrite(t *testing.T) {
	f := newFixture(t, true)
	rep, err := f.coordinator(io.Discard).Run(f.input)
	require.NoError(t, err)
	require.NoError(t, rep.Write(f.cfg.Output))

	rows, err := report.ReadSummary(filepath.Join(f.cfg.Output, report.SummaryFile))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "rep1", rows[0].Replicate)
	assert.Equal(t, report.StateDone, rows[0].State)
	assert.InDelta(t, 0.5, rows[0].Fraction, 1e-6)
	assert.FileExists(t, filepath.Join(f.cfg.Output, report.FailuresFile))
	assert.FileExists(t, filepath.Join(f.cfg.Output, report.ChartFile))

	partial, err := report.PartialReplicates(filepath.Join(f.cfg.Output, report.SummaryFile))
	require.NoError(t, err)
	require.Len(t, partial, 1)
	assert.Equal(t, "rep2", partial[0].Replicate)
}

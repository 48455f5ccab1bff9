// Package pipeline drives the decontamination of every replicate directory
// under an input folder: build the shared index once, then group, align and
// assemble each replicate, isolating failures to the file they occur in.
package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gmaffy/rmcontam/alignment"
	"github.com/gmaffy/rmcontam/assembly"
	"github.com/gmaffy/rmcontam/index"
	"github.com/gmaffy/rmcontam/reads"
	"github.com/gmaffy/rmcontam/report"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Program is the run log name of replicate level records.
const Program = "REPLICATE"

// Coordinator runs the pipeline.
type Coordinator struct {
	Index       *index.Builder
	Reference   string
	IndexPrefix string
	Aligner     *alignment.Aligner
	// Assembler is nil unless BAM artifacts are wanted.
	Assembler *assembly.Assembler
	Markers   reads.Markers
	Output    string

	Jobs       int
	GroupJobs  int
	CountReads bool
	// Previous holds the run log of an earlier run; replicates it records
	// as completed are skipped.
	Previous []utils.LogEntry

	Logger *slog.Logger
}

// New wires a Coordinator from cfg.
func New(cfg *utils.Config, runner utils.Runner, logger *slog.Logger) *Coordinator {
	c := &Coordinator{
		Index:       &index.Builder{Runner: runner, Tool: cfg.Bowtie2Build, Threads: cfg.Threads, Logger: logger},
		Reference:   cfg.Reference,
		IndexPrefix: cfg.IndexPrefix,
		Aligner: &alignment.Aligner{
			Runner:      runner,
			Tool:        cfg.Bowtie2,
			Threads:     cfg.Threads,
			AlignedOnly: cfg.AlignedOnly,
			ExtraArgs:   cfg.Bowtie2Args,
			Logger:      logger,
		},
		Markers:    reads.Markers(cfg.Markers),
		Output:     cfg.Output,
		Jobs:       cfg.Jobs,
		GroupJobs:  cfg.GroupJobs,
		CountReads: cfg.CountReads,
		Logger:     logger,
	}
	if cfg.BamFile {
		c.Assembler = &assembly.Assembler{
			Tools:  &assembly.Samtools{Runner: runner, Tool: cfg.Samtools, Threads: cfg.Threads},
			Logger: logger,
		}
	}
	return c
}

func (c *Coordinator) logger() *slog.Logger {
	return utils.OrDefault(c.Logger)
}

// Replicates lists the replicate directories directly under input.
func Replicates(input string) ([]string, error) {
	entries, err := os.ReadDir(input)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", input)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Run processes every replicate under input. The only error it returns is
// one that stops the whole run, an index build failure or an unreadable
// input folder; everything else is recorded in the report.
func (c *Coordinator) Run(input string) (*RunReport, error) {
	if err := os.MkdirAll(c.Output, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating output directory %s", c.Output)
	}
	if err := c.Index.EnsureIndex(c.Reference, c.IndexPrefix); err != nil {
		return nil, err
	}
	names, err := Replicates(input)
	if err != nil {
		return nil, err
	}
	// an output folder placed inside the input is not a replicate
	names = lo.Reject(names, func(name string, _ int) bool {
		return samePath(filepath.Join(input, name), c.Output)
	})
	fmt.Printf("Processing %d replicate(s), %d at a time ...\n\n", len(names), max(c.Jobs, 1))

	rep := &RunReport{Replicates: make([]*ReplicateResult, len(names))}
	var g errgroup.Group
	g.SetLimit(max(c.Jobs, 1))
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			rep.Replicates[i] = c.Replicate(name, filepath.Join(input, name))
			return nil
		})
	}
	g.Wait()
	rep.sort()
	return rep, nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// Replicate takes one replicate directory from Pending to Done or Partial.
func (c *Coordinator) Replicate(name, dir string) *ReplicateResult {
	res := &ReplicateResult{Name: name, Dir: dir, State: Pending}
	if c.Previous != nil && utils.StageHasCompleted(c.Previous, Program, name, utils.AllFiles) {
		res.State = Skipped
		utils.Stage(c.Logger, Program, name, utils.AllFiles, utils.StatusSkipped, "REASON", "completed in an earlier run")
		return res
	}
	utils.Stage(c.Logger, Program, name, utils.AllFiles, utils.StatusStarted)

	// ---- Grouping ---- //
	res.State = Grouping
	classes, err := reads.Classify(dir, c.Markers)
	if err != nil {
		res.fail(utils.AllFiles, StageClassify, err)
		return c.finish(res)
	}
	res.Groups = classes.Groups
	res.Unrecognized = classes.Skipped
	for _, u := range classes.Skipped {
		c.logger().Warn("skipping unrecognized read file", "REPLICATE", name, "FILE", filepath.Base(u.Path), "REASON", u.Reason)
	}
	for _, m := range classes.Missing {
		c.logger().Warn("skipping read file without mate", "REPLICATE", name, "FILE", filepath.Base(m.Path), "MATE", m.Mate)
		res.fail(filepath.Base(m.Path), StageClassify, m)
	}
	for _, d := range classes.Duplicates {
		c.logger().Warn("skipping read file with a taken output stem", "REPLICATE", name, "FILE", filepath.Base(d.Path), "STEM", d.Stem)
		res.fail(filepath.Base(d.Path), StageClassify, d)
	}
	if len(res.Groups) == 0 {
		c.logger().Warn("no read groups found", "REPLICATE", name, "DIR", dir)
		return c.finish(res)
	}

	targets, err := c.targets(name)
	if err != nil {
		res.fail(utils.AllFiles, StageAlign, err)
		return c.finish(res)
	}

	// ---- Aligning ---- //
	res.State = Aligning
	c.alignGroups(res, targets)

	// ---- Assembling ---- //
	res.State = Assembling
	if c.Assembler != nil && len(res.Parts) > 0 {
		art, err := c.Assembler.Merge(name, targets.SAMDir, res.Parts)
		if err != nil {
			stage := StageMerge
			var me *assembly.MergeError
			if errors.As(err, &me) {
				stage = me.Stage
			}
			res.fail(utils.AllFiles, stage, err)
		} else {
			res.Artifact = art
			c.stat(res)
		}
	}
	if c.CountReads {
		c.count(res)
	}
	return c.finish(res)
}

func (c *Coordinator) targets(name string) (alignment.Targets, error) {
	root := filepath.Join(c.Output, name)
	t := alignment.Targets{
		Replicate:   name,
		UnmappedDir: filepath.Join(root, "unmapped"),
		MappedDir:   filepath.Join(root, "mapped"),
	}
	dirs := []string{t.UnmappedDir, t.MappedDir}
	if c.Assembler != nil {
		t.SAMDir = filepath.Join(root, "samtools")
		dirs = append(dirs, t.SAMDir)
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0755); err != nil {
			return t, errors.Wrapf(err, "creating %s", d)
		}
	}
	return t, nil
}

// alignGroups aligns every group of res, converting each raw record as soon
// as its alignment finishes. A failing group is recorded and skipped.
func (c *Coordinator) alignGroups(res *ReplicateResult, t alignment.Targets) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(max(c.GroupJobs, 1))
	for _, group := range res.Groups {
		group := group
		g.Go(func() error {
			rec, err := c.Aligner.Align(group, c.IndexPrefix, t)
			if err != nil {
				mu.Lock()
				res.fail(group.Name(), StageAlign, err)
				mu.Unlock()
				return nil
			}
			var part string
			if c.Assembler != nil {
				part, err = c.Assembler.Convert(res.Name, rec)
			}
			mu.Lock()
			defer mu.Unlock()
			res.Records = append(res.Records, rec)
			if err != nil {
				res.fail(group.Name(), StageConvert, err)
			} else if part != "" {
				res.Parts = append(res.Parts, part)
			}
			return nil
		})
	}
	g.Wait()

	sort.Slice(res.Records, func(i, j int) bool { return res.Records[i].Stem < res.Records[j].Stem })
	res.Parts = lo.Uniq(res.Parts)
	sort.Strings(res.Parts)
	sort.Slice(res.Failures, func(i, j int) bool { return res.Failures[i].File < res.Failures[j].File })
}

func (c *Coordinator) stat(res *ReplicateResult) {
	st, err := assembly.Stat(res.Artifact.Path)
	if err != nil {
		c.logger().Warn("could not read artifact statistics", "REPLICATE", res.Name, "FILE", filepath.Base(res.Artifact.Path), "error", err)
		return
	}
	res.Stats = st
	top := st.Top(3)
	c.logger().Info("artifact statistics", "REPLICATE", res.Name, "RECORDS", st.Records, "MAPPED", st.Mapped, "TOP", top)
}

// count totals retained and contaminant reads. Both mate files of a pair
// hold one record per pair, so only the R1 file is counted.
func (c *Coordinator) count(res *ReplicateResult) {
	var retained, contaminant int
	for _, rec := range res.Records {
		n, err := report.CountFiles(firstMate(rec, rec.Unmapped))
		if err != nil {
			c.logger().Warn("could not count retained reads", "REPLICATE", res.Name, "FILE", rec.Group.Name(), "error", err)
			return
		}
		retained += n
		if n, err = report.CountFiles(firstMate(rec, rec.Mapped)); err != nil {
			c.logger().Warn("could not count contaminant reads", "REPLICATE", res.Name, "FILE", rec.Group.Name(), "error", err)
			return
		}
		contaminant += n
	}
	res.Retained, res.Contaminant, res.Counted = retained, contaminant, true
}

func firstMate(rec *alignment.AlignmentRecord, files []string) []string {
	if rec.Group.Kind == reads.Paired && len(files) > 1 {
		return files[:1]
	}
	return files
}

func (c *Coordinator) finish(res *ReplicateResult) *ReplicateResult {
	if len(res.Failures) > 0 {
		res.State = Partial
		utils.Stage(c.Logger, Program, res.Name, utils.AllFiles, utils.StatusPartial, "FAILURES", len(res.Failures))
		return res
	}
	res.State = Done
	utils.Stage(c.Logger, Program, res.Name, utils.AllFiles, utils.StatusCompleted)
	return res
}

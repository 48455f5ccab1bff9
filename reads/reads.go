// Package reads sorts the FASTQ files of a replicate directory into
// alignment groups using the marker tokens in their names.
package reads

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Kind is the alignment mode of a ReadGroup.
type Kind int

const (
	Unrecognized Kind = iota
	SingleEnd
	Paired
)

func (k Kind) String() string {
	switch k {
	case SingleEnd:
		return "single-end"
	case Paired:
		return "paired"
	}
	return "unrecognized"
}

// Markers are the filename tokens driving classification. A token matches
// only as a whole word between the separators _ . and -, so "merged" does
// not match "unmerged".
type Markers struct {
	Merged   string
	Unpaired string
	Unmerged string
	R1       string
	R2       string
}

// DefaultMarkers match names such as sample_merged.fastq.gz and
// sample_unmerged_R1_001.fastq.gz.
var DefaultMarkers = Markers{
	Merged:   "merged",
	Unpaired: "unpaired",
	Unmerged: "unmerged",
	R1:       "R1",
	R2:       "R2",
}

// ReadGroup is one unit of alignment work. R2 is only set for Paired groups.
type ReadGroup struct {
	Kind Kind
	R1   string
	R2   string
	// Stem names the outputs of the group.
	Stem string
}

// Name is the file name that identifies the group in logs.
func (g ReadGroup) Name() string {
	return filepath.Base(g.R1)
}

// Files lists the input files of the group.
func (g ReadGroup) Files() []string {
	if g.Kind == Paired {
		return []string{g.R1, g.R2}
	}
	return []string{g.R1}
}

// MissingMateError reports a paired file whose counterpart does not exist.
type MissingMateError struct {
	Path string
	// Mate is the path derived for the missing counterpart.
	Mate string
}

func (e *MissingMateError) Error() string {
	return fmt.Sprintf("mate of %s not found: %s does not exist", filepath.Base(e.Path), e.Mate)
}

// UnrecognizedError reports a read file no marker rule applies to.
type UnrecognizedError struct {
	Path   string
	Reason string
}

func (e *UnrecognizedError) Error() string {
	return fmt.Sprintf("skipping %s: %s", filepath.Base(e.Path), e.Reason)
}

// DuplicateStemError reports a group whose outputs would be written over
// those of an earlier group with the same stem, such as s_merged.fastq next
// to s_merged.fastq.gz.
type DuplicateStemError struct {
	Path string
	Stem string
	// Taken is the input of the group that keeps the stem.
	Taken string
}

func (e *DuplicateStemError) Error() string {
	return fmt.Sprintf("%s: output stem %q is already used by %s", filepath.Base(e.Path), e.Stem, filepath.Base(e.Taken))
}

// Classification is the outcome of classifying one directory.
type Classification struct {
	// Groups holds the SingleEnd and Paired groups ordered by Stem.
	Groups []ReadGroup
	// Missing holds the paired files that could not be grouped.
	Missing []*MissingMateError
	// Skipped holds the read files that matched no marker rule.
	Skipped []*UnrecognizedError
	// Duplicates holds the groups left out because their stem was taken.
	Duplicates []*DuplicateStemError
}

// IsFastq reports whether name has a FASTQ extension, compressed or not.
func IsFastq(name string) bool {
	name = strings.TrimSuffix(name, ".gz")
	return strings.HasSuffix(name, ".fastq") || strings.HasSuffix(name, ".fq")
}

// Stem is the file name up to its first dot.
func Stem(path string) string {
	base := filepath.Base(path)
	if i := strings.IndexByte(base, '.'); i > 0 {
		return base[:i]
	}
	return base
}

// Classify groups the FASTQ files directly inside dir. Other files are
// ignored. Each file is classified on its own, except that the R2 file of a
// pair is consumed by its R1's group.
func Classify(dir string, m Markers) (*Classification, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", dir)
	}
	present := make(map[string]bool)
	var names []string
	for _, e := range entries {
		if e.IsDir() || !IsFastq(e.Name()) {
			continue
		}
		present[e.Name()] = true
		names = append(names, e.Name())
	}

	c := &Classification{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		kind, reason := m.kind(name)
		switch kind {
		case SingleEnd:
			c.Groups = append(c.Groups, ReadGroup{Kind: SingleEnd, R1: path, Stem: Stem(name)})
		case Paired:
			if hasToken(name, m.R2) {
				// grouped from the R1 side; only report an orphan here
				r1, _ := replaceToken(name, m.R2, m.R1)
				if !present[r1] {
					c.Missing = append(c.Missing, &MissingMateError{Path: path, Mate: filepath.Join(dir, r1)})
				}
				continue
			}
			r2, _ := replaceToken(name, m.R1, m.R2)
			if !present[r2] {
				c.Missing = append(c.Missing, &MissingMateError{Path: path, Mate: filepath.Join(dir, r2)})
				continue
			}
			c.Groups = append(c.Groups, ReadGroup{
				Kind: Paired,
				R1:   path,
				R2:   filepath.Join(dir, r2),
				Stem: removeToken(Stem(name), m.R1),
			})
		default:
			c.Skipped = append(c.Skipped, &UnrecognizedError{Path: path, Reason: reason})
		}
	}
	c.Groups, c.Duplicates = uniqueStems(c.Groups)
	sort.Slice(c.Groups, func(i, j int) bool { return c.Groups[i].Stem < c.Groups[j].Stem })
	return c, nil
}

// uniqueStems keeps the first group of each stem, in directory order.
func uniqueStems(groups []ReadGroup) ([]ReadGroup, []*DuplicateStemError) {
	taken := make(map[string]string, len(groups))
	var kept []ReadGroup
	var dups []*DuplicateStemError
	for _, g := range groups {
		if first, ok := taken[g.Stem]; ok {
			dups = append(dups, &DuplicateStemError{Path: g.R1, Stem: g.Stem, Taken: first})
			continue
		}
		taken[g.Stem] = g.R1
		kept = append(kept, g)
	}
	return kept, dups
}

// ClassifyFile returns the kind a single file name is given, and for
// Unrecognized names the reason.
func ClassifyFile(name string, m Markers) (Kind, string) {
	return m.kind(filepath.Base(name))
}

func (m Markers) kind(name string) (Kind, string) {
	single := hasToken(name, m.Merged) || hasToken(name, m.Unpaired)
	paired := hasToken(name, m.Unmerged)
	switch {
	case single && paired:
		return Unrecognized, fmt.Sprintf("carries both single-end and %q markers", m.Unmerged)
	case single:
		return SingleEnd, ""
	case !paired:
		return Unrecognized, "no marker token"
	}
	r1, r2 := hasToken(name, m.R1), hasToken(name, m.R2)
	switch {
	case r1 && r2:
		return Unrecognized, fmt.Sprintf("carries both %q and %q", m.R1, m.R2)
	case !r1 && !r2:
		return Unrecognized, fmt.Sprintf("%q file without a mate token", m.Unmerged)
	}
	return Paired, ""
}

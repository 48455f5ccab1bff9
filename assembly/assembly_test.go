package assembly

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/gmaffy/rmcontam/alignment"
	"github.com/gmaffy/rmcontam/utils/runnertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cleanHeader = "@HD\tVN:1.0\tSO:unsorted\n@SQ\tSN:phiX174\tLN:5386\n"

// rawRecords writes one raw SAM per stem into dir.
func rawRecords(t *testing.T, dir, header string, stems ...string) []*alignment.AlignmentRecord {
	var recs []*alignment.AlignmentRecord
	for _, s := range stems {
		sam := filepath.Join(dir, s+"_mapped.sam")
		body := s + "\t0\tphiX174\t1\t42\t4M\t*\t0\t0\tACGT\tIIII\n"
		require.NoError(t, os.WriteFile(sam, []byte(header+body), 0644))
		recs = append(recs, &alignment.AlignmentRecord{Stem: s, SAM: sam})
	}
	return recs
}

func convertAll(t *testing.T, a *Assembler, recs []*alignment.AlignmentRecord) []string {
	var parts []string
	for _, r := range recs {
		p, err := a.Convert("rep1", r)
		require.NoError(t, err)
		parts = append(parts, p)
	}
	return parts
}

func newAssembler(f *runnertest.Fake) *Assembler {
	return &Assembler{Tools: &Samtools{Runner: f, Threads: 2}}
}

func TestConvert(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{}
	a := newAssembler(fake)
	rec := rawRecords(t, dir, cleanHeader, "s_merged")[0]

	out, err := a.Convert("rep1", rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "s_merged_mapped_out.bam"), out)
	assert.FileExists(t, out)
	assert.Equal(t, [][]string{{"samtools", "sort", "-@", "2", "-O", "BAM", "-o", out, rec.SAM}}, fake.Calls())
}

func TestConvertFailure(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{Before: func(args []string) error {
		return runnertest.Fail(args, 1, "[E::sam_parse1] truncated file")
	}}
	rec := rawRecords(t, dir, cleanHeader, "s")[0]

	_, err := newAssembler(fake).Convert("rep1", rec)
	var ce *ConvertError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, rec.SAM, ce.Raw)
	require.NotNil(t, ce.Cmd)
	assert.Equal(t, "samtools", ce.Cmd.Tool())

	_, err = newAssembler(fake).Convert("rep1", &alignment.AlignmentRecord{Stem: "x"})
	assert.ErrorAs(t, err, &ce)
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{}
	a := newAssembler(fake)
	parts := convertAll(t, a, rawRecords(t, dir, cleanHeader, "c", "a", "b"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stray_mapped.sam"), []byte(cleanHeader), 0644))

	art, err := a.Merge("rep1", dir, parts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "rep1_mapped.bam"), art.Path)
	assert.Equal(t, art.Path+".bai", art.Index)
	assert.Equal(t, 3, art.Parts)
	assert.False(t, art.Sanitized)
	assert.FileExists(t, art.Index)

	merge := fake.CallsTo("samtools", "merge")
	require.Len(t, merge, 1)
	sorted := append([]string(nil), parts...)
	sort.Strings(sorted)
	assert.Equal(t, append([]string{"samtools", "merge", "-f", "-@", "2", art.Path}, sorted...), merge[0])
	assert.Empty(t, fake.CallsTo("samtools", "reheader"))

	// only the artifact and its index remain
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"rep1_mapped.bam", "rep1_mapped.bam.bai"}, names)

	// header without violations is left as merged
	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), cleanHeader))
}

func TestMergeRepeatedPart(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{}
	a := newAssembler(fake)
	parts := convertAll(t, a, rawRecords(t, dir, cleanHeader, "a", "b"))

	art, err := a.Merge("rep1", dir, append(parts, parts[0]))
	require.NoError(t, err)
	assert.Equal(t, 2, art.Parts)
	merge := fake.CallsTo("samtools", "merge")
	require.Len(t, merge, 1)
	assert.Equal(t, append([]string{"samtools", "merge", "-f", "-@", "2", art.Path}, parts...), merge[0])
}

func TestMergeOrderIndependent(t *testing.T) {
	merged := func(order []string) string {
		dir := t.TempDir()
		a := newAssembler(&runnertest.Fake{})
		parts := convertAll(t, a, rawRecords(t, dir, cleanHeader, order...))
		art, err := a.Merge("rep", dir, parts)
		require.NoError(t, err)
		data, err := os.ReadFile(art.Path)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, merged([]string{"A", "B", "C"}), merged([]string{"C", "B", "A"}))
}

func TestMergeSanitizes(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{}
	a := newAssembler(fake)
	parts := convertAll(t, a, rawRecords(t, dir, runnertest.DefaultHeader, "x", "y"))

	art, err := a.Merge("rep1", dir, parts)
	require.NoError(t, err)
	assert.True(t, art.Sanitized)
	require.Len(t, fake.CallsTo("samtools", "reheader"), 1)

	data, err := os.ReadFile(art.Path)
	require.NoError(t, err)
	names := SequenceNames(data)
	assert.Equal(t, []string{"phiX174", "UniVeccore"}, names)
	assert.Equal(t, 2, strings.Count(string(data), "\tphiX174\t1\t"))
	assert.NoFileExists(t, art.Path+".header.sam")
	assert.NoFileExists(t, art.Path+".reheader.tmp")

	// index is built after the reheader
	calls := fake.Calls()
	last := calls[len(calls)-1]
	assert.Equal(t, []string{"samtools", "index", art.Path}, last)
}

func TestMergeFailureKeepsParts(t *testing.T) {
	dir := t.TempDir()
	fake := &runnertest.Fake{}
	a := newAssembler(fake)
	parts := convertAll(t, a, rawRecords(t, dir, cleanHeader, "a", "b"))
	fake.Before = func(args []string) error {
		if len(args) > 1 && args[1] == "index" {
			return runnertest.Fail(args, 1, "[E::hts_idx_push] unsorted positions")
		}
		return nil
	}

	_, err := a.Merge("rep1", dir, parts)
	var me *MergeError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "index", me.Stage)
	assert.Equal(t, "rep1", me.Replicate)
	for _, p := range parts {
		assert.FileExists(t, p)
	}

	_, err = a.Merge("rep1", dir, nil)
	require.ErrorAs(t, err, &me)
	assert.Equal(t, "merge", me.Stage)
}

func TestCleanup(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a_mapped.sam", "a_mapped_out.bam", "keep.bam", "rep_mapped.bam"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0644))
	}
	require.NoError(t, Cleanup(dir, []string{filepath.Join(dir, "gone_mapped_out.bam")}))
	assert.NoFileExists(t, filepath.Join(dir, "a_mapped.sam"))
	assert.NoFileExists(t, filepath.Join(dir, "a_mapped_out.bam"))
	assert.FileExists(t, filepath.Join(dir, "keep.bam"))
	assert.FileExists(t, filepath.Join(dir, "rep_mapped.bam"))
}

// Package report writes the run summary of a decontamination run: the
// per-replicate table, the failure table, a chart and contamination
// statistics.
package report

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"
)

// Replicate states as written to the summary.
const (
	StateDone    = "done"
	StatePartial = "partial"
	StateSkipped = "skipped"
)

// File names inside the output directory.
const (
	SummaryFile  = "summary.csv"
	FailuresFile = "failures.csv"
	ChartFile    = "summary.html"
)

// Row is the summary line of one replicate.
type Row struct {
	Replicate    string  `dataframe:"replicate"`
	State        string  `dataframe:"state"`
	Groups       int     `dataframe:"groups"`
	Aligned      int     `dataframe:"aligned"`
	Converted    int     `dataframe:"converted"`
	Failures     int     `dataframe:"failures"`
	Artifact     string  `dataframe:"artifact"`
	ReadsCounted bool    `dataframe:"counted"`
	Retained     int     `dataframe:"retained_reads"`
	Contaminant  int     `dataframe:"contaminant_reads"`
	Fraction     float64 `dataframe:"contaminant_fraction"`
	TopReference string  `dataframe:"top_reference"`
}

// Counted reports whether reads were counted for the row. A counted
// replicate may hold zero reads.
func (r Row) Counted() bool {
	return r.ReadsCounted
}

// SetCounts fills the read counts and the contaminant fraction. Paired reads
// count once per pair.
func (r *Row) SetCounts(retained, contaminant int) {
	r.ReadsCounted = true
	r.Retained, r.Contaminant = retained, contaminant
	if total := retained + contaminant; total > 0 {
		r.Fraction = float64(contaminant) / float64(total)
	}
}

// FailureRow records one skipped file or failed stage.
type FailureRow struct {
	Replicate  string `dataframe:"replicate"`
	File       string `dataframe:"file"`
	Stage      string `dataframe:"stage"`
	Tool       string `dataframe:"tool"`
	ExitStatus int    `dataframe:"exit_status"`
	Message    string `dataframe:"message"`
}

var (
	summaryColumns  = []string{"replicate", "state", "groups", "aligned", "converted", "failures", "artifact", "counted", "retained_reads", "contaminant_reads", "contaminant_fraction", "top_reference"}
	failuresColumns = []string{"replicate", "file", "stage", "tool", "exit_status", "message"}
)

// WriteSummary writes rows as CSV to path.
func WriteSummary(path string, rows []Row) error {
	df := emptyFrame(summaryColumns)
	if len(rows) > 0 {
		df = dataframe.LoadStructs(rows)
	}
	return writeFrame(path, df)
}

// WriteFailures writes rows as CSV to path. A run without failures still
// gets the header line.
func WriteFailures(path string, rows []FailureRow) error {
	df := emptyFrame(failuresColumns)
	if len(rows) > 0 {
		df = dataframe.LoadStructs(rows)
	}
	return writeFrame(path, df)
}

func emptyFrame(cols []string) dataframe.DataFrame {
	ss := make([]series.Series, len(cols))
	for i, c := range cols {
		ss[i] = series.New([]string{}, series.String, c)
	}
	return dataframe.New(ss...)
}

func writeFrame(path string, df dataframe.DataFrame) error {
	if df.Err != nil {
		return errors.Wrap(df.Err, "building table")
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := df.WriteCSV(f); err != nil {
		f.Close()
		return errors.Wrapf(err, "writing %s", path)
	}
	return f.Close()
}

// ReadSummary loads a summary written by WriteSummary.
func ReadSummary(path string) ([]Row, error) {
	df, err := readFrame(path)
	if err != nil {
		return nil, err
	}
	return rowsOf(df)
}

// PartialReplicates returns the rows of the summary at path whose replicate
// finished with skipped files.
func PartialReplicates(path string) ([]Row, error) {
	df, err := readFrame(path)
	if err != nil {
		return nil, err
	}
	if df.Nrow() == 0 {
		return nil, nil
	}
	partial := df.Filter(dataframe.F{Colname: "state", Comparator: series.Eq, Comparando: StatePartial})
	return rowsOf(partial)
}

func readFrame(path string) (dataframe.DataFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return dataframe.DataFrame{}, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	df := dataframe.ReadCSV(f, dataframe.DetectTypes(false), dataframe.HasHeader(true))
	if df.Err != nil {
		return df, errors.Wrapf(df.Err, "reading %s", path)
	}
	for _, c := range summaryColumns {
		if !lo.Contains(df.Names(), c) {
			return df, errors.Errorf("%s has no %s column", path, c)
		}
	}
	return df, nil
}

func rowsOf(df dataframe.DataFrame) ([]Row, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	var rows []Row
	for _, m := range df.Maps() {
		s := func(k string) string {
			v, _ := m[k].(string)
			return v
		}
		var r Row
		var err error
		r.Replicate, r.State, r.Artifact, r.TopReference = s("replicate"), s("state"), s("artifact"), s("top_reference")
		ints := []struct {
			col string
			dst *int
		}{
			{"groups", &r.Groups}, {"aligned", &r.Aligned}, {"converted", &r.Converted},
			{"failures", &r.Failures}, {"retained_reads", &r.Retained}, {"contaminant_reads", &r.Contaminant},
		}
		for _, f := range ints {
			if *f.dst, err = strconv.Atoi(s(f.col)); err != nil {
				return nil, errors.Wrapf(err, "replicate %s: column %s", r.Replicate, f.col)
			}
		}
		if r.ReadsCounted, err = strconv.ParseBool(s("counted")); err != nil {
			return nil, errors.Wrapf(err, "replicate %s: column counted", r.Replicate)
		}
		if r.Fraction, err = strconv.ParseFloat(s("contaminant_fraction"), 64); err != nil {
			return nil, errors.Wrapf(err, "replicate %s: column contaminant_fraction", r.Replicate)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

// Contamination is the spread of the contaminant fraction over replicates.
type Contamination struct {
	N      int
	Mean   float64
	StdDev float64
}

// ContaminationStats summarises the contaminant fraction of the rows that
// have read counts.
func ContaminationStats(rows []Row) Contamination {
	fractions := lo.FilterMap(rows, func(r Row, _ int) (float64, bool) {
		return r.Fraction, r.Counted()
	})
	c := Contamination{N: len(fractions)}
	switch len(fractions) {
	case 0:
	case 1:
		c.Mean = fractions[0]
	default:
		c.Mean, c.StdDev = stat.MeanStdDev(fractions, nil)
	}
	return c
}

// Print writes a human readable run summary.
func Print(w io.Writer, rows []Row, failures []FailureRow) {
	fmt.Fprintf(w, "\n================================ RUN SUMMARY ================================\n\n")
	for _, r := range rows {
		fmt.Fprintf(w, "%-24s %-8s groups=%d aligned=%d failures=%d", r.Replicate, r.State, r.Groups, r.Aligned, r.Failures)
		if r.Artifact != "" {
			fmt.Fprintf(w, " artifact=%s", filepath.Base(r.Artifact))
		}
		if r.Counted() {
			fmt.Fprintf(w, " contaminant=%.2f%%", 100*r.Fraction)
		}
		fmt.Fprintln(w)
	}
	done := lo.CountBy(rows, func(r Row) bool { return r.State == StateDone })
	partial := lo.CountBy(rows, func(r Row) bool { return r.State == StatePartial })
	fmt.Fprintf(w, "\n%d replicate(s) complete, %d partial\n", done, partial)

	if c := ContaminationStats(rows); c.N > 0 && !math.IsNaN(c.Mean) {
		fmt.Fprintf(w, "Contaminant fraction over %d replicate(s): %.2f%% ± %.2f%%\n", c.N, 100*c.Mean, 100*c.StdDev)
	}
	for _, f := range failures {
		fmt.Fprintf(w, "  skipped %s/%s at %s", f.Replicate, f.File, f.Stage)
		if f.Tool != "" {
			fmt.Fprintf(w, " (%s exit %d)", f.Tool, f.ExitStatus)
		}
		fmt.Fprintf(w, ": %s\n", f.Message)
	}
}

package alignment

import (
	"regexp"
	"strconv"
)

// Summary is the alignment summary bowtie2 prints on stderr.
type Summary struct {
	Reads int
	// OverallRate is the percentage of reads that aligned at least once,
	// the contaminant fraction.
	OverallRate float64
	Parsed      bool
}

var (
	readsLine = regexp.MustCompile(`(?m)^(\d+) reads; of these:`)
	rateLine  = regexp.MustCompile(`(?m)^([0-9.]+)% overall alignment rate`)
)

// ParseSummary extracts the read count and overall alignment rate from
// bowtie2's stderr. Missing lines leave Parsed false.
func ParseSummary(stderr string) Summary {
	var s Summary
	m := readsLine.FindStringSubmatch(stderr)
	r := rateLine.FindStringSubmatch(stderr)
	if m == nil || r == nil {
		return s
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return s
	}
	rate, err := strconv.ParseFloat(r[1], 64)
	if err != nil {
		return s
	}
	return Summary{Reads: n, OverallRate: rate, Parsed: true}
}

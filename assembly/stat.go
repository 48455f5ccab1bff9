package assembly

import (
	"io"
	"os"
	"sort"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/pkg/errors"
)

// ArtifactStats summarises the records of a replicate artifact.
type ArtifactStats struct {
	Records      int
	Mapped       int
	PerReference map[string]int
}

// RefCount is the number of primary mapped records on one reference.
type RefCount struct {
	Name  string
	Count int
}

// Stat reads the BAM at path and counts primary mapped records per
// reference sequence.
func Stat(path string) (*ArtifactStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	br, err := bam.NewReader(f, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "reading BAM header of %s", path)
	}
	defer br.Close()

	st := &ArtifactStats{PerReference: make(map[string]int)}
	for {
		rec, err := br.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return st, errors.Wrapf(err, "reading record %d of %s", st.Records+1, path)
		}
		st.Records++
		if rec.Flags&(sam.Unmapped|sam.Secondary|sam.Supplementary) != 0 || rec.Ref == nil {
			continue
		}
		st.Mapped++
		st.PerReference[rec.Ref.Name()]++
	}
	return st, nil
}

// Top returns the n references with the most records, most hit first.
// Ties are broken by name.
func (s *ArtifactStats) Top(n int) []RefCount {
	counts := make([]RefCount, 0, len(s.PerReference))
	for name, c := range s.PerReference {
		counts = append(counts, RefCount{Name: name, Count: c})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Name < counts[j].Name
	})
	if n >= 0 && n < len(counts) {
		counts = counts[:n]
	}
	return counts
}

package report

import (
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fastq"
	"github.com/biogo/biogo/seq/linear"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// CountReads returns the number of records in a FASTQ file, gzipped or not.
func CountReads(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return 0, errors.Wrapf(err, "opening gzipped %s", path)
		}
		defer gz.Close()
		r = gz
	}

	n := 0
	sc := seqio.NewScanner(fastq.NewReader(r, linear.NewQSeq("", nil, alphabet.DNAredundant, alphabet.Sanger)))
	for sc.Next() {
		n++
	}
	if err := sc.Error(); err != nil {
		return n, errors.Wrapf(err, "reading %s", path)
	}
	return n, nil
}

// CountFiles sums CountReads over paths.
func CountFiles(paths []string) (int, error) {
	total := 0
	for _, p := range paths {
		n, err := CountReads(p)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

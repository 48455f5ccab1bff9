package index

import (
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
	"github.com/gmaffy/rmcontam/assembly"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
)

// Reference summarises a contaminant FASTA.
type Reference struct {
	Path      string
	Sequences int
	Bases     int
	// Unsafe maps sequence names the alignment header format rejects to
	// the names they will be sanitized to.
	Unsafe map[string]string
}

// InspectReference reads the FASTA at path.
func InspectReference(path string) (*Reference, error) {
	fna, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening reference")
	}
	defer fna.Close()

	var reader io.Reader = fna
	if strings.HasSuffix(path, ".gz") {
		gzReader, err := gzip.NewReader(fna)
		if err != nil {
			return nil, errors.Wrap(err, "opening gzipped reference")
		}
		defer gzReader.Close()
		reader = gzReader
	}

	ref := &Reference{Path: path, Unsafe: map[string]string{}}
	sc := seqio.NewScanner(fasta.NewReader(reader, linear.NewSeq("", nil, alphabet.DNAredundant)))
	for sc.Next() {
		s := sc.Seq().(*linear.Seq)
		ref.Sequences++
		ref.Bases += s.Len()
		if clean, changed := assembly.SanitizeName(s.ID); changed {
			ref.Unsafe[s.ID] = clean
		}
	}
	if err := sc.Error(); err != nil {
		return nil, errors.Wrapf(err, "reading reference %s", path)
	}
	if ref.Sequences == 0 {
		return nil, errors.Errorf("reference %s holds no sequences", path)
	}
	return ref, nil
}

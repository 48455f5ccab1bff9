package alignment

import (
	"os/exec"

	"github.com/biogo/external"
	"github.com/pkg/errors"
)

var ErrMissingRequired = errors.New("bowtie2: missing required argument")

// Bowtie2 defines the parameters of a bowtie2 invocation. Either Unpaired
// or both mates must be set.
type Bowtie2 struct {
	Cmd     string `buildarg:"{{if .}}{{.}}{{else}}bowtie2{{end}}"`
	Threads int    `buildarg:"{{if .}}-p{{split}}{{.}}{{end}}"`
	Index   string `buildarg:"{{if .}}-x{{split}}{{.}}{{end}}"`

	// Input files:
	Unpaired string `buildarg:"{{if .}}-U{{split}}{{.}}{{end}}"`
	Mate1    string `buildarg:"{{if .}}-1{{split}}{{.}}{{end}}"`
	Mate2    string `buildarg:"{{if .}}-2{{split}}{{.}}{{end}}"`

	// Output files:
	SAM    string `buildarg:"{{if .}}-S{{split}}{{.}}{{end}}"`
	NoUnal bool   `buildarg:"{{if .}}--no-unal{{end}}"` // keep unaligned reads out of SAM

	Unaligned        string `buildarg:"{{if .}}--un-gz{{split}}{{.}}{{end}}"`
	Aligned          string `buildarg:"{{if .}}--al-gz{{split}}{{.}}{{end}}"`
	UnalignedConcord string `buildarg:"{{if .}}--un-conc-gz{{split}}{{.}}{{end}}"` // % is replaced by the mate number
	AlignedConcord   string `buildarg:"{{if .}}--al-conc-gz{{split}}{{.}}{{end}}"`

	Extra []string `buildarg:"{{range $i, $a := .}}{{if $i}}{{split}}{{end}}{{$a}}{{end}}"`
}

// BuildCommand returns an exec.Cmd built from the parameters in b.
func (b Bowtie2) BuildCommand() (*exec.Cmd, error) {
	paired := b.Mate1 != "" && b.Mate2 != ""
	if b.Index == "" || (b.Unpaired == "") == !paired {
		return nil, ErrMissingRequired
	}
	if (b.Mate1 == "") != (b.Mate2 == "") {
		return nil, ErrMissingRequired
	}
	cl := external.Must(external.Build(b))
	return exec.Command(cl[0], cl[1:]...), nil
}

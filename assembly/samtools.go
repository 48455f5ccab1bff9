package assembly

import (
	"os/exec"

	"github.com/biogo/external"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/pkg/errors"
)

var ErrMissingRequired = errors.New("samtools: missing required argument")

// Sort defines a samtools sort invocation writing BAM.
type Sort struct {
	Cmd     string `buildarg:"{{if .}}{{.}}{{else}}samtools{{end}}{{split}}sort"`
	Threads int    `buildarg:"{{if .}}-@{{split}}{{.}}{{end}}"`
	Format  string `buildarg:"{{if .}}-O{{split}}{{.}}{{end}}"`
	Output  string `buildarg:"{{if .}}-o{{split}}{{.}}{{end}}"`
	Input   string `buildarg:"{{.}}"`
}

func (s Sort) BuildCommand() (*exec.Cmd, error) {
	if s.Input == "" || s.Output == "" {
		return nil, ErrMissingRequired
	}
	return command(s)
}

// Merge defines a samtools merge invocation.
type Merge struct {
	Cmd     string   `buildarg:"{{if .}}{{.}}{{else}}samtools{{end}}{{split}}merge"`
	Force   bool     `buildarg:"{{if .}}-f{{end}}"`
	Threads int      `buildarg:"{{if .}}-@{{split}}{{.}}{{end}}"`
	Output  string   `buildarg:"{{.}}"`
	Inputs  []string `buildarg:"{{range $i, $in := .}}{{if $i}}{{split}}{{end}}{{$in}}{{end}}"`
}

func (m Merge) BuildCommand() (*exec.Cmd, error) {
	if m.Output == "" || len(m.Inputs) == 0 {
		return nil, ErrMissingRequired
	}
	return command(m)
}

// Index defines a samtools index invocation.
type Index struct {
	Cmd   string `buildarg:"{{if .}}{{.}}{{else}}samtools{{end}}{{split}}index"`
	Input string `buildarg:"{{.}}"`
}

func (i Index) BuildCommand() (*exec.Cmd, error) {
	if i.Input == "" {
		return nil, ErrMissingRequired
	}
	return command(i)
}

// ViewHeader prints the text header of an alignment file.
type ViewHeader struct {
	Cmd   string `buildarg:"{{if .}}{{.}}{{else}}samtools{{end}}{{split}}view{{split}}-H"`
	Input string `buildarg:"{{.}}"`
}

func (v ViewHeader) BuildCommand() (*exec.Cmd, error) {
	if v.Input == "" {
		return nil, ErrMissingRequired
	}
	return command(v)
}

// Reheader writes Input with its header replaced by the SAM text in Header
// to stdout.
type Reheader struct {
	Cmd    string `buildarg:"{{if .}}{{.}}{{else}}samtools{{end}}{{split}}reheader"`
	Header string `buildarg:"{{.}}"`
	Input  string `buildarg:"{{.}}"`
}

func (r Reheader) BuildCommand() (*exec.Cmd, error) {
	if r.Header == "" || r.Input == "" {
		return nil, ErrMissingRequired
	}
	return command(r)
}

func command(b external.CommandBuilder) (*exec.Cmd, error) {
	cl, err := external.Build(b)
	if err != nil {
		return nil, err
	}
	return exec.Command(cl[0], cl[1:]...), nil
}

// Samtools runs the toolkit operations the assembler needs.
type Samtools struct {
	Runner  utils.Runner
	Tool    string
	Threads int
}

// Sort converts a raw alignment record into a coordinate sorted BAM.
func (s *Samtools) Sort(in, out string) error {
	_, err := s.Runner.Run(Sort{Cmd: s.Tool, Threads: s.Threads, Format: "BAM", Output: out, Input: in})
	return err
}

// Merge combines sorted BAMs into out, overwriting it.
func (s *Samtools) Merge(out string, in []string) error {
	_, err := s.Runner.Run(Merge{Cmd: s.Tool, Force: true, Threads: s.Threads, Output: out, Inputs: in})
	return err
}

// Index builds the .bai next to a sorted BAM.
func (s *Samtools) Index(path string) error {
	_, err := s.Runner.Run(Index{Cmd: s.Tool, Input: path})
	return err
}

// Header returns the SAM text header of path.
func (s *Samtools) Header(path string) ([]byte, error) {
	res, err := s.Runner.Run(ViewHeader{Cmd: s.Tool, Input: path})
	if err != nil {
		return nil, err
	}
	return res.Stdout, nil
}

// Reheader writes in with header applied to out.
func (s *Samtools) Reheader(header, in, out string) error {
	_, err := s.Runner.RunTo(Reheader{Cmd: s.Tool, Header: header, Input: in}, out)
	return err
}

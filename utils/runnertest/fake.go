// Package runnertest provides a utils.Runner that emulates bowtie2-build,
// bowtie2 and samtools on small text files, for tests.
package runnertest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/biogo/external"
	"github.com/gmaffy/rmcontam/utils"
	"github.com/klauspost/compress/gzip"
)

// DefaultHeader is the header the emulated aligner writes into raw records.
const DefaultHeader = "@HD\tVN:1.0\tSO:unsorted\n" +
	"@SQ\tSN:phiX174\tLN:5386\n" +
	"@SQ\tSN:UniVec(core)\tLN:1200\n" +
	"@PG\tID:bowtie2\tPN:bowtie2\tVN:2.5.1\n"

// Handler decides the outcome of one invocation. Returning nil falls
// through to the emulated tool.
type Handler func(args []string) error

// Fake records calls and emulates the tools. It is safe for concurrent use.
type Fake struct {
	// Header overrides DefaultHeader for emulated raw records.
	Header string
	// Before runs ahead of emulation and may fail the call.
	Before Handler

	mu    sync.Mutex
	calls [][]string
}

func (f *Fake) Run(b external.CommandBuilder) (*utils.Result, error) {
	return f.run(b, "")
}

func (f *Fake) RunTo(b external.CommandBuilder, path string) (*utils.Result, error) {
	return f.run(b, path)
}

func (f *Fake) run(b external.CommandBuilder, stdoutPath string) (*utils.Result, error) {
	cmd, err := b.BuildCommand()
	if err != nil {
		return nil, err
	}
	args := cmd.Args
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.Before != nil {
		if err := f.Before(args); err != nil {
			return &utils.Result{Args: args}, err
		}
	}
	stdout, err := f.emulate(args)
	if err != nil {
		return &utils.Result{Args: args}, err
	}
	if stdoutPath != "" {
		if err := os.WriteFile(stdoutPath, stdout, 0644); err != nil {
			return nil, err
		}
		stdout = nil
	}
	return &utils.Result{Args: args, Stdout: stdout, Stderr: []byte("ok\n")}, nil
}

// Calls returns every recorded argument vector.
func (f *Fake) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// CallsTo returns the calls whose executable and, if given, sub-command match.
func (f *Fake) CallsTo(tool string, sub ...string) [][]string {
	var out [][]string
	for _, c := range f.Calls() {
		if filepath.Base(c[0]) != tool {
			continue
		}
		if len(sub) > 0 && (len(c) < 2 || c[1] != sub[0]) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// Fail builds the error a tool exiting with code would produce.
func Fail(args []string, code int, stderr string) error {
	return &utils.CmdError{
		Args:     args,
		ExitCode: code,
		Stderr:   stderr,
		Err:      fmt.Errorf("exit status %d", code),
	}
}

// Has reports whether any argument contains s.
func Has(args []string, s string) bool {
	for _, a := range args {
		if strings.Contains(a, s) {
			return true
		}
	}
	return false
}

func (f *Fake) emulate(args []string) ([]byte, error) {
	switch filepath.Base(args[0]) {
	case "bowtie2-build":
		prefix := args[len(args)-1]
		for _, s := range []string{".1.bt2", ".2.bt2", ".3.bt2", ".4.bt2", ".rev.1.bt2", ".rev.2.bt2"} {
			if err := os.WriteFile(prefix+s, []byte("index"), 0644); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "bowtie2":
		return nil, f.bowtie2(args)
	case "samtools":
		return samtools(args)
	}
	return nil, Fail(args, 127, "command not found")
}

var switches = map[string]bool{"-f": true, "-H": true, "--no-unal": true, "--quiet": true, "-q": true}

func flagValues(args []string) (map[string]string, []string) {
	vals := map[string]string{}
	var pos []string
	for i := 1; i < len(args); i++ {
		a := args[i]
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			if !switches[a] && i+1 < len(args) {
				vals[a] = args[i+1]
				i++
			} else {
				vals[a] = ""
			}
			continue
		}
		pos = append(pos, a)
	}
	return vals, pos
}

func (f *Fake) bowtie2(args []string) error {
	vals, _ := flagValues(args)
	header := f.Header
	if header == "" {
		header = DefaultHeader
	}
	var inputs []string
	for _, k := range []string{"-U", "-1", "-2"} {
		if v, ok := vals[k]; ok {
			inputs = append(inputs, v)
		}
	}
	for _, in := range inputs {
		if _, err := os.Stat(in); err != nil {
			return Fail(args, 1, "Error: could not open "+in)
		}
	}
	if sam, ok := vals["-S"]; ok {
		body := fmt.Sprintf("%s\t0\tphiX174\t1\t42\t4M\t*\t0\t0\tACGT\tIIII\n", filepath.Base(inputs[0]))
		if err := os.WriteFile(sam, []byte(header+body), 0644); err != nil {
			return err
		}
	}
	for _, k := range []string{"--un-gz", "--al-gz"} {
		if v, ok := vals[k]; ok {
			if err := writeFastqGz(v, 2); err != nil {
				return err
			}
		}
	}
	for _, k := range []string{"--un-conc-gz", "--al-conc-gz"} {
		if v, ok := vals[k]; ok {
			for _, mate := range []string{"1", "2"} {
				if err := writeFastqGz(strings.Replace(v, "%", mate, 1), 1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeFastqGz(path string, n int) error {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	for i := 0; i < n; i++ {
		fmt.Fprintf(zw, "@read%d\nACGT\n+\nIIII\n", i)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0644)
}

// samtools emulation treats "BAM" files as SAM text.
func samtools(args []string) ([]byte, error) {
	if len(args) < 2 {
		return nil, Fail(args, 1, "missing sub-command")
	}
	vals, pos := flagValues(args[1:])
	switch args[1] {
	case "sort":
		data, err := os.ReadFile(pos[len(pos)-1])
		if err != nil {
			return nil, Fail(args, 1, err.Error())
		}
		return nil, os.WriteFile(vals["-o"], sortBody(data), 0644)
	case "merge":
		out, inputs := pos[0], pos[1:]
		var header []byte
		var body []string
		for i, in := range inputs {
			data, err := os.ReadFile(in)
			if err != nil {
				return nil, Fail(args, 1, err.Error())
			}
			h, b := split(data)
			if i == 0 {
				header = h
			}
			body = append(body, b...)
		}
		sort.Strings(body)
		return nil, os.WriteFile(out, append(header, []byte(strings.Join(body, ""))...), 0644)
	case "index":
		in := pos[len(pos)-1]
		if _, err := os.Stat(in); err != nil {
			return nil, Fail(args, 1, err.Error())
		}
		return nil, os.WriteFile(in+".bai", []byte("bai"), 0644)
	case "view":
		data, err := os.ReadFile(pos[len(pos)-1])
		if err != nil {
			return nil, Fail(args, 1, err.Error())
		}
		h, _ := split(data)
		return h, nil
	case "reheader":
		hdr, err := os.ReadFile(pos[0])
		if err != nil {
			return nil, Fail(args, 1, err.Error())
		}
		data, err := os.ReadFile(pos[1])
		if err != nil {
			return nil, Fail(args, 1, err.Error())
		}
		_, body := split(data)
		return append(hdr, []byte(strings.Join(body, ""))...), nil
	}
	return nil, Fail(args, 1, "unknown sub-command "+args[1])
}

func split(data []byte) ([]byte, []string) {
	var header []byte
	var body []string
	for _, line := range strings.SplitAfter(string(data), "\n") {
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "@") {
			header = append(header, line...)
			continue
		}
		body = append(body, line)
	}
	return header, body
}

func sortBody(data []byte) []byte {
	h, b := split(data)
	sort.Strings(b)
	return append(h, []byte(strings.Join(b, ""))...)
}

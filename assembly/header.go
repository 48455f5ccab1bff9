package assembly

import (
	"bytes"

	"github.com/pkg/errors"
)

// nameSymbols are the punctuation characters accepted in sequence names,
// besides ASCII letters and digits.
const nameSymbols = "!#$%&*+./:;=?@^_|~-"

// ValidNameChar reports whether c may appear in a header sequence name.
func ValidNameChar(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return bytes.IndexByte([]byte(nameSymbols), c) >= 0
}

// SanitizeName strips the characters ValidNameChar rejects.
func SanitizeName(name string) (string, bool) {
	clean := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if ValidNameChar(name[i]) {
			clean = append(clean, name[i])
		}
	}
	if len(clean) == len(name) {
		return name, false
	}
	return string(clean), true
}

var (
	sqTag = []byte("@SQ\t")
	snTag = []byte("SN:")
)

// SanitizeHeader strips disallowed characters from the SN values of @SQ
// lines in a SAM text header. Everything else is kept byte for byte. When
// no name needs changing the input slice is returned with changed false.
func SanitizeHeader(text []byte) (out []byte, changed bool, err error) {
	lines := bytes.SplitAfter(text, []byte("\n"))
	seen := make(map[string]bool)
	var collision string
	var buf bytes.Buffer
	buf.Grow(len(text))
	for _, line := range lines {
		if !bytes.HasPrefix(line, sqTag) {
			buf.Write(line)
			continue
		}
		body := bytes.TrimRight(line, "\r\n")
		eol := line[len(body):]
		fields := bytes.Split(body, []byte("\t"))
		for i, f := range fields {
			if !bytes.HasPrefix(f, snTag) {
				continue
			}
			name, c := SanitizeName(string(f[len(snTag):]))
			if c && name == "" {
				return nil, false, errors.Errorf("sequence name %q has no valid characters", f[len(snTag):])
			}
			if seen[name] && collision == "" {
				collision = name
			}
			seen[name] = true
			if c {
				changed = true
				fields[i] = append(append([]byte(nil), snTag...), name...)
			}
		}
		buf.Write(bytes.Join(fields, []byte("\t")))
		buf.Write(eol)
	}
	if !changed {
		return text, false, nil
	}
	if collision != "" {
		return nil, false, errors.Errorf("sanitized sequence name %q is not unique", collision)
	}
	return buf.Bytes(), true, nil
}

// SequenceNames returns the SN values of the @SQ lines in a SAM text header.
func SequenceNames(text []byte) []string {
	var names []string
	for _, line := range bytes.Split(text, []byte("\n")) {
		if !bytes.HasPrefix(line, sqTag) {
			continue
		}
		for _, f := range bytes.Split(bytes.TrimRight(line, "\r"), []byte("\t")) {
			if bytes.HasPrefix(f, snTag) {
				names = append(names, string(f[len(snTag):]))
			}
		}
	}
	return names
}

package reads

import "strings"

func isSep(c byte) bool {
	return c == '_' || c == '.' || c == '-'
}

// tokenAt returns the start of the first whole-word occurrence of tok in
// name, or -1.
func tokenAt(name, tok string) int {
	if tok == "" {
		return -1
	}
	for from := 0; from <= len(name)-len(tok); {
		i := strings.Index(name[from:], tok)
		if i < 0 {
			return -1
		}
		i += from
		end := i + len(tok)
		if (i == 0 || isSep(name[i-1])) && (end == len(name) || isSep(name[end])) {
			return i
		}
		from = i + 1
	}
	return -1
}

func hasToken(name, tok string) bool {
	return tokenAt(name, tok) >= 0
}

// replaceToken substitutes the first whole-word occurrence of from.
func replaceToken(name, from, to string) (string, bool) {
	i := tokenAt(name, from)
	if i < 0 {
		return name, false
	}
	return name[:i] + to + name[i+len(from):], true
}

// removeToken drops the first whole-word occurrence of tok together with
// one separator next to it.
func removeToken(name, tok string) string {
	i := tokenAt(name, tok)
	if i < 0 {
		return name
	}
	end := i + len(tok)
	switch {
	case i > 0:
		i--
	case end < len(name):
		end++
	}
	return name[:i] + name[end:]
}

package utils

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"v.io/x/lib/lookpath"
)

// CheckDeps makes sure every tool resolves to an executable on PATH.
// Tools given as paths are checked directly.
func CheckDeps(tools ...string) error {
	env := map[string]string{"PATH": os.Getenv("PATH")}
	var missing []string
	for _, tool := range tools {
		if strings.ContainsRune(tool, os.PathSeparator) {
			if info, err := os.Stat(tool); err != nil || info.IsDir() || info.Mode()&0111 == 0 {
				missing = append(missing, tool)
			}
			continue
		}
		if _, err := lookpath.Look(env, tool); err != nil {
			missing = append(missing, tool)
		}
	}
	if len(missing) > 0 {
		return errors.Errorf("not found on PATH: %s", strings.Join(missing, ", "))
	}
	return nil
}

// pkg/utils/paths.go - utility functions for working with file paths.

package utils

import (
	"os"
	"strings"
)

// ExpandPath resolves %VAR% style environment references in configured
// paths, so entries like %ProgramData%\App\cleanup.ps1 work as written.
func ExpandPath(path string) string {
	if !strings.Contains(path, "%") {
		return path
	}

	var out strings.Builder
	rest := path
	for {
		start := strings.Index(rest, "%")
		if start < 0 {
			out.WriteString(rest)
			break
		}
		end := strings.Index(rest[start+1:], "%")
		if end < 0 {
			out.WriteString(rest)
			break
		}
		out.WriteString(rest[:start])
		name := rest[start+1 : start+1+end]
		if val := os.Getenv(name); val != "" {
			out.WriteString(val)
		} else {
			// Leave unknown references untouched
			out.WriteString("%" + name + "%")
		}
		rest = rest[start+2+end:]
	}
	return out.String()
}

// ExpandPaths applies ExpandPath to every element of a slice.
func ExpandPaths(paths []string) []string {
	expanded := make([]string, len(paths))
	for i, p := range paths {
		expanded[i] = ExpandPath(p)
	}
	return expanded
}

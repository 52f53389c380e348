package hooks

import (
	"os"
	"path/filepath"
)

// projectMarker is the well-known subdirectory that marks a workspace
// root.
const projectMarker = ".claude"

// FindProjectRoot walks cwd upward until it finds a directory containing
// the marker subdirectory. It returns "" when no workspace encloses cwd.
func FindProjectRoot(cwd string) string {
	dir, err := filepath.Abs(cwd)
	if err != nil {
		return ""
	}
	for {
		marker := filepath.Join(dir, projectMarker)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

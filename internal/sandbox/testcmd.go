package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
)

var makefileTestTarget = regexp.MustCompile(`(?m)^test\s*:`)

// resolveTestCommand determines the test command for a checkout. An
// explicit command always wins; otherwise the tree is probed for common
// build files. Returns ok=false when nothing resolvable is found.
func resolveTestCommand(repoDir, explicit string) (string, bool) {
	if explicit != "" {
		return explicit, true
	}

	if data, err := os.ReadFile(filepath.Join(repoDir, "Makefile")); err == nil {
		if makefileTestTarget.Match(data) {
			return "make test", true
		}
	}
	if fileExists(filepath.Join(repoDir, "go.mod")) {
		return "go test ./...", true
	}
	if fileExists(filepath.Join(repoDir, "package.json")) {
		return "npm test", true
	}
	for _, marker := range []string{"pytest.ini", "setup.py", "pyproject.toml", "tox.ini"} {
		if fileExists(filepath.Join(repoDir, marker)) {
			return "python -m pytest", true
		}
	}

	return "", false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

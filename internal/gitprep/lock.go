package gitprep

import (
	"os"
	"path/filepath"
	"time"
)

const lockPollInterval = 100 * time.Millisecond

// lockPath keeps the lock inside .git when present so the working tree stays clean.
func lockPath(repo string) string {
	gitDir := filepath.Join(repo, ".git")
	if fi, err := os.Stat(gitDir); err == nil && fi.IsDir() {
		return filepath.Join(gitDir, "devwarm.lock")
	}
	return filepath.Join(repo, ".devwarm.lock")
}

//go:build unix

package gitprep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// RepoLock is an advisory lock on a repository path. It excludes other
// devwarm runs, in this process or another, from the same checkout.
type RepoLock struct {
	file *os.File
	path string
}

// AcquireLock blocks until the repository lock is held or ctx is done.
func AcquireLock(ctx context.Context, repo string) (*RepoLock, error) {
	path := lockPath(repo)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("gitprep: open lock %s: %w", path, err)
	}

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return &RepoLock{file: f, path: path}, nil
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			return nil, fmt.Errorf("gitprep: lock %s: %w", path, err)
		}

		select {
		case <-ctx.Done():
			_ = f.Close()
			return nil, fmt.Errorf("gitprep: waiting for lock on %s: %w", repo, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Path returns the lock file path.
func (l *RepoLock) Path() string { return l.path }

// Release drops the lock. It is safe to call on a nil lock.
func (l *RepoLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	unlockErr := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil
	return errors.Join(unlockErr, closeErr)
}

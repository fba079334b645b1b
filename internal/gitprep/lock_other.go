//go:build !unix

package gitprep

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

// Without flock the lock only excludes runs inside this process.
var (
	localLocksMu sync.Mutex
	localLocks   = make(map[string]*sync.Mutex)
)

// RepoLock is an advisory lock on a repository path.
type RepoLock struct {
	mu   *sync.Mutex
	path string
}

// AcquireLock blocks until the repository lock is held or ctx is done.
func AcquireLock(ctx context.Context, repo string) (*RepoLock, error) {
	path := lockPath(repo)
	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}

	localLocksMu.Lock()
	mu, ok := localLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		localLocks[key] = mu
	}
	localLocksMu.Unlock()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		if mu.TryLock() {
			return &RepoLock{mu: mu, path: path}, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("gitprep: waiting for lock on %s: %w", repo, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Path returns the lock path.
func (l *RepoLock) Path() string { return l.path }

// Release drops the lock. It is safe to call on a nil lock.
func (l *RepoLock) Release() error {
	if l == nil || l.mu == nil {
		return nil
	}
	l.mu.Unlock()
	l.mu = nil
	return nil
}

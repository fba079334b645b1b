package gitprep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAcquireLock_Exclusive(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	first, err := AcquireLock(context.Background(), repo)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	if _, err := AcquireLock(ctx, repo); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("second acquire error = %v, want deadline exceeded", err)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}

	second, err := AcquireLock(context.Background(), repo)
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestAcquireLock_InsideGitDir(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	l, err := AcquireLock(context.Background(), repo)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer func() { _ = l.Release() }()

	if want := filepath.Join(repo, ".git", "devwarm.lock"); l.Path() != want {
		t.Errorf("lock path = %q, want %q", l.Path(), want)
	}
}

func TestRepoLock_ReleaseNil(t *testing.T) {
	t.Parallel()

	var l *RepoLock
	if err := l.Release(); err != nil {
		t.Errorf("Release on nil lock = %v", err)
	}
}

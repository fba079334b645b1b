package warmup

import (
	"strings"
	"testing"
)

func TestTailBuffer(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(8)
	_, _ = b.Write([]byte("0123"))
	if got := string(b.Bytes()); got != "0123" {
		t.Fatalf("Bytes() = %q", got)
	}

	_, _ = b.Write([]byte("456789abc"))
	got := string(b.Bytes())
	if !strings.HasPrefix(got, "[output truncated]\n") {
		t.Errorf("missing truncation marker: %q", got)
	}
	if !strings.HasSuffix(got, "56789abc") {
		t.Errorf("tail = %q, want suffix %q", got, "56789abc")
	}
}

func TestResolveScript(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rel     string
		wantErr bool
	}{
		{"./dev-env-warmup.sh", false},
		{"scripts/warm.sh", false},
		{"scripts/../warm.sh", false},
		{"", true},
		{"../warm.sh", true},
		{"scripts/../../warm.sh", true},
		{"/usr/bin/env", true},
	}
	for _, tt := range tests {
		_, err := ResolveScript("/repo", tt.rel)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveScript(%q) error = %v, wantErr %v", tt.rel, err, tt.wantErr)
		}
	}
}

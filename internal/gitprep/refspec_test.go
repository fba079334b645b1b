package gitprep

import (
	"errors"
	"testing"
)

func TestValidateRefSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		spec  string
		valid bool
	}{
		{"refs/*:refs/*", true},
		{"refs/heads/*:refs/heads/*", true},
		{"+refs/heads/*:refs/remotes/origin/*", true},
		{"refs/heads/main:refs/heads/main", true},
		{"refs/heads/main", true},
		{"refs/tags/v1.*:refs/tags/v1.*", true},
		{"", false},
		{"+", false},
		{":refs/heads/x", false},
		{"refs/heads/*:", false},
		{"refs/heads/*:refs/heads/main", false},
		{"refs/heads/main:refs/heads/*", false},
		{"refs/**:refs/**", false},
		{"refs/heads/a..b:refs/heads/x", false},
		{"refs/heads/a b:refs/heads/x", false},
		{"refs/heads/x:refs/heads/y:refs/z", false},
		{"^refs/heads/tmp", false},
		{"refs/heads/x.lock:refs/heads/x.lock", false},
		{"refs//heads:refs//heads", false},
		{"refs/heads/~1:refs/heads/x", false},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			t.Parallel()
			err := ValidateRefSpec(tt.spec)
			if tt.valid && err != nil {
				t.Errorf("ValidateRefSpec(%q) = %v, want nil", tt.spec, err)
			}
			if !tt.valid {
				if err == nil {
					t.Errorf("ValidateRefSpec(%q) = nil, want error", tt.spec)
				} else if !errors.Is(err, ErrInvalidRefSpec) {
					t.Errorf("error %v should wrap ErrInvalidRefSpec", err)
				}
			}
		})
	}
}

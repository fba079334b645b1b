package job

import (
	"testing"
	"time"
)

func TestParseIDE(t *testing.T) {
	tests := []struct {
		in      string
		want    IDE
		wantErr bool
	}{
		{"fleet", IDEFleet, false},
		{"Fleet", IDEFleet, false},
		{"Ide.Fleet", IDEFleet, false},
		{"gateway", IDEGateway, false},
		{"IJGateway", IDEGateway, false},
		{"Ide.IJGateway", IDEGateway, false},
		{"vim", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDE(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseIDE(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseIDE(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDepth(t *testing.T) {
	tests := []struct {
		in      string
		want    Depth
		wantErr bool
	}{
		{"unlimited", Unlimited, false},
		{"UNLIMITED_DEPTH", Unlimited, false},
		{"1", 1, false},
		{" 50 ", 50, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"deep", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDepth(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDepth(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDepth(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDepth_String(t *testing.T) {
	if got := Unlimited.String(); got != "unlimited" {
		t.Errorf("Unlimited.String() = %q", got)
	}
	if got := Depth(10).String(); got != "10" {
		t.Errorf("Depth(10).String() = %q", got)
	}
}

func TestGitPolicy_Equal(t *testing.T) {
	a := GitPolicy{Depth: Unlimited}
	b := GitPolicy{Depth: Unlimited, RefSpec: DefaultRefSpec, Remote: DefaultRemote}
	if !a.Equal(b) {
		t.Error("policies differing only by defaults should be equal")
	}
	c := GitPolicy{Depth: 1, RefSpec: DefaultRefSpec}
	if a.Equal(c) {
		t.Error("policies with different depth should differ")
	}
}

func TestFailure_String(t *testing.T) {
	f := Failure{Kind: FailureScriptNonZeroExit, Code: 1}
	if got := f.String(); got != "script_non_zero_exit(1)" {
		t.Errorf("String() = %q", got)
	}
	f = Failure{Kind: FailureTimeout}
	if got := f.String(); got != "timeout" {
		t.Errorf("String() = %q", got)
	}
}

func TestRunResult_Duration(t *testing.T) {
	start := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	r := RunResult{StartedAt: start, FinishedAt: start.Add(90 * time.Second), Outcome: OutcomeFailed}
	if r.Duration() != 90*time.Second {
		t.Errorf("Duration() = %v", r.Duration())
	}
	if !r.Failed() {
		t.Error("Failed() = false, want true")
	}
	if !OutcomeSkippedAlreadyRunning.IsSkipped() || OutcomeSucceeded.IsSkipped() {
		t.Error("IsSkipped mismatch")
	}
}

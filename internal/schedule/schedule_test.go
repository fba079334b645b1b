package schedule

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"
)

func TestIsDue_NightlyScenario(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	last := time.Date(2023, 12, 31, 7, 0, 0, 0, time.UTC)

	due, err := IsDue("0 7 * * *", now, last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Error("IsDue = false, want true")
	}
}

func TestIsDue_NoDoubleFireWithinMinute(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	for _, last := range []time.Time{now, now.Add(45 * time.Second), now.Add(30 * time.Second)} {
		due, err := IsDue("0 7 * * *", now, last)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if due {
			t.Errorf("IsDue(now, lastRun=%v) = true, want false", last)
		}
	}

	// Called twice with the same instant: the first fires, the second does not.
	s, _ := Parse("* * * * *")
	if !s.IsDue(now, time.Time{}) {
		t.Fatal("first evaluation should be due")
	}
	if s.IsDue(now, now) {
		t.Error("second evaluation in the same minute should not be due")
	}
}

func TestIsDue_NextMinuteAfterPreviousRun(t *testing.T) {
	t.Parallel()

	last := time.Date(2024, 1, 1, 7, 0, 0, 50_000_000, time.UTC)
	now := time.Date(2024, 1, 1, 7, 1, 0, 10_000_000, time.UTC)
	due, err := IsDue("* * * * *", now, last)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Error("every-minute job should fire on the following minute tick")
	}
}

func TestIsDue_NotMatching(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr string
		now  time.Time
		want bool
	}{
		{"0 7 * * *", time.Date(2024, 1, 1, 7, 1, 0, 0, time.UTC), false},
		{"0 7 * * *", time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC), false},
		{"0 7 * * *", time.Date(2024, 1, 1, 7, 0, 59, 0, time.UTC), true},
		{"*/15 * * * *", time.Date(2024, 3, 5, 10, 45, 0, 0, time.UTC), true},
		{"*/15 * * * *", time.Date(2024, 3, 5, 10, 46, 0, 0, time.UTC), false},
		{"0 0 1 1 *", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), true},
		{"0 0 1 1 *", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), false},
		// 2024-01-01 is a Monday.
		{"0 7 * * 1", time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), true},
		{"0 7 * * 1-5", time.Date(2024, 1, 6, 7, 0, 0, 0, time.UTC), false},
		// Restricted day-of-month and day-of-week must both match.
		// 2024-01-15 is a Monday; 2024-04-15 is a Monday too.
		{"0 7 15 * 1", time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), false},
		{"0 7 15 * 1", time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), true},
		{"0 7 15 * 1", time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC), false},
		{"0 7 15 * 2", time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), false},
		{"0 7 15 * 2", time.Date(2024, 1, 16, 7, 0, 0, 0, time.UTC), false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s@%s", tt.expr, tt.now.Format(time.RFC3339)), func(t *testing.T) {
			t.Parallel()
			got, err := IsDue(tt.expr, tt.now, time.Time{})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsDue_UsesLocationOfNow(t *testing.T) {
	t.Parallel()

	paris := time.FixedZone("CET", 3600)
	now := time.Date(2024, 1, 1, 7, 0, 0, 0, paris)
	due, err := IsDue("0 7 * * *", now, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !due {
		t.Error("expected fields to be evaluated in now's location")
	}
	due, _ = IsDue("0 7 * * *", now.UTC(), time.Time{})
	if due {
		t.Error("06:00 UTC should not match 0 7 * * *")
	}
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{
		"",
		"   ",
		"invalid",
		"* * * *",
		"0 0 * * * *",
		"60 * * * *",
		"0 24 * * *",
		"0 0 32 * *",
		"0 0 * 13 *",
		"0 0 * * 8",
		"@daily",
		"CRON_TZ=UTC 0 7 * * *",
	} {
		_, err := Parse(expr)
		if !errors.Is(err, ErrInvalidExpression) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidExpression", expr, err)
		}
	}
}

// Every expression built from an instant's own fields is due at that
// instant regardless of which fields are wildcarded; changing any single
// field makes it not due.
func TestIsDue_FieldMatchProperty(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for range 500 {
		now := base.Add(time.Duration(rng.IntN(366*24*60)) * time.Minute)
		fields := []int{now.Minute(), now.Hour(), now.Day(), int(now.Month()), int(now.Weekday())}

		exprFields := make([]string, 5)
		for i, v := range fields {
			if rng.IntN(2) == 0 {
				exprFields[i] = "*"
			} else {
				exprFields[i] = fmt.Sprint(v)
			}
		}
		expr := fmt.Sprintf("%s %s %s %s %s", exprFields[0], exprFields[1], exprFields[2], exprFields[3], exprFields[4])
		due, err := IsDue(expr, now, time.Time{})
		if err != nil {
			t.Fatalf("IsDue(%q): %v", expr, err)
		}
		if !due {
			t.Fatalf("IsDue(%q, %v) = false, want true", expr, now)
		}

		// Shift the minute field to a different value.
		shifted := fmt.Sprintf("%d %s %s %s %s", (now.Minute()+1)%60, exprFields[1], exprFields[2], exprFields[3], exprFields[4])
		if due, _ := IsDue(shifted, now, time.Time{}); due {
			t.Fatalf("IsDue(%q, %v) = true, want false", shifted, now)
		}

		// Shift the day-of-week field while day-of-month stays as drawn.
		dow := fmt.Sprintf("%s %s %s %s %d", exprFields[0], exprFields[1], exprFields[2], exprFields[3], (int(now.Weekday())+1)%7)
		if due, _ := IsDue(dow, now, time.Time{}); due {
			t.Fatalf("IsDue(%q, %v) = true, want false", dow, now)
		}
	}
}

func TestSchedule_Next(t *testing.T) {
	t.Parallel()

	s, err := Parse("0 7 * * *")
	if err != nil {
		t.Fatal(err)
	}
	from := time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC)
	want := time.Date(2024, 1, 2, 7, 0, 0, 0, time.UTC)
	if got := s.Next(from); !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
	if s.String() != "0 7 * * *" {
		t.Errorf("String() = %q", s.String())
	}
}

func TestSchedule_NextRequiresBothDayFields(t *testing.T) {
	t.Parallel()

	s, err := Parse("0 7 15 * 1")
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		from time.Time
		want time.Time
	}{
		{time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC)},
		{time.Date(2024, 1, 15, 7, 0, 0, 0, time.UTC), time.Date(2024, 4, 15, 7, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := s.Next(tt.from); !got.Equal(tt.want) {
			t.Errorf("Next(%v) = %v, want %v", tt.from, got, tt.want)
		}
	}

	never, err := Parse("0 7 31 2 *")
	if err != nil {
		t.Fatal(err)
	}
	if got := never.Next(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)); !got.IsZero() {
		t.Errorf("Next for an impossible date = %v, want zero", got)
	}
}

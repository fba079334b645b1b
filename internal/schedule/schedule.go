// Package schedule decides whether a five-field cron expression is due at a
// given instant.
package schedule

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidExpression is returned for malformed cron expressions.
var ErrInvalidExpression = errors.New("schedule: invalid cron expression")

// parser accepts exactly minute, hour, day-of-month, month, day-of-week.
// Descriptors such as @daily and a seconds field are rejected.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Schedule is a parsed cron expression.
type Schedule struct {
	expr string
	spec *cron.SpecSchedule
}

// maxNextSteps bounds the search for an activation matching every field.
// Restricted day-of-month and day-of-week that never coincide (31 2 ...)
// give up with the zero time.
const maxNextSteps = 4096

// Parse validates expr and returns a reusable Schedule.
func Parse(expr string) (*Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	if strings.HasPrefix(trimmed, "TZ=") || strings.HasPrefix(trimmed, "CRON_TZ=") {
		return nil, fmt.Errorf("%w %q: timezone prefixes are not supported", ErrInvalidExpression, expr)
	}

	parsed, err := parser.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidExpression, expr, err)
	}
	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return nil, fmt.Errorf("%w %q: not a field schedule", ErrInvalidExpression, expr)
	}
	return &Schedule{expr: trimmed, spec: spec}, nil
}

// String returns the normalized expression.
func (s *Schedule) String() string { return s.expr }

// Matches reports whether the minute containing t matches all five fields.
// Fields are evaluated in t's location. Day-of-month and day-of-week must
// both match, even when both are restricted.
func (s *Schedule) Matches(t time.Time) bool {
	minute := t.Truncate(time.Minute)
	if !s.spec.Next(minute.Add(-time.Second)).Equal(minute) {
		return false
	}
	return s.dayMatches(minute)
}

// dayMatches checks day-of-month and day-of-week together. The cron
// library accepts either one when both are restricted.
func (s *Schedule) dayMatches(t time.Time) bool {
	return s.spec.Dom&(1<<uint(t.Day())) != 0 &&
		s.spec.Dow&(1<<uint(t.Weekday())) != 0
}

// Next returns the first activation strictly after t that matches all five
// fields, or the zero time if none is found.
func (s *Schedule) Next(t time.Time) time.Time {
	next := s.spec.Next(t)
	for range maxNextSteps {
		if next.IsZero() || s.dayMatches(next) {
			return next
		}
		next = s.spec.Next(next)
	}
	return time.Time{}
}

// IsDue reports whether a job on this schedule should fire at now. A zero
// lastRun means the job never ran. A job never fires twice within the same
// minute: lastRun must fall in an earlier minute than now.
func (s *Schedule) IsDue(now, lastRun time.Time) bool {
	if !s.Matches(now) {
		return false
	}
	if lastRun.IsZero() {
		return true
	}
	return now.Truncate(time.Minute).After(lastRun.Truncate(time.Minute))
}

// IsDue parses expr and evaluates it at now. See Schedule.IsDue.
func IsDue(expr string, now, lastRun time.Time) (bool, error) {
	s, err := Parse(expr)
	if err != nil {
		return false, err
	}
	return s.IsDue(now, lastRun), nil
}

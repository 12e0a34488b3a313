package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateTrigger checks a trigger spec without creating a schedule.
func ValidateTrigger(kind TriggerKind, spec, timezone string) error {
	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidTrigger, timezone)
		}
	}

	switch kind {
	case TriggerOnce:
		if _, err := time.Parse(time.RFC3339, spec); err != nil {
			return fmt.Errorf("%w: once spec must be RFC 3339: %v", ErrInvalidTrigger, err)
		}
	case TriggerInterval:
		d, err := time.ParseDuration(spec)
		if err != nil {
			return fmt.Errorf("%w: interval spec must be a duration: %v", ErrInvalidTrigger, err)
		}
		if d < time.Second {
			return fmt.Errorf("%w: interval must be at least 1s", ErrInvalidTrigger)
		}
	case TriggerCron:
		if _, err := cronParser.Parse(spec); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, kind)
	}
	return nil
}

// NextAfter computes the next fire time strictly after the given instant,
// or nil when the schedule is exhausted.
//
// Interval schedules that fall behind (server down, long pause) fire once
// and then realign strictly after now; missed periods are skipped, not
// replayed.
func NextAfter(s *Schedule, after time.Time) (*time.Time, error) {
	switch s.Kind {
	case TriggerOnce:
		t, err := time.Parse(time.RFC3339, s.Spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		if s.LastRunAt != nil {
			// Already fired; a once trigger never fires again.
			return nil, nil
		}
		if !t.After(after) {
			// A past instant still fires immediately once.
			next := after
			return &next, nil
		}
		return &t, nil

	case TriggerInterval:
		period, err := time.ParseDuration(s.Spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		base := s.CreatedAt
		if s.LastRunAt != nil {
			base = *s.LastRunAt
		}
		next := base.Add(period)
		if !next.After(after) {
			// Realign: one catch-up fire already happened (or is due now);
			// skip the rest of the missed periods.
			elapsed := after.Sub(base)
			steps := elapsed/period + 1
			next = base.Add(steps * period)
		}
		return &next, nil

	case TriggerCron:
		loc, err := s.Location()
		if err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidTrigger, s.Timezone)
		}
		expr, err := cronParser.Parse(s.Spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		next := expr.Next(after.In(loc))
		if next.IsZero() {
			return nil, nil
		}
		next = next.UTC()
		return &next, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, s.Kind)
	}
}

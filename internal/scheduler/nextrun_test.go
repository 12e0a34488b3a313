package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateTrigger(t *testing.T) {
	cases := []struct {
		name    string
		kind    TriggerKind
		spec    string
		tz      string
		wantErr bool
	}{
		{"once valid", TriggerOnce, "2026-09-01T10:00:00Z", "", false},
		{"once not a time", TriggerOnce, "tomorrow", "", true},
		{"interval valid", TriggerInterval, "5m", "", false},
		{"interval not a duration", TriggerInterval, "every 5 minutes", "", true},
		{"interval too short", TriggerInterval, "100ms", "", true},
		{"cron valid", TriggerCron, "0 * * * *", "", false},
		{"cron descriptor", TriggerCron, "@hourly", "", false},
		{"cron invalid", TriggerCron, "99 * * * *", "", true},
		{"bad timezone", TriggerInterval, "5m", "Not/AZone", true},
		{"unknown kind", TriggerKind("weekly"), "x", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateTrigger(tc.kind, tc.spec, tc.tz)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrInvalidTrigger)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestNextAfterOnce(t *testing.T) {
	now := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	at := now.Add(time.Hour)

	s := &Schedule{Kind: TriggerOnce, Spec: at.Format(time.RFC3339)}

	next, err := NextAfter(s, now)
	require.NoError(t, err)
	require.Equal(t, at, *next)

	// A past instant fires immediately.
	past := &Schedule{Kind: TriggerOnce, Spec: now.Add(-time.Hour).Format(time.RFC3339)}
	next, err = NextAfter(past, now)
	require.NoError(t, err)
	require.Equal(t, now, *next)

	// After firing, a once trigger is exhausted.
	fired := now
	s.LastRunAt = &fired
	next, err = NextAfter(s, now)
	require.NoError(t, err)
	require.Nil(t, next)
}

func TestNextAfterInterval(t *testing.T) {
	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	s := &Schedule{Kind: TriggerInterval, Spec: "1m", CreatedAt: created}

	// First fire is one period after creation.
	next, err := NextAfter(s, created)
	require.NoError(t, err)
	require.Equal(t, created.Add(time.Minute), *next)

	// Steady state advances from the last fire.
	last := created.Add(time.Minute)
	s.LastRunAt = &last
	next, err = NextAfter(s, last)
	require.NoError(t, err)
	require.Equal(t, created.Add(2*time.Minute), *next)
}

func TestNextAfterIntervalSkipsMissedPeriods(t *testing.T) {
	created := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	last := created.Add(time.Minute)
	s := &Schedule{Kind: TriggerInterval, Spec: "1m", CreatedAt: created, LastRunAt: &last}

	// The server slept through five periods. The next fire realigns
	// strictly after now; the missed periods are not replayed.
	now := last.Add(5*time.Minute + 30*time.Second)
	next, err := NextAfter(s, now)
	require.NoError(t, err)
	require.Equal(t, last.Add(6*time.Minute), *next)
	require.True(t, next.After(now))
}

func TestNextAfterCron(t *testing.T) {
	s := &Schedule{Kind: TriggerCron, Spec: "0 * * * *"}

	now := time.Date(2026, 8, 30, 10, 15, 0, 0, time.UTC)
	next, err := NextAfter(s, now)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC), *next)

	// Strictly after: exactly on the boundary rolls to the next slot.
	onBoundary := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	next, err = NextAfter(s, onBoundary)
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), *next)
}

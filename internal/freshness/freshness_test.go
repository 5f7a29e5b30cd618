package freshness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEvaluate_ExactThresholdIsFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
	ref := now.AddDate(0, 0, -30)

	require.Empty(t, Evaluate(ref, now, 30))
}

func TestEvaluate_OneDayPastThresholdIsStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	ref := now.AddDate(0, 0, -31)

	require.Equal(t, "lagged; release: 2024-05", Evaluate(ref, now, 30))
}

func TestEvaluate_FutureReferenceIsFresh(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	ref := now.AddDate(1, 0, 0)

	require.Empty(t, Evaluate(ref, now, 30))
}

func TestEvaluate_TimeOfDayIgnored(t *testing.T) {
	t.Parallel()

	// 30 calendar days apart; the wall-clock offset must not push the lag
	// over the threshold.
	now := time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
	ref := time.Date(2024, 5, 31, 0, 0, 1, 0, time.UTC)

	require.Empty(t, Evaluate(ref, now, 30))
}

func TestEvaluate_NoteFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		ref  time.Time
		want string
	}{
		{"annual release", time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC), "lagged; release: 2022-12"},
		{"single digit month", time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC), "lagged; release: 2023-03"},
	}

	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Evaluate(tc.ref, now, 30))
		})
	}
}

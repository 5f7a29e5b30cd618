// Package freshness flags data points whose reference period has fallen
// too far behind the current date.
package freshness

import (
	"fmt"
	"time"
)

// DefaultMaxLagDays is the staleness threshold used when a source does not
// supply its own.
const DefaultMaxLagDays = 30

// Evaluate compares a data point's reference date against now and returns a
// human-readable lag note when the point is stale. The comparison is
// date-only: both instants are truncated to midnight UTC before the lag is
// computed, so a bare date behaves like midnight of that day.
//
// The boundary is exclusive: a reference date exactly maxLagDays old is
// still fresh. Reference dates in the future are always fresh. A fresh
// result is the empty string.
func Evaluate(ref, now time.Time, maxLagDays int) string {
	lag := int(dateOnly(now).Sub(dateOnly(ref)).Hours() / 24)
	if lag > maxLagDays {
		return fmt.Sprintf("lagged; release: %s", ref.Format("2006-01"))
	}
	return ""
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

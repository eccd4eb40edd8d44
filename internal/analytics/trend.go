package analytics

import (
	"fmt"
	"math"
	"time"
)

// Trend classifies activity within the window ending at now. The window is
// split at its midpoint; more than 1.2x activity in the second half is
// "increasing", less than 0.8x is "decreasing". Fewer than two events is
// always "stable".
func Trend(times []time.Time, now time.Time, window time.Duration) string {
	if len(times) < 2 {
		return "stable"
	}
	mid := now.Add(-window / 2)
	var first, second int
	for _, ts := range times {
		if ts.Before(mid) {
			first++
		} else {
			second++
		}
	}
	switch {
	case float64(second) > float64(first)*1.2:
		return "increasing"
	case float64(second) < float64(first)*0.8:
		return "decreasing"
	default:
		return "stable"
	}
}

// ActivityScore weights scripts and API calls into a 0..100 score.
func ActivityScore(scripts, apiCalls int) float64 {
	score := float64(scripts)*2 + float64(apiCalls)*0.1
	return roundTo(math.Min(100, math.Max(0, score)), 2)
}

// FormatUptime renders a duration as "H:MM:SS", prefixed with days when over 24h.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := (total % 86400) / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	clock := fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	switch days {
	case 0:
		return clock
	case 1:
		return "1 day, " + clock
	default:
		return fmt.Sprintf("%d days, %s", days, clock)
	}
}

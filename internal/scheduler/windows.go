package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/convertbot/internal/config"
)

// withinUTCWindow reports whether now (UTC) falls within [from, to), both
// "HH:MM" UTC clock times. A window that wraps midnight (from > to, e.g.
// "22:00"->"02:00") is handled by treating membership as "at or after
// from, OR before to" instead of a single contiguous range.
func withinUTCWindow(from, to string, now time.Time) bool {
	fromMin, err := parseClock(from)
	if err != nil {
		return false
	}
	toMin, err := parseClock(to)
	if err != nil {
		return false
	}
	now = now.UTC()
	nowMin := now.Hour()*60 + now.Minute()

	if fromMin == toMin {
		return true // a zero-width or full-day window is always open
	}
	if fromMin < toMin {
		return nowMin >= fromMin && nowMin < toMin
	}
	return nowMin >= fromMin || nowMin < toMin
}

func parseClock(hhmm string) (int, error) {
	parts := strings.SplitN(hhmm, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid HH:MM window bound %q", hhmm)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q: %w", hhmm, err)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q: %w", hhmm, err)
	}
	return h*60 + m, nil
}

// InAnalyzeWindow reports whether now falls within region's analyze window.
func InAnalyzeWindow(region config.RegionConfig, now time.Time) bool {
	return withinUTCWindow(region.AnalyzeWindow.From, region.AnalyzeWindow.To, now)
}

// InTradeWindow reports whether now falls within region's trade window.
func InTradeWindow(region config.RegionConfig, now time.Time) bool {
	return withinUTCWindow(region.TradeWindow.From, region.TradeWindow.To, now)
}

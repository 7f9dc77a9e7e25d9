package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/leadflow/leadflow/pkg/models"
)

func windowLocation(w *models.ExecutionWindow) (*time.Location, error) {
	if w.Timezone == "" {
		return time.UTC, nil
	}

	return time.LoadLocation(w.Timezone)
}

// parseWeekday accepts full English day names and their three letter
// abbreviations, case insensitive.
func parseWeekday(value string) (time.Weekday, bool) {
	value = strings.ToLower(strings.TrimSpace(value))

	for day := time.Sunday; day <= time.Saturday; day++ {
		name := strings.ToLower(day.String())
		if value == name || (len(value) == 3 && strings.HasPrefix(name, value)) {
			return day, true
		}
	}

	return 0, false
}

func validateWindowDays(w *models.ExecutionWindow) error {
	for _, day := range w.Days {
		if _, ok := parseWeekday(day); !ok {
			return fmt.Errorf("unknown execution window day %q", day)
		}
	}

	return nil
}

func windowDayAllowed(w *models.ExecutionWindow, day time.Weekday) bool {
	if len(w.Days) == 0 {
		return true
	}

	for _, allowed := range w.Days {
		if d, ok := parseWeekday(allowed); ok && d == day {
			return true
		}
	}

	return false
}

// windowOpen reports whether actions may run at now. A nil window is always open.
func windowOpen(w *models.ExecutionWindow, now time.Time) bool {
	if w == nil {
		return true
	}

	loc, err := windowLocation(w)
	if err != nil {
		loc = time.UTC
	}

	local := now.In(loc)
	hour := local.Hour()

	return windowDayAllowed(w, local.Weekday()) && hour >= w.StartHour && hour < w.EndHour
}

// nextWindowOpen returns the earliest instant at or after now when the window
// is open. It returns the zero time when no day is allowed.
func nextWindowOpen(w *models.ExecutionWindow, now time.Time) time.Time {
	if windowOpen(w, now) {
		return now
	}

	loc, err := windowLocation(w)
	if err != nil {
		loc = time.UTC
	}

	local := now.In(loc)

	for offset := 0; offset <= 7; offset++ {
		day := local.AddDate(0, 0, offset)
		candidate := time.Date(day.Year(), day.Month(), day.Day(), w.StartHour, 0, 0, 0, loc)

		if candidate.Before(now) || !windowDayAllowed(w, candidate.Weekday()) {
			continue
		}

		return candidate
	}

	return time.Time{}
}

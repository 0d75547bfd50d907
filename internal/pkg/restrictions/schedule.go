package restrictions

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	defaultWindowStart = "00:00"
	defaultWindowEnd   = "23:59"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// HourWindow is an inclusive "HH:MM" range. A start later than the end
// describes a window that runs past midnight, e.g. 22:00-06:00.
type HourWindow struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// TimeRestrictions is the time_restrictions block of an integration.
// A nil AllowedDays or AllowedHours means that dimension is unrestricted;
// an empty AllowedDays list allows no day at all.
type TimeRestrictions struct {
	Timezone     string      `json:"timezone,omitempty"`
	AllowedDays  []string    `json:"allowed_days"`
	AllowedHours *HourWindow `json:"allowed_hours,omitempty"`
}

// Configured reports whether the block restricts anything.
func (t TimeRestrictions) Configured() bool {
	return t.AllowedDays != nil || t.AllowedHours != nil
}

// Location resolves the configured timezone, UTC when empty.
func (t TimeRestrictions) Location() (*time.Location, error) {
	tz := strings.TrimSpace(t.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// Allows evaluates now in the configured timezone. An unloadable timezone
// denies.
func (t TimeRestrictions) Allows(now time.Time) bool {
	if !t.Configured() {
		return true
	}
	loc, err := t.Location()
	if err != nil {
		return false
	}
	local := now.In(loc)

	if t.AllowedDays != nil {
		day := strings.ToLower(local.Weekday().String())
		found := false
		for _, d := range t.AllowedDays {
			if strings.ToLower(strings.TrimSpace(d)) == day {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if t.AllowedHours != nil {
		return t.AllowedHours.Contains(local.Format("15:04"))
	}
	return true
}

// Contains compares clock strings lexicographically, which is exact for
// zero-padded "HH:MM" values.
func (w HourWindow) Contains(clock string) bool {
	start, end := w.Start, w.End
	if start == "" {
		start = defaultWindowStart
	}
	if end == "" {
		end = defaultWindowEnd
	}
	if start <= end {
		return clock >= start && clock <= end
	}
	return clock >= start || clock <= end
}

// Validate checks the timezone, day names and clock format.
func (t TimeRestrictions) Validate() error {
	if _, err := t.Location(); err != nil {
		return &ScheduleError{Field: "timezone", Value: t.Timezone}
	}
	for _, d := range t.AllowedDays {
		if !isWeekday(d) {
			return &ScheduleError{Field: "allowed_days", Value: d}
		}
	}
	if t.AllowedHours != nil {
		for _, v := range []string{t.AllowedHours.Start, t.AllowedHours.End} {
			if v != "" && !clockPattern.MatchString(v) {
				return &ScheduleError{Field: "allowed_hours", Value: v}
			}
		}
	}
	return nil
}

// ScheduleError reports an invalid time restriction field.
type ScheduleError struct {
	Field string
	Value string
}

func (e *ScheduleError) Error() string {
	return "invalid time restriction " + e.Field + ": " + e.Value
}

func isWeekday(d string) bool {
	d = strings.ToLower(strings.TrimSpace(d))
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if strings.ToLower(wd.String()) == d {
			return true
		}
	}
	return false
}

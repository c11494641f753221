// Package bizdate converts between wall-clock instants, the vendor's compact
// business dates and the timestamp strings the vendor expects in query
// parameters. All conversions happen in an explicit reference location so the
// result never depends on the host's local zone.
package bizdate

import (
	"fmt"
	"strings"
	"time"

	// Embedded zone database so the reference zone resolves on minimal images.
	_ "time/tzdata"
)

const (
	DefaultZone = "America/Los_Angeles"

	VendorLayout       = "2006-01-02T15:04:05.000-0700"
	BusinessDateLayout = "20060102"
	DayLayout          = "2006-01-02"
)

type Preset string

const (
	Today     Preset = "today"
	Yesterday Preset = "yesterday"
	Last7Days Preset = "last7days"
	LastWeek  Preset = "lastweek"
)

func ParsePreset(raw string) (Preset, bool) {
	switch Preset(strings.ToLower(strings.TrimSpace(raw))) {
	case Today:
		return Today, true
	case Yesterday:
		return Yesterday, true
	case Last7Days:
		return Last7Days, true
	case LastWeek:
		return LastWeek, true
	default:
		return "", false
	}
}

// Range is an inclusive interval with Start <= End.
type Range struct {
	Start time.Time
	End   time.Time
}

// SameDay reports whether the range starts and ends on one calendar day in loc.
func (r Range) SameDay(loc *time.Location) bool {
	return SameDay(r.Start, r.End, loc)
}

func LoadLocation(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultZone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", name, err)
	}
	return loc, nil
}

func StartOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

func EndOfDay(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 23, 59, 59, int(999*time.Millisecond), loc)
}

func PresetToRange(preset Preset, now time.Time, loc *time.Location) Range {
	now = now.In(loc)
	switch preset {
	case Yesterday:
		y := now.AddDate(0, 0, -1)
		return Range{Start: StartOfDay(y, loc), End: EndOfDay(y, loc)}
	case Last7Days:
		return Range{Start: now.AddDate(0, 0, -7), End: now}
	case LastWeek:
		// Weeks start on Monday; Sunday is the seventh day.
		daysSinceMonday := (int(now.Weekday()) + 6) % 7
		thisMonday := StartOfDay(now.AddDate(0, 0, -daysSinceMonday), loc)
		lastMonday := thisMonday.AddDate(0, 0, -7)
		lastSunday := lastMonday.AddDate(0, 0, 6)
		return Range{Start: lastMonday, End: EndOfDay(lastSunday, loc)}
	default:
		return Range{Start: StartOfDay(now, loc), End: EndOfDay(now, loc)}
	}
}

// ResolveRange picks explicit dates over the preset. Input that cannot be
// parsed falls back to today; reversed bounds are swapped.
func ResolveRange(preset, startRaw, endRaw string, now time.Time, loc *time.Location) Range {
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)

	if startRaw != "" || endRaw != "" {
		start, startErr := parseDay(startRaw, loc)
		end, endErr := parseDay(endRaw, loc)
		switch {
		case startErr == nil && endErr == nil:
			return ordered(StartOfDay(start, loc), EndOfDay(end, loc))
		case startErr == nil && endRaw == "":
			return ordered(StartOfDay(start, loc), EndOfDay(start, loc))
		case endErr == nil && startRaw == "":
			return ordered(StartOfDay(end, loc), EndOfDay(end, loc))
		default:
			return PresetToRange(Today, now, loc)
		}
	}

	p, ok := ParsePreset(preset)
	if !ok {
		p = Today
	}
	return PresetToRange(p, now, loc)
}

// ParseDay accepts YYYY-MM-DD, YYYYMMDD or RFC 3339 and returns the instant
// in loc. Day-only inputs resolve to midnight.
func ParseDay(raw string, loc *time.Location) (time.Time, error) {
	return parseDay(strings.TrimSpace(raw), loc)
}

func parseDay(raw string, loc *time.Location) (time.Time, error) {
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if t, err := time.ParseInLocation(DayLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(BusinessDateLayout, raw, loc); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.In(loc), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

func ordered(start, end time.Time) Range {
	if start.After(end) {
		start, end = end, start
	}
	return Range{Start: start, End: end}
}

// VendorTimestamp formats t as the vendor's query timestamp, snapped to the
// first or last millisecond of its calendar day in loc.
func VendorTimestamp(t time.Time, isStartOfDay bool, loc *time.Location) string {
	if isStartOfDay {
		return StartOfDay(t, loc).Format(VendorLayout)
	}
	return EndOfDay(t, loc).Format(VendorLayout)
}

func BusinessDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(BusinessDateLayout)
}

func ParseBusinessDate(raw string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(BusinessDateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse business date %q: %w", raw, err)
	}
	return t, nil
}

func SameDay(a, b time.Time, loc *time.Location) bool {
	a, b = a.In(loc), b.In(loc)
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

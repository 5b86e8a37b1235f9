// Package recurrence computes next due times for repeating schedules.
// It is pure: no I/O, no clock access; callers supply the reference time.
package recurrence

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Recurrence error constants
var (
	// ErrInvalidSchedule marks a malformed recurrence definition. This is a
	// configuration error: it is surfaced immediately and never retried.
	ErrInvalidSchedule = errors.New("invalid recurrence definition")

	// ErrNoMoreOccurrences is returned when the schedule's until date or
	// occurrence count is exhausted before reaching the requested time.
	ErrNoMoreOccurrences = errors.New("schedule has no more occurrences")
)

// Frequency is the base period of a recurrence definition
type Frequency string

const (
	FreqDaily   Frequency = "daily"
	FreqWeekly  Frequency = "weekly"
	FreqMonthly Frequency = "monthly"
	FreqYearly  Frequency = "yearly"
)

// Valid checks if the frequency is valid
func (f Frequency) Valid() bool {
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly, FreqYearly:
		return true
	default:
		return false
	}
}

// Weekday is a day-of-week selector, serialized by name
type Weekday string

const (
	Monday    Weekday = "monday"
	Tuesday   Weekday = "tuesday"
	Wednesday Weekday = "wednesday"
	Thursday  Weekday = "thursday"
	Friday    Weekday = "friday"
	Saturday  Weekday = "saturday"
	Sunday    Weekday = "sunday"
)

var weekdayTime = map[Weekday]time.Weekday{
	Monday:    time.Monday,
	Tuesday:   time.Tuesday,
	Wednesday: time.Wednesday,
	Thursday:  time.Thursday,
	Friday:    time.Friday,
	Saturday:  time.Saturday,
	Sunday:    time.Sunday,
}

// Valid checks if the weekday name is valid
func (w Weekday) Valid() bool {
	_, ok := weekdayTime[w]
	return ok
}

// Time returns the time.Weekday equivalent
func (w Weekday) Time() time.Weekday {
	return weekdayTime[w]
}

// AllWeekdays lists every weekday selector, Monday first
func AllWeekdays() []Weekday {
	return []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}
}

// LastOccurrence selects the last matching day within a period when used as BySetPos
const LastOccurrence = -1

// Schedule is a recurrence definition. Start anchors the pattern and carries
// the time of day of every occurrence; all computation is done in UTC.
type Schedule struct {
	Frequency Frequency  `json:"frequency"`
	Interval  int        `json:"interval"`
	Start     time.Time  `json:"start"`
	Until     *time.Time `json:"until,omitempty"`
	Count     *int       `json:"count,omitempty"`
	ByWeekday []Weekday  `json:"byweekday,omitempty"`
	// BySetPos picks the nth matching day within a period (1-based), or the
	// last one when set to LastOccurrence. Only meaningful together with
	// ByWeekday on monthly and yearly schedules.
	BySetPos *int `json:"bysetpos,omitempty"`
}

// Validate checks the schedule for configuration errors
func (s Schedule) Validate() error {
	if !s.Frequency.Valid() {
		return fmt.Errorf("%w: unknown frequency %q", ErrInvalidSchedule, s.Frequency)
	}
	if s.Interval < 1 {
		return fmt.Errorf("%w: interval must be at least 1, got %d", ErrInvalidSchedule, s.Interval)
	}
	if s.Start.IsZero() {
		return fmt.Errorf("%w: start is required", ErrInvalidSchedule)
	}
	for _, w := range s.ByWeekday {
		if !w.Valid() {
			return fmt.Errorf("%w: unknown weekday %q", ErrInvalidSchedule, w)
		}
	}
	if s.BySetPos != nil {
		p := *s.BySetPos
		if p == 0 || p > 5 || p < LastOccurrence {
			return fmt.Errorf("%w: bysetpos must be 1..5 or %d, got %d", ErrInvalidSchedule, LastOccurrence, p)
		}
	}
	if s.Count != nil && *s.Count < 1 {
		return fmt.Errorf("%w: count must be at least 1, got %d", ErrInvalidSchedule, *s.Count)
	}
	if s.Until != nil && s.Until.Before(s.Start) {
		return fmt.Errorf("%w: until precedes start", ErrInvalidSchedule)
	}
	return nil
}

// Fingerprint returns a stable serialization of the schedule used to decide
// whether a stored definition actually changed. Edits that leave the
// fingerprint equal must not trigger a next-due recomputation.
func (s Schedule) Fingerprint() string {
	norm := s
	norm.Start = s.Start.UTC()
	if s.Until != nil {
		u := s.Until.UTC()
		norm.Until = &u
	}
	b, err := json.Marshal(norm)
	if err != nil {
		return ""
	}
	return string(b)
}

// maxEmptyPeriods bounds consecutive periods without a matching day so a
// degenerate pattern that never matches cannot loop unbounded. Sparse but
// valid patterns (a 5th-Monday rule skips most months) stay well under it.
const maxEmptyPeriods = 500

// ComputeNext returns the smallest occurrence of the schedule at or after
// notBefore. It returns ErrNoMoreOccurrences when until or count is
// exhausted first, and ErrInvalidSchedule for malformed definitions.
func ComputeNext(s Schedule, notBefore time.Time) (time.Time, error) {
	if err := s.Validate(); err != nil {
		return time.Time{}, err
	}

	start := s.Start.UTC()
	notBefore = notBefore.UTC()

	// Occurrence counting only matters for count-bounded schedules, which
	// must walk every period from the anchor. Everything else skips straight
	// to the period just before notBefore, so an anchor far in the past does
	// not cost a scan over the whole span since.
	p := 0
	if s.Count == nil {
		p = s.periodIndexBefore(start, notBefore)
	}

	seen := 0
	empty := 0
	for ; empty < maxEmptyPeriods; p++ {
		occs := s.periodOccurrences(p, start)
		if len(occs) == 0 {
			empty++
			continue
		}
		empty = 0
		for _, occ := range occs {
			if occ.Before(start) {
				continue
			}
			if s.Until != nil && occ.After(s.Until.UTC()) {
				return time.Time{}, ErrNoMoreOccurrences
			}
			seen++
			if s.Count != nil && seen > *s.Count {
				return time.Time{}, ErrNoMoreOccurrences
			}
			if !occ.Before(notBefore) {
				return occ, nil
			}
		}
	}
	return time.Time{}, ErrNoMoreOccurrences
}

// periodIndexBefore returns a period index whose occurrences all fall before
// t, rounded down one extra period so boundary arithmetic can never skip the
// first candidate at or after t.
func (s Schedule) periodIndexBefore(start, t time.Time) int {
	if !start.Before(t) {
		return 0
	}

	var p int
	switch s.Frequency {
	case FreqDaily:
		p = int(t.Sub(start).Hours()/24) / s.Interval
	case FreqWeekly:
		p = int(t.Sub(start).Hours()/24) / (7 * s.Interval)
	case FreqMonthly:
		months := (t.Year()-start.Year())*12 + int(t.Month()) - int(start.Month())
		p = months / s.Interval
	case FreqYearly:
		p = (t.Year() - start.Year()) / s.Interval
	}

	p--
	if p < 0 {
		return 0
	}
	return p
}

// periodOccurrences returns the occurrences of period index p in
// chronological order. A period with no matching day (for example a "5th
// Monday" rule in a four-Monday month) yields nothing; the caller simply
// moves on to the next period.
func (s Schedule) periodOccurrences(p int, start time.Time) []time.Time {
	switch s.Frequency {
	case FreqDaily:
		return s.dailyOccurrences(p, start)
	case FreqWeekly:
		return s.weeklyOccurrences(p, start)
	case FreqMonthly:
		return s.monthlyOccurrences(p, start)
	case FreqYearly:
		return s.yearlyOccurrences(p, start)
	default:
		return nil
	}
}

func (s Schedule) dailyOccurrences(p int, start time.Time) []time.Time {
	day := start.AddDate(0, 0, p*s.Interval)
	if len(s.ByWeekday) > 0 && !s.weekdayMatches(day.Weekday()) {
		return nil
	}
	return []time.Time{day}
}

// weeklyOccurrences treats weeks as Monday-anchored. Without a weekday set
// the pattern fires on the start date's weekday; with one it fires on every
// listed day of the matching weeks. BySetPos is ignored for weekly
// schedules (documented ambiguity, not an error).
func (s Schedule) weeklyOccurrences(p int, start time.Time) []time.Time {
	weekStart := startOfWeek(start).AddDate(0, 0, p*s.Interval*7)

	if len(s.ByWeekday) == 0 {
		return []time.Time{atTimeOf(start, weekStart.AddDate(0, 0, mondayOffset(start.Weekday())))}
	}

	occs := make([]time.Time, 0, len(s.ByWeekday))
	for off := 0; off < 7; off++ {
		day := weekStart.AddDate(0, 0, off)
		if s.weekdayMatches(day.Weekday()) {
			occs = append(occs, atTimeOf(start, day))
		}
	}
	return occs
}

func (s Schedule) monthlyOccurrences(p int, start time.Time) []time.Time {
	year, month, _ := start.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, p*s.Interval, 0)

	// A weekday set only has effect together with a set position; without
	// one the schedule falls back to the start date's day of month.
	if len(s.ByWeekday) > 0 && s.BySetPos != nil {
		if day, ok := s.nthMatchingDay(first); ok {
			return []time.Time{atTimeOf(start, day)}
		}
		return nil
	}

	if start.Day() > daysInMonth(first) {
		return nil
	}
	return []time.Time{atTimeOf(start, first.AddDate(0, 0, start.Day()-1))}
}

func (s Schedule) yearlyOccurrences(p int, start time.Time) []time.Time {
	first := time.Date(start.Year()+p*s.Interval, start.Month(), 1, 0, 0, 0, 0, time.UTC)

	if len(s.ByWeekday) > 0 && s.BySetPos != nil {
		if day, ok := s.nthMatchingDay(first); ok {
			return []time.Time{atTimeOf(start, day)}
		}
		return nil
	}

	// Feb 29 anchors skip non-leap years rather than sliding to Mar 1.
	if start.Day() > daysInMonth(first) {
		return nil
	}
	return []time.Time{atTimeOf(start, first.AddDate(0, 0, start.Day()-1))}
}

// nthMatchingDay picks the BySetPos-th day of the month starting at first
// whose weekday is in the set. ok is false when the position is out of
// range for that month.
func (s Schedule) nthMatchingDay(first time.Time) (time.Time, bool) {
	var matches []time.Time
	for d := 0; d < daysInMonth(first); d++ {
		day := first.AddDate(0, 0, d)
		if s.weekdayMatches(day.Weekday()) {
			matches = append(matches, day)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Before(matches[j]) })

	pos := *s.BySetPos
	if pos == LastOccurrence {
		if len(matches) == 0 {
			return time.Time{}, false
		}
		return matches[len(matches)-1], true
	}
	if pos > len(matches) {
		return time.Time{}, false
	}
	return matches[pos-1], true
}

func (s Schedule) weekdayMatches(w time.Weekday) bool {
	for _, bw := range s.ByWeekday {
		if bw.Time() == w {
			return true
		}
	}
	return false
}

// startOfWeek truncates t to the Monday of its week, dropping time of day
func startOfWeek(t time.Time) time.Time {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -mondayOffset(t.Weekday()))
}

// mondayOffset returns days elapsed since Monday for the given weekday
func mondayOffset(w time.Weekday) int {
	return (int(w) + 6) % 7
}

// atTimeOf stamps the start schedule's time of day onto the given date
func atTimeOf(start, day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		start.Hour(), start.Minute(), start.Second(), start.Nanosecond(), time.UTC)
}

func daysInMonth(t time.Time) int {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 1, -1).Day()
}

package slots

import (
	"fmt"
	"time"
)

const (
	// Capacity is the number of appointments the shop can run in one slot window.
	Capacity = 3

	MinDurationMinutes     = 30
	DefaultDurationMinutes = 60
)

// Window is a bookable stretch of the day, expressed in minutes after local midnight.
type Window struct {
	Start int
	End   int
	Night bool
}

var (
	StandardShift = Window{Start: 8 * 60, End: 18 * 60}
	NightShift    = Window{Start: 18*60 + 30, End: 22 * 60, Night: true}
)

type Slot struct {
	Key             string
	Label           string
	Start           time.Time
	End             time.Time
	DurationMinutes int
	Night           bool
}

// ClampDuration applies the minimum slot length.
func ClampDuration(minutes int) int {
	if minutes < MinDurationMinutes {
		return MinDurationMinutes
	}
	return minutes
}

// Windows returns the shift windows in chronological order.
func Windows(nightShifts bool) []Window {
	if nightShifts {
		return []Window{StandardShift, NightShift}
	}
	return []Window{StandardShift}
}

// Generate slices each shift window of date into consecutive slots of durationMinutes.
// The location of date is taken as the workshop's local time. A trailing remainder shorter
// than the duration is dropped, and the two windows are never merged across their gap.
func Generate(date time.Time, durationMinutes int, nightShifts bool) []Slot {
	if date.IsZero() {
		return nil
	}

	duration := ClampDuration(durationMinutes)
	day := StartOfDay(date)

	var out []Slot
	for _, w := range Windows(nightShifts) {
		for m := w.Start; m+duration <= w.End; m += duration {
			start := clockAt(day, m)
			end := clockAt(day, m+duration)
			out = append(out, Slot{
				Key:             keyFor(m, m+duration),
				Label:           Label(start, end),
				Start:           start,
				End:             end,
				DurationMinutes: duration,
				Night:           w.Night,
			})
		}
	}

	return out
}

// Resolve regenerates the day's slots and looks up key among them.
func Resolve(date time.Time, durationMinutes int, nightShifts bool, key string) (Slot, bool) {
	if key == "" {
		return Slot{}, false
	}
	for _, s := range Generate(date, durationMinutes, nightShifts) {
		if s.Key == key {
			return s, true
		}
	}
	return Slot{}, false
}

// SlotAt returns the generated slot that starts exactly at start, if any.
func SlotAt(start time.Time, durationMinutes int, nightShifts bool) (Slot, bool) {
	for _, s := range Generate(start, durationMinutes, nightShifts) {
		if s.Start.Equal(start) {
			return s, true
		}
	}
	return Slot{}, false
}

// Label renders a window in 12-hour clock form, e.g. "8:00 am – 9:00 am".
func Label(start, end time.Time) string {
	return start.Format("3:04 pm") + " – " + end.Format("3:04 pm")
}

func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayBounds returns [local midnight, next local midnight) for the calendar day of t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	from := StartOfDay(t)
	return from, from.AddDate(0, 0, 1)
}

// DayKey identifies a calendar day for locking and logging.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func clockAt(day time.Time, minutes int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, day.Location())
}

func keyFor(startMinutes, endMinutes int) string {
	return fmt.Sprintf("%02d%02d-%02d%02d",
		startMinutes/60, startMinutes%60, endMinutes/60, endMinutes%60)
}

package telemetry

import (
	"fmt"
	"sort"
	"time"
)

const minutesPerHour = 60

// ScheduleWindow is the domain of valid working timestamps.
// A zero End leaves the window open-ended.
type ScheduleWindow struct {
	Start    time.Time
	End      time.Time
	Weekdays []time.Weekday
	Hours    []int
	Location *time.Location
}

// NewScheduleWindow normalizes dates to midnight in loc and sorts/dedupes weekdays and hours.
func NewScheduleWindow(start, end time.Time, weekdays []time.Weekday, hours []int, loc *time.Location) (ScheduleWindow, error) {
	if loc == nil {
		loc = time.Local
	}
	if start.IsZero() {
		return ScheduleWindow{}, configErrorf("schedule start date required")
	}
	w := ScheduleWindow{
		Start:    dateIn(start, loc),
		Location: loc,
	}
	if !end.IsZero() {
		w.End = dateIn(end, loc)
		if w.End.Before(w.Start) {
			return ScheduleWindow{}, configErrorf("schedule end %s before start %s", w.End.Format(time.DateOnly), w.Start.Format(time.DateOnly))
		}
	}

	seenDay := make(map[time.Weekday]bool, len(weekdays))
	for _, d := range weekdays {
		if d < time.Sunday || d > time.Saturday {
			return ScheduleWindow{}, configErrorf("invalid weekday %d", d)
		}
		if !seenDay[d] {
			seenDay[d] = true
			w.Weekdays = append(w.Weekdays, d)
		}
	}
	seenHour := make(map[int]bool, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return ScheduleWindow{}, configErrorf("invalid hour %d", h)
		}
		if !seenHour[h] {
			seenHour[h] = true
			w.Hours = append(w.Hours, h)
		}
	}
	if len(w.Weekdays) == 0 || len(w.Hours) == 0 {
		return ScheduleWindow{}, configErrorf("schedule needs at least one weekday and one hour")
	}
	sort.Slice(w.Weekdays, func(i, j int) bool { return w.Weekdays[i] < w.Weekdays[j] })
	sort.Ints(w.Hours)
	return w, nil
}

// WithEnd returns a copy of the window closed at end (inclusive).
func (w ScheduleWindow) WithEnd(end time.Time) ScheduleWindow {
	w.End = dateIn(end, w.loc())
	return w
}

// Contains reports whether t is an in-scope timestamp.
func (w ScheduleWindow) Contains(t time.Time) bool {
	t = t.In(w.loc())
	day := truncateToDay(t)
	if day.Before(w.Start) {
		return false
	}
	if !w.End.IsZero() && day.After(w.End) {
		return false
	}
	return w.weekdayActive(t.Weekday()) && w.heatSeq(t.Hour()) > 0
}

// HeatID returns the heat batch id for t, or false when t's hour is not active.
func (w ScheduleWindow) HeatID(t time.Time) (string, bool) {
	t = t.In(w.loc())
	seq := w.heatSeq(t.Hour())
	if seq == 0 {
		return "", false
	}
	return FormatHeatID(t, seq), true
}

// FormatHeatID builds the HT_<YYYYMMDD>_<NNN> identifier.
func FormatHeatID(day time.Time, seq int) string {
	return fmt.Sprintf("HT_%s_%03d", day.Format("20060102"), seq)
}

// heatSeq is the 1-based position of hour among the active hours, 0 when inactive.
func (w ScheduleWindow) heatSeq(hour int) int {
	idx := sort.SearchInts(w.Hours, hour)
	if idx < len(w.Hours) && w.Hours[idx] == hour {
		return idx + 1
	}
	return 0
}

func (w ScheduleWindow) weekdayActive(d time.Weekday) bool {
	for _, wd := range w.Weekdays {
		if wd == d {
			return true
		}
	}
	return false
}

func (w ScheduleWindow) loc() *time.Location {
	if w.Location == nil {
		return time.Local
	}
	return w.Location
}

// Slot is one enumerated minute.
type Slot struct {
	TS      time.Time
	HeatSeq int
	HeatID  string
}

// Enumerator lazily walks every in-scope minute of a closed window in calendar order.
type Enumerator struct {
	window  ScheduleWindow
	after   time.Time
	day     time.Time
	hourIdx int
	minute  int
}

// Enumerate starts an enumerator over the whole window. The window must have an End.
func Enumerate(w ScheduleWindow) (*Enumerator, error) {
	return EnumerateAfter(w, time.Time{})
}

// EnumerateAfter starts an enumerator yielding only slots strictly after t.
func EnumerateAfter(w ScheduleWindow, t time.Time) (*Enumerator, error) {
	if w.End.IsZero() {
		return nil, configErrorf("cannot enumerate an open-ended window")
	}
	e := &Enumerator{window: w, after: t}
	e.Reset()
	return e, nil
}

// Reset rewinds the enumerator to the start of the window.
func (e *Enumerator) Reset() {
	e.day = e.window.Start
	e.hourIdx = 0
	e.minute = 0
}

// Next returns the next slot, or false when the window is exhausted.
func (e *Enumerator) Next() (Slot, bool) {
	w := e.window
	var skipBefore time.Time
	if !e.after.IsZero() {
		skipBefore = truncateToDay(e.after.In(w.loc()))
	}
	for !e.day.After(w.End) {
		if !w.weekdayActive(e.day.Weekday()) || (!skipBefore.IsZero() && e.day.Before(skipBefore)) {
			e.nextDay()
			continue
		}

		hour := w.Hours[e.hourIdx]
		slot := Slot{
			TS:      time.Date(e.day.Year(), e.day.Month(), e.day.Day(), hour, e.minute, 0, 0, w.loc()),
			HeatSeq: e.hourIdx + 1,
		}
		slot.HeatID = FormatHeatID(e.day, slot.HeatSeq)

		e.minute++
		if e.minute == minutesPerHour {
			e.minute = 0
			e.hourIdx++
			if e.hourIdx == len(w.Hours) {
				e.nextDay()
			}
		}

		if !e.after.IsZero() && !slot.TS.After(e.after) {
			continue
		}
		return slot, true
	}
	return Slot{}, false
}

func (e *Enumerator) nextDay() {
	e.day = time.Date(e.day.Year(), e.day.Month(), e.day.Day()+1, 0, 0, 0, 0, e.window.loc())
	e.hourIdx = 0
	e.minute = 0
}

func dateIn(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

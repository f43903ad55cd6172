package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, e *Enumerator) []Slot {
	t.Helper()
	var slots []Slot
	for {
		s, ok := e.Next()
		if !ok {
			return slots
		}
		slots = append(slots, s)
	}
}

func TestEnumerateCoversActiveMinutesInOrder(t *testing.T) {
	// 2025-03-01 is a Saturday, 03-02 Sunday, 03-03 Monday.
	w, err := NewScheduleWindow(date(2025, 3, 1), date(2025, 3, 4), workWeek, []int{9, 10, 11}, time.UTC)
	require.NoError(t, err)

	e, err := Enumerate(w)
	require.NoError(t, err)
	slots := collect(t, e)

	// Sat, Mon, Tue qualify: 3 days x 3 hours x 60 minutes.
	require.Len(t, slots, 3*3*60)
	seen := make(map[time.Time]bool, len(slots))
	for i, s := range slots {
		assert.False(t, seen[s.TS], "duplicate %s", s.TS)
		seen[s.TS] = true
		if i > 0 {
			assert.True(t, s.TS.After(slots[i-1].TS), "not increasing at %d", i)
		}
		assert.NotEqual(t, time.Sunday, s.TS.Weekday())
		assert.True(t, w.Contains(s.TS))
	}
	assert.Equal(t, time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC), slots[0].TS)
	assert.Equal(t, time.Date(2025, 3, 4, 11, 59, 0, 0, time.UTC), slots[len(slots)-1].TS)
}

func TestEnumerateHeatIDsResetDaily(t *testing.T) {
	w, err := NewScheduleWindow(date(2025, 3, 3), date(2025, 3, 4), workWeek, []int{9, 10, 11}, time.UTC)
	require.NoError(t, err)
	e, err := Enumerate(w)
	require.NoError(t, err)
	slots := collect(t, e)
	require.Len(t, slots, 2*3*60)

	for i, s := range slots {
		day := i / 180
		seq := (i%180)/60 + 1
		assert.Equal(t, seq, s.HeatSeq)
		assert.Equal(t, FormatHeatID(date(2025, 3, 3+day), seq), s.HeatID)
	}
	assert.Equal(t, "HT_20250303_003", slots[179].HeatID)
	assert.Equal(t, "HT_20250304_001", slots[180].HeatID)
}

func TestEnumerateAfterResumesAndReset(t *testing.T) {
	w, err := NewScheduleWindow(date(2025, 3, 3), date(2025, 3, 4), workWeek, []int{9, 10}, time.UTC)
	require.NoError(t, err)

	resumeAt := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)
	e, err := EnumerateAfter(w, resumeAt)
	require.NoError(t, err)
	slots := collect(t, e)
	require.Len(t, slots, 29+120)
	assert.Equal(t, resumeAt.Add(time.Minute), slots[0].TS)

	e.Reset()
	first, ok := e.Next()
	require.True(t, ok)
	assert.Equal(t, resumeAt.Add(time.Minute), first.TS)
}

func TestEnumerateRejectsOpenWindow(t *testing.T) {
	w, err := NewScheduleWindow(date(2025, 3, 3), time.Time{}, workWeek, []int{9}, time.UTC)
	require.NoError(t, err)
	_, err = Enumerate(w)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewScheduleWindowValidation(t *testing.T) {
	_, err := NewScheduleWindow(date(2025, 3, 5), date(2025, 3, 4), workWeek, []int{9}, time.UTC)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewScheduleWindow(date(2025, 3, 1), date(2025, 3, 4), nil, []int{9}, time.UTC)
	assert.ErrorIs(t, err, ErrConfig)
	_, err = NewScheduleWindow(date(2025, 3, 1), date(2025, 3, 4), workWeek, []int{24}, time.UTC)
	assert.ErrorIs(t, err, ErrConfig)

	w, err := NewScheduleWindow(date(2025, 3, 1), date(2025, 3, 4), []time.Weekday{time.Tuesday, time.Monday, time.Monday}, []int{17, 9, 9}, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, []time.Weekday{time.Monday, time.Tuesday}, w.Weekdays)
	assert.Equal(t, []int{9, 17}, w.Hours)
}

func TestWindowContainsAndHeatID(t *testing.T) {
	w, err := NewScheduleWindow(date(2025, 3, 3), time.Time{}, workWeek, []int{9, 10, 14}, time.UTC)
	require.NoError(t, err)

	assert.True(t, w.Contains(time.Date(2030, 1, 7, 14, 5, 0, 0, time.UTC)), "open-ended window")
	assert.False(t, w.Contains(time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)), "before start")
	assert.False(t, w.Contains(time.Date(2025, 3, 9, 9, 0, 0, 0, time.UTC)), "sunday")
	assert.False(t, w.Contains(time.Date(2025, 3, 3, 12, 0, 0, 0, time.UTC)), "inactive hour")

	id, ok := w.HeatID(time.Date(2025, 3, 3, 14, 59, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, "HT_20250303_003", id)
	_, ok = w.HeatID(time.Date(2025, 3, 3, 11, 0, 0, 0, time.UTC))
	assert.False(t, ok)

	closed := w.WithEnd(date(2025, 3, 3))
	assert.False(t, closed.Contains(time.Date(2025, 3, 4, 9, 0, 0, 0, time.UTC)))
}

package slots

import (
	"iter"
	"slices"
	"time"

	"tutorbook/models"
)

// occurrenceStarts yields the start of every occurrence of slot that begins
// in [from, to), one day at a time. Nothing is materialised up front.
func occurrenceStarts(slot models.TeachingSlot, from, to time.Time) iter.Seq[time.Time] {
	return func(yield func(time.Time) bool) {
		start := slot.Start.UTC()
		if slot.Recurrence == nil {
			if !start.Before(from) && start.Before(to) {
				yield(start)
			}
			return
		}

		until := slot.Recurrence.Until.UTC()
		day := truncateDay(start)
		if f := truncateDay(from); f.After(day) {
			day = f
		}
		offset := start.Sub(truncateDay(start))
		for ; day.Before(to) && !day.After(until); day = day.AddDate(0, 0, 1) {
			if !slices.Contains(slot.Recurrence.Weekdays, day.Weekday()) {
				continue
			}
			occ := day.Add(offset)
			if occ.Before(start) || occ.Before(from) || !occ.Before(to) || occ.After(until) {
				continue
			}
			if !yield(occ) {
				return
			}
		}
	}
}

// isOccurrence reports whether t is the start of one of slot's occurrences.
func isOccurrence(slot models.TeachingSlot, t time.Time) bool {
	t = t.UTC()
	start := slot.Start.UTC()
	if slot.Recurrence == nil {
		return t.Equal(start)
	}
	if t.Before(start) || t.After(slot.Recurrence.Until.UTC()) {
		return false
	}
	if !slices.Contains(slot.Recurrence.Weekdays, t.Weekday()) {
		return false
	}
	return t.Sub(truncateDay(t)) == start.Sub(truncateDay(start))
}

func occurrenceOf(slot models.TeachingSlot, start time.Time) models.Occurrence {
	start = start.UTC()
	return models.Occurrence{
		Key:      models.OccurrenceKey(slot.ID, start),
		OwnerID:  slot.ID,
		TutorID:  slot.TutorID,
		Start:    start,
		End:      start.Add(slot.Duration()),
		Mode:     slot.Mode,
		Price:    slot.Price,
		Capacity: slot.Capacity,
		Status:   models.SlotOpen,
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

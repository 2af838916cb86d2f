package queue

import "github.com/auramed/opd-queue/internal/timemath"

const defaultSlotMinutes = 10

// SlotEntryKind distinguishes bookable slots from break gaps in a day plan.
type SlotEntryKind string

const (
	EntrySlot  SlotEntryKind = "SLOT"
	EntryBreak SlotEntryKind = "BREAK"
)

// SlotEntry is one interval of a session's day plan. Start and End are
// minutes since local midnight. Index is the 0-based slot index and is -1
// for break entries; slot indices are contiguous across SLOT entries.
type SlotEntry struct {
	Kind  SlotEntryKind
	Index int
	Start int
	End   int
}

// PlanSlots walks the session's working window and produces the ordered,
// immutable sequence of bookable slots and breaks for the day. The plan is
// deterministic for a given configuration and ignores booked state; callers
// intersect active tokens' slot indices against it to compute occupancy.
func PlanSlots(cfg SessionConfig) []SlotEntry {
	start := timemath.MinutesOfDay(cfg.StartTimeLocal)
	end := timemath.MinutesOfDay(cfg.EndTimeLocal)
	if end <= start {
		end = start + 60
	}

	slotMinutes := cfg.SlotMinutes
	if slotMinutes <= 0 {
		slotMinutes = defaultSlotMinutes
	}
	buffer := cfg.MicroBufferMinutes
	if buffer < 0 {
		buffer = 0
	}

	var entries []SlotEntry
	cursor := start
	index := 0
	sinceBreak := 0

	for cursor+slotMinutes <= end {
		entries = append(entries, SlotEntry{
			Kind:  EntrySlot,
			Index: index,
			Start: cursor,
			End:   cursor + slotMinutes,
		})
		cursor += slotMinutes + buffer
		index++
		sinceBreak++

		if cfg.BreakEveryN > 0 && cfg.BreakMinutes > 0 && sinceBreak >= cfg.BreakEveryN {
			if cursor+cfg.BreakMinutes > end {
				break
			}
			entries = append(entries, SlotEntry{
				Kind:  EntryBreak,
				Index: -1,
				Start: cursor,
				End:   cursor + cfg.BreakMinutes,
			})
			cursor += cfg.BreakMinutes
			sinceBreak = 0
		}
	}

	return entries
}

// SlotCount returns the number of bookable slots in a plan.
func SlotCount(entries []SlotEntry) int {
	n := 0
	for _, e := range entries {
		if e.Kind == EntrySlot {
			n++
		}
	}
	return n
}

// FindSlot returns the SLOT entry with the given index, if any.
func FindSlot(entries []SlotEntry, index int) (SlotEntry, bool) {
	for _, e := range entries {
		if e.Kind == EntrySlot && e.Index == index {
			return e, true
		}
	}
	return SlotEntry{}, false
}

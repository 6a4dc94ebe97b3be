package slots

import (
	"time"

	"github.com/google/uuid"
)

// Occupant is the part of an appointment that matters for occupancy.
type Occupant struct {
	ID              uuid.UUID
	MechanicID      *uuid.UUID
	Start           time.Time
	DurationMinutes int
	Cancelled       bool
}

func (o Occupant) End() time.Time {
	return o.Start.Add(time.Duration(ClampDuration(o.DurationMinutes)) * time.Minute)
}

type Occupancy struct {
	Slot     Slot
	Count    int
	Capacity int
	// Peak is the most occupants running at the same instant inside the slot,
	// including ones that started earlier and are still going.
	Peak int

	busy map[uuid.UUID]struct{}
}

// Measure counts the non-cancelled occupants whose start falls in [slot.Start, slot.End).
// An occupant starting exactly at slot.End belongs to the next slot.
//
// A mechanic is busy when any of their non-cancelled occupants overlaps the slot window,
// which for same-length slots is the same set as the counted ones.
//
// Peak covers appointments of other lengths: three 120 minute jobs at 08:00 leave
// no room in a 60 minute slot at 09:00 even though none of them starts there.
//
// exclude skips one occupant, used when an existing appointment is re-validated against
// its own day; pass uuid.Nil to count everything.
func Measure(slot Slot, occupants []Occupant, exclude uuid.UUID) Occupancy {
	occ := Occupancy{
		Slot:     slot,
		Capacity: Capacity,
		busy:     make(map[uuid.UUID]struct{}),
	}

	live := make([]Occupant, 0, len(occupants))
	for _, o := range occupants {
		if o.Cancelled {
			continue
		}
		if exclude != uuid.Nil && o.ID == exclude {
			continue
		}
		live = append(live, o)

		if !o.Start.Before(slot.Start) && o.Start.Before(slot.End) {
			occ.Count++
		}

		if o.MechanicID != nil && o.Start.Before(slot.End) && o.End().After(slot.Start) {
			occ.busy[*o.MechanicID] = struct{}{}
		}
	}

	occ.Peak = peak(slot, live)
	return occ
}

// peak checks the slot start and every start inside the slot; concurrency only rises at those points.
func peak(slot Slot, live []Occupant) int {
	points := []time.Time{slot.Start}
	for _, o := range live {
		if o.Start.After(slot.Start) && o.Start.Before(slot.End) {
			points = append(points, o.Start)
		}
	}

	top := 0
	for _, t := range points {
		n := 0
		for _, o := range live {
			if !o.Start.After(t) && o.End().After(t) {
				n++
			}
		}
		if n > top {
			top = n
		}
	}
	return top
}

// Full reports a slot that takes no more bookings, either by starts inside it or by
// appointments overlapping it.
func (o Occupancy) Full() bool {
	return o.Count >= o.Capacity || o.Peak >= o.Capacity
}

func (o Occupancy) Available() int {
	used := o.Count
	if o.Peak > used {
		used = o.Peak
	}
	if used >= o.Capacity {
		return 0
	}
	return o.Capacity - used
}

func (o Occupancy) MechanicBusy(id uuid.UUID) bool {
	_, ok := o.busy[id]
	return ok
}

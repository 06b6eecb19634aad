package model

// ConflictSet groups every commitment that intersects a window.
type ConflictSet struct {
	Reservations []Reservation  `json:"reservations"`
	EventBlocks  []Reservation  `json:"event_blocks"`
	Closures     []SpaceClosure `json:"closures"`
}

// Empty reports whether nothing conflicts.
func (c ConflictSet) Empty() bool {
	return c.Count() == 0
}

// Count returns the number of conflicting commitments.
func (c ConflictSet) Count() int {
	return len(c.Reservations) + len(c.EventBlocks) + len(c.Closures)
}

// Intervals flattens the set into busy ranges.
func (c ConflictSet) Intervals() []Interval {
	out := make([]Interval, 0, c.Count())
	for i := range c.Reservations {
		out = append(out, c.Reservations[i].Interval())
	}
	for i := range c.EventBlocks {
		out = append(out, c.EventBlocks[i].Interval())
	}
	for i := range c.Closures {
		out = append(out, c.Closures[i].Interval())
	}
	return out
}

// Minus returns the commitments of c that are not in other, matched by id.
func (c ConflictSet) Minus(other ConflictSet) ConflictSet {
	seenRes := make(map[int64]struct{}, len(other.Reservations)+len(other.EventBlocks))
	for _, r := range other.Reservations {
		seenRes[r.ID] = struct{}{}
	}
	for _, r := range other.EventBlocks {
		seenRes[r.ID] = struct{}{}
	}
	seenClosures := make(map[int64]struct{}, len(other.Closures))
	for _, cl := range other.Closures {
		seenClosures[cl.ID] = struct{}{}
	}

	var out ConflictSet
	for _, r := range c.Reservations {
		if _, ok := seenRes[r.ID]; !ok {
			out.Reservations = append(out.Reservations, r)
		}
	}
	for _, r := range c.EventBlocks {
		if _, ok := seenRes[r.ID]; !ok {
			out.EventBlocks = append(out.EventBlocks, r)
		}
	}
	for _, cl := range c.Closures {
		if _, ok := seenClosures[cl.ID]; !ok {
			out.Closures = append(out.Closures, cl)
		}
	}
	return out
}

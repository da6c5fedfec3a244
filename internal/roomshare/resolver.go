package roomshare

// Resolver answers availability questions over a room calendar. Calendars
// passed to it must be ordered by check-in and free of overlaps, which is
// what Ledger maintains.
type Resolver struct {
	horizon Day
}

func NewResolver(horizonDays int) *Resolver {
	return &Resolver{horizon: Day(horizonDays)}
}

func (r *Resolver) Conflicts(calendar []DayRange, requested DayRange) bool {
	for _, b := range calendar {
		if b.CheckIn >= requested.CheckOut {
			break
		}

		if b.Overlaps(requested) {
			return true
		}
	}

	return false
}

// Resolve reports whether requested is free. If it is, the window returned is
// the free gap enclosing it. If one booking is in the way, the window starts
// at the first free day after that booking and runs to the next check-in or
// the horizon. A request spanning several bookings gets the first free gap
// ending after its check-in. When nothing is free past the conflict, the last
// gap of the horizon is returned.
func (r *Resolver) Resolve(calendar []DayRange, requested DayRange) (Recommendation, error) {
	gaps := r.gaps(calendar)
	if len(gaps) == 0 {
		return Recommendation{}, ErrNoAvailableWindow
	}

	conflicting := r.conflicting(calendar, requested)
	if len(conflicting) == 0 {
		for _, gap := range gaps {
			if gap.Contains(requested) {
				return Recommendation{Available: true, Window: gap}, nil
			}
		}

		// Only reachable for a range outside the horizon.
		return Recommendation{Available: true, Window: requested}, nil
	}

	if len(conflicting) == 1 {
		from := conflicting[0].CheckOut

		for _, gap := range gaps {
			if gap.CheckIn >= from {
				return Recommendation{Window: gap}, nil
			}
		}

		return Recommendation{Window: gaps[len(gaps)-1]}, nil
	}

	for _, gap := range gaps {
		if gap.CheckOut > requested.CheckIn {
			return Recommendation{Window: gap}, nil
		}
	}

	return Recommendation{Window: gaps[len(gaps)-1]}, nil
}

func (r *Resolver) conflicting(calendar []DayRange, requested DayRange) []DayRange {
	var out []DayRange

	for _, b := range calendar {
		if b.CheckIn >= requested.CheckOut {
			break
		}

		if b.Overlaps(requested) {
			out = append(out, b)
		}
	}

	return out
}

// gaps lists the free intervals of [0, horizon) in ascending order.
func (r *Resolver) gaps(calendar []DayRange) []DayRange {
	var (
		out    []DayRange
		cursor Day
	)

	for _, b := range calendar {
		if b.CheckIn > cursor {
			out = append(out, DayRange{CheckIn: cursor, CheckOut: min(b.CheckIn, r.horizon)})
		}

		cursor = max(cursor, b.CheckOut)

		if cursor >= r.horizon {
			break
		}
	}

	if cursor < r.horizon {
		out = append(out, DayRange{CheckIn: cursor, CheckOut: r.horizon})
	}

	return out
}

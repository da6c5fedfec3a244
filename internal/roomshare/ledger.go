package roomshare

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"
)

// Ledger owns the bookings. Each room has a calendar, which the resolver
// checks for conflicts and which a reset empties, and a history, which only
// ever grows. Like Registry it relies on the Engine for serialization.
type Ledger struct {
	idGenerator idGenerator
	calendars   map[RoomID][]*Booking
	history     map[RoomID][]*Booking
	all         []*Booking
	byID        map[BookingID]*Booking
}

func NewLedger(idGenerator idGenerator) *Ledger {
	return &Ledger{
		idGenerator: idGenerator,
		calendars:   make(map[RoomID][]*Booking),
		history:     make(map[RoomID][]*Booking),
		byID:        make(map[BookingID]*Booking),
	}
}

// AddBooking records a booking. The range must already be free; a range that
// overlaps the calendar is refused with ErrDateConflict.
func (l *Ledger) AddBooking(
	ctx context.Context,
	roomID RoomID,
	renter Identity,
	dates DayRange,
	amountPaid int64,
	at time.Time,
) (Booking, error) {
	calendar := l.calendars[roomID]

	for _, b := range calendar {
		if b.Range().Overlaps(dates) {
			return Booking{}, fmt.Errorf("booking %d holds [%d, %d): %w", b.ID, b.CheckInDate, b.CheckOutDate, ErrDateConflict)
		}
	}

	id, err := l.reserveID(ctx, 0)
	if err != nil {
		return Booking{}, err
	}

	return l.insert(id, roomID, renter, dates, amountPaid, at), nil
}

func (l *Ledger) reserveID(ctx context.Context, want BookingID) (BookingID, error) {
	id, err := reserveID(ctx, l.idGenerator, int(want))

	return BookingID(id), err
}

// insert stores a booking under an id taken from reserveID. The caller has
// already checked the range against the calendar.
func (l *Ledger) insert(
	id BookingID,
	roomID RoomID,
	renter Identity,
	dates DayRange,
	amountPaid int64,
	at time.Time,
) Booking {
	calendar := l.calendars[roomID]

	booking := &Booking{
		ID:           id,
		RoomID:       roomID,
		CheckInDate:  dates.CheckIn,
		CheckOutDate: dates.CheckOut,
		Renter:       renter,
		AmountPaid:   amountPaid,
		CreatedAt:    at,
	}

	pos := sort.Search(len(calendar), func(i int) bool {
		return calendar[i].CheckInDate >= booking.CheckInDate
	})

	l.calendars[roomID] = slices.Insert(calendar, pos, booking)
	l.history[roomID] = append(l.history[roomID], booking)
	l.all = append(l.all, booking)
	l.byID[booking.ID] = booking

	return *booking
}

// ClearRoom frees every calendar entry of the room lying inside
// [0, horizonDays) and reports how many were freed. History is kept.
func (l *Ledger) ClearRoom(roomID RoomID, horizonDays int) int {
	window := DayRange{CheckIn: 0, CheckOut: Day(horizonDays)}
	calendar := l.calendars[roomID]
	kept := make([]*Booking, 0, len(calendar))

	for _, b := range calendar {
		if window.Contains(b.Range()) {
			continue
		}

		kept = append(kept, b)
	}

	l.calendars[roomID] = kept

	return len(calendar) - len(kept)
}

// ListBookingsForRoom returns the room calendar ordered by check-in.
func (l *Ledger) ListBookingsForRoom(roomID RoomID) []Booking {
	return copyBookings(l.calendars[roomID])
}

func (l *Ledger) ListBookingsForRenter(renter Identity) []Booking {
	out := make([]Booking, 0)

	for _, b := range l.all {
		if b.Renter == renter {
			out = append(out, *b)
		}
	}

	return out
}

// History returns every booking ever made for the room in creation order.
func (l *Ledger) History(roomID RoomID) []Booking {
	return copyBookings(l.history[roomID])
}

func (l *Ledger) Booking(id BookingID) (Booking, bool) {
	b, ok := l.byID[id]
	if !ok {
		return Booking{}, false
	}

	return *b, true
}

func (l *Ledger) calendar(roomID RoomID) []DayRange {
	calendar := l.calendars[roomID]
	out := make([]DayRange, 0, len(calendar))

	for _, b := range calendar {
		out = append(out, b.Range())
	}

	return out
}

func copyBookings(in []*Booking) []Booking {
	out := make([]Booking, 0, len(in))
	for _, b := range in {
		out = append(out, *b)
	}

	return out
}

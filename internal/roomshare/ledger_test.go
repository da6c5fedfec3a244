package roomshare

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/avstrong/roomshare/internal/idgen/simple"
)

var fixedTime = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func newCounter() idGenerator {
	return simple.New()
}

func TestLedgerAddBooking(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newCounter())

	second, err := l.AddBooking(ctx, 1, "bob", DayRange{CheckIn: 20, CheckOut: 30}, 100, fixedTime)
	require.NoError(t, err)
	first, err := l.AddBooking(ctx, 1, "carol", DayRange{CheckIn: 5, CheckOut: 10}, 50, fixedTime)
	require.NoError(t, err)
	_, err = l.AddBooking(ctx, 2, "bob", DayRange{CheckIn: 5, CheckOut: 10}, 50, fixedTime)
	require.NoError(t, err, "rooms have separate calendars")

	_, err = l.AddBooking(ctx, 1, "dave", DayRange{CheckIn: 25, CheckOut: 35}, 100, fixedTime)
	require.ErrorIs(t, err, ErrDateConflict)

	calendar := l.ListBookingsForRoom(1)
	require.Len(t, calendar, 2)
	assert.Equal(t, first.ID, calendar[0].ID, "calendar is ordered by check-in")
	assert.Equal(t, second.ID, calendar[1].ID)

	history := l.History(1)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID, "history is ordered by creation")

	got, ok := l.Booking(first.ID)
	require.True(t, ok)
	assert.Equal(t, first, got)

	_, ok = l.Booking(99)
	assert.False(t, ok)

	assert.Len(t, l.ListBookingsForRenter("bob"), 2)
	assert.Empty(t, l.ListBookingsForRenter("erin"))
}

func TestLedgerClearRoom(t *testing.T) {
	ctx := context.Background()
	l := NewLedger(newCounter())

	for _, dates := range days(0, 10, 10, 20, 90, 110) {
		_, err := l.AddBooking(ctx, 1, "bob", dates, 0, fixedTime)
		require.NoError(t, err)
	}

	_, err := l.AddBooking(ctx, 2, "bob", DayRange{CheckIn: 0, CheckOut: 10}, 0, fixedTime)
	require.NoError(t, err)

	assert.Equal(t, 2, l.ClearRoom(1, 100))
	assert.Equal(t, days(90, 110), l.calendar(1))
	assert.Len(t, l.History(1), 3)
	assert.Len(t, l.ListBookingsForRoom(2), 1)

	assert.Equal(t, 0, l.ClearRoom(1, 100))
	assert.Equal(t, 1, l.ClearRoom(1, 365))
	assert.Empty(t, l.calendar(1))
}

func TestLedgerCalendarNeverOverlaps(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := NewLedger(newCounter())

		for _, dates := range rapid.SliceOfN(genRange(100), 1, 30).Draw(t, "attempts") {
			_, _ = l.AddBooking(context.Background(), 1, "renter", dates, 0, fixedTime)
		}

		calendar := l.calendar(1)
		for i := 1; i < len(calendar); i++ {
			require.LessOrEqual(t, calendar[i-1].CheckOut, calendar[i].CheckIn, "%v", calendar)
		}

		require.Len(t, l.History(1), len(calendar))
	})
}

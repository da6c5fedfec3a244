package roomshare

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(newCounter())

	first, err := r.CreateRoom(ctx, "alice", ShareRoomInput{Name: "Loft", Location: "Porto", Price: 7})
	require.NoError(t, err)
	second, err := r.CreateRoom(ctx, "bob", ShareRoomInput{Name: "Cabin", Location: "Braga", Price: 3})
	require.NoError(t, err)

	assert.Equal(t, RoomID(1), first)
	assert.Equal(t, RoomID(2), second)

	_, err = r.CreateRoom(ctx, "alice", ShareRoomInput{Name: "Loft", Location: "Porto"})
	require.ErrorIs(t, err, ErrInvalidPrice)

	require.ErrorIs(t, r.SetActive("bob", first, false), ErrNotOwner)
	require.ErrorIs(t, r.SetActive("alice", 3, false), ErrRoomNotFound)
	require.NoError(t, r.SetActive("alice", first, false))

	room, err := r.GetRoom(first)
	require.NoError(t, err)
	assert.False(t, room.IsActive)
	assert.Equal(t, Identity("alice"), room.Owner)

	_, err = r.GetRoom(3)
	require.ErrorIs(t, err, ErrRoomNotFound)

	rooms := r.ListRooms()
	require.Len(t, rooms, 2)
	assert.Equal(t, first, rooms[0].ID)
	assert.Equal(t, second, rooms[1].ID)

	rooms[0].Price = 1000
	room, err = r.GetRoom(first)
	require.NoError(t, err)
	assert.Equal(t, int64(7), room.Price, "listing returns copies")
}

func TestReserveID(t *testing.T) {
	ctx := context.Background()
	gen := newCounter()

	id, err := reserveID(ctx, gen, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	id, err = reserveID(ctx, gen, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, id, "ids 2 and 3 are skipped")

	_, err = reserveID(ctx, gen, 4)
	require.ErrorIs(t, err, ErrLogic)
}

func TestStayCost(t *testing.T) {
	cost, err := stayCost(4, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(100), cost)

	cost, err = stayCost(1, math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), cost)

	_, err = stayCost(4, (1<<62)+1)
	require.ErrorIs(t, err, ErrInsufficientPayment)

	_, err = stayCost(2, math.MaxInt64/2+1)
	require.ErrorIs(t, err, ErrInsufficientPayment)
}

package roomshare

import (
	"context"
	"fmt"
	"strings"
)

type idGenerator interface {
	GetID(ctx context.Context) (int, error)
}

// reserveID draws the next id from gen. A non-zero want names the id a
// replayed operation was given; ids handed out to operations that failed
// before they were journaled are skipped on the way to it.
func reserveID(ctx context.Context, gen idGenerator, want int) (int, error) {
	for {
		id, err := gen.GetID(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", err, ErrNextID)
		}

		if want == 0 || id == want {
			return id, nil
		}

		if id > want {
			return 0, fmt.Errorf("generator is at %d past journaled id %d: %w", id, want, ErrLogic)
		}
	}
}

// Registry owns the rooms. It is not safe for concurrent use; the Engine
// serializes access to it.
type Registry struct {
	idGenerator idGenerator
	rooms       []*Room
	byID        map[RoomID]*Room
}

func NewRegistry(idGenerator idGenerator) *Registry {
	return &Registry{
		idGenerator: idGenerator,
		byID:        make(map[RoomID]*Room),
	}
}

func (in *ShareRoomInput) validate(owner Identity) error {
	if !owner.Valid() {
		return ErrInvalidIdentity
	}

	if in.Price <= 0 {
		return fmt.Errorf("price %d: %w", in.Price, ErrInvalidPrice)
	}

	inputErr := newInputError()

	if strings.TrimSpace(in.Name) == "" {
		inputErr.addError("name", "provide room name")
	}

	if strings.TrimSpace(in.Location) == "" {
		inputErr.addError("location", "provide room location")
	}

	return inputErr.orNil()
}

func (r *Registry) CreateRoom(ctx context.Context, owner Identity, in ShareRoomInput) (RoomID, error) {
	if err := in.validate(owner); err != nil {
		return 0, err
	}

	id, err := r.reserveID(ctx, 0)
	if err != nil {
		return 0, err
	}

	return r.addRoom(id, owner, in), nil
}

func (r *Registry) reserveID(ctx context.Context, want RoomID) (RoomID, error) {
	id, err := reserveID(ctx, r.idGenerator, int(want))

	return RoomID(id), err
}

// addRoom stores a validated room under an id taken from reserveID.
func (r *Registry) addRoom(id RoomID, owner Identity, in ShareRoomInput) RoomID {
	room := &Room{
		ID:       id,
		Name:     in.Name,
		Location: in.Location,
		Owner:    owner,
		Price:    in.Price,
		IsActive: true,
	}

	r.rooms = append(r.rooms, room)
	r.byID[room.ID] = room

	return room.ID
}

func (r *Registry) SetActive(caller Identity, roomID RoomID, active bool) error {
	room, ok := r.byID[roomID]
	if !ok {
		return fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}

	if room.Owner != caller {
		return fmt.Errorf("room %d: %w", roomID, ErrNotOwner)
	}

	room.IsActive = active

	return nil
}

func (r *Registry) GetRoom(roomID RoomID) (Room, error) {
	room, ok := r.byID[roomID]
	if !ok {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrRoomNotFound)
	}

	return *room, nil
}

// ListRooms returns every room, active or not, in creation order.
func (r *Registry) ListRooms() []Room {
	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}

	return out
}

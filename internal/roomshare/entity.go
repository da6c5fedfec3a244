package roomshare

import "time"

// Identity is the account address of a caller. Identities are compared
// byte-for-byte; no case folding or trimming is applied.
type Identity string

func (id Identity) Valid() bool {
	return id != ""
}

// Day is an offset inside the booking horizon.
type Day int

type RoomID int

type BookingID int

// DayRange is the half-open interval [CheckIn, CheckOut).
type DayRange struct {
	CheckIn  Day `json:"checkInDate"`
	CheckOut Day `json:"checkOutDate"`
}

func (r DayRange) Nights() int {
	return int(r.CheckOut - r.CheckIn)
}

func (r DayRange) Overlaps(o DayRange) bool {
	return r.CheckIn < o.CheckOut && o.CheckIn < r.CheckOut
}

func (r DayRange) Contains(o DayRange) bool {
	return r.CheckIn <= o.CheckIn && o.CheckOut <= r.CheckOut
}

type Room struct {
	ID       RoomID   `json:"id"`
	Name     string   `json:"name"`
	Location string   `json:"location"`
	Owner    Identity `json:"owner"`
	Price    int64    `json:"price"`
	IsActive bool     `json:"isActive"`
}

type Booking struct {
	ID           BookingID `json:"id"`
	RoomID       RoomID    `json:"rId"`
	CheckInDate  Day       `json:"checkInDate"`
	CheckOutDate Day       `json:"checkOutDate"`
	Renter       Identity  `json:"renter"`
	AmountPaid   int64     `json:"amountPaid"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (b *Booking) Range() DayRange {
	return DayRange{CheckIn: b.CheckInDate, CheckOut: b.CheckOutDate}
}

// Recommendation is the answer of the availability resolver. When Available
// is true Window encloses the requested range; otherwise Window is the free
// gap suggested instead.
type Recommendation struct {
	Available bool     `json:"available"`
	Window    DayRange `json:"window"`
}

type ShareRoomInput struct {
	Name     string
	Location string
	Price    int64
}

type RentRoomInput struct {
	RoomID  RoomID
	Dates   DayRange
	Payment int64
}

type OperationKind string

const (
	OpShareRoom      OperationKind = "share_room"
	OpRentRoom       OperationKind = "rent_room"
	OpSetRoomActive  OperationKind = "set_room_active"
	OpInitializeRoom OperationKind = "initialize_room"
)

// Operation is a committed mutation as recorded in the journal. Only the
// fields relevant to Kind are set.
type Operation struct {
	Seq         int64
	Kind        OperationKind
	Caller      Identity
	RoomID      RoomID
	BookingID   BookingID
	Name        string
	Location    string
	Price       int64
	Dates       DayRange
	Payment     int64
	Active      bool
	HorizonDays int
	At          time.Time
}

package roomshare

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/avstrong/roomshare/internal/logger"
)

// EscrowAccount receives rent payments before they are split between the
// owner and the refund. With refunds disabled the excess stays here.
const EscrowAccount Identity = "roomshare:escrow"

const DefaultHorizonDays = 365

var ErrLogic = errors.New("logic error")

type accounts interface {
	BeginTransaction(ctx context.Context, level string) (context.Context, error)
	CommitTransaction(ctx context.Context) error
	RollbackTransaction(ctx context.Context) error
	Transfer(ctx context.Context, from, to Identity, amount int64) error
	Balance(ctx context.Context, who Identity) (int64, error)
}

type journal interface {
	Append(ctx context.Context, op *Operation) error
}

type idempotencyStore interface {
	Get(key string) (BookingID, bool)
	Put(key string, id BookingID)
}

type Config struct {
	HorizonDays  int
	RefundExcess bool
	RoomIDs      idGenerator
	BookingIDs   idGenerator
	Accounts     accounts
	// Journal and Idempotency are optional.
	Journal     journal
	Idempotency idempotencyStore
	Now         func() time.Time
	// MeterProvider defaults to the global one.
	MeterProvider metric.MeterProvider
}

type Engine struct {
	mu        sync.RWMutex
	l         *logger.Logger
	registry  *Registry
	ledger    *Ledger
	resolver  *Resolver
	accounts  accounts
	journal   journal
	idem      idempotencyStore
	horizon   int
	refund    bool
	now       func() time.Time
	replaying bool

	tracer    trace.Tracer
	shared    metric.Int64Counter
	booked    metric.Int64Counter
	conflicts metric.Int64Counter
}

func New(l *logger.Logger, conf Config) (*Engine, error) {
	if conf.RoomIDs == nil || conf.BookingIDs == nil {
		return nil, fmt.Errorf("id generators are required: %w", ErrLogic)
	}

	if conf.Accounts == nil {
		return nil, fmt.Errorf("accounts storage is required: %w", ErrLogic)
	}

	if conf.HorizonDays <= 0 {
		conf.HorizonDays = DefaultHorizonDays
	}

	if conf.Now == nil {
		conf.Now = func() time.Time { return time.Now().UTC() }
	}

	if conf.MeterProvider == nil {
		conf.MeterProvider = otel.GetMeterProvider()
	}

	e := &Engine{
		l:        l,
		registry: NewRegistry(conf.RoomIDs),
		ledger:   NewLedger(conf.BookingIDs),
		resolver: NewResolver(conf.HorizonDays),
		accounts: conf.Accounts,
		journal:  conf.Journal,
		idem:     conf.Idempotency,
		horizon:  conf.HorizonDays,
		refund:   conf.RefundExcess,
		now:      conf.Now,
		tracer:   otel.Tracer("github.com/avstrong/roomshare/internal/roomshare"),
	}

	meter := conf.MeterProvider.Meter("github.com/avstrong/roomshare/internal/roomshare")

	var err error

	if e.shared, err = meter.Int64Counter("roomshare.rooms.shared",
		metric.WithDescription("Rooms shared")); err != nil {
		return nil, fmt.Errorf("create rooms counter: %w", err)
	}

	if e.booked, err = meter.Int64Counter("roomshare.bookings.created",
		metric.WithDescription("Bookings created")); err != nil {
		return nil, fmt.Errorf("create bookings counter: %w", err)
	}

	if e.conflicts, err = meter.Int64Counter("roomshare.bookings.conflicts",
		metric.WithDescription("Rent attempts refused for overlapping dates")); err != nil {
		return nil, fmt.Errorf("create conflicts counter: %w", err)
	}

	return e, nil
}

func (e *Engine) HorizonDays() int {
	return e.horizon
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.End()
}

func (e *Engine) record(ctx context.Context, op *Operation) error {
	if e.replaying || e.journal == nil {
		return nil
	}

	if err := e.journal.Append(ctx, op); err != nil {
		return fmt.Errorf("append %s to journal: %w", op.Kind, err)
	}

	return nil
}

func (e *Engine) validateDates(dates DayRange) error {
	inputErr := newInputError()

	if dates.CheckIn < 0 {
		inputErr.addError("checkInDate", "checkInDate must not be negative")
	}

	if dates.CheckOut > Day(e.horizon) {
		inputErr.addError("checkOutDate", fmt.Sprintf("checkOutDate must not exceed %d", e.horizon))
	}

	if dates.CheckIn >= dates.CheckOut {
		inputErr.addError("checkInDate", "checkInDate must be before checkOutDate")
	}

	return inputErr.orNil()
}

func (e *Engine) ownedRoom(caller Identity, roomID RoomID) (Room, error) {
	room, err := e.registry.GetRoom(roomID)
	if err != nil {
		return Room{}, err
	}

	if room.Owner != caller {
		return Room{}, fmt.Errorf("room %d: %w", roomID, ErrNotOwner)
	}

	return room, nil
}

func (e *Engine) ShareRoom(ctx context.Context, caller Identity, in ShareRoomInput) (_ RoomID, err error) {
	ctx, span := e.tracer.Start(ctx, "roomshare.share_room",
		trace.WithAttributes(attribute.Int64("room.price", in.Price)),
	)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	id, err := e.shareRoom(ctx, &Operation{
		Kind:     OpShareRoom,
		Caller:   caller,
		Name:     in.Name,
		Location: in.Location,
		Price:    in.Price,
		At:       e.now(),
	})
	if err != nil {
		return 0, err
	}

	e.shared.Add(ctx, 1)
	e.l.LogInfo("Room %d has been shared by %s", id, caller)

	return id, nil
}

func (e *Engine) shareRoom(ctx context.Context, op *Operation) (RoomID, error) {
	in := ShareRoomInput{Name: op.Name, Location: op.Location, Price: op.Price}
	if err := in.validate(op.Caller); err != nil {
		return 0, err
	}

	// A stay can never cost more than an int64 holds.
	if maxPrice := math.MaxInt64 / int64(e.horizon); in.Price > maxPrice {
		return 0, fmt.Errorf("price %d above %d: %w", in.Price, maxPrice, ErrInvalidPrice)
	}

	id, err := e.registry.reserveID(ctx, op.RoomID)
	if err != nil {
		return 0, fmt.Errorf("reserve room id: %w", err)
	}

	op.RoomID = id

	if err := e.record(ctx, op); err != nil {
		return 0, err
	}

	return e.registry.addRoom(id, op.Caller, in), nil
}

func stayCost(nights int, price int64) (int64, error) {
	if nights > 0 && price > math.MaxInt64/int64(nights) {
		return 0, fmt.Errorf("%d nights at %d overflow: %w", nights, price, ErrInsufficientPayment)
	}

	return int64(nights) * price, nil
}

//nolint:funlen // linear flow
func (e *Engine) RentRoom(ctx context.Context, caller Identity, in RentRoomInput) (_ Booking, err error) {
	ctx, span := e.tracer.Start(ctx, "roomshare.rent_room",
		trace.WithAttributes(
			attribute.Int("room.id", int(in.RoomID)),
			attribute.Int("booking.check_in", int(in.Dates.CheckIn)),
			attribute.Int("booking.check_out", int(in.Dates.CheckOut)),
			attribute.Int64("booking.payment", in.Payment),
		),
	)
	defer func() { endSpan(span, err) }()

	if !caller.Valid() {
		return Booking{}, ErrInvalidIdentity
	}

	key, hasKey := IdempotencyKeyFromContext(ctx)
	key = fmt.Sprintf("%s/%s", caller, key)

	e.mu.Lock()
	defer e.mu.Unlock()

	if hasKey && e.idem != nil {
		if id, ok := e.idem.Get(key); ok {
			if booking, ok := e.ledger.Booking(id); ok {
				span.SetAttributes(attribute.Bool("idempotent.replay", true))

				return booking, nil
			}
		}
	}

	booking, err := e.rentRoom(ctx, &Operation{
		Kind:    OpRentRoom,
		Caller:  caller,
		RoomID:  in.RoomID,
		Dates:   in.Dates,
		Payment: in.Payment,
		At:      e.now(),
	})
	if err != nil {
		if errors.Is(err, ErrDateConflict) {
			e.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.Int("room.id", int(in.RoomID))))
		}

		return Booking{}, err
	}

	if hasKey && e.idem != nil {
		e.idem.Put(key, booking.ID)
	}

	e.booked.Add(ctx, 1, metric.WithAttributes(attribute.Int("room.id", int(in.RoomID))))
	e.l.LogInfo("Room %d has been rented by %s for days [%d, %d), booking %d",
		booking.RoomID, caller, booking.CheckInDate, booking.CheckOutDate, booking.ID)

	return booking, nil
}

func (e *Engine) rentRoom(ctx context.Context, op *Operation) (Booking, error) {
	room, err := e.registry.GetRoom(op.RoomID)
	if err != nil {
		return Booking{}, err
	}

	if !room.IsActive {
		return Booking{}, fmt.Errorf("room %d: %w", room.ID, ErrRoomInactive)
	}

	if err := e.validateDates(op.Dates); err != nil {
		return Booking{}, err
	}

	expected, err := stayCost(op.Dates.Nights(), room.Price)
	if err != nil {
		return Booking{}, err
	}

	if op.Payment < expected {
		return Booking{}, fmt.Errorf("paid %d, stay costs %d: %w", op.Payment, expected, ErrInsufficientPayment)
	}

	rec, err := e.resolver.Resolve(e.ledger.calendar(room.ID), op.Dates)
	if errors.Is(err, ErrNoAvailableWindow) {
		return Booking{}, &DateConflictError{RoomID: room.ID, Requested: op.Dates}
	}

	if err != nil {
		return Booking{}, fmt.Errorf("resolve availability: %w", err)
	}

	if !rec.Available {
		window := rec.Window

		return Booking{}, &DateConflictError{RoomID: room.ID, Requested: op.Dates, Recommended: &window}
	}

	id, err := e.ledger.reserveID(ctx, op.BookingID)
	if err != nil {
		return Booking{}, fmt.Errorf("reserve booking id: %w", err)
	}

	op.BookingID = id

	if err := e.settle(ctx, op, room, expected); err != nil {
		return Booking{}, err
	}

	return e.ledger.insert(id, room.ID, op.Caller, op.Dates, expected, op.At), nil
}

// settle moves the payment through escrow to the owner, refunds any excess
// and journals the operation, all inside one accounts transaction.
func (e *Engine) settle(ctx context.Context, op *Operation, room Room, expected int64) (err error) {
	ctx, err = e.accounts.BeginTransaction(ctx, "SERIALIZABLE")
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			if rbErr := e.accounts.RollbackTransaction(ctx); rbErr != nil {
				e.l.LogErrorf("Could not rollback settlement transaction after panic %v", p)
			}

			e.l.LogInfo("Settlement transaction has been rolled back after panic")

			panic(p)
		}

		if err != nil {
			if rbErr := e.accounts.RollbackTransaction(ctx); rbErr != nil {
				e.l.LogErrorf("Could not rollback settlement transaction after error %v: %v", err.Error(), rbErr)
			}

			e.l.LogDebugf("Settlement transaction has been rolled back after error")

			return
		}

		if err = e.accounts.CommitTransaction(ctx); err != nil {
			e.l.LogErrorf("Could not commit settlement transaction, err %v", err.Error())
			err = fmt.Errorf("commit settlement: %w", err)
		}
	}()

	if err = e.accounts.Transfer(ctx, op.Caller, EscrowAccount, op.Payment); err != nil {
		return fmt.Errorf("collect payment from %s: %w", op.Caller, err)
	}

	if err = e.accounts.Transfer(ctx, EscrowAccount, room.Owner, expected); err != nil {
		return fmt.Errorf("pay owner %s: %w", room.Owner, err)
	}

	if excess := op.Payment - expected; excess > 0 && e.refund {
		if err = e.accounts.Transfer(ctx, EscrowAccount, op.Caller, excess); err != nil {
			return fmt.Errorf("refund %s: %w", op.Caller, err)
		}
	}

	if err = e.record(ctx, op); err != nil {
		return err
	}

	return nil
}

func (e *Engine) RecommendDate(ctx context.Context, roomID RoomID, dates DayRange) (_ Recommendation, err error) {
	_, span := e.tracer.Start(ctx, "roomshare.recommend_date",
		trace.WithAttributes(attribute.Int("room.id", int(roomID))),
	)
	defer func() { endSpan(span, err) }()

	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.GetRoom(roomID); err != nil {
		return Recommendation{}, err
	}

	if err := e.validateDates(dates); err != nil {
		return Recommendation{}, err
	}

	return e.resolver.Resolve(e.ledger.calendar(roomID), dates)
}

func (e *Engine) MarkRoomAsInactive(ctx context.Context, caller Identity, roomID RoomID) error {
	return e.setRoomActive(ctx, caller, roomID, false)
}

func (e *Engine) MarkRoomAsActive(ctx context.Context, caller Identity, roomID RoomID) error {
	return e.setRoomActive(ctx, caller, roomID, true)
}

func (e *Engine) setRoomActive(ctx context.Context, caller Identity, roomID RoomID, active bool) (err error) {
	ctx, span := e.tracer.Start(ctx, "roomshare.set_room_active",
		trace.WithAttributes(
			attribute.Int("room.id", int(roomID)),
			attribute.Bool("room.active", active),
		),
	)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.applySetActive(ctx, &Operation{
		Kind:   OpSetRoomActive,
		Caller: caller,
		RoomID: roomID,
		Active: active,
		At:     e.now(),
	}); err != nil {
		return err
	}

	e.l.LogInfo("Room %d active flag set to %v by %s", roomID, active, caller)

	return nil
}

func (e *Engine) applySetActive(ctx context.Context, op *Operation) error {
	if _, err := e.ownedRoom(op.Caller, op.RoomID); err != nil {
		return err
	}

	if err := e.record(ctx, op); err != nil {
		return err
	}

	return e.registry.SetActive(op.Caller, op.RoomID, op.Active)
}

// InitializeRoomShare frees the room calendar over [0, horizonDays) and
// returns the number of bookings released. Rent history is preserved.
func (e *Engine) InitializeRoomShare(ctx context.Context, caller Identity, roomID RoomID, horizonDays int) (_ int, err error) {
	ctx, span := e.tracer.Start(ctx, "roomshare.initialize_room_share",
		trace.WithAttributes(
			attribute.Int("room.id", int(roomID)),
			attribute.Int("horizon.days", horizonDays),
		),
	)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	cleared, err := e.applyInitialize(ctx, &Operation{
		Kind:        OpInitializeRoom,
		Caller:      caller,
		RoomID:      roomID,
		HorizonDays: horizonDays,
		At:          e.now(),
	})
	if err != nil {
		return 0, err
	}

	e.l.LogInfo("Room %d calendar has been reset by %s, %d bookings released", roomID, caller, cleared)

	return cleared, nil
}

func (e *Engine) applyInitialize(ctx context.Context, op *Operation) (int, error) {
	if _, err := e.ownedRoom(op.Caller, op.RoomID); err != nil {
		return 0, err
	}

	if op.HorizonDays <= 0 || op.HorizonDays > e.horizon {
		inputErr := newInputError()
		inputErr.addError("horizonDays", fmt.Sprintf("horizonDays must be within (0, %d]", e.horizon))

		return 0, inputErr
	}

	if err := e.record(ctx, op); err != nil {
		return 0, err
	}

	return e.ledger.ClearRoom(op.RoomID, op.HorizonDays), nil
}

func (e *Engine) GetAllRooms(_ context.Context) []Room {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.registry.ListRooms()
}

func (e *Engine) GetMyRents(_ context.Context, caller Identity) ([]Booking, error) {
	if !caller.Valid() {
		return nil, ErrInvalidIdentity
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.ledger.ListBookingsForRenter(caller), nil
}

func (e *Engine) GetRoomRentHistory(_ context.Context, roomID RoomID) ([]Booking, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.GetRoom(roomID); err != nil {
		return nil, err
	}

	return e.ledger.History(roomID), nil
}

// GetRoomCalendar returns the bookings currently holding the room, ordered
// by check-in.
func (e *Engine) GetRoomCalendar(_ context.Context, roomID RoomID) ([]Booking, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, err := e.registry.GetRoom(roomID); err != nil {
		return nil, err
	}

	return e.ledger.ListBookingsForRoom(roomID), nil
}

func (e *Engine) Balance(ctx context.Context, who Identity) (int64, error) {
	if !who.Valid() {
		return 0, ErrInvalidIdentity
	}

	balance, err := e.accounts.Balance(ctx, who)
	if err != nil {
		return 0, fmt.Errorf("get balance of %s: %w", who, err)
	}

	return balance, nil
}

// Replay re-applies journaled operations in order without journaling them
// again. It is meant for a freshly built engine before it serves requests.
func (e *Engine) Replay(ctx context.Context, ops []Operation) (err error) {
	ctx, span := e.tracer.Start(ctx, "roomshare.replay",
		trace.WithAttributes(attribute.Int("operations", len(ops))),
	)
	defer func() { endSpan(span, err) }()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.replaying = true
	defer func() { e.replaying = false }()

	for i := range ops {
		op := &ops[i]

		var opErr error

		switch op.Kind {
		case OpShareRoom:
			_, opErr = e.shareRoom(ctx, op)
		case OpRentRoom:
			_, opErr = e.rentRoom(ctx, op)
		case OpSetRoomActive:
			opErr = e.applySetActive(ctx, op)
		case OpInitializeRoom:
			_, opErr = e.applyInitialize(ctx, op)
		default:
			opErr = fmt.Errorf("unknown operation kind %q: %w", op.Kind, ErrLogic)
		}

		if opErr != nil {
			return fmt.Errorf("replay operation %d (%s): %w", op.Seq, op.Kind, opErr)
		}
	}

	e.l.LogInfo("Replayed %d operations", len(ops))

	return nil
}

package roomshare

import (
	"errors"
	"fmt"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrNotOwner            = errors.New("caller is not the room owner")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrInsufficientPayment = errors.New("payment does not cover the stay")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrRoomInactive        = errors.New("room is inactive")
	ErrDateConflict        = errors.New("dates conflict with an existing booking")
	ErrNoAvailableWindow   = errors.New("room has no free window in the horizon")
	ErrInvalidIdentity     = errors.New("caller identity is empty")
	ErrNextID              = errors.New("get next id from generator")
)

// DateConflictError is returned by RentRoom when the requested range overlaps
// the room calendar. Recommended is nil when the room has no free window.
type DateConflictError struct {
	RoomID      RoomID
	Requested   DayRange
	Recommended *DayRange
}

func IsDateConflictError(err error) *DateConflictError {
	if err == nil {
		return nil
	}

	var conflictErr *DateConflictError

	if errors.As(err, &conflictErr) {
		return conflictErr
	}

	return nil
}

func (e *DateConflictError) Error() string {
	if e.Recommended == nil {
		return fmt.Sprintf("room %d is unavailable for days [%d, %d) and has no free window",
			e.RoomID, e.Requested.CheckIn, e.Requested.CheckOut)
	}

	return fmt.Sprintf("room %d is unavailable for days [%d, %d), free window is [%d, %d)",
		e.RoomID, e.Requested.CheckIn, e.Requested.CheckOut, e.Recommended.CheckIn, e.Recommended.CheckOut)
}

func (e *DateConflictError) Is(target error) bool {
	return target == ErrDateConflict
}

type InputError struct {
	fields map[string][]string
}

func newInputError() *InputError {
	return &InputError{
		fields: make(map[string][]string),
	}
}

func IsInputError(err error) *InputError {
	if err == nil {
		return nil
	}

	var inputError *InputError

	if errors.As(err, &inputError) {
		return inputError
	}

	return nil
}

func (ie *InputError) fieldsCount() int {
	return len(ie.fields)
}

func (ie *InputError) addError(field, msg string) {
	ie.fields[field] = append(ie.fields[field], msg)
}

func (ie *InputError) orNil() error {
	if ie.fieldsCount() > 0 {
		return ie
	}

	return nil
}

func (ie *InputError) Error() string {
	return fmt.Sprintf("%+v", ie.fields)
}

func (ie *InputError) Fields() map[string][]string {
	return ie.fields
}

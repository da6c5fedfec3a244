package web

import (
	"errors"
	"net/http"

	"github.com/avstrong/roomshare/internal/roomshare"
)

var (
	ErrPanic           = errors.New("panic recovered")
	ErrMissingIdentity = errors.New("X-Account header is missing")
	ErrInvalidRoomID   = errors.New("invalid room id")
)

type errorResponse struct {
	Error       string              `json:"error"`
	Fields      map[string][]string `json:"fields,omitempty"`
	Recommended *roomshare.DayRange `json:"recommended,omitempty"`
}

// writeError translates engine failures into HTTP statuses.
//
//nolint:cyclop // flat mapping table
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if inputErr := roomshare.IsInputError(err); inputErr != nil {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: inputErr.Fields()})

		return
	}

	if conflictErr := roomshare.IsDateConflictError(err); conflictErr != nil {
		s.writeJSON(w, http.StatusConflict, errorResponse{Error: conflictErr.Error(), Recommended: conflictErr.Recommended})

		return
	}

	var status int

	switch {
	case errors.Is(err, roomshare.ErrInvalidPrice):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  err.Error(),
			Fields: map[string][]string{"price": {"price must be positive"}},
		})

		return
	case errors.Is(err, ErrInvalidRoomID):
		status = http.StatusBadRequest
	case errors.Is(err, roomshare.ErrInvalidIdentity), errors.Is(err, ErrMissingIdentity):
		status = http.StatusUnauthorized
	case errors.Is(err, roomshare.ErrNotOwner):
		status = http.StatusForbidden
	case errors.Is(err, roomshare.ErrRoomNotFound):
		status = http.StatusNotFound
	case errors.Is(err, roomshare.ErrNoAvailableWindow):
		status = http.StatusConflict
	case errors.Is(err, roomshare.ErrInsufficientPayment), errors.Is(err, roomshare.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, roomshare.ErrRoomInactive):
		status = http.StatusUnprocessableEntity
	default:
		s.l.LogErrorf("Could not serve request: %v", err.Error())
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)

		return
	}

	s.writeJSON(w, status, errorResponse{Error: err.Error()})
}

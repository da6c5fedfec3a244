package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type shareRoomRequest struct {
	Name     string `json:"name"     validate:"required,max=256"`
	Location string `json:"location" validate:"required,max=256"`
	// Price is checked by the engine so that a bad price maps to its own error.
	Price int64 `json:"price"`
}

type shareRoomResponse struct {
	ID int `json:"id"`
}

type rentRoomRequest struct {
	CheckInDate  *int   `json:"checkInDate"  validate:"required,gte=0"`
	CheckOutDate *int   `json:"checkOutDate" validate:"required,gt=0"`
	Payment      *int64 `json:"payment"      validate:"required,gte=0"`
}

type resetRoomRequest struct {
	// HorizonDays defaults to the engine horizon when omitted.
	HorizonDays int `json:"horizonDays" validate:"gte=0"`
}

type resetRoomResponse struct {
	Released int `json:"released"`
}

type balanceResponse struct {
	Identity string `json:"identity"`
	Balance  int64  `json:"balance"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0] //nolint:gomnd
		if name == "-" {
			return ""
		}

		return name
	})

	return v
}

// decode reads a JSON body into dst and validates it. On failure it writes
// the response itself and returns false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil && !(allowEmpty && errors.Is(err, io.EOF)) {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("malformed body: %v", err)})

		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if !errors.As(err, &validationErrs) {
			s.writeError(w, err)

			return false
		}

		fields := make(map[string][]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field()] = append(fields[fe.Field()], fmt.Sprintf("failed on '%s'", fe.Tag()))
		}

		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid input", Fields: fields})

		return false
	}

	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.l.LogErrorf("Could not encode response: %v", err.Error())
	}
}

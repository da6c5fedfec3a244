package web

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/avstrong/roomshare/internal/roomshare"
)

func callerFromRequest(r *http.Request) (roomshare.Identity, error) {
	caller := roomshare.Identity(r.Header.Get(headerAccount))
	if !caller.Valid() {
		return "", ErrMissingIdentity
	}

	return caller, nil
}

func roomIDFromRequest(r *http.Request) (roomshare.RoomID, error) {
	raw := chi.URLParam(r, "roomID")

	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q: %w", raw, ErrInvalidRoomID)
	}

	return roomshare.RoomID(id), nil
}

func queryDay(r *http.Request, name string) (roomshare.Day, bool) {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0, false
	}

	return roomshare.Day(v), true
}

func (s *Server) shareRoomHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	var req shareRoomRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	id, err := s.engine.ShareRoom(r.Context(), caller, roomshare.ShareRoomInput{
		Name:     req.Name,
		Location: req.Location,
		Price:    req.Price,
	})
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, shareRoomResponse{ID: int(id)})
}

func (s *Server) getAllRoomsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.GetAllRooms(r.Context()))
}

func (s *Server) rentRoomHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	roomID, err := roomIDFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	var req rentRoomRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	ctx := r.Context()
	if key := r.Header.Get(headerIdempotencyKey); key != "" {
		ctx = roomshare.NewContextWithIdempotencyKey(ctx, key)
	}

	booking, err := s.engine.RentRoom(ctx, caller, roomshare.RentRoomInput{
		RoomID: roomID,
		Dates: roomshare.DayRange{
			CheckIn:  roomshare.Day(*req.CheckInDate),
			CheckOut: roomshare.Day(*req.CheckOutDate),
		},
		Payment: *req.Payment,
	})
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusCreated, booking)
}

func (s *Server) recommendDateHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	checkIn, okIn := queryDay(r, "checkIn")
	checkOut, okOut := queryDay(r, "checkOut")

	if !okIn || !okOut {
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "checkIn and checkOut query parameters must be integers"})

		return
	}

	rec, err := s.engine.RecommendDate(r.Context(), roomID, roomshare.DayRange{CheckIn: checkIn, CheckOut: checkOut})
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) roomHistoryHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	history, err := s.engine.GetRoomRentHistory(r.Context(), roomID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, history)
}

func (s *Server) roomCalendarHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := roomIDFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	calendar, err := s.engine.GetRoomCalendar(r.Context(), roomID)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, calendar)
}

func (s *Server) setRoomActiveHandler(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerFromRequest(r)
		if err != nil {
			s.writeError(w, err)

			return
		}

		roomID, err := roomIDFromRequest(r)
		if err != nil {
			s.writeError(w, err)

			return
		}

		if active {
			err = s.engine.MarkRoomAsActive(r.Context(), caller, roomID)
		} else {
			err = s.engine.MarkRoomAsInactive(r.Context(), caller, roomID)
		}

		if err != nil {
			s.writeError(w, err)

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) resetRoomHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	roomID, err := roomIDFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	var req resetRoomRequest
	if !s.decode(w, r, &req, true) {
		return
	}

	if req.HorizonDays == 0 {
		req.HorizonDays = s.engine.HorizonDays()
	}

	released, err := s.engine.InitializeRoomShare(r.Context(), caller, roomID, req.HorizonDays)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, resetRoomResponse{Released: released})
}

func (s *Server) myRentsHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	rents, err := s.engine.GetMyRents(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, rents)
}

func (s *Server) balanceHandler(w http.ResponseWriter, r *http.Request) {
	caller, err := callerFromRequest(r)
	if err != nil {
		s.writeError(w, err)

		return
	}

	balance, err := s.engine.Balance(r.Context(), caller)
	if err != nil {
		s.writeError(w, err)

		return
	}

	s.writeJSON(w, http.StatusOK, balanceResponse{Identity: string(caller), Balance: balance})
}

func (s *Server) livenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addRoutes(r chi.Router) {
	r.Use(
		s.recoverMiddleware(),
		s.requestIDMiddleware(),
		s.tracingMiddleware(),
		s.loggerMiddleware(),
		s.rateLimitMiddleware(),
	)

	r.Get(s.conf.LivenessEndpoint, s.livenessHandler)

	r.Get("/api/rooms/v1", s.getAllRoomsHandler)
	r.Post("/api/rooms/v1", s.shareRoomHandler)
	r.Get("/api/rooms/v1/{roomID}/history", s.roomHistoryHandler)
	r.Get("/api/rooms/v1/{roomID}/calendar", s.roomCalendarHandler)
	r.Get("/api/rooms/v1/{roomID}/recommendation", s.recommendDateHandler)
	r.Post("/api/rooms/v1/{roomID}/rents", s.rentRoomHandler)
	r.Post("/api/rooms/v1/{roomID}/inactive", s.setRoomActiveHandler(false))
	r.Post("/api/rooms/v1/{roomID}/active", s.setRoomActiveHandler(true))
	r.Post("/api/rooms/v1/{roomID}/reset", s.resetRoomHandler)
	r.Get("/api/rents/v1/mine", s.myRentsHandler)
	r.Get("/api/accounts/v1/me", s.balanceHandler)
}

package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/avstrong/roomshare/internal/logger"
	"github.com/avstrong/roomshare/internal/roomshare"
)

type roomShare interface {
	ShareRoom(ctx context.Context, caller roomshare.Identity, in roomshare.ShareRoomInput) (roomshare.RoomID, error)
	RentRoom(ctx context.Context, caller roomshare.Identity, in roomshare.RentRoomInput) (roomshare.Booking, error)
	RecommendDate(ctx context.Context, roomID roomshare.RoomID, dates roomshare.DayRange) (roomshare.Recommendation, error)
	MarkRoomAsInactive(ctx context.Context, caller roomshare.Identity, roomID roomshare.RoomID) error
	MarkRoomAsActive(ctx context.Context, caller roomshare.Identity, roomID roomshare.RoomID) error
	InitializeRoomShare(ctx context.Context, caller roomshare.Identity, roomID roomshare.RoomID, horizonDays int) (int, error)
	GetAllRooms(ctx context.Context) []roomshare.Room
	GetMyRents(ctx context.Context, caller roomshare.Identity) ([]roomshare.Booking, error)
	GetRoomRentHistory(ctx context.Context, roomID roomshare.RoomID) ([]roomshare.Booking, error)
	GetRoomCalendar(ctx context.Context, roomID roomshare.RoomID) ([]roomshare.Booking, error)
	Balance(ctx context.Context, who roomshare.Identity) (int64, error)
	HorizonDays() int
}

type Server struct {
	srv      *http.Server
	router   chi.Router
	l        *logger.Logger
	conf     Conf
	engine   roomShare
	validate *validator.Validate
	limiter  *clientRateLimiter
	tracer   trace.Tracer
}

type Conf struct {
	L                  *logger.Logger
	ServerLogger       *log.Logger
	Host               string
	Port               string
	ReadHeaderTimeout  time.Duration
	LivenessEndpoint   string
	RateLimitPerSec    float64
	RateBurst          int
	RateLimiterIdleTTL time.Duration
	CORSAllowedOrigins []string
}

func New(ctx context.Context, conf Conf, engine roomShare) (*Server, error) {
	router := chi.NewRouter()

	server := &Server{
		router:   router,
		l:        conf.L,
		conf:     conf,
		engine:   engine,
		validate: newValidator(),
		limiter:  newClientRateLimiter(rate.Limit(conf.RateLimitPerSec), conf.RateBurst, conf.RateLimiterIdleTTL),
		tracer:   otel.Tracer("github.com/avstrong/roomshare/internal/transport/web"),
	}

	server.addRoutes(router)

	co := cors.New(cors.Options{
		AllowedOrigins: conf.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", headerAccount, headerIdempotencyKey, "traceparent", "tracestate"},
		ExposedHeaders: []string{headerRequestID},
	})

	//nolint:exhaustruct
	server.srv = &http.Server{
		Addr:              net.JoinHostPort(conf.Host, conf.Port),
		ReadHeaderTimeout: conf.ReadHeaderTimeout,
		ErrorLog:          conf.ServerLogger,
		Handler:           co.Handler(router),
		BaseContext: func(listener net.Listener) context.Context {
			return ctx
		},
	}

	return server, nil
}

func (s *Server) Srv() *http.Server {
	return s.srv
}

// Handler is the full handler chain, CORS included.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

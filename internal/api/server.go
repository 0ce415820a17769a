// Package api exposes the telemetry, feeding and fish services over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"aqua-backend/internal/compat"
	"aqua-backend/internal/feeding"
	"aqua-backend/internal/models"
	"aqua-backend/internal/mqtt"
	"aqua-backend/internal/recommend"
)

const (
	readHeaderTimeout = 5 * time.Second
	idleTimeout       = 120 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Telemetry is the read side of the normalizer
type Telemetry interface {
	Snapshot() models.Snapshot
	History(metric models.Metric) []models.HistoryPoint
	HistorySince(metric models.Metric, since time.Time) []models.HistoryPoint
	HistoryCap() int
}

// Connection controls the broker link
type Connection interface {
	Connect(opts mqtt.ConnectOptions) error
	Disconnect()
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Publish(ctx context.Context, topic string, payload []byte) error
	Messages(limit int) []models.RawMessage
	ClearMessages()
	Status() models.ConnectionStatus
}

// Commander publishes actuator commands
type Commander interface {
	SendCommand(ctx context.Context, command string, value any) error
}

// Feeding runs manual feeds and manages schedules
type Feeding interface {
	FeedNow(ctx context.Context) error
	Feeding() bool
	LastFeed() (models.FeedEvent, bool)
	Add(hour, minute int, enabled bool) (feeding.Schedule, error)
	Update(id string, upd feeding.ScheduleUpdate) (feeding.Schedule, error)
	Remove(id string) error
	List() []feeding.Schedule
}

// Recommender queries the remote fish service
type Recommender interface {
	Recommend(ctx context.Context, tank recommend.Tank, temperature float64) ([]recommend.Fish, error)
	LookupFish(ctx context.Context, name string) (recommend.FishInfo, error)
}

// Archive serves long-range history from the reading archive
type Archive interface {
	QueryHistory(ctx context.Context, metric models.Metric, from, to time.Time, limit int) ([]models.HistoryPoint, error)
}

// Deps are the services behind the routes. Archive and WebSocket may be nil.
type Deps struct {
	Telemetry   Telemetry
	Connection  Connection
	Commands    Commander
	Feeding     Feeding
	Catalog     *compat.Catalog
	Water       *compat.WaterSetting
	Recommender Recommender
	Archive     Archive
	WebSocket   http.Handler

	// DefaultTemperature is sent for recommendations until the tank has
	// reported a temperature
	DefaultTemperature float64
}

// Server owns the router and the underlying http.Server
type Server struct {
	deps   Deps
	now    func() time.Time
	logger *zap.Logger
	srv    *http.Server
}

// NewServer builds the API on addr
func NewServer(addr string, deps Deps, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		now:    time.Now,
		logger: logger.Named("api"),
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Routes builds the chi router
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/health", s.handle(s.health))
	if s.deps.WebSocket != nil {
		r.Handle("/ws", s.deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handle(s.getSnapshot))
		r.Get("/history/{metric}", s.handle(s.getHistory))
		r.Get("/archive/{metric}", s.handle(s.getArchive))

		r.Get("/messages", s.handle(s.getMessages))
		r.Delete("/messages", s.handle(s.clearMessages))

		r.Route("/connection", func(r chi.Router) {
			r.Get("/", s.handle(s.getConnection))
			r.Post("/connect", s.handle(s.connect))
			r.Post("/disconnect", s.handle(s.disconnect))
		})
		r.Post("/topics/subscribe", s.handle(s.subscribe))
		r.Post("/topics/unsubscribe", s.handle(s.unsubscribe))
		r.Post("/publish", s.handle(s.publish))
		r.Post("/commands", s.handle(s.sendCommand))

		r.Route("/feed", func(r chi.Router) {
			r.Get("/", s.handle(s.getFeedStatus))
			r.Post("/", s.handle(s.feedNow))
			r.Get("/schedules", s.handle(s.listSchedules))
			r.Post("/schedules", s.handle(s.addSchedule))
			r.Patch("/schedules/{id}", s.handle(s.updateSchedule))
			r.Delete("/schedules/{id}", s.handle(s.removeSchedule))
		})

		r.Get("/tank/water-type", s.handle(s.getWaterType))
		r.Put("/tank/water-type", s.handle(s.setWaterType))

		r.Route("/fish", func(r chi.Router) {
			r.Get("/catalog", s.handle(s.listCatalog))
			r.Post("/compare", s.handle(s.compare))
			r.Post("/recommendations", s.handle(s.recommend))
			r.Post("/lookup", s.handle(s.lookup))
		})
	})

	return r
}

// Start serves in the background; a listen failure cancels the process
func (s *Server) Start(cancel context.CancelFunc) {
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server failed", zap.Error(err))
			cancel()
		}
	}()
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

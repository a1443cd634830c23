// Package server exposes the configuration API and the generated feeds over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/tartampluch/card-countdown/internal/config"
	"github.com/tartampluch/card-countdown/internal/engine"
	"github.com/tartampluch/card-countdown/internal/store"
)

// Store is the persistence the API edits.
type Store interface {
	engine.RecordFinder
	engine.RecordWriter
	List() []engine.Record
	Len() int
	Capacity() int
	Delete(uid string) error
	WiFi() (store.WiFi, error)
	SaveWiFi(ssid, password string) error
}

// LoopView is the part of the control loop the API talks to.
type LoopView interface {
	LastSighting() (engine.Sighting, bool)
	Status() engine.Status
	Invalidate(uid string)
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Store    Store
	Loop     LoopView
	Clock    engine.Clock
	Location *time.Location
	Fetcher  engine.VCardFetcher

	// Frame is the feed the renderer publishes to. A fresh one is made when nil.
	Frame *Feed

	ListenAddr string
	StaticDir  string
	ImagesDir  string
	ScanWindow time.Duration

	// Restart is invoked shortly after POST /api/restart has been answered.
	Restart func()
}

// Server is the HTTP front of the appliance.
type Server struct {
	deps     Deps
	importer *engine.Importer
	validate *validator.Validate
	started  time.Time
	log      *slog.Logger

	Frame    *Feed
	Calendar *Feed
}

// New builds a server. Feeds start empty and answer 503 until published.
func New(deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = engine.RealClock{}
	}
	if deps.Fetcher == nil {
		deps.Fetcher = engine.NewHTTPFetcher()
	}
	if deps.ScanWindow <= 0 {
		deps.ScanWindow = config.DefaultScanWindow
	}
	if deps.Frame == nil {
		deps.Frame = NewFeed("frame", config.MimeImagePNG)
	}
	return &Server{
		deps:     deps,
		importer: &engine.Importer{Store: deps.Store, Clock: deps.Clock, Location: deps.Location},
		validate: validator.New(validator.WithRequiredStructEnabled()),
		started:  deps.Clock.Now(),
		log:      slog.With(config.LogKeyComponent, config.CompServer),
		Frame:    deps.Frame,
		Calendar: NewFeed("calendar", config.MimeTextCalendar),
	}
}

// RefreshCalendar regenerates the calendar feed from the store.
func (s *Server) RefreshCalendar() error {
	data, err := engine.BuildCalendar(s.deps.Store.List(), s.deps.Clock.Now())
	if err != nil {
		return err
	}
	s.Calendar.Update(data)
	return nil
}

// Routes returns the full handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer,
		middleware.RealIP,
		middleware.CleanPath,
		accessLog(s.log),
		middleware.Timeout(config.RequestTimeout),
	)

	r.Get(config.RouteCountdowns, s.handleListCountdowns)
	r.Post(config.RouteCountdowns, s.handleAddCountdown)
	r.Put(config.RouteCountdown, s.handleUpdateCountdown)
	r.Delete(config.RouteCountdown, s.handleDeleteCountdown)

	r.Get(config.RouteScanCard, s.handleScanCard)
	r.Get(config.RouteWiFi, s.handleGetWiFi)
	r.Post(config.RouteWiFi, s.handleSaveWiFi)
	r.Get(config.RouteStatus, s.handleStatus)
	r.Post(config.RouteRestart, s.handleRestart)

	r.Post(config.RouteUploadImage, s.handleUploadImage)
	r.Get(config.RouteImages, s.handleListImages)
	r.Delete(config.RouteImage, s.handleDeleteImage)
	r.Post(config.RouteImportVCard, s.handleImportVCard)

	r.Method(http.MethodGet, config.RouteFrame, s.Frame)
	r.Method(http.MethodHead, config.RouteFrame, s.Frame)
	r.Method(http.MethodGet, config.RouteCalendar, s.Calendar)
	r.Method(http.MethodHead, config.RouteCalendar, s.Calendar)

	if s.deps.ImagesDir != "" {
		r.Handle(config.ImagesURLRoute+"*",
			http.StripPrefix(config.ImagesURLRoute, http.FileServer(http.Dir(s.deps.ImagesDir))))
	}
	if s.deps.StaticDir != "" {
		r.Handle(config.RouteStatic, http.FileServer(http.Dir(s.deps.StaticDir)))
	}
	return r
}

// Start runs the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.deps.ListenAddr == "" {
		return errors.New(config.ErrListenRequired)
	}

	srv := &http.Server{
		Addr:         s.deps.ListenAddr,
		Handler:      s.Routes(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		s.log.Info(config.MsgServerListen, config.LogKeyAddr, s.deps.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info(config.MsgServerStop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// accessLog writes one structured line per request.
func accessLog(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			log.Debug(config.MsgRequest,
				config.LogKeyStatus, ww.Status(),
				config.LogKeyMethod, r.Method,
				config.LogKeyRoute, r.URL.Path,
				config.LogKeyRemote, r.RemoteAddr,
				config.LogKeySizeBytes, ww.BytesWritten(),
				config.LogKeyDuration, time.Since(start).Milliseconds(),
			)
		})
	}
}

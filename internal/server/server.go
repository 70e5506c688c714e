package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sofico/sofico_wallet/internal/config"
	"github.com/sofico/sofico_wallet/internal/notification"
	"github.com/sofico/sofico_wallet/internal/realtime"
	"github.com/sofico/sofico_wallet/internal/routes"
)

// Server owns the Fiber API and, when Redis is available, the websocket push server.
type Server struct {
	app      *fiber.App
	cfg      config.Config
	logger   *slog.Logger
	hub      *realtime.Hub
	realtime *http.Server
}

// New builds the API and delegates route wiring to routes.Setup. events may be nil.
func New(cfg config.Config, db *pgxpool.Pool, cache *redis.Client, events notification.MessageWriter, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	})

	if err := routes.Setup(app, routes.Deps{Cfg: cfg, DB: db, Cache: cache, Events: events, Logger: logger}); err != nil {
		return nil, err
	}

	s := &Server{app: app, cfg: cfg, logger: logger}
	if cache != nil {
		s.hub = realtime.NewHub(cache, cfg.EventsChannel, []byte(cfg.JWTSecret), logger)
		s.realtime = &http.Server{
			Addr:              cfg.RealtimeAddress(),
			Handler:           s.hub.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return s, nil
}

// Listen serves the API and the realtime server until one of them fails or ctx ends.
func (s *Server) Listen(ctx context.Context) error {
	errCh := make(chan error, 3)
	go func() { errCh <- s.app.Listen(s.cfg.Address()) }()

	if s.hub != nil {
		go func() { errCh <- s.hub.Run(ctx) }()
		go func() {
			s.logger.Info("realtime server listening", slog.String("addr", s.realtime.Addr))
			if err := s.realtime.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.realtime != nil {
		errs = append(errs, s.realtime.Shutdown(ctx))
	}
	errs = append(errs, s.app.ShutdownWithContext(ctx))
	return errors.Join(errs...)
}

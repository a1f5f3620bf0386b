package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/auth"
	"github.com/tapgate-io/tapgate/internal/card"
	"github.com/tapgate-io/tapgate/internal/infrastructure/config"
	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/keys"
	"github.com/tapgate-io/tapgate/internal/reader"
	"github.com/tapgate-io/tapgate/internal/resource"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ReaderGateway is the reader-connection collaborator: the WebSocket
// route is delegated to it, and backend commands for connected readers
// go through it.
type ReaderGateway interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
	EnrollNext(readerID, ownerUserID, label string) error
	StopSession(readerID string) error
	Connected(readerID string) bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	Security  config.SecurityConfig
	Logger    *logging.Logger
	Users     auth.UserRepository
	Cards     *card.Directory
	Keys      *keys.Service
	Readers   reader.Repository
	Resources resource.Repository
	Audit     audit.Repository
	Gateway   ReaderGateway
	Version   string
}

// Server is the HTTP API server for TapGate.
type Server struct {
	cfg       config.APIConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	users     auth.UserRepository
	cards     *card.Directory
	keys      *keys.Service
	readers   reader.Repository
	resources resource.Repository
	audit     audit.Repository
	gateway   ReaderGateway
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Users == nil {
		return nil, fmt.Errorf("user repository is required")
	}
	if deps.Cards == nil {
		return nil, fmt.Errorf("card directory is required")
	}
	if deps.Keys == nil {
		return nil, fmt.Errorf("key service is required")
	}
	if deps.Readers == nil {
		return nil, fmt.Errorf("reader repository is required")
	}
	if deps.Resources == nil {
		return nil, fmt.Errorf("resource repository is required")
	}
	// Gateway is optional: without it the reader WebSocket route and
	// reader commands return 503, but the human API still functions.
	// Audit is optional: when nil, administrative actions are not recorded.

	return &Server{
		cfg:       deps.Config,
		secCfg:    deps.Security,
		logger:    deps.Logger.With("component", "api"),
		users:     deps.Users,
		cards:     deps.Cards,
		keys:      deps.Keys,
		readers:   deps.Readers,
		resources: deps.Resources,
		audit:     deps.Audit,
		gateway:   deps.Gateway,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections in a background
// goroutine. The server is stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server, waiting up to 10 seconds
// for in-flight requests to complete.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

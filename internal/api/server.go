package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/fleet-relay/internal/audit"
	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/files"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/config"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/database"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-relay/internal/telegram"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// fleetSnapshotInterval is how often fleet totals are written to metrics.
const fleetSnapshotInterval = time.Minute

// UpdateProcessor handles a decoded Telegram update. *dispatch.Dispatcher
// satisfies it.
type UpdateProcessor interface {
	Process(ctx context.Context, upd *telegram.Update) error
}

// Notifier sends plain text to a chat. *telegram.Client satisfies it.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Metrics receives device-side measurements. *influxdb.Client satisfies it.
type Metrics interface {
	WriteHeartbeat(deviceID string, online bool, pending int)
	WriteFleet(total, online, pending int)
}

// ConnectionStatus reports whether an optional backend is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server. Logger, Users,
// Devices, Files and Dispatcher are required.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Security   config.SecurityConfig
	Bot        config.BotConfig
	Logger     *logging.Logger
	Users      *auth.Registry
	Devices    *device.Registry
	Files      *files.Service
	Dispatcher UpdateProcessor
	Audit      *audit.Trail
	Notifier   Notifier
	Metrics    Metrics
	MQTT       ConnectionStatus
	DB         *database.DB
	Version    string
}

// Server is the HTTP boundary of the relay.
//
// It owns the listener, the router and the WebSocket hub. The hub is
// subscribed to device registry events in New, so the router returned by
// Handler is fully functional before Start is called.
type Server struct {
	cfg        config.APIConfig
	wsCfg      config.WebSocketConfig
	secCfg     config.SecurityConfig
	botCfg     config.BotConfig
	logger     *logging.Logger
	users      *auth.Registry
	devices    *device.Registry
	files      *files.Service
	dispatcher UpdateProcessor
	audit      *audit.Trail
	notifier   Notifier
	metrics    Metrics
	mqtt       ConnectionStatus
	db         *database.DB
	version    string
	startTime  time.Time
	hub        *Hub
	router     http.Handler
	server     *http.Server
	cancel     context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, errors.New("logger is required")
	case deps.Users == nil:
		return nil, errors.New("user registry is required")
	case deps.Devices == nil:
		return nil, errors.New("device registry is required")
	case deps.Files == nil:
		return nil, errors.New("file service is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	}

	s := &Server{
		cfg:        deps.Config,
		wsCfg:      deps.WS,
		secCfg:     deps.Security,
		botCfg:     deps.Bot,
		logger:     deps.Logger,
		users:      deps.Users,
		devices:    deps.Devices,
		files:      deps.Files,
		dispatcher: deps.Dispatcher,
		audit:      deps.Audit,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		version:    deps.Version,
		startTime:  time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger)
	s.devices.Subscribe(s.hub.DeviceListener())
	s.router = s.buildRouter()
	return s, nil
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start launches the WebSocket hub, the fleet metrics loop and the HTTP
// listener in background goroutines. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	if s.metrics != nil {
		go s.fleetSnapshotLoop(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
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

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server has been started.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}

// fleetSnapshotLoop writes fleet totals until ctx is cancelled.
func (s *Server) fleetSnapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(fleetSnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.devices.Stats()
			s.metrics.WriteFleet(st.Total, st.Online, st.PendingCommands)
		}
	}
}

// jwtEnabled reports whether device tokens are issued and enforced.
func (s *Server) jwtEnabled() bool {
	return s.secCfg.JWT.Secret != ""
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/metrics"
	"github.com/muurk/fritzbox/internal/mqtt"
	"github.com/muurk/fritzbox/internal/presence"
	"github.com/muurk/fritzbox/internal/session"
)

const shutdownTimeout = 10 * time.Second

// Config holds the server configuration
type Config struct {
	Listen          string               // e.g. ":9370"
	Fetcher         presence.PageFetcher // usually a *session.Client
	Devices         []string             // WLAN device names to supervise
	PollInterval    time.Duration
	DebounceMinutes int
	Metrics         *metrics.Registry // nil creates a private registry
	Publisher       *mqtt.Publisher   // nil disables MQTT
	Logger          *zap.Logger       // nil uses the global logger
}

// Server supervises the configured devices and serves their state over
// HTTP and a websocket stream.
type Server struct {
	config  Config
	logger  *zap.Logger
	tracker *presence.Tracker
	store   *presence.StateStore
	metrics *metrics.Registry
	hub     *Hub

	httpServer *http.Server
	ready      chan struct{}

	mu           sync.Mutex
	listener     net.Listener
	supervisions []*presence.Supervision
}

// New creates a new Server instance
func New(config Config) (*Server, error) {
	if config.Fetcher == nil {
		return nil, errors.New("server needs a page fetcher")
	}
	if len(config.Devices) == 0 {
		return nil, presence.ErrNoDevices
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	reg := config.Metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	// Feed login and fetch metrics from the router client
	if client, ok := config.Fetcher.(*session.Client); ok && client.Observer == nil {
		client.Observer = reg
	}

	s := &Server{
		config:  config,
		logger:  logger,
		tracker: presence.NewTracker(config.Fetcher),
		store:   presence.NewStateStore(),
		metrics: reg,
		ready:   make(chan struct{}),
	}
	s.hub = newHub(s.snapshotEvent, logger)
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start runs the server and blocks until SIGINT or SIGTERM
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			s.logger.Info("Shutdown signal received, stopping server...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return s.Run(ctx)
}

// Run listens, starts the supervisions and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.hub.run(runCtx)

	if s.config.Publisher != nil {
		if err := s.config.Publisher.Start(runCtx); err != nil {
			// Presence keeps working without the broker
			s.logger.Error("MQTT publisher failed to start", zap.Error(err))
		}
	}

	supervisions, err := presence.SuperviseAll(runCtx, s.supervisorTemplate(), s.config.Devices)
	if err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to start supervision: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.supervisions = supervisions
	s.mu.Unlock()

	s.logger.Info("Starting FRITZ!Box presence server",
		zap.String("addr", listener.Addr().String()),
		zap.Strings("devices", s.config.Devices),
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Int("debounce_minutes", s.config.DebounceMinutes),
	)

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.httpServer.Serve(listener)
	}()
	close(s.ready)

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		cancel()
		_ = s.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

// Ready is closed once the server is listening
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the listen address, nil before Run
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) supervisorTemplate() presence.SupervisorConfig {
	onPoll := []presence.PollFunc{s.metrics.ObservePoll}
	if s.config.Publisher != nil {
		onPoll = append(onPoll, s.config.Publisher.ObservePoll)
	}

	return presence.SupervisorConfig{
		Checker:  s.tracker,
		OnChange: presence.Chain(s.logChange, s.metrics.ObserveChange, s.hub.PublishTransition),
		OnPoll: func(device string, present bool, err error) {
			for _, fn := range onPoll {
				fn(device, present, err)
			}
		},
		Store:           s.store,
		PollInterval:    s.config.PollInterval,
		DebounceMinutes: s.config.DebounceMinutes,
		Logger:          s.logger,
	}
}

func (s *Server) logChange(device string, from, to bool) {
	s.logger.Info("Device presence changed",
		zap.String("device", device),
		zap.Bool("was_present", from),
		zap.Bool("present", to),
	)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	s.mu.Lock()
	supervisions := s.supervisions
	s.supervisions = nil
	s.mu.Unlock()

	for _, sup := range supervisions {
		sup.Stop()
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if s.config.Publisher != nil {
		if err := s.config.Publisher.Stop(ctx); err != nil {
			s.logger.Warn("MQTT disconnect failed", zap.Error(err))
		}
	}

	var err error
	if shutdownErr := s.httpServer.Shutdown(ctx); shutdownErr != nil && !errors.Is(shutdownErr, http.ErrServerClosed) {
		s.logger.Warn("Shutdown timeout, forcing close", zap.Error(shutdownErr))
		err = s.httpServer.Close()
	}
	s.hub.Close()

	if client, ok := s.config.Fetcher.(*session.Client); ok {
		if logoutErr := client.Logout(ctx); logoutErr != nil {
			s.logger.Debug("Logout failed", zap.Error(logoutErr))
		}
	}

	logging.Sync()
	return err
}

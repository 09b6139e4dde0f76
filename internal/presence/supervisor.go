package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/session"
)

// ChangeFunc is called when a supervised device goes from one state to
// the other. true means present.
type ChangeFunc func(device string, from, to bool)

// PollFunc is called after every poll, successful or not.
type PollFunc func(device string, present bool, err error)

// Checker answers presence queries. *Tracker implements it.
type Checker interface {
	IsPresent(ctx context.Context, name string, debounceMinutes int) (bool, error)
}

// Chain calls every non-nil fn in order
func Chain(fns ...ChangeFunc) ChangeFunc {
	return func(device string, from, to bool) {
		for _, fn := range fns {
			if fn != nil {
				fn(device, from, to)
			}
		}
	}
}

// SupervisorConfig configures the supervision of one device
type SupervisorConfig struct {
	// Checker is polled for the device state, usually a *Tracker.
	Checker Checker

	// Device is the WLAN device name as shown by the router.
	Device string

	// OnChange receives every transition. It runs on the polling
	// goroutine after Store already holds the new state, so polling
	// pauses until it returns.
	OnChange ChangeFunc

	// OnPoll, when set, observes every poll result.
	OnPoll PollFunc

	// Store is shared between supervisions. A nil Store gets a private one.
	Store *StateStore

	// PollInterval is the minimum time between two polls. Zero polls
	// back to back.
	PollInterval time.Duration

	// DebounceMinutes is passed to Checker.IsPresent.
	DebounceMinutes int

	// Logger for structured logging. Defaults to the global logger.
	Logger *zap.Logger
}

func (c *SupervisorConfig) validate() error {
	if c.Checker == nil {
		return session.NewInvalidParameterError("supervisor needs a presence checker")
	}
	if c.Device == "" {
		return session.NewInvalidParameterError("device name must not be empty")
	}
	if c.OnChange == nil {
		return session.NewInvalidParameterError("supervisor needs a change callback")
	}
	if c.DebounceMinutes < 0 {
		return session.NewInvalidParameterError("debounce must not be negative")
	}
	if c.PollInterval < 0 {
		return session.NewInvalidParameterError("poll interval must not be negative")
	}
	return nil
}

func (c *SupervisorConfig) limiter() *rate.Limiter {
	if c.PollInterval == 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(c.PollInterval), 1)
}

// Supervise polls the device until ctx is cancelled and calls OnChange
// for every transition. The first successful poll only records the
// state, unless Store already knows the device, in which case it is
// compared against the stored state. A failed poll is logged and
// skipped. Supervise returns nil after cancellation and an error only
// for an unusable config.
func Supervise(ctx context.Context, cfg SupervisorConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	if cfg.Store == nil {
		cfg.Store = NewStateStore()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.GetLogger()
	}
	logger = logger.With(zap.String("device", cfg.Device))

	limiter := cfg.limiter()

	if present, known := cfg.Store.Get(cfg.Device); known {
		logger.Debug("Resuming supervision from stored state", zap.Bool("present", present))
	} else {
		logger.Debug("Starting supervision")
	}

	for {
		if err := limiter.Wait(ctx); err != nil {
			logger.Debug("Supervision stopped")
			return nil
		}

		present, err := cfg.Checker.IsPresent(ctx, cfg.Device, cfg.DebounceMinutes)
		if cfg.OnPoll != nil {
			cfg.OnPoll(cfg.Device, present, err)
		}
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("Supervision stopped")
				return nil
			}
			if session.IsInvalidParameterError(err) {
				return err
			}
			logger.Warn("Presence poll failed, skipping this round", zap.Error(err))
			continue
		}

		old, known, changed := cfg.Store.Swap(cfg.Device, present)
		switch {
		case !known:
			logger.Info("Initial presence determined", zap.Bool("present", present))
		case changed:
			logger.Info("Presence changed",
				zap.Bool("old", old),
				zap.Bool("new", present),
			)
			cfg.OnChange(cfg.Device, old, present)
		}
	}
}

// Supervision is a Supervise call running on its own goroutine
type Supervision struct {
	device string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

// StartSupervision runs Supervise in the background. Stop it with Stop
// or by cancelling ctx.
func StartSupervision(ctx context.Context, cfg SupervisorConfig) *Supervision {
	runCtx, cancel := context.WithCancel(ctx)
	s := &Supervision{
		device: cfg.Device,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		err := Supervise(runCtx, cfg)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
	}()

	return s
}

// Device returns the supervised device name
func (s *Supervision) Device() string {
	return s.device
}

// Done is closed when the supervision goroutine has exited
func (s *Supervision) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the supervision goroutine exits
func (s *Supervision) Wait() {
	<-s.done
}

// Stop cancels the supervision and waits for it to exit
func (s *Supervision) Stop() {
	s.cancel()
	<-s.done
}

// Err returns the error Supervise exited with, nil while running or
// after a clean stop
func (s *Supervision) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// ErrNoDevices is returned by SuperviseAll when there is nothing to watch
var ErrNoDevices = errors.New("no devices to supervise")

// SuperviseAll starts one supervision per device with a shared template
// config and store.
func SuperviseAll(ctx context.Context, template SupervisorConfig, devices []string) ([]*Supervision, error) {
	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	if template.Store == nil {
		template.Store = NewStateStore()
	}

	supervisions := make([]*Supervision, 0, len(devices))
	for _, device := range devices {
		cfg := template
		cfg.Device = device
		if err := cfg.validate(); err != nil {
			for _, s := range supervisions {
				s.Stop()
			}
			return nil, err
		}
		supervisions = append(supervisions, StartSupervision(ctx, cfg))
	}
	return supervisions, nil
}

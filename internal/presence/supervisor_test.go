package presence

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/muurk/fritzbox/internal/session"
)

type pollResult struct {
	present bool
	err     error
}

// scriptedChecker returns results in order and cancels the supervision
// once the script is used up.
type scriptedChecker struct {
	mu      sync.Mutex
	results []pollResult
	calls   int
	cancel  context.CancelFunc
}

func (c *scriptedChecker) IsPresent(ctx context.Context, _ string, _ int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.calls >= len(c.results) {
		c.cancel()
		return false, ctx.Err()
	}
	r := c.results[c.calls]
	c.calls++
	return r.present, r.err
}

type transition struct {
	device   string
	from, to bool
}

type recorder struct {
	mu          sync.Mutex
	transitions []transition
}

func (r *recorder) onChange(device string, from, to bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, transition{device, from, to})
}

func (r *recorder) got() []transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transition(nil), r.transitions...)
}

func runScript(t *testing.T, store *StateStore, logger *zap.Logger, results ...pollResult) []transition {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rec := &recorder{}
	cfg := SupervisorConfig{
		Checker:         &scriptedChecker{results: results, cancel: cancel},
		Device:          "iphone",
		OnChange:        rec.onChange,
		Store:           store,
		DebounceMinutes: 1,
		Logger:          logger,
	}
	if err := Supervise(ctx, cfg); err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}
	return rec.got()
}

func TestSupervise_ReportsEveryTransitionOnce(t *testing.T) {
	got := runScript(t, nil, zaptest.NewLogger(t),
		pollResult{present: true},
		pollResult{present: true},
		pollResult{present: false},
		pollResult{present: false},
		pollResult{present: true},
	)

	want := []transition{
		{"iphone", true, false},
		{"iphone", false, true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestSupervise_FirstPollOnlyRecordsState(t *testing.T) {
	store := NewStateStore()
	got := runScript(t, store, zaptest.NewLogger(t), pollResult{present: false})

	if len(got) != 0 {
		t.Errorf("transitions = %v, want none", got)
	}
	if present, known := store.Get("iphone"); !known || present {
		t.Errorf("stored state = (%v, %v), want (false, true)", present, known)
	}
}

func TestSupervise_ResumesFromStore(t *testing.T) {
	store := NewStateStore()
	store.Set("iphone", true)

	got := runScript(t, store, zaptest.NewLogger(t), pollResult{present: false})

	want := []transition{{"iphone", true, false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

func TestSupervise_FailedPollsAreSkipped(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	timeout := session.NewNetworkError("GET /data.lua failed", errors.New("i/o timeout"))

	got := runScript(t, nil, zap.New(core),
		pollResult{err: timeout},
		pollResult{present: true},
		pollResult{err: session.NewAuthError("rejected")},
		pollResult{present: false},
	)

	want := []transition{{"iphone", true, false}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}

	warnings := logs.FilterMessage("Presence poll failed, skipping this round").All()
	if len(warnings) != 2 {
		t.Fatalf("got %d poll warnings, want 2", len(warnings))
	}
	if device := warnings[0].ContextMap()["device"]; device != "iphone" {
		t.Errorf("warning device field = %v, want iphone", device)
	}
}

func TestSupervise_InvalidParameterFromCheckerStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checker := &scriptedChecker{
		results: []pollResult{{err: session.NewInvalidParameterError("bad name")}},
		cancel:  cancel,
	}
	err := Supervise(ctx, SupervisorConfig{
		Checker:  checker,
		Device:   "iphone",
		OnChange: func(string, bool, bool) {},
		Logger:   zaptest.NewLogger(t),
	})
	if !session.IsInvalidParameterError(err) {
		t.Errorf("Supervise() error = %v, want invalid parameter", err)
	}
}

func TestSupervise_InvalidConfig(t *testing.T) {
	checker := &scriptedChecker{}
	noop := func(string, bool, bool) {}

	tests := []struct {
		name string
		cfg  SupervisorConfig
	}{
		{"no checker", SupervisorConfig{Device: "iphone", OnChange: noop}},
		{"no device", SupervisorConfig{Checker: checker, OnChange: noop}},
		{"no callback", SupervisorConfig{Checker: checker, Device: "iphone"}},
		{"negative debounce", SupervisorConfig{Checker: checker, Device: "iphone", OnChange: noop, DebounceMinutes: -1}},
		{"negative interval", SupervisorConfig{Checker: checker, Device: "iphone", OnChange: noop, PollInterval: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Supervise(context.Background(), tt.cfg)
			if !session.IsInvalidParameterError(err) {
				t.Errorf("Supervise() error = %v, want invalid parameter", err)
			}
			if checker.calls != 0 {
				t.Errorf("checker called %d times, want 0", checker.calls)
			}
		})
	}
}

func TestSupervise_OnPollSeesEveryResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var polls []pollResult
	cause := errors.New("boom")
	err := Supervise(ctx, SupervisorConfig{
		Checker: &scriptedChecker{
			results: []pollResult{{present: true}, {err: cause}},
			cancel:  cancel,
		},
		Device:   "iphone",
		OnChange: func(string, bool, bool) {},
		OnPoll: func(_ string, present bool, err error) {
			polls = append(polls, pollResult{present, err})
		},
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}

	// The last entry is the cancelled poll that ended the script.
	if len(polls) != 3 {
		t.Fatalf("got %d polls, want 3", len(polls))
	}
	if !polls[0].present || polls[0].err != nil {
		t.Errorf("poll 0 = %+v, want present", polls[0])
	}
	if !errors.Is(polls[1].err, cause) {
		t.Errorf("poll 1 error = %v, want %v", polls[1].err, cause)
	}
}

func TestSupervise_WithTracker(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// One poll every 40s of fake time with a one minute debounce:
	// T seen, T+40 missing but debounced, T+80 gone, T+120 back.
	f := &scriptedFetcher{pages: []string{
		wlanJSON("iphone"),
		wlanJSON(),
		wlanJSON(),
		wlanJSON("iphone"),
	}}
	tracker := NewTracker(f, WithClock((&steppingClock{next: baseTime, step: 40 * time.Second}).Now))

	rec := &recorder{}
	polls := 0
	err := Supervise(ctx, SupervisorConfig{
		Checker:         tracker,
		Device:          "iphone",
		OnChange:        rec.onChange,
		DebounceMinutes: 1,
		OnPoll: func(string, bool, error) {
			polls++
			if polls == 4 {
				cancel()
			}
		},
		Logger: zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}

	want := []transition{
		{"iphone", true, false},
		{"iphone", false, true},
	}
	if got := rec.got(); !reflect.DeepEqual(got, want) {
		t.Errorf("transitions = %v, want %v", got, want)
	}
}

type steadyChecker struct {
	calls atomic.Int64
}

func (c *steadyChecker) IsPresent(context.Context, string, int) (bool, error) {
	c.calls.Add(1)
	return true, nil
}

func TestStartSupervision_Stop(t *testing.T) {
	checker := &steadyChecker{}
	s := StartSupervision(context.Background(), SupervisorConfig{
		Checker:      checker,
		Device:       "iphone",
		OnChange:     func(string, bool, bool) {},
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})

	if s.Device() != "iphone" {
		t.Errorf("Device() = %s, want iphone", s.Device())
	}

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() not closed after Stop()")
	}
	if err := s.Err(); err != nil {
		t.Errorf("Err() = %v, want nil after Stop()", err)
	}
	if checker.calls.Load() == 0 {
		t.Error("checker was never polled")
	}
}

func TestStartSupervision_PollInterval(t *testing.T) {
	checker := &steadyChecker{}
	s := StartSupervision(context.Background(), SupervisorConfig{
		Checker:      checker,
		Device:       "iphone",
		OnChange:     func(string, bool, bool) {},
		PollInterval: 100 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})

	time.Sleep(250 * time.Millisecond)
	s.Stop()

	// Polls at roughly 0, 100 and 200ms.
	if calls := checker.calls.Load(); calls < 2 || calls > 4 {
		t.Errorf("checker polled %d times in 250ms at 100ms interval, want about 3", calls)
	}
}

func TestStartSupervision_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := StartSupervision(ctx, SupervisorConfig{
		Checker:      &steadyChecker{},
		Device:       "iphone",
		OnChange:     func(string, bool, bool) {},
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	})

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("supervision did not exit after parent cancel")
	}
}

func TestStartSupervision_InvalidConfigIsReported(t *testing.T) {
	s := StartSupervision(context.Background(), SupervisorConfig{Device: "iphone"})
	s.Wait()
	if !session.IsInvalidParameterError(s.Err()) {
		t.Errorf("Err() = %v, want invalid parameter", s.Err())
	}
}

func TestSuperviseAll(t *testing.T) {
	store := NewStateStore()
	supervisions, err := SuperviseAll(context.Background(), SupervisorConfig{
		Checker:      &steadyChecker{},
		OnChange:     func(string, bool, bool) {},
		Store:        store,
		PollInterval: 10 * time.Millisecond,
		Logger:       zaptest.NewLogger(t),
	}, []string{"iphone", "laptop"})
	if err != nil {
		t.Fatalf("SuperviseAll() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(store.All()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	for _, s := range supervisions {
		s.Stop()
	}

	want := map[string]bool{"iphone": true, "laptop": true}
	if got := store.All(); !reflect.DeepEqual(got, want) {
		t.Errorf("store = %v, want %v", got, want)
	}
}

func TestSuperviseAll_Errors(t *testing.T) {
	if _, err := SuperviseAll(context.Background(), SupervisorConfig{}, nil); !errors.Is(err, ErrNoDevices) {
		t.Errorf("SuperviseAll(nil) error = %v, want ErrNoDevices", err)
	}

	_, err := SuperviseAll(context.Background(), SupervisorConfig{Checker: &steadyChecker{}}, []string{"iphone"})
	if !session.IsInvalidParameterError(err) {
		t.Errorf("SuperviseAll(no callback) error = %v, want invalid parameter", err)
	}
}

func TestChain(t *testing.T) {
	var order []string
	fn := Chain(
		func(device string, _, _ bool) { order = append(order, "first:"+device) },
		nil,
		func(device string, _, _ bool) { order = append(order, "second:"+device) },
	)
	fn("iphone", true, false)

	want := []string{"first:iphone", "second:iphone"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestSupervise_StoreHoldsNewStateDuringCallback(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStateStore()
	var seen []bool
	cfg := SupervisorConfig{
		Checker: &scriptedChecker{
			results: []pollResult{{present: true}, {present: false}},
			cancel:  cancel,
		},
		Device: "iphone",
		OnChange: func(device string, from, to bool) {
			present, _ := store.Get(device)
			seen = append(seen, present)
		},
		Store: store,
	}

	if err := Supervise(ctx, cfg); err != nil {
		t.Fatalf("Supervise() error = %v", err)
	}
	if want := []bool{false}; !reflect.DeepEqual(seen, want) {
		t.Errorf("store during callback = %v, want %v", seen, want)
	}
}

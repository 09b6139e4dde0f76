package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/muurk/fritzbox/internal/presence"
)

// fakeFetcher serves a device list whose members can be changed.
type fakeFetcher struct {
	mu      sync.Mutex
	devices []string
	err     error
	calls   int
}

func (f *fakeFetcher) FetchPage(_ context.Context, _ string, _ url.Values) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	type device struct {
		Name string `json:"name"`
	}
	list := make([]device, 0, len(f.devices))
	for _, name := range f.devices {
		list = append(list, device{Name: name})
	}
	page := map[string]any{"data": map[string]any{"net": map[string]any{"devices": list}}}
	return json.Marshal(page)
}

func (f *fakeFetcher) setDevices(names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = names
}

func newTestServer(t *testing.T, f *fakeFetcher, devices ...string) *Server {
	t.Helper()
	s, err := New(Config{
		Listen:          "127.0.0.1:0",
		Fetcher:         f,
		Devices:         devices,
		PollInterval:    10 * time.Millisecond,
		DebounceMinutes: 1,
		Logger:          zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(Config{Devices: []string{"iphone"}}); err == nil {
		t.Error("New() without fetcher error = nil, want error")
	}
	if _, err := New(Config{Fetcher: &fakeFetcher{}}); !errors.Is(err, presence.ErrNoDevices) {
		t.Errorf("New() without devices error = %v, want ErrNoDevices", err)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	f := &fakeFetcher{devices: []string{"iphone", "tv"}}
	s := newTestServer(t, f, "iphone", "laptop")

	if _, err := s.tracker.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	s.store.Set("iphone", true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/presence", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}

	var resp PresenceResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if resp.DebounceMinutes != 1 {
		t.Errorf("DebounceMinutes = %d, want 1", resp.DebounceMinutes)
	}
	if len(resp.Supervised) != 2 {
		t.Fatalf("Supervised = %+v, want 2 entries", resp.Supervised)
	}
	iphone, laptop := resp.Supervised[0], resp.Supervised[1]
	if iphone.Name != "iphone" || !iphone.Known || !iphone.Present || iphone.LastSeen == nil {
		t.Errorf("iphone = %+v, want known, present, with last_seen", iphone)
	}
	if laptop.Name != "laptop" || laptop.Known || laptop.LastSeen != nil {
		t.Errorf("laptop = %+v, want unknown without last_seen", laptop)
	}
	if len(resp.Devices) != 2 || resp.Devices[0].Name != "iphone" || resp.Devices[1].Name != "tv" {
		t.Errorf("Devices = %+v, want iphone and tv", resp.Devices)
	}
}

func TestDeviceEndpoint(t *testing.T) {
	f := &fakeFetcher{devices: []string{"iphone"}}
	s := newTestServer(t, f, "iphone")
	if _, err := s.tracker.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	calls := f.calls

	tests := []struct {
		path       string
		wantStatus int
		wantBody   string
	}{
		{"/presence/iphone", http.StatusOK, `"present":true`},
		{"/presence/unknown", http.StatusNotFound, "never been reported"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want it to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}

	if f.calls != calls {
		t.Errorf("device endpoint polled the router %d times, want 0", f.calls-calls)
	}
}

func TestHealthEndpoint(t *testing.T) {
	f := &fakeFetcher{devices: []string{"iphone"}}
	s := newTestServer(t, f, "iphone")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status before first poll = %d, want 503", rec.Code)
	}

	if _, err := s.tracker.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status after poll = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, &fakeFetcher{}, "iphone")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/presence", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestRun(t *testing.T) {
	f := &fakeFetcher{devices: []string{"iphone"}}
	s := newTestServer(t, f, "iphone")

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-runErr:
		t.Fatalf("Run() returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}
	base := "http://" + s.Addr().String()

	// Wait for the first poll to reach the store
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, known := s.store.Get("iphone"); known {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("iphone state never determined")
		}
		time.Sleep(10 * time.Millisecond)
	}

	status, body := get(t, base+"/presence")
	if status != http.StatusOK || !strings.Contains(body, `"name":"iphone","known":true,"present":true`) {
		t.Errorf("GET /presence = %d %s", status, body)
	}

	status, body = get(t, base+"/metrics")
	if status != http.StatusOK || !strings.Contains(body, `fritzbox_presence_polls_total{device="iphone",result="success"}`) {
		t.Errorf("GET /metrics = %d, missing poll counter", status)
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	s, err := New(Config{
		Listen:  "not-an-address",
		Fetcher: &fakeFetcher{},
		Devices: []string{"iphone"},
		Logger:  zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() error = nil, want listen error")
	}
}

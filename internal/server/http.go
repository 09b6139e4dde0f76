package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/presence"
)

// DeviceStatus is the supervised state of one device
type DeviceStatus struct {
	Name     string     `json:"name"`
	Known    bool       `json:"known"` // false until the first successful poll
	Present  bool       `json:"present"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PresenceResponse is served on GET /presence
type PresenceResponse struct {
	CheckedAt       time.Time               `json:"checked_at"`
	DebounceMinutes int                     `json:"debounce_minutes"`
	Supervised      []DeviceStatus          `json:"supervised"`
	Devices         []presence.DeviceRecord `json:"devices"` // every device the router has reported
}

// DeviceResponse is served on GET /presence/{device}
type DeviceResponse struct {
	Name       string    `json:"name"`
	Present    bool      `json:"present"`
	LastSeen   time.Time `json:"last_seen"`
	AgeSeconds float64   `json:"age_seconds"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /presence", s.handlePresence)
	mux.HandleFunc("GET /presence/{device}", s.handleDevice)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /ws", s.hub)
	return logRequests(mux)
}

func (s *Server) presenceResponse() PresenceResponse {
	snap := s.tracker.Devices()
	states := s.store.All()

	resp := PresenceResponse{
		CheckedAt:       snap.CheckedAt,
		DebounceMinutes: s.config.DebounceMinutes,
		Supervised:      make([]DeviceStatus, 0, len(s.config.Devices)),
		Devices:         make([]presence.DeviceRecord, 0, len(snap.Devices)),
	}

	for _, name := range s.config.Devices {
		status := DeviceStatus{Name: name}
		status.Present, status.Known = states[name]
		if rec, ok := snap.Devices[name]; ok {
			lastSeen := rec.LastSeen
			status.LastSeen = &lastSeen
		}
		resp.Supervised = append(resp.Supervised, status)
	}

	for _, name := range snap.Names() {
		resp.Devices = append(resp.Devices, snap.Devices[name])
	}
	return resp
}

func (s *Server) handlePresence(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.presenceResponse())
}

// handleDevice answers from the last refresh without polling the router
func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("device")
	snap := s.tracker.Devices()

	age, ok := snap.Age(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "device has never been reported: " + name})
		return
	}

	debounce := time.Duration(s.config.DebounceMinutes) * time.Minute
	writeJSON(w, http.StatusOK, DeviceResponse{
		Name:       name,
		Present:    snap.IsPresent(name, debounce),
		LastSeen:   snap.Devices[name].LastSeen,
		AgeSeconds: age.Seconds(),
	})
}

// handleHealth reports unhealthy until the first successful refresh
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.tracker.Devices()
	if snap.CheckedAt.IsZero() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "waiting for first poll"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"checked_at": snap.CheckedAt,
		"clients":    s.hub.Clients(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write JSON response", zap.Error(err))
	}
}

// statusRecorder captures the status code for request logging. It keeps
// Hijack working so the websocket upgrade passes through.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, rec.status)
	})
}

// sortedStates returns the store content ordered by device name
func sortedStates(states map[string]bool) []DeviceStatus {
	out := make([]DeviceStatus, 0, len(states))
	for name, present := range states {
		out = append(out, DeviceStatus{Name: name, Known: true, Present: present})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

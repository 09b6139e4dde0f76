package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/session"
)

// Path is the web interface page that lists WLAN clients
const Path = "/data.lua"

// PageFetcher is the authenticated page fetch of a session.Client
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// DeviceRecord is the last time a device was reported by the router
type DeviceRecord struct {
	Name     string    `json:"name"`
	LastSeen time.Time `json:"last_seen"`
}

// Snapshot is a copy of the device table taken right after a refresh.
// Every device reported by that refresh has LastSeen == CheckedAt.
type Snapshot struct {
	Devices   map[string]DeviceRecord `json:"devices"`
	CheckedAt time.Time               `json:"checked_at"`
}

// Age returns how long ago name was last reported, relative to
// CheckedAt. ok is false for a device that was never reported.
func (s Snapshot) Age(name string) (age time.Duration, ok bool) {
	rec, ok := s.Devices[name]
	if !ok {
		return 0, false
	}
	return s.CheckedAt.Sub(rec.LastSeen), true
}

// IsPresent applies the debounce rule to the snapshot: a device reported
// by the latest refresh is present, and so is one whose age does not
// exceed debounce.
func (s Snapshot) IsPresent(name string, debounce time.Duration) bool {
	age, ok := s.Age(name)
	if !ok {
		return false
	}
	if age == 0 {
		return true
	}
	return age <= debounce
}

// Names returns the device names in lexical order
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s.Devices))
	for name := range s.Devices {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// wlanPage is the part of the wSet page the tracker reads
type wlanPage struct {
	Data *struct {
		Net *struct {
			Devices []struct {
				Name string `json:"name"`
			} `json:"devices"`
		} `json:"net"`
	} `json:"data"`
}

// TrackerOption configures a Tracker
type TrackerOption func(*Tracker)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.now = now
	}
}

// Tracker keeps the last-seen time of every WLAN device the router has
// reported. Records are never evicted implicitly; use Forget.
type Tracker struct {
	fetcher PageFetcher
	now     func() time.Time

	mu        sync.Mutex
	devices   map[string]DeviceRecord
	checkedAt time.Time
}

// NewTracker creates a Tracker that polls through fetcher
func NewTracker(fetcher PageFetcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		fetcher: fetcher,
		now:     time.Now,
		devices: make(map[string]DeviceRecord),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func pageParams() url.Values {
	params := url.Values{}
	params.Set("lang", "de")
	params.Set("no_sidrenew", "")
	params.Set("page", "wSet")
	return params
}

// Refresh polls the device list once. The poll time is taken before the
// request and stamped on every reported device. Devices missing from the
// page keep their previous record. A refresh that finishes after a newer
// one never moves a timestamp backwards.
func (t *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	checkedAt := t.now()

	body, err := t.fetcher.FetchPage(ctx, Path, pageParams())
	if err != nil {
		return Snapshot{}, fmt.Errorf("refresh device list: %w", err)
	}

	names, err := parseDeviceNames(body)
	if err != nil {
		logging.LogRawBytes("Unexpected device list page", body)
		return Snapshot{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Overlapping refreshes may finish out of order; timestamps only
	// move forward.
	for _, name := range names {
		if rec, ok := t.devices[name]; ok && !checkedAt.After(rec.LastSeen) {
			continue
		}
		t.devices[name] = DeviceRecord{Name: name, LastSeen: checkedAt}
	}
	if checkedAt.After(t.checkedAt) {
		t.checkedAt = checkedAt
	}

	logging.Debug("Device list refreshed",
		zap.Int("reported", len(names)),
		zap.Int("known", len(t.devices)),
	)
	return t.snapshotLocked(), nil
}

// IsPresent refreshes the device list and reports whether name counts as
// present, allowing it to be missing for up to debounceMinutes.
func (t *Tracker) IsPresent(ctx context.Context, name string, debounceMinutes int) (bool, error) {
	if name == "" {
		return false, session.NewInvalidParameterError("device name must not be empty")
	}
	if debounceMinutes < 0 {
		return false, session.NewInvalidParameterError(fmt.Sprintf("debounce must not be negative, got %d", debounceMinutes))
	}

	snap, err := t.Refresh(ctx)
	if err != nil {
		return false, err
	}
	return snap.IsPresent(name, time.Duration(debounceMinutes)*time.Minute), nil
}

// Devices returns the current table without polling. CheckedAt is the
// time of the last successful refresh, zero before the first.
func (t *Tracker) Devices() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Forget drops the record for name. It reports whether one existed.
func (t *Tracker) Forget(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.devices[name]
	delete(t.devices, name)
	return ok
}

func (t *Tracker) snapshotLocked() Snapshot {
	devices := make(map[string]DeviceRecord, len(t.devices))
	for name, rec := range t.devices {
		devices[name] = rec
	}
	return Snapshot{Devices: devices, CheckedAt: t.checkedAt}
}

// parseDeviceNames extracts data.net.devices[].name. Unnamed entries are
// skipped.
func parseDeviceNames(body []byte) ([]string, error) {
	var page wlanPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, session.NewParseError("failed to parse device list", err)
	}
	if page.Data == nil || page.Data.Net == nil {
		return nil, session.NewParseError("device list has no data.net section", nil)
	}

	names := make([]string, 0, len(page.Data.Net.Devices))
	for _, dev := range page.Data.Net.Devices {
		if dev.Name == "" {
			continue
		}
		names = append(names, dev.Name)
	}
	return names, nil
}

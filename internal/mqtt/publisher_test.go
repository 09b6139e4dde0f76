package mqtt

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/muurk/fritzbox/internal/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Enabled:         true,
		Broker:          "mqtt://broker.local:1883",
		DiscoveryPrefix: "homeassistant",
	}
}

func TestLoadOrCreateInstanceID_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		t.Fatalf("id %q is not a UUID: %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Errorf("UUID version = %d, want 7", parsed.Version())
	}

	data, err := os.ReadFile(filepath.Join(dir, "instance_id"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if got := strings.TrimSpace(string(data)); got != id {
		t.Errorf("file content = %q, want %q", got, id)
	}
}

func TestLoadOrCreateInstanceID_ReturnsExisting(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	second, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("second call error = %v", err)
	}
	if second != first {
		t.Errorf("second = %q, want %q (should be stable)", second, first)
	}
}

func TestLoadOrCreateInstanceID_ReplacesGarbage(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "instance_id"), []byte("not-a-uuid\n"), 0600); err != nil {
		t.Fatal(err)
	}

	id, err := LoadOrCreateInstanceID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateInstanceID() error = %v", err)
	}
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("id %q is not a UUID", id)
	}
}

func TestObjectID(t *testing.T) {
	tests := []struct {
		device string
		want   string
	}{
		{"iphone", "iphone"},
		{"iPhone von Anna", "iphone_von_anna"},
		{"Galaxy-S21 (2)", "galaxy_s21_2"},
		{"  laptop  ", "laptop"},
		{"PC--01", "pc_01"},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := ObjectID(tt.device); got != tt.want {
				t.Errorf("ObjectID(%q) = %q, want %q", tt.device, got, tt.want)
			}
		})
	}
}

func TestObjectID_NonLatinName(t *testing.T) {
	got := ObjectID("小明的手机")
	if !strings.HasPrefix(got, "device_") || len(got) != len("device_")+8 {
		t.Errorf("ObjectID() = %q, want device_ plus 8 hash characters", got)
	}
	if other := ObjectID("Телефон"); other == got {
		t.Errorf("different names share object ID %q", got)
	}
	if again := ObjectID("小明的手机"); again != got {
		t.Errorf("ObjectID() not stable: %q then %q", got, again)
	}
}

func TestTopics_DistinctForCollidingNames(t *testing.T) {
	devices := []string{"iphone", "iPhone", "小明的手机", "Телефон"}
	p := New(testConfig(), "0190-instance", devices, nil)

	if got, want := p.stateTopic("iphone"), "fritzbox/fritzbox/iphone/state"; got != want {
		t.Errorf("stateTopic(iphone) = %s, want %s", got, want)
	}

	seen := make(map[string]string)
	for _, device := range devices {
		topic := p.stateTopic(device)
		if strings.Contains(topic, "//") {
			t.Errorf("stateTopic(%q) = %s has an empty level", device, topic)
		}
		if prev, ok := seen[topic]; ok {
			t.Errorf("%q and %q share state topic %s", prev, device, topic)
		}
		seen[topic] = device

		if got := p.discoveryConfig(device).StateTopic; got != topic {
			t.Errorf("discovery StateTopic for %q = %s, want %s", device, got, topic)
		}
	}
}

func TestTopics(t *testing.T) {
	p := New(testConfig(), "0190-instance", []string{"iPhone von Anna"}, nil)

	if got, want := p.availabilityTopic(), "fritzbox/fritzbox/availability"; got != want {
		t.Errorf("availabilityTopic() = %s, want %s", got, want)
	}
	if got, want := p.stateTopic("iPhone von Anna"), "fritzbox/fritzbox/iphone_von_anna/state"; got != want {
		t.Errorf("stateTopic() = %s, want %s", got, want)
	}
	if got, want := p.discoveryTopic("iPhone von Anna"), "homeassistant/binary_sensor/fritzbox/iphone_von_anna/config"; got != want {
		t.Errorf("discoveryTopic() = %s, want %s", got, want)
	}
}

func TestTopics_CustomNodeID(t *testing.T) {
	cfg := testConfig()
	cfg.NodeID = "upstairs"
	p := New(cfg, "0190-instance", nil, nil)

	if got, want := p.availabilityTopic(), "fritzbox/upstairs/availability"; got != want {
		t.Errorf("availabilityTopic() = %s, want %s", got, want)
	}
	if !strings.HasPrefix(p.clientID(), "fritzbox-upstairs-") {
		t.Errorf("clientID() = %s, want fritzbox-upstairs- prefix", p.clientID())
	}
}

func TestDiscoveryConfig(t *testing.T) {
	p := New(testConfig(), "0190-instance", []string{"iphone"}, nil)

	body, err := json.Marshal(p.discoveryConfig("iphone"))
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}

	want := map[string]string{
		"name":               "iphone",
		"unique_id":          "0190-instance_iphone",
		"device_class":       "presence",
		"state_topic":        "fritzbox/fritzbox/iphone/state",
		"availability_topic": "fritzbox/fritzbox/availability",
		"payload_on":         "ON",
		"payload_off":        "OFF",
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("%s = %v, want %v", key, got[key], value)
		}
	}

	device, ok := got["device"].(map[string]any)
	if !ok {
		t.Fatalf("device block missing: %v", got["device"])
	}
	ids, _ := device["identifiers"].([]any)
	if len(ids) != 1 || ids[0] != "0190-instance" {
		t.Errorf("device identifiers = %v, want [0190-instance]", ids)
	}
}

func TestObservePoll_WithoutConnectionTracksState(t *testing.T) {
	p := New(testConfig(), "0190-instance", []string{"iphone"}, nil)

	p.ObservePoll("iphone", true, nil)
	p.ObservePoll("laptop", false, os.ErrDeadlineExceeded)

	p.mu.Lock()
	defer p.mu.Unlock()
	if present, ok := p.states["iphone"]; !ok || !present {
		t.Errorf("iphone state = (%v, %v), want (true, true)", present, ok)
	}
	if _, ok := p.states["laptop"]; ok {
		t.Error("failed poll was recorded")
	}
}

func TestNewDeviceInfo(t *testing.T) {
	info := NewDeviceInfo("id-1", "fritzbox")
	if len(info.Identifiers) != 1 || info.Identifiers[0] != "id-1" {
		t.Errorf("Identifiers = %v, want [id-1]", info.Identifiers)
	}
	if !strings.Contains(info.Name, "fritzbox") {
		t.Errorf("Name = %q, want node ID in it", info.Name)
	}
	if info.SWVersion == "" {
		t.Error("SWVersion is empty")
	}
}

func TestStop_NotStarted(t *testing.T) {
	p := New(testConfig(), "id", nil, nil)
	if err := p.Stop(t.Context()); err != nil {
		t.Errorf("Stop() before Start() error = %v, want nil", err)
	}
}

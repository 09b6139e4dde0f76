package ui

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Logged in").AddDetail("Router", "192.168.178.1:80"),
			want:   []string{"SUCCESS", "Logged in", "Router:", "192.168.178.1:80"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Login failed", errors.New("bad password"), []string{"Check the password"}),
			want:   []string{"FAILED", "Login failed", "Error: bad password", "Troubleshooting:", "Check the password"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No devices reported"),
			want:   []string{"WARNING", "No devices reported"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := tt.result.SetWidth(80).Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("Render() missing %q in:\n%s", want, out)
				}
			}
		})
	}
}

func TestResultDetailsKeepOrder(t *testing.T) {
	out := NewSuccessResult("Switched").
		SetWidth(80).
		AddDetail("AIN", "087610000001").
		AddDetail("State", "on").
		Render()

	if strings.Index(out, "AIN:") > strings.Index(out, "State:") {
		t.Errorf("details rendered out of order:\n%s", out)
	}
}

func TestTipsFromHint(t *testing.T) {
	hint := "The FRITZ!Box rejected the login.\nTroubleshooting:\n  • Check the password\n  • Wait a few seconds"
	want := []string{"The FRITZ!Box rejected the login.", "Check the password", "Wait a few seconds"}

	if got := TipsFromHint(hint); !reflect.DeepEqual(got, want) {
		t.Errorf("TipsFromHint() = %v, want %v", got, want)
	}
}

func TestHeaderRender(t *testing.T) {
	out := NewHeader("Presence watch", "fritzbox presence watch iphone",
		Detail{Key: "Router", Value: "fritz.box"},
	).SetWidth(70).Render()

	for _, want := range []string{"PRESENCE WATCH", "fritzbox presence watch iphone", "Router:", "fritz.box"} {
		if !strings.Contains(out, want) {
			t.Errorf("Render() missing %q in:\n%s", want, out)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{0, "now"},
		{90*time.Second + 300*time.Millisecond, "1m30s ago"},
	}
	for _, tt := range tests {
		if got := FormatAge(tt.age); got != tt.want {
			t.Errorf("FormatAge(%v) = %s, want %s", tt.age, got, tt.want)
		}
	}
}

func TestRenderPresenceTable(t *testing.T) {
	out := RenderPresenceTable([]PresenceRow{
		{Name: "iphone", Present: true, LastSeen: time.Now()},
		{Name: "old-laptop", Present: false, LastSeen: time.Now().Add(-time.Hour), Age: time.Hour},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2 rows:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[1], "present") || !strings.Contains(lines[1], "now") {
		t.Errorf("iphone row = %q", lines[1])
	}
	if !strings.Contains(lines[2], "absent") || !strings.Contains(lines[2], "1h0m0s ago") {
		t.Errorf("laptop row = %q", lines[2])
	}
}

func TestRenderSwitchTable(t *testing.T) {
	out := RenderSwitchTable([]SwitchRow{
		{AIN: "087610000001", Name: "Lamp", State: "on"},
		{AIN: "087610000002", Name: "Heater", State: "unknown"},
	})

	for _, want := range []string{"AIN", "087610000001", "Lamp", "on", "? unknown"} {
		if !strings.Contains(out, want) {
			t.Errorf("RenderSwitchTable() missing %q in:\n%s", want, out)
		}
	}
}

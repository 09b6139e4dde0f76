package homeauto

import (
	"context"
	"errors"
	"net/url"
	"reflect"
	"testing"

	"github.com/muurk/fritzbox/internal/session"
)

// fakeFetcher returns a canned reply and records the last request.
type fakeFetcher struct {
	reply  string
	err    error
	calls  int
	path   string
	params url.Values
}

func (f *fakeFetcher) FetchPage(_ context.Context, path string, params url.Values) ([]byte, error) {
	f.calls++
	f.path = path
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.reply), nil
}

func TestListSwitches(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"two outlets", "087610006161,087610006162\n", []string{"087610006161", "087610006162"}},
		{"one outlet", "087610006161\n", []string{"087610006161"}},
		{"none", "\n", []string{}},
		{"empty body", "", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{reply: tt.reply}
			got, err := New(f).ListSwitches(context.Background())
			if err != nil {
				t.Fatalf("ListSwitches() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ListSwitches() = %#v, want %#v", got, tt.want)
			}
			if f.path != Path {
				t.Errorf("path = %s, want %s", f.path, Path)
			}
			if f.params.Get("switchcmd") != "getswitchlist" {
				t.Errorf("switchcmd = %s, want getswitchlist", f.params.Get("switchcmd"))
			}
			if f.params.Has("ain") {
				t.Error("getswitchlist must not send an ain")
			}
		})
	}
}

func TestSwitchCommands(t *testing.T) {
	const ain = "087610006161"

	tests := []struct {
		name    string
		call    func(*Controller) (string, error)
		wantCmd string
	}{
		{"state", func(c *Controller) (string, error) { return c.SwitchState(context.Background(), ain) }, "getswitchstate"},
		{"name", func(c *Controller) (string, error) { return c.SwitchName(context.Background(), ain) }, "getswitchname"},
		{"on", func(c *Controller) (string, error) { return c.SetSwitch(context.Background(), ain, true) }, "setswitchon"},
		{"off", func(c *Controller) (string, error) { return c.SetSwitch(context.Background(), ain, false) }, "setswitchoff"},
		{"state on", func(c *Controller) (string, error) { return c.SetState(context.Background(), ain, "ON") }, "setswitchon"},
		{"state off", func(c *Controller) (string, error) { return c.SetState(context.Background(), ain, "off") }, "setswitchoff"},
		{"toggle", func(c *Controller) (string, error) { return c.ToggleSwitch(context.Background(), ain) }, "setswitchtoggle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{reply: "1\n"}
			got, err := tt.call(New(f))
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if got != "1" {
				t.Errorf("reply = %q, want trimmed %q", got, "1")
			}
			if f.params.Get("switchcmd") != tt.wantCmd {
				t.Errorf("switchcmd = %s, want %s", f.params.Get("switchcmd"), tt.wantCmd)
			}
			if f.params.Get("ain") != ain {
				t.Errorf("ain = %s, want %s", f.params.Get("ain"), ain)
			}
		})
	}
}

func TestInvalidParameters(t *testing.T) {
	f := &fakeFetcher{reply: "1"}
	c := New(f)

	calls := map[string]func() (string, error){
		"state empty ain":  func() (string, error) { return c.SwitchState(context.Background(), "") },
		"on blank ain":     func() (string, error) { return c.SetSwitch(context.Background(), "  ", true) },
		"toggle empty ain": func() (string, error) { return c.ToggleSwitch(context.Background(), "") },
		"bad state":        func() (string, error) { return c.SetState(context.Background(), "087610006161", "dim") },
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			_, err := call()
			if !session.IsInvalidParameterError(err) {
				t.Errorf("error = %v, want invalid parameter", err)
			}
		})
	}

	if f.calls != 0 {
		t.Errorf("fetcher called %d times, want 0", f.calls)
	}
}

func TestFetchErrorIsWrapped(t *testing.T) {
	cause := session.NewHTTPError(500, "boom")
	f := &fakeFetcher{err: cause}

	_, err := New(f).ListSwitches(context.Background())
	if !errors.Is(err, cause) {
		t.Errorf("error = %v, should wrap %v", err, cause)
	}
	if !session.IsProtocolError(err) {
		t.Error("wrapped error should still be a protocol error")
	}
}

func TestParseState(t *testing.T) {
	tests := []struct {
		reply   string
		want    State
		wantErr bool
	}{
		{"1", StateOn, false},
		{"0\n", StateOff, false},
		{"inval", StateUnknown, false},
		{"", StateUnknown, true},
		{"<html>", StateUnknown, true},
	}

	for _, tt := range tests {
		got, err := ParseState(tt.reply)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseState(%q) error = %v, wantErr %v", tt.reply, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseState(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestStateString(t *testing.T) {
	if StateOn.String() != "on" || StateOff.String() != "off" || StateUnknown.String() != "unknown" {
		t.Errorf("unexpected State strings: %s %s %s", StateOn, StateOff, StateUnknown)
	}
}

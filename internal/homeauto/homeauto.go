package homeauto

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/session"
)

// Path is the home automation endpoint of the web interface
const Path = "/webservices/homeautoswitch.lua"

// Switch commands understood by Path
const (
	cmdList   = "getswitchlist"
	cmdState  = "getswitchstate"
	cmdName   = "getswitchname"
	cmdOn     = "setswitchon"
	cmdOff    = "setswitchoff"
	cmdToggle = "setswitchtoggle"
)

// PageFetcher is the authenticated page fetch of a session.Client
type PageFetcher interface {
	FetchPage(ctx context.Context, path string, params url.Values) ([]byte, error)
}

// Controller sends switch commands for smart plugs
type Controller struct {
	fetcher PageFetcher
}

// New creates a Controller on top of an authenticated fetcher
func New(fetcher PageFetcher) *Controller {
	return &Controller{fetcher: fetcher}
}

// ListSwitches returns the actor identification numbers (AINs) of all
// switchable outlets. A box without outlets yields an empty slice.
func (c *Controller) ListSwitches(ctx context.Context) ([]string, error) {
	text, err := c.command(ctx, cmdList, "")
	if err != nil {
		return nil, err
	}
	if text == "" {
		return []string{}, nil
	}
	return strings.Split(text, ","), nil
}

// SwitchState returns the raw state reply for ain: "1", "0" or "inval".
func (c *Controller) SwitchState(ctx context.Context, ain string) (string, error) {
	if err := requireAIN(ain); err != nil {
		return "", err
	}
	return c.command(ctx, cmdState, ain)
}

// SwitchName returns the name configured for ain in the web interface.
func (c *Controller) SwitchName(ctx context.Context, ain string) (string, error) {
	if err := requireAIN(ain); err != nil {
		return "", err
	}
	return c.command(ctx, cmdName, ain)
}

// SetSwitch turns ain on or off and returns the router's reply.
func (c *Controller) SetSwitch(ctx context.Context, ain string, on bool) (string, error) {
	if err := requireAIN(ain); err != nil {
		return "", err
	}
	cmd := cmdOff
	if on {
		cmd = cmdOn
	}
	return c.command(ctx, cmd, ain)
}

// SetState is SetSwitch with a textual state. Only "on" and "off" are
// accepted.
func (c *Controller) SetState(ctx context.Context, ain, state string) (string, error) {
	switch strings.ToLower(state) {
	case "on":
		return c.SetSwitch(ctx, ain, true)
	case "off":
		return c.SetSwitch(ctx, ain, false)
	default:
		return "", session.NewInvalidParameterError(fmt.Sprintf("switch state must be \"on\" or \"off\", got %q", state))
	}
}

// ToggleSwitch flips ain and returns the router's reply.
func (c *Controller) ToggleSwitch(ctx context.Context, ain string) (string, error) {
	if err := requireAIN(ain); err != nil {
		return "", err
	}
	return c.command(ctx, cmdToggle, ain)
}

func (c *Controller) command(ctx context.Context, cmd, ain string) (string, error) {
	params := url.Values{}
	params.Set("switchcmd", cmd)
	if ain != "" {
		params.Set("ain", ain)
	}

	body, err := c.fetcher.FetchPage(ctx, Path, params)
	if err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	logging.LogRawBytes("Switch command reply", body)

	text := strings.TrimSpace(string(body))
	logging.Debug("Switch command",
		zap.String("cmd", cmd),
		zap.String("ain", ain),
		zap.String("reply", text),
	)
	return text, nil
}

func requireAIN(ain string) error {
	if strings.TrimSpace(ain) == "" {
		return session.NewInvalidParameterError("switch AIN must not be empty")
	}
	return nil
}

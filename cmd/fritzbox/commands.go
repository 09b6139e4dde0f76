package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/fritzbox/internal/config"
	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/session"
	"github.com/muurk/fritzbox/internal/ui"
)

const (
	formatText = "text"
	formatJSON = "json"
)

// Global flags
var (
	routerIP     string
	routerPort   int
	username     string
	password     string
	timeout      time.Duration
	configPath   string
	outputFormat string
	logLevel     string
	verbose1     bool
	verbose2     bool
	verbose3     bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&routerIP, "ip", "i", "", "Router address (default from config, else 192.168.0.1)")
	flags.IntVar(&routerPort, "port", 0, "Router web interface port (default from config, else 80)")
	flags.StringVar(&username, "username", "", "Login user, for boxes configured with user logins")
	flags.StringVarP(&password, "password", "p", "", "Router password (prefer "+config.PasswordEnvVar+")")
	flags.DurationVar(&timeout, "timeout", 0, "HTTP request timeout (default from config, else 10s)")
	flags.StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/fritzbox/config.yaml)")
	flags.StringVar(&outputFormat, "format", formatText, "Output format (text, json)")
	flags.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flags.BoolVar(&verbose1, "v1", false, "Verbose output (info)")
	flags.BoolVar(&verbose2, "v2", false, "Errors only")
	flags.BoolVar(&verbose3, "v3", false, "Debug output")
}

// setupLogging runs before every command. --log-level wins over the
// verbosity switches, which win over FRITZBOX_LOG_LEVEL.
func setupLogging(cmd *cobra.Command, args []string) error {
	switch outputFormat {
	case formatText, formatJSON:
	default:
		return fmt.Errorf("unknown output format %q (use %s or %s)", outputFormat, formatText, formatJSON)
	}

	level := logLevel
	if level == "" {
		level = logging.LevelFromVerbosity(verbose1, verbose2, verbose3)
	}
	return logging.Initialize(level)
}

// loadConfig reads --config or the default file and applies the router
// flags that were set explicitly on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("ip") {
		cfg.Router.Host = routerIP
	}
	if flags.Changed("port") {
		cfg.Router.Port = routerPort
	}
	if flags.Changed("username") {
		cfg.Router.Username = username
	}
	if flags.Changed("timeout") {
		cfg.Router.Timeout = timeout
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newClient builds a session client from config and flags and resolves
// the password, prompting when it is not given otherwise.
func newClient(cmd *cobra.Command) (*session.Client, *config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	secret, ok := config.ResolvePassword(password)
	if !ok {
		secret, err = ui.PromptPassword(fmt.Sprintf("Password for %s: ", cfg.Router.Host))
		if errors.Is(err, ui.ErrNotATerminal) {
			return nil, nil, fmt.Errorf("no password given: use --password or %s", config.PasswordEnvVar)
		}
		if err != nil {
			return nil, nil, err
		}
	}

	client := session.NewClient(cfg.Router.Host, cfg.Router.Port, secret)
	client.Username = cfg.Router.Username
	client.SetTimeout(cfg.Router.Timeout)
	return client, cfg, nil
}

// routerAddr formats the router for headers and results
func routerAddr(cfg *config.Config) string {
	return fmt.Sprintf("%s:%d", cfg.Router.Host, cfg.Router.Port)
}

// printJSON writes v as indented JSON to stdout
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return nil
}

// fail reports err the way the selected format expects and returns an
// error carrying the short message for the exit path.
func fail(title string, err error) error {
	if outputFormat == formatText {
		ui.PrintFailure(title, err, ui.TipsFromHint(session.TroubleshootingHint(err)))
	}
	return fmt.Errorf("%s: %s", strings.ToLower(title), session.ShortErrorMessage(err))
}

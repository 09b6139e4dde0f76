// Fritzbox-server supervises WLAN devices on a FRITZ!Box and publishes
// their presence.
//
// It polls the router's device list, debounces short absences, and fans
// every arrival and departure out to structured logs, Prometheus metrics,
// a JSON view, a websocket event stream, and optionally to MQTT with Home
// Assistant discovery.
//
// Usage:
//
//	fritzbox-server server [flags]
//
// See 'fritzbox-server server --help' for available options.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/config"
	"github.com/muurk/fritzbox/internal/logging"
	"github.com/muurk/fritzbox/internal/metrics"
	"github.com/muurk/fritzbox/internal/mqtt"
	"github.com/muurk/fritzbox/internal/server"
	"github.com/muurk/fritzbox/internal/session"
	"github.com/muurk/fritzbox/internal/version"
)

const programName = "fritzbox-server"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   programName,
	Short: "FRITZ!Box presence server",
	Long: `A long-running presence server for the AVM FRITZ!Box.

Supervises the WLAN devices listed in the config file and serves their
state over HTTP:

  /presence          JSON view of all supervised devices
  /presence/{device} JSON view of one device
  /metrics           Prometheus metrics
  /healthz           503 until the first successful poll
  /ws                websocket stream of presence transitions

With mqtt.enabled set, every device is also published as a Home Assistant
binary_sensor.`,
	Version:      version.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}

// Server command flags
var (
	configPath string
	listen     string
	routerIP   string
	password   string
	logLevel   string
	devices    []string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the presence server",
	Long: `Start supervising devices and serving their state.

Settings come from the config file; the flags below override it. The
router password is read from --password or FRITZBOX_PASSWORD, the MQTT
password from FRITZBOX_MQTT_PASSWORD.`,
	Example: `  # Start with the default config file
  FRITZBOX_PASSWORD=secret fritzbox-server server

  # Supervise two phones on a specific router
  fritzbox-server server -i 192.168.178.1 --device iphone --device pixel

  # Debug logging on a different port
  fritzbox-server server --listen :8080 --log-level debug`,
	RunE: runServer,
}

func init() {
	serverCmd.Flags().StringVar(&configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/fritzbox/config.yaml)")
	serverCmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (default from config, else :9370)")
	serverCmd.Flags().StringVarP(&routerIP, "ip", "i", "", "Router address (default from config)")
	serverCmd.Flags().StringVarP(&password, "password", "p", "", "Router password (prefer "+config.PasswordEnvVar+")")
	serverCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	serverCmd.Flags().StringSliceVar(&devices, "device", nil, "Device to supervise, repeatable (default from config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	logger := logging.GetLogger()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	secret, ok := config.ResolvePassword(password)
	if !ok {
		return fmt.Errorf("no router password: use --password or %s", config.PasswordEnvVar)
	}

	client := session.NewClient(cfg.Router.Host, cfg.Router.Port, secret)
	client.Username = cfg.Router.Username
	client.SetTimeout(cfg.Router.Timeout)

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher, err = newPublisher(cfg, logger)
		if err != nil {
			return err
		}
	}

	srv, err := server.New(server.Config{
		Listen:          cfg.Server.Listen,
		Fetcher:         client,
		Devices:         cfg.Presence.Devices,
		PollInterval:    cfg.Presence.PollInterval,
		DebounceMinutes: cfg.Presence.DebounceMinutes,
		Metrics:         metrics.NewRegistry(),
		Publisher:       publisher,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logging.Info("Starting presence server",
		zap.String("version", version.Full()),
		zap.String("router", fmt.Sprintf("%s:%d", cfg.Router.Host, cfg.Router.Port)),
		zap.Strings("devices", cfg.Presence.Devices),
		zap.String("listen", cfg.Server.Listen),
		zap.Bool("mqtt", publisher != nil),
	)

	if err := srv.Start(); err != nil {
		logging.Error("Presence server stopped", zap.Error(err))
		return err
	}
	return nil
}

// loadConfig reads the config file and applies flag overrides
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
	if flags.Changed("listen") {
		cfg.Server.Listen = listen
	}
	if flags.Changed("device") {
		cfg.Presence.Devices = devices
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(cfg.Presence.Devices) == 0 {
		return nil, errors.New("no devices to supervise: pass --device or set presence.devices in the config file")
	}
	return cfg, nil
}

// newPublisher creates the MQTT publisher with the persistent instance
// ID from the config directory
func newPublisher(cfg *config.Config, logger *zap.Logger) (*mqtt.Publisher, error) {
	dir, err := config.GetConfigDir()
	if err != nil {
		return nil, err
	}
	instanceID, err := mqtt.LoadOrCreateInstanceID(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load MQTT instance ID: %w", err)
	}
	return mqtt.New(cfg.MQTT, instanceID, cfg.Presence.Devices, logger), nil
}

// Version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get(programName))
	},
}

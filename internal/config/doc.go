// Package config provides user configuration management for the fritzbox tools.
//
// This package manages a YAML-based configuration file that stores the router
// address, the devices to supervise, and the optional MQTT and HTTP server
// settings. The configuration follows OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/fritzbox/config.yaml or $HOME/.config/fritzbox/config.yaml
//   - macOS: $HOME/.config/fritzbox/config.yaml
//   - Windows: %LOCALAPPDATA%\fritzbox\config.yaml
//
// # Security
//
// IMPORTANT: This package NEVER stores passwords. The router password comes
// from a flag, FRITZBOX_PASSWORD, or an interactive prompt; the broker password
// from FRITZBOX_MQTT_PASSWORD.
//
// # Usage Example
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	cfg.Presence.Devices = append(cfg.Presence.Devices, "iPhone-von-Anna")
//
//	// Validates, then saves atomically
//	if err := cfg.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Validation
//
// Fields are checked with go-playground/validator. Errors are collected into
// ValidationErrors and reported by their YAML path, for example "router.port".
package config

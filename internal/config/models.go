package config

import (
	"os"
	"time"
)

const (
	// PasswordEnvVar supplies the router password when no flag is given
	PasswordEnvVar = "FRITZBOX_PASSWORD"

	// MQTTPasswordEnvVar supplies the broker password
	MQTTPasswordEnvVar = "FRITZBOX_MQTT_PASSWORD"

	// CurrentVersion is the config file format version
	CurrentVersion = 1
)

// Config represents the entire user configuration file.
// Passwords are never part of it.
type Config struct {
	Version  int            `yaml:"version"`
	Router   RouterConfig   `yaml:"router"`
	Presence PresenceConfig `yaml:"presence"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Server   ServerConfig   `yaml:"server"`
}

// RouterConfig describes how to reach the FRITZ!Box web interface.
type RouterConfig struct {
	Host     string        `yaml:"host" validate:"required,router_host"`
	Port     int           `yaml:"port" validate:"min=1,max=65535"`
	Username string        `yaml:"username,omitempty"`         // Only for boxes with user logins
	Timeout  time.Duration `yaml:"timeout" validate:"gte=1s"` // Per HTTP request
}

// PresenceConfig controls device supervision.
type PresenceConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gte=0s"`
	DebounceMinutes int           `yaml:"debounce_minutes" validate:"gte=0"`
	Devices         []string      `yaml:"devices,omitempty" validate:"unique,dive,required"` // WLAN names as shown by the router
}

// MQTTConfig configures the optional Home Assistant publisher.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker,omitempty" validate:"required,mqtt_url"` // e.g. mqtt://homeassistant.local:1883
	Username        string `yaml:"username,omitempty"`
	DiscoveryPrefix string `yaml:"discovery_prefix" validate:"required,topic_segment"`
	NodeID          string `yaml:"node_id,omitempty" validate:"omitempty,topic_segment"`

	// Password is read from FRITZBOX_MQTT_PASSWORD, never from the file
	Password string `yaml:"-" json:"-"`
}

// ServerConfig configures the HTTP endpoints of fritzbox-server.
type ServerConfig struct {
	Listen string `yaml:"listen" validate:"required,listen_addr"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Router: RouterConfig{
			Host:    "192.168.0.1",
			Port:    80,
			Timeout: 10 * time.Second,
		},
		Presence: PresenceConfig{
			PollInterval:    30 * time.Second,
			DebounceMinutes: 1,
		},
		MQTT: MQTTConfig{
			DiscoveryPrefix: "homeassistant",
		},
		Server: ServerConfig{
			Listen: ":9370",
		},
	}
}

// applyEnv fills secrets from the environment.
func (c *Config) applyEnv() {
	if c.MQTT.Password == "" {
		c.MQTT.Password = os.Getenv(MQTTPasswordEnvVar)
	}
}

// ResolvePassword returns the router password from flagValue or, when
// that is empty, from FRITZBOX_PASSWORD. ok is false when neither is set
// and the caller has to prompt.
func ResolvePassword(flagValue string) (password string, ok bool) {
	if flagValue != "" {
		return flagValue, true
	}
	if env := os.Getenv(PasswordEnvVar); env != "" {
		return env, true
	}
	return "", false
}

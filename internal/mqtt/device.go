package mqtt

import "github.com/muurk/fritzbox/internal/version"

// DeviceInfo holds the Home Assistant device registry fields shared by
// all discovery payloads, so HA groups the presence sensors under one
// device page.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version"`
}

// BinarySensorConfig is the JSON payload of an HA MQTT binary_sensor
// discovery message.
type BinarySensorConfig struct {
	Name              string     `json:"name"`
	UniqueID          string     `json:"unique_id"`
	ObjectID          string     `json:"object_id,omitempty"`
	StateTopic        string     `json:"state_topic"`
	AvailabilityTopic string     `json:"availability_topic"`
	DeviceClass       string     `json:"device_class"`
	PayloadOn         string     `json:"payload_on"`
	PayloadOff        string     `json:"payload_off"`
	Icon              string     `json:"icon,omitempty"`
	Device            DeviceInfo `json:"device"`
}

// State payloads
const (
	PayloadOn  = "ON"
	PayloadOff = "OFF"
)

// NewDeviceInfo creates a DeviceInfo keyed by the persistent instance
// ID, which stays stable when the node ID is changed.
func NewDeviceInfo(instanceID, nodeID string) DeviceInfo {
	return DeviceInfo{
		Identifiers:  []string{instanceID},
		Name:         "FRITZ!Box presence (" + nodeID + ")",
		Manufacturer: "AVM",
		Model:        "FRITZ!Box WLAN",
		SWVersion:    version.Version,
	}
}

func payload(present bool) string {
	if present {
		return PayloadOn
	}
	return PayloadOff
}

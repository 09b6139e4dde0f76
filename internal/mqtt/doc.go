// Package mqtt publishes device presence to an MQTT broker using Home
// Assistant discovery.
//
// Every supervised WLAN device becomes a binary_sensor with device class
// "presence". On every broker (re-)connect the publisher sends retained
// discovery configs, an "online" availability message and the last known
// state of each device. The broker publishes the retained "offline" will
// message when the connection is lost.
//
// Topics, with node ID "fritzbox" and device "iPhone von Anna":
//
//	homeassistant/binary_sensor/fritzbox/iphone_von_anna/config   discovery
//	fritzbox/fritzbox/iphone_von_anna/state                       ON / OFF
//	fritzbox/fritzbox/availability                                online / offline
//
// The connection is managed by autopaho, which reconnects in the
// background.
package mqtt

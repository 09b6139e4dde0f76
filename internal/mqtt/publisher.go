package mqtt

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/config"
)

const (
	// DefaultNodeID is used when the config leaves node_id empty
	DefaultNodeID = "fritzbox"

	topicRoot      = "fritzbox"
	publishTimeout = 5 * time.Second
	connectTimeout = 30 * time.Second
)

// Publisher manages the MQTT connection and mirrors device presence to
// retained state topics.
type Publisher struct {
	cfg        config.MQTTConfig
	nodeID     string
	instanceID string
	device     DeviceInfo
	devices    []string
	logger     *zap.Logger

	// objectIDs holds the collision-free topic level of every
	// configured device
	objectIDs map[string]string

	mu     sync.Mutex
	cm     *autopaho.ConnectionManager
	states map[string]bool
}

// New creates a Publisher for devices but does not connect. Call Start.
func New(cfg config.MQTTConfig, instanceID string, devices []string, logger *zap.Logger) *Publisher {
	nodeID := cfg.NodeID
	if nodeID == "" {
		nodeID = DefaultNodeID
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		cfg:        cfg,
		nodeID:     nodeID,
		instanceID: instanceID,
		device:     NewDeviceInfo(instanceID, nodeID),
		devices:    append([]string(nil), devices...),
		objectIDs:  assignObjectIDs(devices),
		logger:     logger.With(zap.String("component", "mqtt")),
		states:     make(map[string]bool),
	}
}

// Start connects to the broker. It waits up to 30s for the first
// connection; after that autopaho keeps retrying in the background and
// Start returns nil. Discovery and states are (re-)published on every
// connect.
func (p *Publisher) Start(ctx context.Context) error {
	brokerURL, err := url.Parse(p.cfg.Broker)
	if err != nil {
		return fmt.Errorf("parse mqtt broker URL: %w", err)
	}

	pahoCfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       30,
		ConnectUsername: p.cfg.Username,
		ConnectPassword: []byte(p.cfg.Password),
		WillMessage: &paho.WillMessage{
			Topic:   p.availabilityTopic(),
			Payload: []byte("offline"),
			QoS:     1,
			Retain:  true,
		},
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			p.logger.Info("Connected to MQTT broker", zap.String("broker", p.cfg.Broker))
			p.publishDiscovery(ctx, cm)
			p.publishAvailability(ctx, cm, "online")
			p.republishStates(ctx, cm)
		},
		OnConnectError: func(err error) {
			p.logger.Warn("MQTT connection error", zap.Error(err))
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.clientID(),
		},
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" || brokerURL.Scheme == "tls" {
		pahoCfg.TlsCfg = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	cm, err := autopaho.NewConnection(ctx, pahoCfg)
	if err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	p.mu.Lock()
	p.cm = cm
	p.mu.Unlock()

	connCtx, connCancel := context.WithTimeout(ctx, connectTimeout)
	defer connCancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		p.logger.Warn("MQTT initial connection timed out, retrying in background", zap.Error(err))
	}
	return nil
}

// Stop publishes "offline" and disconnects. ctx bounds both steps.
func (p *Publisher) Stop(ctx context.Context) error {
	cm := p.connection()
	if cm == nil {
		return nil
	}
	p.publishAvailability(ctx, cm, "offline")
	return cm.Disconnect(ctx)
}

// ObservePoll matches presence.PollFunc. It publishes the state of
// device when it differs from the last published one, which covers the
// first poll as well as every transition. Failed polls are ignored.
func (p *Publisher) ObservePoll(device string, present bool, err error) {
	if err != nil {
		return
	}

	p.mu.Lock()
	old, known := p.states[device]
	p.states[device] = present
	cm := p.cm
	p.mu.Unlock()

	if known && old == present {
		return
	}
	if cm == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.publishState(ctx, cm, device, present); err != nil {
		// Republished on the next connect
		p.logger.Warn("MQTT state publish failed", zap.String("device", device), zap.Error(err))
	}
}

func (p *Publisher) connection() *autopaho.ConnectionManager {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cm
}

func (p *Publisher) clientID() string {
	id := p.instanceID
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return "fritzbox-" + p.nodeID + "-" + id
}

// --- Topic helpers ---

// ObjectID turns a router device name into a topic level and HA object
// ID: lower case, runs of anything but [a-z0-9] become one underscore.
// A name with nothing left, such as one written only in non-Latin
// script, becomes "device_" plus a hash of the name.
func ObjectID(device string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(device) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	id := strings.TrimSuffix(b.String(), "_")
	if id == "" {
		return "device_" + nameHash(device)
	}
	return id
}

// nameHash is a short stable hash of a device name
func nameHash(device string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(device)).String()[:8]
}

// assignObjectIDs maps every device to its ObjectID. Names that map to
// an ID already taken, e.g. "iPhone" after "iphone", get a hash suffix.
// The first device in config order keeps the plain ID.
func assignObjectIDs(devices []string) map[string]string {
	ids := make(map[string]string, len(devices))
	taken := make(map[string]bool, len(devices))
	for _, device := range devices {
		if _, ok := ids[device]; ok {
			continue
		}
		id := ObjectID(device)
		if taken[id] {
			id += "_" + nameHash(device)
		}
		taken[id] = true
		ids[device] = id
	}
	return ids
}

// objectID returns the assigned topic level of device
func (p *Publisher) objectID(device string) string {
	if id, ok := p.objectIDs[device]; ok {
		return id
	}
	return ObjectID(device)
}

func (p *Publisher) baseTopic() string {
	return topicRoot + "/" + p.nodeID
}

func (p *Publisher) availabilityTopic() string {
	return p.baseTopic() + "/availability"
}

func (p *Publisher) stateTopic(device string) string {
	return p.baseTopic() + "/" + p.objectID(device) + "/state"
}

func (p *Publisher) discoveryTopic(device string) string {
	return p.cfg.DiscoveryPrefix + "/binary_sensor/" + p.nodeID + "/" + p.objectID(device) + "/config"
}

// --- Discovery ---

func (p *Publisher) discoveryConfig(device string) BinarySensorConfig {
	objectID := p.objectID(device)
	return BinarySensorConfig{
		Name:              device,
		UniqueID:          p.instanceID + "_" + objectID,
		ObjectID:          p.nodeID + "_" + objectID,
		StateTopic:        p.stateTopic(device),
		AvailabilityTopic: p.availabilityTopic(),
		DeviceClass:       "presence",
		PayloadOn:         PayloadOn,
		PayloadOff:        PayloadOff,
		Icon:              "mdi:cellphone-wireless",
		Device:            p.device,
	}
}

func (p *Publisher) publishDiscovery(ctx context.Context, cm *autopaho.ConnectionManager) {
	for _, device := range p.devices {
		topic := p.discoveryTopic(device)
		body, err := json.Marshal(p.discoveryConfig(device))
		if err != nil {
			p.logger.Error("MQTT discovery payload", zap.String("device", device), zap.Error(err))
			continue
		}

		if _, err := cm.Publish(ctx, &paho.Publish{
			Topic:   topic,
			Payload: body,
			QoS:     1,
			Retain:  true,
		}); err != nil {
			p.logger.Warn("MQTT discovery publish failed",
				zap.String("device", device), zap.String("topic", topic), zap.Error(err))
		} else {
			p.logger.Debug("MQTT discovery published",
				zap.String("device", device), zap.String("topic", topic))
		}
	}
}

func (p *Publisher) publishAvailability(ctx context.Context, cm *autopaho.ConnectionManager, status string) {
	if _, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.availabilityTopic(),
		Payload: []byte(status),
		QoS:     1,
		Retain:  true,
	}); err != nil {
		p.logger.Warn("MQTT availability publish failed", zap.String("status", status), zap.Error(err))
	} else {
		p.logger.Info("MQTT availability published", zap.String("status", status))
	}
}

func (p *Publisher) republishStates(ctx context.Context, cm *autopaho.ConnectionManager) {
	p.mu.Lock()
	states := make(map[string]bool, len(p.states))
	for device, present := range p.states {
		states[device] = present
	}
	p.mu.Unlock()

	var errs []error
	for device, present := range states {
		if err := p.publishState(ctx, cm, device, present); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", device, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("MQTT state republish incomplete", zap.Error(err))
	}
}

func (p *Publisher) publishState(ctx context.Context, cm *autopaho.ConnectionManager, device string, present bool) error {
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   p.stateTopic(device),
		Payload: []byte(payload(present)),
		QoS:     1,
		Retain:  true,
	})
	if err == nil {
		p.logger.Debug("MQTT state published",
			zap.String("device", device), zap.Bool("present", present))
	}
	return err
}

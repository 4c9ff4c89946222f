package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

const (
	mqttConnectTimeout = 5 * time.Second
	mqttPublishTimeout = 2 * time.Second
	mqttQoS            = byte(0)
)

// ErrMQTTNotConnected is returned by Publish while the broker is unreachable.
var ErrMQTTNotConnected = errors.New("mqtt not connected")

// mqttClient is the part of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTStats are publish counters.
type MQTTStats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

type matrixMessage struct {
	GeneratedAt time.Time          `json:"generatedAt"`
	Matrix      trackerDomain.Grid `json:"matrix"`
}

type statusMessage struct {
	GeneratedAt time.Time                      `json:"generatedAt"`
	Connection  trackerDomain.ConnectionStatus `json:"connection"`
	Stats       trackerDomain.PipelineStats    `json:"stats"`
	Report      trackerDomain.TagReport        `json:"report"`
}

// MQTTPublisher publishes each view frame to
// {prefix}/{instance}/matrix and a retained summary to
// {prefix}/{instance}/status.
type MQTTPublisher struct {
	broker     string
	instanceID string
	prefix     string
	logger     trackerDomain.Logger
	client     mqttClient

	mu        sync.RWMutex
	connected bool
	published map[string]uint64
	errors    uint64
}

// NewMQTTPublisher creates a publisher for broker (host:port). Connect must
// be called before frames are published.
func NewMQTTPublisher(broker, prefix, instanceID string, logger trackerDomain.Logger) *MQTTPublisher {
	return &MQTTPublisher{
		broker:     broker,
		instanceID: instanceID,
		prefix:     prefix,
		logger:     logger,
		published:  make(map[string]uint64),
	}
}

// Connect establishes the broker connection. The client keeps reconnecting
// in the background after a loss.
func (p *MQTTPublisher) Connect(_ context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", p.broker))
	opts.SetClientID(p.instanceID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		p.setConnected(true)
		p.logger.Info("mqtt connection established: broker %s, client id %s", p.broker, p.instanceID)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		p.setConnected(false)
		p.logger.Warn("mqtt connection lost, will auto-reconnect: %s", err.Error())
	}

	client := mqtt.NewClient(opts)
	p.client = client

	p.logger.Info("connecting to mqtt broker %s", p.broker)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return fmt.Errorf("mqtt connection timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}
	p.setConnected(true)
	return nil
}

func (p *MQTTPublisher) setConnected(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = v
}

func (p *MQTTPublisher) isConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil
}

func (p *MQTTPublisher) topic(name string) string {
	return fmt.Sprintf("%s/%s/%s", p.prefix, p.instanceID, name)
}

// Publish sends frame to the broker.
func (p *MQTTPublisher) Publish(frame trackerDomain.ViewFrame) error {
	if !p.isConnected() {
		p.countError()
		return ErrMQTTNotConnected
	}

	matrix := matrixMessage{GeneratedAt: frame.GeneratedAt, Matrix: frame.Matrix}
	if err := p.publishJSON(p.topic("matrix"), false, matrix); err != nil {
		return err
	}

	status := statusMessage{
		GeneratedAt: frame.GeneratedAt,
		Connection:  frame.Connection,
		Stats:       frame.Stats,
		Report:      frame.Report,
	}
	return p.publishJSON(p.topic("status"), true, status)
}

func (p *MQTTPublisher) publishJSON(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		p.countError()
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}

	token := p.client.Publish(topic, mqttQoS, retained, payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		p.countError()
		return fmt.Errorf("publish timeout on %s", topic)
	}
	if err := token.Error(); err != nil {
		p.countError()
		return fmt.Errorf("publish failed on %s: %w", topic, err)
	}

	p.mu.Lock()
	p.published[topic]++
	p.mu.Unlock()
	return nil
}

func (p *MQTTPublisher) countError() {
	p.mu.Lock()
	p.errors++
	p.mu.Unlock()
}

// Stats returns a copy of the publish counters.
func (p *MQTTPublisher) Stats() MQTTStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	published := make(map[string]uint64, len(p.published))
	for k, v := range p.published {
		published[k] = v
	}
	return MQTTStats{
		Connected: p.connected,
		Published: published,
		Errors:    p.errors,
	}
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p.client == nil {
		return
	}
	p.client.Disconnect(250)
	p.setConnected(false)
	p.logger.Info("mqtt publisher disconnected")
}

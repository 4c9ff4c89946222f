package infrastructure

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

type fakeToken struct {
	err      error
	complete bool
}

func (t *fakeToken) Wait() bool                     { return t.complete }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.complete }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type publishedMessage struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeMQTTClient struct {
	mu           sync.Mutex
	messages     []publishedMessage
	err          error
	timeout      bool
	disconnected bool
}

func (c *fakeMQTTClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, publishedMessage{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err, complete: !c.timeout}
}

func (c *fakeMQTTClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func newConnectedPublisher(client *fakeMQTTClient) *MQTTPublisher {
	p := NewMQTTPublisher("localhost:1883", "tagmatrix", "tracker-1", &mockLogger{})
	p.client = client
	p.connected = true
	return p
}

func TestMQTTPublisher_PublishesMatrixAndStatus(t *testing.T) {
	client := &fakeMQTTClient{}
	p := newConnectedPublisher(client)

	frame := trackerDomain.ViewFrame{
		GeneratedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Matrix:      trackerDomain.Grid{Rows: 1, Cols: 1, Cells: []trackerDomain.CellPayload{{EPC: "aaaa", Occupied: true}}},
		Connection:  trackerDomain.ConnectionStatus{State: trackerDomain.StateConnected},
	}
	if err := p.Publish(frame); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(client.messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(client.messages))
	}
	if client.messages[0].topic != "tagmatrix/tracker-1/matrix" || client.messages[0].retained {
		t.Errorf("Unexpected matrix message: %+v", client.messages[0])
	}
	if client.messages[1].topic != "tagmatrix/tracker-1/status" || !client.messages[1].retained {
		t.Errorf("Unexpected status message: %+v", client.messages[1])
	}

	var status map[string]any
	if err := json.Unmarshal(client.messages[1].payload, &status); err != nil {
		t.Fatalf("Status payload is not json: %v", err)
	}
	connection, _ := status["connection"].(map[string]any)
	if connection["state"] != "connected" {
		t.Errorf("Expected connected state in status, got %v", status["connection"])
	}

	stats := p.Stats()
	if stats.Published["tagmatrix/tracker-1/matrix"] != 1 || stats.Errors != 0 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestMQTTPublisher_NotConnected(t *testing.T) {
	p := NewMQTTPublisher("localhost:1883", "tagmatrix", "tracker-1", &mockLogger{})

	if err := p.Publish(trackerDomain.ViewFrame{}); !errors.Is(err, ErrMQTTNotConnected) {
		t.Errorf("Expected ErrMQTTNotConnected, got %v", err)
	}
	if p.Stats().Errors != 1 {
		t.Errorf("Expected 1 error, got %d", p.Stats().Errors)
	}
}

func TestMQTTPublisher_PublishFailures(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeMQTTClient
	}{
		{name: "timeout", client: &fakeMQTTClient{timeout: true}},
		{name: "broker error", client: &fakeMQTTClient{err: errors.New("denied")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newConnectedPublisher(tt.client)
			if err := p.Publish(trackerDomain.ViewFrame{}); err == nil {
				t.Fatal("Expected error, got nil")
			}
			if len(tt.client.messages) != 1 {
				t.Errorf("Expected to stop after the first failure, got %d messages", len(tt.client.messages))
			}
			if p.Stats().Errors != 1 {
				t.Errorf("Expected 1 error, got %d", p.Stats().Errors)
			}
		})
	}
}

func TestMQTTPublisher_Close(t *testing.T) {
	client := &fakeMQTTClient{}
	p := newConnectedPublisher(client)
	p.Close()

	if !client.disconnected {
		t.Error("Expected client to be disconnected")
	}
	if p.Stats().Connected {
		t.Error("Expected publisher to report disconnected")
	}
}

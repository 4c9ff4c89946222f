package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestConnectionMonitor_Transitions(t *testing.T) {
	m := NewConnectionMonitor()
	updates := m.Subscribe()

	if m.Status().State != StateDisconnected {
		t.Fatalf("Expected disconnected, got %s", m.Status().State)
	}

	m.StreamOpened("s1")
	if m.Status().State != StateConnecting {
		t.Errorf("Expected connecting, got %s", m.Status().State)
	}

	m.BatchReceived("s1")
	if m.Status().State != StateConnected {
		t.Errorf("Expected connected, got %s", m.Status().State)
	}

	m.StreamClosed("s1", errors.New("connection reset"))
	status := m.Status()
	if status.State != StateError || status.LastError != "connection reset" {
		t.Errorf("Expected error state, got %+v", status)
	}

	m.StreamOpened("s2")
	m.StreamClosed("s2", nil)
	if m.Status().State != StateDisconnected {
		t.Errorf("Expected disconnected after clean close, got %s", m.Status().State)
	}

	expected := []ConnectionState{StateConnecting, StateConnected, StateError}
	for _, want := range expected {
		got := <-updates
		if got.State != want {
			t.Errorf("Expected update %s, got %s", want, got.State)
		}
	}
}

func TestConnectionMonitor_AnyConnectedWins(t *testing.T) {
	m := NewConnectionMonitor()
	m.StreamOpened("a")
	m.StreamOpened("b")
	m.BatchReceived("b")

	if m.Status().State != StateConnected || m.Status().Streams != 2 {
		t.Errorf("Expected connected with 2 streams, got %+v", m.Status())
	}
}

func TestConnectionState_JSON(t *testing.T) {
	data, err := json.Marshal(ConnectionStatus{State: StateConnecting})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	var decoded map[string]any
	_ = json.Unmarshal(data, &decoded)
	if decoded["state"] != "connecting" {
		t.Errorf("Expected state connecting, got %v", decoded["state"])
	}
}

func TestObservationFilters(t *testing.T) {
	chain := WithInterceptors[TagObservation](
		NewAntennaFilter([]AntennaID{1, 2}),
		NewRSSIFloorFilter(-80),
	)

	tests := []struct {
		name     string
		obs      TagObservation
		filtered bool
	}{
		{"enabled antenna", TagObservation{EPC: "aa", AntennaID: 1, PeakRSSI: Float(-50)}, false},
		{"disabled antenna", TagObservation{EPC: "aa", AntennaID: 3}, true},
		{"below floor", TagObservation{EPC: "aa", AntennaID: 2, PeakRSSI: Float(-85)}, true},
		{"no rssi passes", TagObservation{EPC: "aa", AntennaID: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := chain.Apply(&tt.obs)
			if got := errors.Is(err, ErrObservationFiltered); got != tt.filtered {
				t.Errorf("Expected filtered=%v, got %v", tt.filtered, err)
			}
		})
	}
}

func TestConnectionState_Text(t *testing.T) {
	for _, state := range []ConnectionState{StateDisconnected, StateConnecting, StateConnected, StateError} {
		text, _ := state.MarshalText()
		var parsed ConnectionState
		if err := parsed.UnmarshalText(text); err != nil || parsed != state {
			t.Errorf("Expected %s, got %s (%v)", state, parsed, err)
		}
	}

	var parsed ConnectionState
	if err := parsed.UnmarshalText([]byte("flapping")); err == nil {
		t.Error("Expected error for unknown state")
	}
}

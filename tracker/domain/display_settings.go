package domain

// DisplaySettings selects the lines rendered in each matrix cell.
type DisplaySettings struct {
	EPC       bool `json:"epc" yaml:"epc"`
	PeakRSSI  bool `json:"peak_rssi" yaml:"peak_rssi"`
	Phase     bool `json:"phase" yaml:"phase"`
	Doppler   bool `json:"doppler" yaml:"doppler"`
	ReadCount bool `json:"read_count" yaml:"read_count"`
	FirstSeen bool `json:"first_seen" yaml:"first_seen"`
	LastSeen  bool `json:"last_seen" yaml:"last_seen"`
}

// DefaultDisplaySettings enables every line.
var DefaultDisplaySettings = DisplaySettings{
	EPC:       true,
	PeakRSSI:  true,
	Phase:     true,
	Doppler:   true,
	ReadCount: true,
	FirstSeen: true,
	LastSeen:  true,
}

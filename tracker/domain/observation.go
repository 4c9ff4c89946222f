package domain

import (
	"strconv"
	"time"
)

// RawReport is one decoded tag report as delivered by a reader client:
// loosely typed values keyed by LLRP parameter names.
type RawReport map[string]any

// AntennaID identifies the reader antenna port that saw a tag.
type AntennaID uint16

// UnknownAntenna marks reports that carried no usable antenna id.
const UnknownAntenna AntennaID = 0

func (a AntennaID) String() string {
	if a == UnknownAntenna {
		return "Unknown"
	}
	return strconv.Itoa(int(a))
}

// TagObservation is the canonical form of a single tag report.
// Values are immutable once produced by the Normalizer.
type TagObservation struct {
	EPC                  string        `json:"epc" msgpack:"epc"`
	AntennaID            AntennaID     `json:"antennaId" msgpack:"ant"`
	LastSeenTimestampUTC int64         `json:"lastSeenTimestampUtc" msgpack:"ts"`
	TagSeenCount         uint32        `json:"tagSeenCount" msgpack:"cnt"`
	PeakRSSI             OptionalFloat `json:"peakRssi" msgpack:"rssi"`
	PhaseAngleDegrees    OptionalFloat `json:"phaseAngleDegrees" msgpack:"phase"`
	DopplerFrequencyHz   OptionalFloat `json:"dopplerFrequencyHz" msgpack:"doppler"`
}

// LastSeen converts the reader timestamp (microseconds since epoch).
func (o TagObservation) LastSeen() time.Time {
	return time.UnixMicro(o.LastSeenTimestampUTC)
}

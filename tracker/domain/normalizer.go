package domain

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"
)

// Report keys, as named by LLRP tag report data and the Impinj extensions.
const (
	FieldEPC96                  = "EPC-96"
	FieldEPC                    = "EPC"
	FieldAntennaID              = "AntennaID"
	FieldLastSeenTimestampUTC   = "LastSeenTimestampUTC"
	FieldTagSeenCount           = "TagSeenCount"
	FieldPeakRSSI               = "PeakRSSI"
	FieldImpinjPeakRSSI         = "ImpinjPeakRSSI"
	FieldImpinjPhaseAngle       = "ImpinjRFPhaseAngle"
	FieldImpinjDopplerFrequency = "ImpinjRFDopplerFrequency"
)

// Scale factors of integer encoded vendor fields.
const (
	phaseScale        = 10.0  // tenths of a degree
	dopplerScale      = 10.0  // tenths of a hertz
	impinjRSSIScale   = 100.0 // hundredths of a dBm
	maxAntennaID      = math.MaxUint16
	maxTagSeenCount   = math.MaxUint32
	notAvailableToken = "n/a"
	wrappedValueKey   = "Value"
)

// NormalizerStats counts normalization outcomes since start.
type NormalizerStats struct {
	Normalized        uint64 `json:"normalized"`
	Rejected          uint64 `json:"rejected"`
	TimestampDefaults uint64 `json:"timestampDefaults"`
}

// Normalizer turns raw reader records into TagObservations.
//
// Each field follows a fixed fallback table:
//
//	EPC-96 / EPC              []byte -> lowercase hex; string -> lowercase, spaces removed; missing -> ErrMalformedReport
//	AntennaID                 integer 1..65535, anything else -> UnknownAntenna
//	LastSeenTimestampUTC      integer or numeric string; missing -> 0; non-numeric -> 0 with a warning
//	TagSeenCount              non-negative integer, anything else -> 0
//	PeakRSSI                  number in dBm; fallback ImpinjPeakRSSI / 100; otherwise not available
//	ImpinjRFPhaseAngle        number / 10 in degrees; missing -> not available
//	ImpinjRFDopplerFrequency  number / 10 in Hz; missing -> not available
//
// Any field may also arrive wrapped as {"Value": x}, in which case x is used.
type Normalizer struct {
	logger            Logger
	normalized        atomic.Uint64
	rejected          atomic.Uint64
	timestampDefaults atomic.Uint64
}

// NewNormalizer creates a Normalizer that reports skipped records to logger.
func NewNormalizer(logger Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts a single report. The only failure is a missing or
// unusable EPC, reported as ErrMalformedReport.
func (n *Normalizer) Normalize(report RawReport) (TagObservation, error) {
	epc, err := normalizeEPC(report)
	if err != nil {
		return TagObservation{}, err
	}

	obs := TagObservation{
		EPC:                epc,
		AntennaID:          normalizeAntenna(report[FieldAntennaID]),
		TagSeenCount:       normalizeCount(report[FieldTagSeenCount]),
		PeakRSSI:           normalizeRSSI(report),
		PhaseAngleDegrees:  scaled(report[FieldImpinjPhaseAngle], phaseScale),
		DopplerFrequencyHz: scaled(report[FieldImpinjDopplerFrequency], dopplerScale),
	}

	if raw, ok := report[FieldLastSeenTimestampUTC]; ok && raw != nil {
		ts, ok := toInt64(raw)
		if !ok {
			n.timestampDefaults.Add(1)
			n.logger.Warn("tag %s: non-numeric %s %q, using epoch 0", epc, FieldLastSeenTimestampUTC, fmt.Sprint(raw))
		}
		obs.LastSeenTimestampUTC = ts
	}

	return obs, nil
}

// NormalizeBatch converts every report it can and skips the rest. A record
// that fails, or panics, never prevents the remaining records from being
// normalized.
func (n *Normalizer) NormalizeBatch(reports []RawReport) ([]TagObservation, int) {
	observations := make([]TagObservation, 0, len(reports))
	rejected := 0

	for i, report := range reports {
		var obs TagObservation
		err := SafeFunctionRun(func() error {
			var nErr error
			obs, nErr = n.Normalize(report)
			return nErr
		}, n.logger)
		if err != nil {
			if !errors.Is(err, ErrMalformedReport) {
				err = fmt.Errorf("%w: %w", ErrMalformedReport, err)
			}
			rejected++
			n.rejected.Add(1)
			n.logger.Warn("skipping tag report %d of %d: %s", i+1, len(reports), err.Error())
			continue
		}
		n.normalized.Add(1)
		observations = append(observations, obs)
	}

	return observations, rejected
}

// Stats returns the outcome counters.
func (n *Normalizer) Stats() NormalizerStats {
	return NormalizerStats{
		Normalized:        n.normalized.Load(),
		Rejected:          n.rejected.Load(),
		TimestampDefaults: n.timestampDefaults.Load(),
	}
}

func normalizeEPC(report RawReport) (string, error) {
	raw, ok := report[FieldEPC96]
	if !ok || raw == nil {
		raw, ok = report[FieldEPC]
	}
	if !ok || raw == nil {
		return "", fmt.Errorf("%w: missing EPC", ErrMalformedReport)
	}

	var epc string
	switch v := unwrapValue(raw).(type) {
	case []byte:
		epc = hex.EncodeToString(v)
	case string:
		epc = CanonicalEPC(v)
	default:
		return "", fmt.Errorf("%w: EPC has unsupported type %T", ErrMalformedReport, raw)
	}

	if epc == "" {
		return "", fmt.Errorf("%w: empty EPC", ErrMalformedReport)
	}
	if !isHex(epc) {
		return "", fmt.Errorf("%w: EPC %q is not hexadecimal", ErrMalformedReport, epc)
	}
	return epc, nil
}

// CanonicalEPC lowercases an EPC string and strips whitespace and an
// optional 0x prefix.
func CanonicalEPC(epc string) string {
	return strings.TrimPrefix(strings.ToLower(strings.Join(strings.Fields(epc), "")), "0x")
}

// unwrapValue returns the "Value" member of a parameter map, or raw itself.
func unwrapValue(raw any) any {
	switch v := raw.(type) {
	case map[string]any:
		if inner, ok := v[wrappedValueKey]; ok {
			return inner
		}
	case RawReport:
		if inner, ok := v[wrappedValueKey]; ok {
			return inner
		}
	}
	return raw
}

func isHex(s string) bool {
	for _, r := range s {
		if !('0' <= r && r <= '9' || 'a' <= r && r <= 'f') {
			return false
		}
	}
	return true
}

func normalizeAntenna(raw any) AntennaID {
	id, ok := toInt64(raw)
	if !ok || id < 1 || id > maxAntennaID {
		return UnknownAntenna
	}
	return AntennaID(id)
}

func normalizeCount(raw any) uint32 {
	count, ok := toInt64(raw)
	if !ok || count < 0 {
		return 0
	}
	if count > maxTagSeenCount {
		return maxTagSeenCount
	}
	return uint32(count)
}

func normalizeRSSI(report RawReport) OptionalFloat {
	if v, ok := toFloat(report[FieldPeakRSSI]); ok {
		return Float(v)
	}
	return scaled(report[FieldImpinjPeakRSSI], impinjRSSIScale)
}

func scaled(raw any, scale float64) OptionalFloat {
	v, ok := toFloat(raw)
	if !ok {
		return NotAvailable
	}
	return Float(v / scale)
}

func toInt64(raw any) (int64, bool) {
	switch v := unwrapValue(raw).(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	case string:
		s := strings.TrimSpace(v)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return floatToInt64(f)
	default:
		return 0, false
	}
}

func floatToInt64(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

func toFloat(raw any) (float64, bool) {
	raw = unwrapValue(raw)
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case string:
		s := strings.TrimSpace(v)
		if s == "" || strings.EqualFold(s, notAvailableToken) {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		i, ok := toInt64(raw)
		if !ok {
			return 0, false
		}
		f = float64(i)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

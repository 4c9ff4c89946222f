package domain

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TagReport summarizes the rolling log.
type TagReport struct {
	Rows         int           `json:"rows"`
	TotalReads   uint64        `json:"totalReads"`
	StrongestEPC string        `json:"strongestEpc,omitempty"`
	MaxRSSI      OptionalFloat `json:"maxRssi"`
	AverageRSSI  OptionalFloat `json:"averageRssi"`
	StdDevRSSI   OptionalFloat `json:"stdDevRssi"`
	BelowCount   int           `json:"belowThreshold"`
}

// BuildReport computes summary statistics over entries. Rows without RSSI
// count towards reads but not towards the RSSI figures.
func BuildReport(entries []RollingLogEntry) TagReport {
	report := TagReport{Rows: len(entries)}

	rssi := make([]float64, 0, len(entries))
	epcs := make([]string, 0, len(entries))
	for _, e := range entries {
		report.TotalReads += e.Count
		if e.BelowThreshold {
			report.BelowCount++
		}
		if e.PeakRSSI.Valid {
			rssi = append(rssi, e.PeakRSSI.Value)
			epcs = append(epcs, e.EPC)
		}
	}
	if len(rssi) == 0 {
		return report
	}

	strongest := floats.MaxIdx(rssi)
	report.StrongestEPC = epcs[strongest]
	report.MaxRSSI = Float(rssi[strongest])

	mean, std := stat.MeanStdDev(rssi, nil)
	report.AverageRSSI = Float(mean)
	if len(rssi) > 1 {
		report.StdDevRSSI = Float(std)
	}
	return report
}

package domain

import (
	"fmt"
	"time"
)

// ColorBucket classifies a cell by signal strength.
type ColorBucket string

// Color buckets, strongest first.
const (
	BucketStrong   ColorBucket = "strong"
	BucketModerate ColorBucket = "moderate"
	BucketWeak     ColorBucket = "weak"
	BucketNeutral  ColorBucket = "neutral"
)

// Bucket boundaries in dBm.
const (
	StrongRSSIAbove   = -45.0
	ModerateRSSIAbove = -65.0
)

// WaitingText is shown for watched tags not yet seen.
const WaitingText = "Waiting…"

// BucketForRSSI maps an RSSI reading to its color bucket.
func BucketForRSSI(rssi OptionalFloat) ColorBucket {
	switch {
	case !rssi.Valid:
		return BucketNeutral
	case rssi.Value > StrongRSSIAbove:
		return BucketStrong
	case rssi.Value > ModerateRSSIAbove:
		return BucketModerate
	default:
		return BucketWeak
	}
}

// CellPayload is the toolkit independent rendering of one matrix slot.
type CellPayload struct {
	Row       int         `json:"row"`
	Col       int         `json:"col"`
	EPC       string      `json:"epc,omitempty"`
	Label     string      `json:"label,omitempty"`
	RSSIText  string      `json:"rssiText,omitempty"`
	PhaseText string      `json:"phaseText,omitempty"`
	Lines     []string    `json:"lines,omitempty"`
	Bucket    ColorBucket `json:"bucket"`
	Occupied  bool        `json:"occupied"`
	Waiting   bool        `json:"waiting"`
}

// Grid is a projected matrix in row-major order.
type Grid struct {
	Rows  int           `json:"rows"`
	Cols  int           `json:"cols"`
	Cells []CellPayload `json:"cells"`
}

// Cell returns the payload at (row, col).
func (g Grid) Cell(row, col int) CellPayload {
	return g.Cells[row*g.Cols+col]
}

// Project lays watchList out on a dims grid and renders each slot from
// source. Watch list entries past the last slot are not shown. The result
// depends only on its inputs.
func Project(watchList WatchList, source SnapshotSource, dims MatrixDimensions, display DisplaySettings) Grid {
	grid := Grid{
		Rows:  dims.Rows,
		Cols:  dims.Cols,
		Cells: make([]CellPayload, dims.Slots()),
	}
	for i := range grid.Cells {
		row, col := dims.Position(i)
		grid.Cells[i] = CellPayload{Row: row, Col: col, Bucket: BucketNeutral}
	}

	n := min(watchList.Len(), dims.Slots())
	for i := 0; i < n; i++ {
		cell := &grid.Cells[i]
		renderCell(cell, source.Snapshot(watchList.At(i)), display)
	}
	return grid
}

func renderCell(cell *CellPayload, state AggregatedTagState, display DisplaySettings) {
	cell.EPC = state.EPC
	cell.Label = epcSuffix(state.EPC)
	cell.Occupied = true
	cell.Waiting = state.Waiting

	if state.Waiting {
		cell.RSSIText = WaitingText
		cell.Bucket = BucketNeutral
	} else {
		cell.RSSIText = state.LastPeakRSSI.Format("%.1f dBm")
		cell.Bucket = BucketForRSSI(state.LastPeakRSSI)
		if state.LastPhase.Valid {
			cell.PhaseText = state.LastPhase.Format("%.1f°")
		}
	}

	if display.EPC {
		cell.Lines = append(cell.Lines, "EPC: "+cell.Label)
	}
	if display.PeakRSSI {
		cell.Lines = append(cell.Lines, "Peak RSSI: "+cell.RSSIText)
	}
	if state.Waiting {
		return
	}
	if display.Phase && state.LastPhase.Valid {
		cell.Lines = append(cell.Lines, "Phase: "+cell.PhaseText)
	}
	if display.Doppler && state.LastDoppler.Valid {
		cell.Lines = append(cell.Lines, "Doppler: "+state.LastDoppler.Format("%.1f Hz"))
	}
	if display.ReadCount {
		cell.Lines = append(cell.Lines, fmt.Sprintf("Count: %d", state.ReadCount))
	}
	if display.FirstSeen && !state.FirstSeenAt.IsZero() {
		cell.Lines = append(cell.Lines, "First: "+state.FirstSeenAt.Format(time.TimeOnly))
	}
	if display.LastSeen && !state.LastSeenAt.IsZero() {
		cell.Lines = append(cell.Lines, "Last: "+state.LastSeenAt.Format(time.TimeOnly))
	}
}

func epcSuffix(epc string) string {
	if len(epc) <= 4 {
		return epc
	}
	return epc[len(epc)-4:]
}

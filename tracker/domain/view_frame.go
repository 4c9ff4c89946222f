package domain

import "time"

// ViewFrame is one projection cycle: the matrix, the log and the link state
// as seen at GeneratedAt.
type ViewFrame struct {
	GeneratedAt time.Time         `json:"generatedAt"`
	Matrix      Grid              `json:"matrix"`
	Log         []RollingLogEntry `json:"log"`
	Report      TagReport         `json:"report"`
	Connection  ConnectionStatus  `json:"connection"`
	Stats       PipelineStats     `json:"stats"`
}

// FrameSources bundles what a frame is built from.
type FrameSources struct {
	Settings   *ViewSettings
	Store      SnapshotSource
	Log        *RollingLog
	Connection *ConnectionMonitor
	Pipeline   *Pipeline
}

// BuildViewFrame projects the current state into a frame.
func BuildViewFrame(src FrameSources, now time.Time) ViewFrame {
	entries := src.Log.Entries()
	frame := ViewFrame{
		GeneratedAt: now,
		Matrix:      Project(src.Settings.WatchList(), src.Store, src.Settings.Dimensions(), src.Settings.Display()),
		Log:         entries,
		Report:      BuildReport(entries),
	}
	if src.Connection != nil {
		frame.Connection = src.Connection.Status()
	}
	if src.Pipeline != nil {
		frame.Stats = src.Pipeline.Stats()
	}
	return frame
}

package domain

import (
	"sync/atomic"
	"time"
)

// ViewSettings holds the runtime-editable configuration read by the pipeline
// and the projection loop. Each value is swapped wholesale, so readers see
// either the old or the new value.
type ViewSettings struct {
	watchList atomic.Pointer[WatchList]
	dims      atomic.Pointer[MatrixDimensions]
	display   atomic.Pointer[DisplaySettings]
	refresh   atomic.Int64
	logFilter atomic.Bool
	logger    Logger
}

// NewViewSettings creates settings with an empty watch list, the default
// matrix, display and refresh interval, and the log filter off.
func NewViewSettings(logger Logger) *ViewSettings {
	s := &ViewSettings{logger: logger}
	empty := WatchList{index: map[string]int{}}
	dims := DefaultMatrixDimensions
	display := DefaultDisplaySettings
	s.watchList.Store(&empty)
	s.dims.Store(&dims)
	s.display.Store(&display)
	s.refresh.Store(int64(DefaultRefreshInterval))
	return s
}

// WatchList returns the active watch list.
func (s *ViewSettings) WatchList() WatchList {
	return *s.watchList.Load()
}

// SetWatchList validates and installs epcs. On error the previous list stays.
func (s *ViewSettings) SetWatchList(epcs []string) (WatchList, error) {
	wl, err := NewWatchList(epcs)
	if err != nil {
		return s.WatchList(), err
	}
	s.warnHidden(wl, s.Dimensions())
	s.watchList.Store(&wl)
	return wl, nil
}

// Dimensions returns the active matrix size.
func (s *ViewSettings) Dimensions() MatrixDimensions {
	return *s.dims.Load()
}

// SetDimensions validates and installs a matrix size. On error the previous
// size stays.
func (s *ViewSettings) SetDimensions(rows, cols int) (MatrixDimensions, error) {
	dims, err := NewMatrixDimensions(rows, cols)
	if err != nil {
		return s.Dimensions(), err
	}
	s.warnHidden(s.WatchList(), dims)
	s.dims.Store(&dims)
	return dims, nil
}

// Display returns the active cell display settings.
func (s *ViewSettings) Display() DisplaySettings {
	return *s.display.Load()
}

// SetDisplay installs new cell display settings.
func (s *ViewSettings) SetDisplay(display DisplaySettings) {
	s.display.Store(&display)
}

// LogFilterEnabled reports whether the rolling log hides untracked tags.
func (s *ViewSettings) LogFilterEnabled() bool {
	return s.logFilter.Load()
}

// SetLogFilter toggles the rolling log filter.
func (s *ViewSettings) SetLogFilter(enabled bool) {
	s.logFilter.Store(enabled)
}

// RefreshInterval returns the projection period.
func (s *ViewSettings) RefreshInterval() time.Duration {
	return time.Duration(s.refresh.Load())
}

// SetRefreshInterval validates and installs a projection period.
func (s *ViewSettings) SetRefreshInterval(d time.Duration) error {
	interval, err := NewRefreshInterval(d)
	if err != nil {
		return err
	}
	s.refresh.Store(int64(interval))
	return nil
}

func (s *ViewSettings) warnHidden(wl WatchList, dims MatrixDimensions) {
	if hidden := wl.Len() - dims.Slots(); hidden > 0 && s.logger != nil {
		s.logger.Warn("%d watch list entries do not fit the %s matrix and will not be shown", hidden, dims)
	}
}

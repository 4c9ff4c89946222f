package infrastructure

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

// CSVHeader is the column row of the rolling log export.
var CSVHeader = []string{"#", "Antenna", "EPC", "Timestamp", "Count", "RSSI (dBm)", "Phase", "Doppler"}

const csvBufferSize = 64 * 1024

// WriteLogCSV writes entries, in the order given, as CSV. The "#" column is
// the 1-based row position in that order.
func WriteLogCSV(w io.Writer, entries []trackerDomain.RollingLogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for i, e := range entries {
		row := []string{
			strconv.Itoa(i + 1),
			e.AntennaID.String(),
			e.EPC,
			e.Timestamp,
			strconv.FormatUint(e.Count, 10),
			e.PeakRSSI.Format("%.1f"),
			e.Phase.Format("%.1f"),
			e.Doppler.Format("%.1f"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// LogSource yields the rows to export.
type LogSource interface {
	Entries() []trackerDomain.RollingLogEntry
}

// CSVExporter periodically rewrites a CSV snapshot of the rolling log. Each
// export goes to a temporary file in the target directory which is then
// renamed over the target, so readers never see a partial file.
type CSVExporter struct {
	path     trackerDomain.ExportPath
	interval time.Duration
	source   LogSource
	logger   trackerDomain.Logger
	mu       sync.Mutex
	exported time.Time
}

// Export writes one snapshot.
func (e *CSVExporter) Export() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	target := string(e.path)
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return fmt.Errorf("error on creating export file: %w", err)
	}
	tmpName := f.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	w := bufio.NewWriterSize(f, csvBufferSize)
	if err := WriteLogCSV(w, e.source.Entries()); err != nil {
		_ = f.Close()
		return fmt.Errorf("error on writing csv: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("error on flushing buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("error on closing export file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("error on replacing export file: %w", err)
	}
	e.exported = time.Now()
	return nil
}

// LastExport returns when the last successful export finished.
func (e *CSVExporter) LastExport() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exported
}

// Start exports every interval until ctx is cancelled, then once more.
func (e *CSVExporter) Start(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := e.Export(); err != nil {
				e.logger.Error("final csv export: %s", err.Error())
			}
			return
		case <-ticker.C:
			if err := e.Export(); err != nil {
				e.logger.Error("csv export: %s", err.Error())
			}
		}
	}
}

// NewCSVExporter creates an exporter writing source to path every interval.
func NewCSVExporter(
	path trackerDomain.ExportPath,
	interval time.Duration,
	source LogSource,
	logger trackerDomain.Logger,
) *CSVExporter {
	return &CSVExporter{
		path:     path,
		interval: interval,
		source:   source,
		logger:   logger,
	}
}

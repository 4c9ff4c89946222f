package infrastructure

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
	"gopkg.in/yaml.v3"
)

// LogSettings is the log_settings section of the settings file.
type LogSettings struct {
	MaxRows     int    `yaml:"max_rows"`
	FilterByEPC bool   `yaml:"filter_by_epc"`
	Timezone    string `yaml:"timezone"`
}

// ReaderSettings is the reader_settings section of the settings file. The
// antenna list and RSSI floor filter observations on the tracker side.
type ReaderSettings struct {
	RSSIThreshold float64  `yaml:"rssi_threshold"`
	Antennas      []uint16 `yaml:"antennas"`
	RSSIFloor     *float64 `yaml:"rssi_floor"`
}

// Settings is the YAML settings file. Keys left out keep their defaults.
type Settings struct {
	EPCList         []string                      `yaml:"epc_list"`
	MatrixRows      int                           `yaml:"matrix_rows"`
	MatrixCols      int                           `yaml:"matrix_cols"`
	RefreshInterval time.Duration                 `yaml:"refresh_interval"`
	Display         trackerDomain.DisplaySettings `yaml:"display_settings"`
	Log             LogSettings                   `yaml:"log_settings"`
	Reader          ReaderSettings                `yaml:"reader_settings"`
}

// DefaultSettings returns the settings used when no file is given.
func DefaultSettings() Settings {
	return Settings{
		MatrixRows:      trackerDomain.DefaultMatrixDimensions.Rows,
		MatrixCols:      trackerDomain.DefaultMatrixDimensions.Cols,
		RefreshInterval: trackerDomain.DefaultRefreshInterval.Duration(),
		Display:         trackerDomain.DefaultDisplaySettings,
		Log: LogSettings{
			MaxRows: int(trackerDomain.DefaultLogCapacity),
		},
		Reader: ReaderSettings{
			RSSIThreshold: float64(trackerDomain.DefaultHighlightThreshold),
		},
	}
}

// DecodeSettings reads settings from r on top of the defaults. Unknown keys
// are rejected.
func DecodeSettings(r io.Reader) (Settings, error) {
	settings := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("%w: settings: %w", trackerDomain.ErrConfiguration, err)
	}
	return settings, nil
}

// LoadSettingsFile reads the settings file at path.
func LoadSettingsFile(path string) (Settings, error) {
	f, err := os.Open(path)
	if err != nil {
		return Settings{}, fmt.Errorf("%w: %w", trackerDomain.ErrConfiguration, err)
	}
	defer func() {
		_ = f.Close()
	}()

	return DecodeSettings(f)
}

package infrastructure

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

// EnvPrefix prefixes every environment variable read by the tracker.
const EnvPrefix = "TAGMATRIX_"

// DefaultBindAddress serves both the ingest stream and the HTTP API.
const DefaultBindAddress = ":8081"

// EnvConfig holds the deployment settings that can come from the environment.
type EnvConfig struct {
	BindAddress       string        `env:"BIND_ADDRESS"`
	SettingsFile      string        `env:"SETTINGS_FILE"`
	WatchListFile     string        `env:"WATCHLIST_FILE"`
	LogLevel          string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string        `env:"LOG_FORMAT" envDefault:"console"`
	RateLimit         int           `env:"RATE_LIMIT" envDefault:"1048576"`
	QueueSize         int           `env:"QUEUE_SIZE" envDefault:"4096"`
	JournalDir        string        `env:"JOURNAL_DIR"`
	JournalRetention  time.Duration `env:"JOURNAL_RETENTION" envDefault:"24h"`
	MQTTBroker        string        `env:"MQTT_BROKER"`
	MQTTTopicPrefix   string        `env:"MQTT_TOPIC_PREFIX" envDefault:"tagmatrix"`
	InstanceID        string        `env:"INSTANCE_ID"`
	CSVExportPath     string        `env:"CSV_EXPORT_PATH"`
	CSVExportInterval time.Duration `env:"CSV_EXPORT_INTERVAL" envDefault:"10s"`
}

// ParseEnv fills target from environ, or from the process environment when
// environ is nil.
func ParseEnv(target any, environ map[string]string) error {
	if err := env.ParseWithOptions(target, env.Options{
		Prefix:      EnvPrefix,
		Environment: environ,
	}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// AppConfig holds all validated configuration parameters for the tracker.
type AppConfig struct {
	BindAddress trackerDomain.BindAddress
	RateLimit   trackerDomain.RateLimit
	QueueSize   int
	LogLevel    string
	LogFormat   string

	WatchList          trackerDomain.WatchList
	Dimensions         trackerDomain.MatrixDimensions
	Display            trackerDomain.DisplaySettings
	RefreshInterval    trackerDomain.RefreshInterval
	LogCapacity        trackerDomain.LogCapacity
	LogFilter          bool
	Location           *time.Location
	HighlightThreshold trackerDomain.RSSIThreshold
	Antennas           []trackerDomain.AntennaID
	RSSIFloor          *float64

	// JournalDir is empty when the journal is disabled.
	JournalDir       string
	JournalRetention time.Duration

	// MQTTBroker is empty when publishing is disabled.
	MQTTBroker      string
	MQTTTopicPrefix string
	InstanceID      string

	// CSVExportPath is empty when periodic export is disabled.
	CSVExportPath     trackerDomain.ExportPath
	CSVExportInterval time.Duration
}

type rawFlags struct {
	bindAddress     *string
	settingsFile    *string
	watchListFile   *string
	rateLimit       *int
	logLevel        *string
	logFormat       *string
	journalDir      *string
	mqttBroker      *string
	csvExport       *string
	refreshInterval *time.Duration
	logCapacity     *int
	timezone        *string
}

func defineFlags(fs *flag.FlagSet) rawFlags {
	return rawFlags{
		bindAddress:     fs.String("bind-address", DefaultBindAddress, "Bind address for the ingest stream and HTTP API"),
		settingsFile:    fs.String("config", "", "Path to the YAML settings file"),
		watchListFile:   fs.String("watchlist", "", "Path to a watch list file (JSON or one EPC per line)"),
		rateLimit:       fs.Int("rate-limit", 0, "Ingest rate limit per stream in bytes/sec"),
		logLevel:        fs.String("log-level", "", "Log level: debug, info, warn, error"),
		logFormat:       fs.String("log-format", "", "Log format: console or json"),
		journalDir:      fs.String("journal-dir", "", "Directory of the observation journal; empty disables it"),
		mqttBroker:      fs.String("mqtt-broker", "", "MQTT broker host:port; empty disables publishing"),
		csvExport:       fs.String("csv-export", "", "Path the rolling log is periodically exported to"),
		refreshInterval: fs.Duration("refresh-interval", 0, "Matrix and log refresh interval"),
		logCapacity:     fs.Int("log-capacity", 0, "Maximum rolling log rows"),
		timezone:        fs.String("timezone", "", "Time zone of log timestamps, e.g. Europe/Istanbul"),
	}
}

// GetFromCommandLineParameters parses command-line flags and the process
// environment and returns validated tracker configuration.
func GetFromCommandLineParameters() (*AppConfig, error) {
	return LoadAppConfig(flag.CommandLine, os.Args[1:], nil)
}

// LoadAppConfig builds the configuration from, in increasing precedence:
// defaults, the settings file, the environment and explicitly set flags.
func LoadAppConfig(fs *flag.FlagSet, args []string, environ map[string]string) (*AppConfig, error) {
	raw := defineFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var envCfg EnvConfig
	if err := ParseEnv(&envCfg, environ); err != nil {
		return nil, fmt.Errorf("%w: %w", trackerDomain.ErrConfiguration, err)
	}

	pick := func(name string, flagValue, envValue string) string {
		if set[name] {
			return flagValue
		}
		return envValue
	}

	settings := DefaultSettings()
	if path := pick("config", *raw.settingsFile, envCfg.SettingsFile); path != "" {
		loaded, err := LoadSettingsFile(path)
		if err != nil {
			return nil, err
		}
		settings = loaded
	}

	epcs := settings.EPCList
	if path := pick("watchlist", *raw.watchListFile, envCfg.WatchListFile); path != "" {
		loaded, err := LoadWatchListFile(path)
		if err != nil {
			return nil, err
		}
		epcs = loaded
	}

	if set["refresh-interval"] {
		settings.RefreshInterval = *raw.refreshInterval
	}
	if set["log-capacity"] {
		settings.Log.MaxRows = *raw.logCapacity
	}
	if set["timezone"] {
		settings.Log.Timezone = *raw.timezone
	}

	bindAddressValue := DefaultBindAddress
	if envCfg.BindAddress != "" {
		bindAddressValue = envCfg.BindAddress
	}
	bindAddress, err := trackerDomain.NewBindAddress(pick("bind-address", *raw.bindAddress, bindAddressValue))
	if err != nil {
		return nil, err
	}

	rateLimitValue := envCfg.RateLimit
	if set["rate-limit"] {
		rateLimitValue = *raw.rateLimit
	}
	rateLimit, err := trackerDomain.NewRateLimit(rateLimitValue)
	if err != nil {
		return nil, err
	}

	if envCfg.QueueSize <= 0 {
		return nil, fmt.Errorf("%w: queue size must be greater than 0", trackerDomain.ErrConfiguration)
	}

	watchList, err := trackerDomain.NewWatchList(epcs)
	if err != nil {
		return nil, err
	}

	dims, err := trackerDomain.NewMatrixDimensions(settings.MatrixRows, settings.MatrixCols)
	if err != nil {
		return nil, err
	}

	refreshInterval, err := trackerDomain.NewRefreshInterval(settings.RefreshInterval)
	if err != nil {
		return nil, err
	}

	logCapacity, err := trackerDomain.NewLogCapacity(settings.Log.MaxRows)
	if err != nil {
		return nil, err
	}

	location, err := loadLocation(settings.Log.Timezone)
	if err != nil {
		return nil, err
	}

	threshold, err := trackerDomain.NewRSSIThreshold(settings.Reader.RSSIThreshold)
	if err != nil {
		return nil, err
	}

	antennas := make([]trackerDomain.AntennaID, 0, len(settings.Reader.Antennas))
	for _, a := range settings.Reader.Antennas {
		if a == 0 {
			return nil, fmt.Errorf("%w: antenna ids start at 1", trackerDomain.ErrConfiguration)
		}
		antennas = append(antennas, trackerDomain.AntennaID(a))
	}

	config := &AppConfig{
		BindAddress:        bindAddress,
		RateLimit:          rateLimit,
		QueueSize:          envCfg.QueueSize,
		LogLevel:           pick("log-level", *raw.logLevel, envCfg.LogLevel),
		LogFormat:          pick("log-format", *raw.logFormat, envCfg.LogFormat),
		WatchList:          watchList,
		Dimensions:         dims,
		Display:            settings.Display,
		RefreshInterval:    refreshInterval,
		LogCapacity:        logCapacity,
		LogFilter:          settings.Log.FilterByEPC,
		Location:           location,
		HighlightThreshold: threshold,
		Antennas:           antennas,
		RSSIFloor:          settings.Reader.RSSIFloor,
		JournalDir:         pick("journal-dir", *raw.journalDir, envCfg.JournalDir),
		JournalRetention:   envCfg.JournalRetention,
		MQTTBroker:         pick("mqtt-broker", *raw.mqttBroker, envCfg.MQTTBroker),
		MQTTTopicPrefix:    envCfg.MQTTTopicPrefix,
		InstanceID:         envCfg.InstanceID,
		CSVExportInterval:  envCfg.CSVExportInterval,
	}

	if config.InstanceID == "" {
		config.InstanceID = "tracker-" + uuid.NewString()[:8]
	}

	if path := pick("csv-export", *raw.csvExport, envCfg.CSVExportPath); path != "" {
		exportPath, err := trackerDomain.NewExportPath(path)
		if err != nil {
			return nil, err
		}
		if config.CSVExportInterval <= 0 {
			return nil, fmt.Errorf("%w: csv export interval must be greater than 0", trackerDomain.ErrConfiguration)
		}
		config.CSVExportPath = exportPath
	}

	return config, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	location, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown timezone %q: %w", trackerDomain.ErrConfiguration, name, err)
	}
	return location, nil
}

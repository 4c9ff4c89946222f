package infrastructure

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samoilenko/tagmatrix/pkg/logging"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

// Bridge defaults.
const (
	DefaultTrackerAddress    = "http://127.0.0.1:8081"
	DefaultInventoryInterval = 200 * time.Millisecond
	DefaultTagCount          = 12
	DefaultQueueSize         = 64
)

// AppConfig is the validated bridge configuration.
type AppConfig struct {
	TrackerAddress    bridgeDomain.Address
	ReaderAddress     bridgeDomain.Address
	ReaderID          bridgeDomain.ReaderID
	Session           bridgeDomain.SessionConfig
	InventoryInterval time.Duration
	EPCs              []string
	TagCount          int
	QueueSize         int
	ControlAddress    string
	LogLevel          string
	LogFormat         string
}

// GetFromCommandLineParameters returns the configuration given on the command line.
func GetFromCommandLineParameters() (*AppConfig, error) {
	return LoadAppConfig(flag.CommandLine, os.Args[1:])
}

// LoadAppConfig declares the bridge flags on fs, parses args and validates
// the result.
func LoadAppConfig(fs *flag.FlagSet, args []string) (*AppConfig, error) {
	defaults := bridgeDomain.DefaultSessionConfig()

	rawTracker := fs.String("tracker", DefaultTrackerAddress, "base URL of the tracker ingest endpoint")
	rawReader := fs.String("reader", string(bridgeDomain.DefaultReaderAddress), "reader address")
	rawReaderID := fs.String("reader-id", "", "id sent with every batch (default bridge-<random>)")
	rawAntennas := fs.String("antennas", "1", "comma separated antenna ports")
	txPower := fs.Int("tx-power", defaults.TxPower, "transmit power in dBm")
	reportEvery := fs.Int("report-every", defaults.ReportEveryNTags, "tags per report callback")
	vendorExtensions := fs.Bool("vendor-extensions", defaults.VendorExtensionsEnabled, "request Impinj peak RSSI, phase and doppler")
	interval := fs.Duration("interval", DefaultInventoryInterval, "simulated inventory round interval")
	rawEPCs := fs.String("epcs", "", "comma separated EPCs of the simulated tag population")
	tagCount := fs.Int("tags", DefaultTagCount, "number of random tags when -epcs is not set")
	queueSize := fs.Int("queue-size", DefaultQueueSize, "report batches buffered between reader and tracker")
	controlAddress := fs.String("control-address", "", "bind address of the session control API, empty to disable")
	logLevel := fs.String("log-level", "info", "debug|info|warn|error")
	logFormat := fs.String("log-format", logging.FormatConsole, "console|json")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	tracker, err := bridgeDomain.NewAddress(*rawTracker)
	if err != nil {
		return nil, fmt.Errorf("tracker: %w", err)
	}
	reader, err := bridgeDomain.NewAddress(*rawReader)
	if err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}

	if strings.TrimSpace(*rawReaderID) == "" {
		*rawReaderID = "bridge-" + uuid.NewString()[:8]
	}
	readerID, err := bridgeDomain.NewReaderID(*rawReaderID)
	if err != nil {
		return nil, err
	}

	antennas, err := parseAntennas(*rawAntennas)
	if err != nil {
		return nil, err
	}
	session, err := bridgeDomain.NewSessionConfig(antennas, *txPower, *reportEvery, *vendorExtensions)
	if err != nil {
		return nil, err
	}

	if *tagCount < 1 {
		return nil, fmt.Errorf("%w: tags must be at least 1", bridgeDomain.ErrConfiguration)
	}
	if *queueSize < 1 {
		return nil, fmt.Errorf("%w: queue size must be at least 1", bridgeDomain.ErrConfiguration)
	}

	return &AppConfig{
		TrackerAddress:    tracker,
		ReaderAddress:     reader,
		ReaderID:          readerID,
		Session:           session,
		InventoryInterval: *interval,
		EPCs:              splitList(*rawEPCs),
		TagCount:          *tagCount,
		QueueSize:         *queueSize,
		ControlAddress:    strings.TrimSpace(*controlAddress),
		LogLevel:          *logLevel,
		LogFormat:         *logFormat,
	}, nil
}

func parseAntennas(raw string) ([]uint16, error) {
	parts := splitList(raw)
	antennas := make([]uint16, 0, len(parts))
	for _, part := range parts {
		port, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: antenna %q: %w", bridgeDomain.ErrConfiguration, part, err)
		}
		antennas = append(antennas, uint16(port))
	}
	return antennas, nil
}

func splitList(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

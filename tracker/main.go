// Tracker receives tag report batches from reader bridges, keeps per-EPC
// aggregates and a rolling log, and serves the tag matrix over HTTP,
// websocket and MQTT.
//
// Usage: tracker -bind-address=:8081 -config=./settings.yaml -watchlist=./epcs.txt
//
// Flags (all optional):
//
//	-bind-address: server bind address for ingest and HTTP API (default :8081)
//	-config: YAML settings file (matrix, display, log and reader settings)
//	-watchlist: watch list file, JSON {"epc_list": [...]} or one EPC per line
//	-rate-limit: ingest budget per bridge stream in bytes/sec
//	-log-level, -log-format: logging (debug|info|warn|error, console|json)
//	-journal-dir: badger directory of the observation journal
//	-mqtt-broker: host:port of the MQTT broker frames are published to
//	-csv-export: file the rolling log is periodically exported to
//	-refresh-interval, -log-capacity, -timezone: override settings file values
//
// Every deployment setting can also be given as a TAGMATRIX_* environment
// variable; explicit flags take precedence.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/samoilenko/tagmatrix/pkg/logging"
	"github.com/samoilenko/tagmatrix/pkg/reportwire"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
	trackerInfrastructure "github.com/samoilenko/tagmatrix/tracker/infrastructure"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/protobuf/types/known/structpb"
)

const shutdownTimeout = 5 * time.Second

func endWithError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
	flag.Usage()
	os.Exit(1)
}

func main() {
	ctx, finish := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer finish()

	config, err := trackerInfrastructure.GetFromCommandLineParameters()
	if err != nil {
		endWithError(err)
	}

	zl, err := logging.New(os.Stdout, config.LogLevel, config.LogFormat)
	if err != nil {
		endWithError(err)
	}
	logger := zl.With("service", "tracker")

	logger.Info("Creating services...")
	wg := &sync.WaitGroup{}

	settings := trackerDomain.NewViewSettings(logger)
	if _, err := settings.SetWatchList(config.WatchList.EPCs()); err != nil {
		endWithError(err)
	}
	if _, err := settings.SetDimensions(config.Dimensions.Rows, config.Dimensions.Cols); err != nil {
		endWithError(err)
	}
	if err := settings.SetRefreshInterval(config.RefreshInterval.Duration()); err != nil {
		endWithError(err)
	}
	settings.SetDisplay(config.Display)
	settings.SetLogFilter(config.LogFilter)

	store := trackerDomain.NewAggregationStore(nil)
	store.Reset(config.WatchList)
	rollingLog := trackerDomain.NewRollingLog(config.LogCapacity, config.Location, config.HighlightThreshold)
	monitor := trackerDomain.NewConnectionMonitor()

	// configure observation filters
	var filters []trackerDomain.Interceptor[trackerDomain.TagObservation]
	if len(config.Antennas) > 0 {
		filters = append(filters, trackerDomain.NewAntennaFilter(config.Antennas))
	}
	if config.RSSIFloor != nil {
		filters = append(filters, trackerDomain.NewRSSIFloorFilter(*config.RSSIFloor))
	}
	pipelineOptions := []trackerDomain.PipelineOption{
		trackerDomain.WithQueueSize(config.QueueSize),
		trackerDomain.WithObservationInterceptors(trackerDomain.WithInterceptors(filters...)),
	}

	// the journal outlives the pipeline so that drained observations are stored
	journalCtx, stopJournal := context.WithCancel(context.Background())
	defer stopJournal()
	var journal *trackerInfrastructure.BadgerJournal
	var journalReader trackerInfrastructure.JournalReader
	if config.JournalDir != "" {
		journal, err = trackerInfrastructure.OpenBadgerJournal(config.JournalDir, config.JournalRetention, logger)
		if err != nil {
			endWithError(err)
		}
		journalReader = journal
		pipelineOptions = append(pipelineOptions, trackerDomain.WithObservationSinks(journal))

		wg.Add(1)
		go func() {
			defer wg.Done()
			journal.Start(journalCtx)
			logger.Info("Journal writer stopped")
		}()
	}

	pipeline := trackerDomain.NewPipeline(store, rollingLog, settings, logger, pipelineOptions...)
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		pipeline.Run(context.Background())
	}()

	sources := trackerDomain.FrameSources{
		Settings:   settings,
		Store:      store,
		Log:        rollingLog,
		Connection: monitor,
		Pipeline:   pipeline,
	}

	hub := trackerInfrastructure.NewWebsocketHub(logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	sinks := []trackerDomain.FrameSink{hub}

	if config.MQTTBroker != "" {
		mqttPublisher := trackerInfrastructure.NewMQTTPublisher(config.MQTTBroker, config.MQTTTopicPrefix, config.InstanceID, logger)
		if err := mqttPublisher.Connect(ctx); err != nil {
			logger.Warn("mqtt broker unavailable, retrying in background: %s", err.Error())
		}
		defer mqttPublisher.Close()
		sinks = append(sinks, mqttPublisher)
	}

	publisher := trackerDomain.NewViewPublisher(sources, logger, sinks...)
	wg.Add(1)
	go func() {
		defer wg.Done()
		publisher.Run(ctx)
		logger.Info("View publisher stopped")
	}()

	if config.CSVExportPath != "" {
		exporter := trackerInfrastructure.NewCSVExporter(config.CSVExportPath, config.CSVExportInterval, rollingLog, logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			exporter.Start(ctx)
		}()
	}

	// each bridge stream gets its own validator and rate limit window
	streamConsumer := trackerInfrastructure.NewReportStreamConsumer(pipeline, monitor,
		func() *trackerDomain.Interceptors[structpb.Struct] {
			return trackerDomain.WithInterceptors[structpb.Struct](
				trackerInfrastructure.NewBatchValidator(),
				trackerInfrastructure.NewRateLimiter[*structpb.Struct](config.RateLimit, time.Second),
			)
		},
		logger,
	)

	handlerInterceptors := connect.WithInterceptors(
		trackerInfrastructure.NewPanicRecoveryInterceptor(logger),
	)
	ingestPath, ingestHandler := reportwire.NewIngestHandler(streamConsumer, handlerInterceptors)

	api := trackerInfrastructure.NewHTTPAPI(sources, journalReader, hub, logger)
	server := &http.Server{
		Addr:        string(config.BindAddress),
		Handler:     h2c.NewHandler(api.Router(ingestPath, ingestHandler), &http2.Server{}),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error: %s", err.Error())
		}
	}()

	logger.Info("Listening on %s", config.BindAddress)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("listenAndServe error: %s", err.Error())
		finish()
	}

	logger.Info("closing observation queue...")
	streamConsumer.Stop()
	pipeline.Stop()
	<-pipelineDone
	stopJournal()

	wg.Wait()
	if journal != nil {
		if err := journal.Close(); err != nil {
			logger.Error("closing journal: %s", err.Error())
		}
	}
	logger.Info("All components stopped gracefully")
}

// Readerbridge owns the session with an RFID reader and streams its tag
// reports to the tracker.
//
// Usage example: readerbridge -tracker=http://127.0.0.1:8081 -reader=192.168.254.100 -antennas=1,2
//
// Flags (all optional):
//
//	-tracker: base URL of the tracker (default http://127.0.0.1:8081)
//	-reader: reader address (default 192.168.254.100)
//	-reader-id: id sent with every batch (default bridge-<random>)
//	-antennas, -tx-power, -report-every, -vendor-extensions: session settings
//	-interval, -epcs, -tags: simulated reader inventory
//	-queue-size: report batches buffered while the tracker is slow
//	-control-address: bind address of the session control API
//	-log-level, -log-format: logging (debug|info|warn|error, console|json)
package main

import (
	"context"
	"crypto/tls"
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
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
	bridgeInfrastructure "github.com/samoilenko/tagmatrix/readerbridge/infrastructure"
	"github.com/samoilenko/tagmatrix/readerbridge/infrastructure/responseconsumer"
	"golang.org/x/net/http2"
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

	config, err := bridgeInfrastructure.GetFromCommandLineParameters()
	if err != nil {
		endWithError(err)
	}

	zl, err := logging.New(os.Stdout, config.LogLevel, config.LogFormat)
	if err != nil {
		endWithError(err)
	}
	logger := zl.With("service", "readerbridge").With("reader", string(config.ReaderID))

	reader, err := bridgeInfrastructure.NewSimulatedReader(config.EPCs, config.TagCount, config.InventoryInterval)
	if err != nil {
		endWithError(err)
	}

	httpClient := &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
	client := reportwire.NewIngestClient(httpClient, string(config.TrackerAddress), connect.WithGRPC())

	wg := &sync.WaitGroup{}

	retryAfter := bridgeInfrastructure.NewRetryAfterDelay()
	transport := bridgeInfrastructure.NewReportStreamSender(
		bridgeInfrastructure.NewReportStream(client, logger),
		logger,
		retryAfter,
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		transport.Run(ctx)
	}()

	loggerCh, loggerDone := responseconsumer.ResponseLogger(logger)
	delayCh, delayDone := responseconsumer.RetryDelayConsumer(retryAfter)
	go func() {
		if missed := responseconsumer.Broadcast(transport.GetResponseChannel(), loggerCh, delayCh); missed > 0 {
			logger.Warn("%d tracker responses were not consumed", missed)
		}
	}()

	queue := bridgeDomain.NewReportQueue(config.QueueSize, logger)
	sessions := bridgeDomain.NewSessionManager(reader, func(reports []bridgeDomain.RawReport) {
		queue.Push(reports)
	}, logger)
	sessions.Subscribe(func(status bridgeDomain.SessionStatus) {
		logger.Info("reader status: %s", status.State)
	})

	forwarder := bridgeDomain.NewReportForwarder(transport, logger, config.ReaderID)
	wg.Add(1)
	go func() {
		defer wg.Done()
		forwarder.Forward(ctx, queue.Batches())
	}()

	if config.ControlAddress != "" {
		api := bridgeInfrastructure.NewControlAPI(sessions, config.ReaderAddress, config.Session, forwarder, queue, logger)
		server := &http.Server{
			Addr:        config.ControlAddress,
			Handler:     api.Router(),
			BaseContext: func(net.Listener) context.Context { return ctx },
		}
		wg.Add(2)
		go func() {
			defer wg.Done()
			logger.Info("Control API listening on %s", config.ControlAddress)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("control API: %s", err.Error())
				finish()
			}
		}()
		go func() {
			defer wg.Done()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error: %s", err.Error())
			}
		}()
	}

	// a failed connect is not retried; with the control API the operator can
	// connect again, without it there is nothing left to do
	if err := sessions.Connect(ctx, config.ReaderAddress, config.Session); err != nil {
		if config.ControlAddress == "" {
			finish()
		}
	} else if err := sessions.StartInventory(ctx); err != nil {
		logger.Error("start inventory: %s", err.Error())
	}

	<-ctx.Done()
	logger.Info("Shutting down...")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sessions.Disconnect(stopCtx); err != nil {
		logger.Error("disconnect: %s", err.Error())
	}
	queue.Close()

	wg.Wait()
	<-loggerDone
	<-delayDone

	stats := forwarder.Stats()
	logger.Info("All components stopped gracefully: %d batches sent, %d dropped, %d failed, %d lost to a full queue",
		stats.Sent, stats.Dropped, stats.Failed, queue.Dropped())
}

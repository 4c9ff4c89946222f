package infrastructure

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

// Journal query bounds.
const (
	DefaultJournalLimit = 100
	MaxJournalLimit     = 1000
)

// JournalReader serves the journal endpoint.
type JournalReader interface {
	Recent(limit int) ([]JournalRecord, error)
	Stats() JournalStats
}

// HTTPAPI exposes the tracker state and its runtime settings over HTTP.
type HTTPAPI struct {
	sources trackerDomain.FrameSources
	journal JournalReader
	hub     *WebsocketHub
	logger  trackerDomain.Logger
	now     func() time.Time
}

// NewHTTPAPI creates the API. sources.Pipeline must be set; journal and hub
// may be nil when those outputs are disabled.
func NewHTTPAPI(
	sources trackerDomain.FrameSources,
	journal JournalReader,
	hub *WebsocketHub,
	logger trackerDomain.Logger,
) *HTTPAPI {
	return &HTTPAPI{
		sources: sources,
		journal: journal,
		hub:     hub,
		logger:  logger,
		now:     time.Now,
	}
}

// Router builds the chi router. The ingest handler is mounted at
// ingestPath outside of the request logging group, since streams stay open
// for the lifetime of a bridge.
func (a *HTTPAPI) Router(ingestPath string, ingest http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if ingest != nil {
		r.Handle(ingestPath, ingest)
	}
	if a.hub != nil {
		r.Get("/ws", a.hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(a.requestLogger)

		r.Get("/status", a.getStatus)
		r.Get("/matrix", a.getMatrix)
		r.Get("/log", a.getLog)
		r.Get("/log.csv", a.getLogCSV)
		r.Get("/report", a.getReport)
		r.Get("/journal", a.getJournal)

		r.Post("/reset", a.postReset)
		r.Post("/log/clear", a.postClearLog)

		r.Put("/watchlist", a.putWatchList)
		r.Put("/matrix/size", a.putMatrixSize)
		r.Put("/log/filter", a.putLogFilter)
		r.Put("/log/threshold", a.putLogThreshold)
		r.Put("/display", a.putDisplay)
		r.Put("/refresh-interval", a.putRefreshInterval)
	})

	return r
}

func (a *HTTPAPI) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Debug("%s %s %d %dB %s [%s]",
			r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

type settingsView struct {
	WatchList       []string                       `json:"epcList"`
	Dimensions      trackerDomain.MatrixDimensions `json:"matrix"`
	Display         trackerDomain.DisplaySettings  `json:"display"`
	LogFilter       bool                           `json:"logFilter"`
	RefreshInterval string                         `json:"refreshInterval"`
}

type statusView struct {
	Connection trackerDomain.ConnectionStatus `json:"connection"`
	Pipeline   trackerDomain.PipelineStats    `json:"pipeline"`
	Settings   settingsView                   `json:"settings"`
	LogRows    int                            `json:"logRows"`
	Journal    *JournalStats                  `json:"journal,omitempty"`
	WSClients  int                            `json:"wsClients"`
}

func (a *HTTPAPI) getStatus(w http.ResponseWriter, _ *http.Request) {
	settings := a.sources.Settings
	status := statusView{
		Pipeline: a.sources.Pipeline.Stats(),
		Settings: settingsView{
			WatchList:       settings.WatchList().EPCs(),
			Dimensions:      settings.Dimensions(),
			Display:         settings.Display(),
			LogFilter:       settings.LogFilterEnabled(),
			RefreshInterval: settings.RefreshInterval().String(),
		},
		LogRows: a.sources.Log.Len(),
	}
	if a.sources.Connection != nil {
		status.Connection = a.sources.Connection.Status()
	}
	if a.journal != nil {
		stats := a.journal.Stats()
		status.Journal = &stats
	}
	if a.hub != nil {
		status.WSClients = a.hub.Clients()
	}
	a.writeJSON(w, http.StatusOK, status)
}

func (a *HTTPAPI) getMatrix(w http.ResponseWriter, _ *http.Request) {
	settings := a.sources.Settings
	grid := trackerDomain.Project(settings.WatchList(), a.sources.Store, settings.Dimensions(), settings.Display())
	a.writeJSON(w, http.StatusOK, grid)
}

type logView struct {
	Entries []trackerDomain.RollingLogEntry `json:"entries"`
	Counts  map[string]uint64               `json:"counts"`
}

func (a *HTTPAPI) getLog(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, logView{
		Entries: a.sources.Log.Entries(),
		Counts:  a.sources.Log.Counts(),
	})
}

func (a *HTTPAPI) getLogCSV(w http.ResponseWriter, _ *http.Request) {
	filename := "tag_log_" + a.now().In(a.sources.Log.Location()).Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := WriteLogCSV(w, a.sources.Log.Entries()); err != nil {
		a.logger.Error("csv response: %s", err.Error())
	}
}

func (a *HTTPAPI) getReport(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, trackerDomain.BuildReport(a.sources.Log.Entries()))
}

func (a *HTTPAPI) getJournal(w http.ResponseWriter, r *http.Request) {
	if a.journal == nil {
		a.writeError(w, http.StatusNotFound, errors.New("journal is disabled"))
		return
	}

	limit := DefaultJournalLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be a positive integer: %q", raw))
			return
		}
		limit = min(n, MaxJournalLimit)
	}

	records, err := a.journal.Recent(limit)
	if err != nil {
		a.logger.Error("journal query: %s", err.Error())
		a.writeError(w, http.StatusInternalServerError, errors.New("journal query failed"))
		return
	}
	a.writeJSON(w, http.StatusOK, records)
}

func (a *HTTPAPI) postReset(w http.ResponseWriter, _ *http.Request) {
	a.sources.Pipeline.Reset()
	a.logger.Info("tracking reset")
	w.WriteHeader(http.StatusNoContent)
}

func (a *HTTPAPI) postClearLog(w http.ResponseWriter, _ *http.Request) {
	a.sources.Pipeline.ClearLog()
	w.WriteHeader(http.StatusNoContent)
}

type watchListRequest struct {
	EPCList []string `json:"epc_list"`
}

func (a *HTTPAPI) putWatchList(w http.ResponseWriter, r *http.Request) {
	var req watchListRequest
	if !a.decode(w, r, &req) {
		return
	}
	wl, err := a.sources.Settings.SetWatchList(req.EPCList)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.logger.Info("watch list updated: %d EPCs", wl.Len())
	a.writeJSON(w, http.StatusOK, watchListRequest{EPCList: wl.EPCs()})
}

func (a *HTTPAPI) putMatrixSize(w http.ResponseWriter, r *http.Request) {
	var req trackerDomain.MatrixDimensions
	if !a.decode(w, r, &req) {
		return
	}
	dims, err := a.sources.Settings.SetDimensions(req.Rows, req.Cols)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeJSON(w, http.StatusOK, dims)
}

type logFilterRequest struct {
	Enabled bool `json:"enabled"`
}

func (a *HTTPAPI) putLogFilter(w http.ResponseWriter, r *http.Request) {
	var req logFilterRequest
	if !a.decode(w, r, &req) {
		return
	}
	a.sources.Settings.SetLogFilter(req.Enabled)
	a.writeJSON(w, http.StatusOK, req)
}

type thresholdRequest struct {
	RSSI float64 `json:"rssi"`
}

func (a *HTTPAPI) putLogThreshold(w http.ResponseWriter, r *http.Request) {
	var req thresholdRequest
	if !a.decode(w, r, &req) {
		return
	}
	threshold, err := trackerDomain.NewRSSIThreshold(req.RSSI)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.sources.Log.SetHighlightThreshold(threshold)
	a.writeJSON(w, http.StatusOK, req)
}

func (a *HTTPAPI) putDisplay(w http.ResponseWriter, r *http.Request) {
	display := a.sources.Settings.Display()
	if !a.decode(w, r, &display) {
		return
	}
	a.sources.Settings.SetDisplay(display)
	a.writeJSON(w, http.StatusOK, display)
}

type refreshIntervalRequest struct {
	Interval string `json:"interval"`
}

func (a *HTTPAPI) putRefreshInterval(w http.ResponseWriter, r *http.Request) {
	var req refreshIntervalRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := time.ParseDuration(req.Interval)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %w", trackerDomain.ErrConfiguration, err))
		return
	}
	if err := a.sources.Settings.SetRefreshInterval(d); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeJSON(w, http.StatusOK, refreshIntervalRequest{Interval: d.String()})
}

// decode reads a JSON body into v. Fields absent from the body keep the
// values v already holds.
func (a *HTTPAPI) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		a.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	return true
}

type errorView struct {
	Error string `json:"error"`
}

func (a *HTTPAPI) writeError(w http.ResponseWriter, status int, err error) {
	a.writeJSON(w, status, errorView{Error: err.Error()})
}

func (a *HTTPAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("json response: %s", err.Error())
	}
}

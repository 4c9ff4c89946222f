package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	bridgeDomain "github.com/samoilenko/tagmatrix/readerbridge/domain"
)

// SessionController is the session lifecycle driven by the control API.
type SessionController interface {
	Connect(ctx context.Context, address bridgeDomain.Address, cfg bridgeDomain.SessionConfig) error
	Disconnect(ctx context.Context) error
	StartInventory(ctx context.Context) error
	StopInventory(ctx context.Context) error
	Status() bridgeDomain.SessionStatus
}

// ForwardingStats reports the forwarding side of the bridge.
type ForwardingStats interface {
	Stats() bridgeDomain.ForwarderStats
}

// ControlAPI lets an operator connect, disconnect, start and stop the
// reader over HTTP.
type ControlAPI struct {
	sessions  SessionController
	address   bridgeDomain.Address
	cfg       bridgeDomain.SessionConfig
	forwarder ForwardingStats
	queue     *bridgeDomain.ReportQueue
	logger    bridgeDomain.Logger
}

type controlStatus struct {
	Session      bridgeDomain.SessionStatus  `json:"session"`
	Forwarder    bridgeDomain.ForwarderStats `json:"forwarder"`
	QueueDropped uint64                      `json:"queueDropped"`
}

// Router builds the control routes.
func (a *ControlAPI) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", a.getStatus)
	r.Post("/connect", a.action(func(ctx context.Context) error {
		return a.sessions.Connect(ctx, a.address, a.cfg)
	}))
	r.Post("/disconnect", a.action(a.sessions.Disconnect))
	r.Post("/inventory/start", a.action(a.sessions.StartInventory))
	r.Post("/inventory/stop", a.action(a.sessions.StopInventory))
	return r
}

func (a *ControlAPI) status() controlStatus {
	status := controlStatus{Session: a.sessions.Status()}
	if a.forwarder != nil {
		status.Forwarder = a.forwarder.Stats()
	}
	if a.queue != nil {
		status.QueueDropped = a.queue.Dropped()
	}
	return status
}

func (a *ControlAPI) getStatus(w http.ResponseWriter, _ *http.Request) {
	a.writeJSON(w, http.StatusOK, a.status())
}

func (a *ControlAPI) action(op func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := op(r.Context())
		var connectErr *bridgeDomain.ConnectError
		switch {
		case err == nil:
			a.writeJSON(w, http.StatusOK, a.status())
		case errors.Is(err, bridgeDomain.ErrNotConnected), errors.Is(err, bridgeDomain.ErrAlreadyConnected):
			a.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		case errors.As(err, &connectErr):
			a.writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		default:
			a.logger.Error("%s %s: %s", r.Method, r.URL.Path, err.Error())
			a.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}
}

func (a *ControlAPI) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("json response: %s", err.Error())
	}
}

// NewControlAPI creates the API. Connect uses address and cfg; forwarder and
// queue may be nil.
func NewControlAPI(
	sessions SessionController,
	address bridgeDomain.Address,
	cfg bridgeDomain.SessionConfig,
	forwarder ForwardingStats,
	queue *bridgeDomain.ReportQueue,
	logger bridgeDomain.Logger,
) *ControlAPI {
	return &ControlAPI{
		sessions:  sessions,
		address:   address,
		cfg:       cfg,
		forwarder: forwarder,
		queue:     queue,
		logger:    logger,
	}
}

// Package gateway exposes the HTTP signal router in front of the order
// orchestrator. It translates REST calls into Restate ingress calls and
// consults the order record in Postgres so unknown orders and finished
// orders get their answer without a round trip to the workflow.
package gateway

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/order"
	"github.com/pithomlabs/orderflow/internal/store"
)

// Orchestrator is the slice of the Restate ingress surface the gateway uses.
type Orchestrator interface {
	StartOrder(ctx context.Context, orderID string, req order.StartRequest) error
	Approve(ctx context.Context, orderID string) (order.SignalAck, error)
	Cancel(ctx context.Context, orderID string, req order.CancelRequest) (order.SignalAck, error)
	UpdateAddress(ctx context.Context, orderID string, addr lifecycle.Address) (order.SignalAck, error)
	Status(ctx context.Context, orderID string) (order.StatusResponse, error)
}

// OrderReader reads the order record the orchestrator persists.
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (*lifecycle.Order, error)
}

var _ OrderReader = (*store.Store)(nil)

// Server routes signal and query requests for order workflows.
type Server struct {
	orchestrator Orchestrator
	orders       OrderReader
	logger       *slog.Logger
}

// NewServer creates a Server with the provided dependencies.
func NewServer(orch Orchestrator, orders OrderReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orchestrator: orch, orders: orders, logger: logger}
}

// Routes builds the chi router for the signal and query surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Post("/start", s.handleStart)
		r.Post("/signals/approve", s.handleApprove)
		r.Post("/signals/cancel", s.handleCancel)
		r.Post("/signals/update-address", s.handleUpdateAddress)
		r.Get("/status", s.handleStatus)
	})

	return r
}

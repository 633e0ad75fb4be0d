package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/order"
	"github.com/pithomlabs/orderflow/internal/store"
)

// startResponse acknowledges a submitted order.
type startResponse struct {
	OrderID string          `json:"order_id"`
	State   lifecycle.State `json:"state"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req order.StartRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	if strings.TrimSpace(req.PaymentID) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "payment_id is required")
		return
	}

	if _, err := s.orders.GetOrder(r.Context(), orderID); err == nil {
		writeErr(w, ErrOrderExists)
		return
	} else if !errors.Is(err, store.ErrOrderNotFound) {
		s.logger.Error("Order lookup failed", "orderId", orderID, "err", err)
		writeErr(w, err)
		return
	}

	if err := s.orchestrator.StartOrder(r.Context(), orderID, req); err != nil {
		s.signalError(w, orderID, "start", err)
		return
	}

	s.logger.Info("Order submitted", "orderId", orderID, "paymentId", req.PaymentID)
	writeJSON(w, http.StatusOK, startResponse{OrderID: orderID, State: lifecycle.StateReceived})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	o, ok := s.loadOrder(w, r, orderID)
	if !ok {
		return
	}
	if o.State.Terminal() {
		writeJSON(w, http.StatusOK, noopAck(o))
		return
	}

	ack, err := s.orchestrator.Approve(r.Context(), orderID)
	if err != nil {
		s.signalError(w, orderID, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	// An empty body is a plain cancellation with no reason.
	var req order.CancelRequest
	if err := decodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}

	o, ok := s.loadOrder(w, r, orderID)
	if !ok {
		return
	}
	if o.State.Terminal() {
		writeJSON(w, http.StatusOK, noopAck(o))
		return
	}

	ack, err := s.orchestrator.Cancel(r.Context(), orderID, req)
	if err != nil {
		s.signalError(w, orderID, "cancel", err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleUpdateAddress(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var addr lifecycle.Address
	if err := decodeJSON(r.Body, &addr); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON")
		return
	}
	addr.Normalize()
	if err := addr.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	o, ok := s.loadOrder(w, r, orderID)
	if !ok {
		return
	}
	if o.State.Terminal() {
		writeError(w, http.StatusConflict, "conflict", "order is already "+string(o.State))
		return
	}

	ack, err := s.orchestrator.UpdateAddress(r.Context(), orderID, addr)
	if err != nil {
		s.signalError(w, orderID, "update-address", err)
		return
	}
	writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	status, err := s.orchestrator.Status(r.Context(), orderID)
	if err == nil {
		writeJSON(w, http.StatusOK, status)
		return
	}
	s.logger.Warn("Live status unavailable, serving stored record", "orderId", orderID, "err", err)

	o, err := s.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order.StatusResponse{
		OrderID:   o.ID,
		State:     o.State,
		Address:   o.Address,
		Items:     o.Items,
		UpdatedAt: o.UpdatedAt,
	})
}

// loadOrder fetches the order record and answers the request itself when the
// order is unknown or the lookup fails.
func (s *Server) loadOrder(w http.ResponseWriter, r *http.Request, orderID string) (*lifecycle.Order, bool) {
	o, err := s.orders.GetOrder(r.Context(), orderID)
	if err != nil {
		if !errors.Is(err, store.ErrOrderNotFound) {
			s.logger.Error("Order lookup failed", "orderId", orderID, "err", err)
		}
		writeErr(w, err)
		return nil, false
	}
	return o, true
}

func (s *Server) signalError(w http.ResponseWriter, orderID, signal string, err error) {
	s.logger.Error("Signal dispatch failed", "orderId", orderID, "signal", signal, "err", err)
	writeErr(w, err)
}

// noopAck acknowledges a signal against a finished order without disturbing it.
func noopAck(o *lifecycle.Order) order.SignalAck {
	return order.SignalAck{
		OrderID:  o.ID,
		Accepted: false,
		State:    o.State,
		Note:     "order is already " + string(o.State),
	}
}

func decodeJSON(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

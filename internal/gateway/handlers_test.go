package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pithomlabs/orderflow/internal/lifecycle"
	"github.com/pithomlabs/orderflow/internal/order"
	"github.com/pithomlabs/orderflow/internal/store"
)

type orchestratorStub struct {
	startErr   error
	started    []order.StartRequest
	approveAck order.SignalAck
	approveErr error
	approved   []string
	cancelAck  order.SignalAck
	cancelErr  error
	cancelled  []order.CancelRequest
	updateAck  order.SignalAck
	updateErr  error
	updated    []lifecycle.Address
	status     order.StatusResponse
	statusErr  error
}

func (o *orchestratorStub) StartOrder(_ context.Context, _ string, req order.StartRequest) error {
	o.started = append(o.started, req)
	return o.startErr
}

func (o *orchestratorStub) Approve(_ context.Context, orderID string) (order.SignalAck, error) {
	o.approved = append(o.approved, orderID)
	return o.approveAck, o.approveErr
}

func (o *orchestratorStub) Cancel(_ context.Context, _ string, req order.CancelRequest) (order.SignalAck, error) {
	o.cancelled = append(o.cancelled, req)
	return o.cancelAck, o.cancelErr
}

func (o *orchestratorStub) UpdateAddress(_ context.Context, _ string, addr lifecycle.Address) (order.SignalAck, error) {
	o.updated = append(o.updated, addr)
	return o.updateAck, o.updateErr
}

func (o *orchestratorStub) Status(_ context.Context, _ string) (order.StatusResponse, error) {
	return o.status, o.statusErr
}

type readerStub struct {
	orders map[string]*lifecycle.Order
}

func (r *readerStub) GetOrder(_ context.Context, id string) (*lifecycle.Order, error) {
	if o, ok := r.orders[id]; ok {
		return o, nil
	}
	return nil, store.ErrOrderNotFound
}

func newTestRouter(orch Orchestrator, orders OrderReader) http.Handler {
	srv := NewServer(orch, orders, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return srv.Routes()
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func storedOrder(id string, state lifecycle.State) *lifecycle.Order {
	o := lifecycle.NewOrder(id, nil, nil)
	o.State = state
	return &o
}

func TestStart_SubmitsWorkflow(t *testing.T) {
	orch := &orchestratorStub{}
	h := newTestRouter(orch, &readerStub{})

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/start", `{"payment_id": "pay-1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[startResponse](t, rec)
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.Equal(t, lifecycle.StateReceived, resp.State)

	require.Len(t, orch.started, 1)
	assert.Equal(t, "pay-1", orch.started[0].PaymentID)
}

func TestStart_DuplicateOrder(t *testing.T) {
	orch := &orchestratorStub{}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateValidating),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/start", `{"payment_id": "pay-1"}`)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Error.Kind)
	assert.Empty(t, orch.started)
}

func TestStart_Validation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing payment id", body: `{}`},
		{name: "blank payment id", body: `{"payment_id": "  "}`},
		{name: "invalid json", body: `{"payment_id":`},
		{name: "unknown field", body: `{"payment_id": "pay-1", "bogus": true}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orch := &orchestratorStub{}
			h := newTestRouter(orch, &readerStub{})

			rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/start", tt.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decodeBody[errorResponse](t, rec)
			assert.Equal(t, "bad_request", resp.Error.Kind)
			assert.Empty(t, orch.started)
		})
	}
}

func TestApprove_Forwarded(t *testing.T) {
	orch := &orchestratorStub{approveAck: order.SignalAck{
		OrderID:  "ord-1",
		Accepted: true,
		State:    lifecycle.StateAwaitingApproval,
	}}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateAwaitingApproval),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/approve", "")

	require.Equal(t, http.StatusOK, rec.Code)
	ack := decodeBody[order.SignalAck](t, rec)
	assert.True(t, ack.Accepted)
	assert.Equal(t, []string{"ord-1"}, orch.approved)
}

func TestApprove_FinishedOrderIsNoOp(t *testing.T) {
	orch := &orchestratorStub{}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateCompleted),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/approve", "")

	require.Equal(t, http.StatusOK, rec.Code)
	ack := decodeBody[order.SignalAck](t, rec)
	assert.False(t, ack.Accepted)
	assert.Equal(t, lifecycle.StateCompleted, ack.State)
	assert.Empty(t, orch.approved, "finished orders must not reach the orchestrator")
}

func TestApprove_UnknownOrder(t *testing.T) {
	h := newTestRouter(&orchestratorStub{}, &readerStub{})

	rec := doRequest(t, h, http.MethodPost, "/orders/nope/signals/approve", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestApprove_UpstreamFailure(t *testing.T) {
	orch := &orchestratorStub{approveErr: fmt.Errorf("%w: connection refused", ErrUpstream)}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateAwaitingApproval),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/approve", "")

	require.Equal(t, http.StatusBadGateway, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "upstream_unavailable", resp.Error.Kind)
}

func TestCancel_EmptyBodyForwarded(t *testing.T) {
	orch := &orchestratorStub{cancelAck: order.SignalAck{
		OrderID:  "ord-1",
		Accepted: true,
		State:    lifecycle.StatePaymentPending,
	}}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StatePaymentPending),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/cancel", "")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.cancelled, 1)
	assert.Empty(t, orch.cancelled[0].Reason)
}

func TestCancel_WithReason(t *testing.T) {
	orch := &orchestratorStub{cancelAck: order.SignalAck{OrderID: "ord-1", Accepted: true}}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateShipping),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/cancel", `{"reason": "changed my mind"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.cancelled, 1)
	assert.Equal(t, "changed my mind", orch.cancelled[0].Reason)
}

func TestCancel_FinishedOrderIsNoOp(t *testing.T) {
	orch := &orchestratorStub{}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateCancelled),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/cancel", "")

	require.Equal(t, http.StatusOK, rec.Code)
	ack := decodeBody[order.SignalAck](t, rec)
	assert.False(t, ack.Accepted)
	assert.Contains(t, ack.Note, "Cancelled")
	assert.Empty(t, orch.cancelled)
}

func TestUpdateAddress_Forwarded(t *testing.T) {
	orch := &orchestratorStub{updateAck: order.SignalAck{OrderID: "ord-1", Accepted: true}}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StatePaymentPending),
	}}
	h := newTestRouter(orch, reader)

	body := `{"street": "1 Main St", "city": "Springfield", "state": "IL", "zip_code": "62701"}`
	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/update-address", body)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, orch.updated, 1)
	assert.Equal(t, "US", orch.updated[0].Country, "country should default before dispatch")
	assert.Equal(t, "1 Main St", orch.updated[0].Street)
}

func TestUpdateAddress_FinishedOrderConflicts(t *testing.T) {
	orch := &orchestratorStub{}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateCompleted),
	}}
	h := newTestRouter(orch, reader)

	body := `{"street": "1 Main St", "city": "Springfield", "state": "IL", "zip_code": "62701"}`
	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/update-address", body)

	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "conflict", resp.Error.Kind)
	assert.Empty(t, orch.updated)
}

func TestUpdateAddress_InvalidBody(t *testing.T) {
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateValidating),
	}}
	h := newTestRouter(&orchestratorStub{}, reader)

	rec := doRequest(t, h, http.MethodPost, "/orders/ord-1/signals/update-address", `{"city": "Springfield"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "bad_request", resp.Error.Kind)
}

func TestStatus_Live(t *testing.T) {
	orch := &orchestratorStub{status: order.StatusResponse{
		OrderID: "ord-1",
		State:   lifecycle.StateShipping,
	}}
	h := newTestRouter(orch, &readerStub{})

	rec := doRequest(t, h, http.MethodGet, "/orders/ord-1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[order.StatusResponse](t, rec)
	assert.Equal(t, lifecycle.StateShipping, resp.State)
}

func TestStatus_FallsBackToStore(t *testing.T) {
	orch := &orchestratorStub{statusErr: fmt.Errorf("%w: workflow finished", ErrUpstream)}
	reader := &readerStub{orders: map[string]*lifecycle.Order{
		"ord-1": storedOrder("ord-1", lifecycle.StateCompleted),
	}}
	h := newTestRouter(orch, reader)

	rec := doRequest(t, h, http.MethodGet, "/orders/ord-1/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[order.StatusResponse](t, rec)
	assert.Equal(t, "ord-1", resp.OrderID)
	assert.Equal(t, lifecycle.StateCompleted, resp.State)
	assert.NotEmpty(t, resp.Items)
}

func TestStatus_UnknownOrder(t *testing.T) {
	orch := &orchestratorStub{statusErr: fmt.Errorf("%w: no such workflow", ErrUpstream)}
	h := newTestRouter(orch, &readerStub{})

	rec := doRequest(t, h, http.MethodGet, "/orders/ord-1/status", "")

	require.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "not_found", resp.Error.Kind)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&orchestratorStub{}, &readerStub{})

	rec := doRequest(t, h, http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
}

func TestErrorVocabulary(t *testing.T) {
	tests := []struct {
		err        error
		wantKind   string
		wantStatus int
	}{
		{err: nil, wantKind: "", wantStatus: http.StatusOK},
		{err: store.ErrOrderNotFound, wantKind: "not_found", wantStatus: http.StatusNotFound},
		{err: ErrOrderExists, wantKind: "conflict", wantStatus: http.StatusConflict},
		{err: fmt.Errorf("%w: boom", ErrUpstream), wantKind: "upstream_unavailable", wantStatus: http.StatusBadGateway},
		{err: fmt.Errorf("boom"), wantKind: "internal", wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.wantKind, errorKind(tt.err))
		assert.Equal(t, tt.wantStatus, httpStatus(tt.err))
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/correlation"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/idempotency"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/ingress"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/queue"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/saga"
)

const validBody = `{"customer_id":"cust-1","items":[{"sku":"A","qty":1}]}`

// switchPublisher forwards to a queue unless told to fail.
type switchPublisher struct {
	mu   sync.Mutex
	fail bool
	q    *queue.MemoryQueue
}

func (p *switchPublisher) setFail(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = v
}

func (p *switchPublisher) Publish(ctx context.Context, body []byte, attrs map[string]string) error {
	p.mu.Lock()
	fail := p.fail
	p.mu.Unlock()
	if fail {
		return errors.New("queue unavailable")
	}
	return p.q.Publish(ctx, body, attrs)
}

type apiFixture struct {
	router    *gin.Engine
	store     *orders.MemoryStore
	queue     *queue.MemoryQueue
	publisher *switchPublisher
	idemp     *idempotency.Store
}

func newFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &apiFixture{store: orders.NewMemoryStore(), queue: queue.NewMemoryQueue("OrderCreatedQueue")}
	f.publisher = &switchPublisher{q: f.queue}
	f.idemp = idempotency.NewStore(newIdempotencyTable(), "idempotency", time.Hour)
	f.router = NewRouter(HandlerConfig{
		Service:     ingress.NewService(f.store, f.publisher, nil, nil),
		Idempotency: f.idemp,
	})
	return f
}

func (f *apiFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order_api ok", decode(t, w)["message"])
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found", decode(t, w)["error"])
}

func TestCreateOrder_ThenInventoryReserves(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/orders", validBody, map[string]string{"x-correlation-id": "corr-42"})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	body := decode(t, w)
	orderID, _ := body["order_id"].(string)
	assert.Regexp(t, `^ORD-[0-9a-f]{12}$`, orderID)
	assert.Equal(t, orders.StatusPending, body["status"])
	assert.Equal(t, "corr-42", w.Header().Get(correlation.Header))
	assert.Equal(t, "/orders/"+orderID, w.Header().Get("Location"))

	stage := saga.NewInventory(saga.Deps{Store: f.store, Publisher: queue.NewMemoryQueue("InventoryReservedQueue")})
	_, err := queue.Drain(context.Background(), f.queue, stage, 10)
	require.NoError(t, err)

	w = f.do(http.MethodGet, "/orders/"+orderID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, orders.StatusInventoryReserved, got["status"])
	assert.Equal(t, "cust-1", got["customer_id"])
}

func TestCreateOrder_ItemsRoundTripAsSent(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/orders", `{"customer_id":"cust-1","items":["SKU-1",{"sku":"B"}]}`, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID, _ := decode(t, w)["order_id"].(string)

	w = f.do(http.MethodGet, "/orders/"+orderID, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	items, ok := decode(t, w)["items"].([]interface{})
	require.True(t, ok)
	require.Len(t, items, 2)
	assert.Equal(t, "SKU-1", items[0])
	assert.Equal(t, map[string]interface{}{"sku": "B"}, items[1])
}

func TestCreateOrder_GeneratesCorrelationID(t *testing.T) {
	f := newFixture(t)
	w := f.do(http.MethodPost, "/orders", validBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	cid := w.Header().Get(correlation.Header)
	require.NotEmpty(t, cid)
	msgs := f.queue.Receive(1)
	require.Len(t, msgs, 1)
	assert.Equal(t, cid, msgs[0].Attribute(correlation.Attribute))
}

func TestCreateOrder_BadRequests(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		body string
		msg  string
	}{
		{"empty customer and items", `{"customer_id":"","items":[]}`, "customer_id and non-empty items[] are required"},
		{"missing items", `{"customer_id":"c1"}`, "customer_id and non-empty items[] are required"},
		{"invalid json", `{bad`, "Invalid JSON body"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/orders", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tc.msg, decode(t, w)["error"])
		})
	}
	assert.Zero(t, f.queue.Len(), "no event published")
}

func TestCreateOrder_PublishFailureIs500(t *testing.T) {
	f := newFixture(t)
	f.publisher.setFail(true)

	w := f.do(http.MethodPost, "/orders", validBody, nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", decode(t, w)["error"])
}

func TestGetOrder_Errors(t *testing.T) {
	f := newFixture(t)

	w := f.do(http.MethodGet, "/orders/unknown-id", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Order not found", decode(t, w)["error"])

	for _, path := range []string{"/orders/%20", "/orders/"} {
		w = f.do(http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
		assert.Equal(t, "order_id is required", decode(t, w)["error"], path)
	}
}

func TestIdempotencyKey_ReplaysResponse(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{IdempotencyKeyHeader: "key-1"}

	first := f.do(http.MethodPost, "/orders", validBody, hdr)
	require.Equal(t, http.StatusCreated, first.Code)
	second := f.do(http.MethodPost, "/orders", validBody, hdr)
	require.Equal(t, http.StatusCreated, second.Code)

	assert.Equal(t, decode(t, first)["order_id"], decode(t, second)["order_id"])
	assert.Equal(t, 1, f.queue.Len(), "duplicate request does not create a second order")
}

func TestIdempotencyKey_InProgressConflicts(t *testing.T) {
	f := newFixture(t)
	created, err := f.idemp.CreateIfNotExists(context.Background(), "key-2")
	require.NoError(t, err)
	require.True(t, created)

	w := f.do(http.MethodPost, "/orders", validBody, map[string]string{IdempotencyKeyHeader: "key-2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, f.queue.Len())
}

func TestIdempotencyKey_RetryAfterFailure(t *testing.T) {
	f := newFixture(t)
	hdr := map[string]string{IdempotencyKeyHeader: "key-3"}

	f.publisher.setFail(true)
	w := f.do(http.MethodPost, "/orders", validBody, hdr)
	require.Equal(t, http.StatusInternalServerError, w.Code)

	f.publisher.setFail(false)
	w = f.do(http.MethodPost, "/orders", validBody, hdr)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 1, f.queue.Len())

	rec, err := f.idemp.Get(context.Background(), "key-3")
	require.NoError(t, err)
	assert.Equal(t, idempotency.StatusDone, rec.Status)
}

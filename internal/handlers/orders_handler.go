package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/idempotency"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/ingress"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/logging"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/orders"
	"github.com/vikram-m-kumar/event-driven-order-management-system/internal/validation"
)

// IdempotencyKeyHeader is optional on POST /orders.
const IdempotencyKeyHeader = "Idempotency-Key"

// HandlerConfig groups dependencies for the orders handler.
type HandlerConfig struct {
	Service     *ingress.Service
	Idempotency *idempotency.Store // nil disables Idempotency-Key handling
	Logger      *zap.Logger
}

func (c HandlerConfig) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	logger := cfg.logger()

	r.POST("/orders", func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logging.With(ctx, logger)

		// Bind + validate request
		var req validation.CreateOrderRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		idempKey := c.GetHeader(IdempotencyKeyHeader)
		if idempKey != "" && cfg.Idempotency != nil {
			if replayed := claimKey(c, cfg.Idempotency, idempKey, log); replayed {
				return
			}
		}

		order, err := cfg.Service.CreateOrder(ctx, req)
		if err != nil {
			if idempKey != "" && cfg.Idempotency != nil {
				// let the client retry with the same key
				if merr := cfg.Idempotency.MarkFailed(ctx, idempKey, err.Error()); merr != nil {
					log.Error("idempotency_mark_failed_error", zap.Error(merr))
				}
			}
			writeError(c, log, err)
			return
		}

		resp := createOrderResponse{OrderID: order.OrderID, Status: order.Status}
		if idempKey != "" && cfg.Idempotency != nil {
			body, _ := json.Marshal(resp)
			if err := cfg.Idempotency.MarkDone(ctx, idempKey, order.OrderID, string(body), http.StatusCreated); err != nil {
				log.Error("idempotency_mark_done_error", zap.Error(err))
			}
		}

		c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
		c.JSON(http.StatusCreated, resp)
	})

	getOrder := func(c *gin.Context) {
		ctx := c.Request.Context()
		order, err := cfg.Service.GetOrder(ctx, c.Param("order_id"))
		if err != nil {
			writeError(c, logging.With(ctx, logger), err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
	r.GET("/orders/:order_id", getOrder)
	// empty id; Param returns "" and the service rejects it
	r.GET("/orders/", getOrder)
}

// claimKey takes ownership of an idempotency key. It reports true when a
// response was already written: a replay of the stored one, a conflict, or
// an error.
func claimKey(c *gin.Context, store *idempotency.Store, key string, log *zap.Logger) bool {
	ctx := c.Request.Context()
	log = log.With(zap.String("idempotency_key", key))

	created, err := store.CreateIfNotExists(ctx, key)
	if err != nil {
		writeError(c, log, err)
		return true
	}
	if created {
		return false
	}

	rec, err := store.Get(ctx, key)
	if err != nil {
		writeError(c, log, err)
		return true
	}
	if rec == nil {
		// expired between the two calls
		writeError(c, log, errors.New("idempotency record vanished"))
		return true
	}

	switch {
	case rec.Replayable():
		log.Info("idempotent_replay", zap.String("order_id", rec.OrderID))
		c.Header("Location", fmt.Sprintf("/orders/%s", rec.OrderID))
		c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		return true
	case rec.Status == idempotency.StatusFailed:
		ok, err := store.Reclaim(ctx, key)
		if err != nil {
			writeError(c, log, err)
			return true
		}
		if ok {
			log.Info("idempotent_retry_after_failure")
			return false
		}
	}
	c.JSON(http.StatusConflict, gin.H{"error": "request already in progress"})
	return true
}

// writeError maps domain errors onto the API's status codes. Details of
// unexpected errors stay in the log.
func writeError(c *gin.Context, log *zap.Logger, err error) {
	var ve *ingress.ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Message}
		if len(ve.Fields) > 0 {
			body["fields"] = ve.Fields
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	default:
		log.Error("request_failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

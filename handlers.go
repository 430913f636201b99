package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/kitchen_backend/middlewares"
	"github.com/mmdatafocus/kitchen_backend/models"
	"github.com/mmdatafocus/kitchen_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// writeError maps engine errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var validationErr *models.ValidationError
	var stockErr *models.StockError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrValidation.Error(), "fields": validationErr.Fields})
	case errors.As(err, &stockErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":        stockErr.Error(),
			"product_id":   stockErr.ProductId,
			"product_name": stockErr.ProductName,
			"requested":    stockErr.Requested,
			"available":    stockErr.Available,
		})
	case errors.Is(err, models.ErrProductNotFound), errors.Is(err, models.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrPaymentAdapter):
		_ = c.Error(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment provider error"})
	case errors.Is(err, models.ErrPersistenceConflict):
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "please retry"})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func createOrderHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewOrder
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		input.UserId, _ = middlewares.Caller(c.Request.Context())

		result, err := engine.CreateOrder(c.Request.Context(), &input)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, result)
	}
}

func getOrdersHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userId, role := middlewares.Caller(c.Request.Context())
		filter := models.OrderFilter{Role: role, UserId: userId}

		if raw := strings.TrimSpace(c.Query("order_ids")); raw != "" {
			for _, part := range splitAndTrim(raw) {
				id, err := strconv.Atoi(part)
				if err != nil || id <= 0 {
					c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_ids"})
					return
				}
				filter.OrderIds = append(filter.OrderIds, id)
			}
		}
		if raw := strings.TrimSpace(c.Query("status")); raw != "" {
			status := models.OrderStatus(strings.ToUpper(raw))
			filter.Status = &status
		}
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				filter.Limit = n
			}
		}

		orders, err := engine.GetOrders(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

func verifyPaymentHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		userId, role := middlewares.Caller(c.Request.Context())
		// Only someone who can see the order may trigger verification.
		if _, err := engine.GetOrder(c.Request.Context(), orderId, models.OrderFilter{Role: role, UserId: userId}); err != nil {
			writeError(c, err)
			return
		}
		result, err := engine.VerifyPayment(c.Request.Context(), orderId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type orderStatusRequest struct {
	Status models.OrderStatus `json:"status" binding:"required"`
}

func updateOrderStatusHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req orderStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		actorId, _ := middlewares.Caller(c.Request.Context())
		status := models.OrderStatus(strings.ToUpper(string(req.Status)))

		order, err := engine.UpdateOrderStatus(c.Request.Context(), orderId, status, actorId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

type paymentStatusRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
}

func updatePaymentStatusHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderId, ok := pathId(c, "id")
		if !ok {
			return
		}
		var req paymentStatusRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		status := models.PaymentStatus(strings.ToUpper(string(req.PaymentStatus)))

		order, err := engine.UpdatePaymentStatus(c.Request.Context(), orderId, status)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, order)
	}
}

func lowStockHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		products, err := engine.GetLowStockProducts(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"products": products})
	}
}

func bulkUpdateStockHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.BulkStockUpdate
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		actorId, _ := middlewares.Caller(c.Request.Context())

		result, err := engine.BulkUpdateStock(c.Request.Context(), &input, actorId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func stockHistoryHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, ok := pathId(c, "productId")
		if !ok {
			return
		}
		product, entries, err := engine.GetStockHistory(c.Request.Context(), productId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"product": product, "history": entries})
	}
}

func stockHistoryExportHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		productId, ok := pathId(c, "productId")
		if !ok {
			return
		}
		product, entries, err := engine.GetStockHistory(c.Request.Context(), productId)
		if err != nil {
			writeError(c, err)
			return
		}
		f, err := models.ExportStockHistory(product, entries)
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()

		buf, err := f.WriteToBuffer()
		if err != nil {
			writeError(c, err)
			return
		}
		filename := fmt.Sprintf("stock-history-%d.xlsx", product.ID)
		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
	}
}

func orderStatsHandler(engine *workflow.OrderEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := engine.GetOrderStats(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

type outboxReplayRequest struct {
	RecordId int `json:"record_id"`
}

// outboxReplayHandler re-queues a FAILED or DEAD order event for publishing.
func outboxReplayHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RecordId <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "record_id is required"})
			return
		}
		rec, err := models.ReplayOrderEvent(c.Request.Context(), db, req.RecordId)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"record_id":       rec.ID,
			"order_id":        rec.OrderId,
			"publish_status":  rec.PublishStatus,
			"next_attempt_at": rec.NextAttemptAt,
		})
	}
}

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// customErrorLogger logs only requests that recorded errors.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 {
			logger.Error(c.Errors.String())
		}
	}
}

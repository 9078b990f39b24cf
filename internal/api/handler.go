package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"backoffice-service/internal/models"
	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
	headerRequestID = "X-Request-ID"

	roleReviewer = "admin"
)

// InventoryAPI is the inventory workflow used by the handlers
type InventoryAPI interface {
	StartSession(ctx context.Context, actor string, filter models.ProductFilter) (*models.InventorySession, error)
	LoadPage(ctx context.Context, actor string, req service.PageRequest) (*service.Page, error)
	EditCount(ctx context.Context, actor string, sessionID, productID int64, counted int) (*models.CountItem, error)
	CloseDraft(ctx context.Context, sessionID int64) error
	Submit(ctx context.Context, actor string, sessionID int64) (*models.InventorySession, error)
	ListPending(ctx context.Context) ([]models.InventorySession, error)
	LoadItems(ctx context.Context, sessionID int64) ([]models.ReviewItem, error)
	LoadMovements(ctx context.Context, sessionID int64) ([]models.StockMovement, error)
	Export(ctx context.Context, sessionID int64) ([]byte, string, error)
	Approve(ctx context.Context, actor string, sessionID int64) ([]models.StockAdjustment, error)
	Reject(ctx context.Context, actor string, sessionID int64, reason string) error
}

// ImportAPI is the service-order import flow used by the handlers
type ImportAPI interface {
	Preview(ctx context.Context, text string) (*service.Preview, error)
	Import(ctx context.Context, actor, text, key string) (*service.ImportResult, error)
	Get(ctx context.Context, id int64) (*models.ServiceOrder, error)
}

// StockAPI reads current stock levels
type StockAPI interface {
	GetStock(ctx context.Context, productID int64) (*service.StockLevel, error)
}

// Pinger is a dependency checked by the readiness check
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler contains HTTP handlers
type Handler struct {
	inventory InventoryAPI
	imports   ImportAPI
	stock     StockAPI
	deps      map[string]Pinger
}

// NewHandler creates a new HTTP handler
func NewHandler(inventory InventoryAPI, imports ImportAPI, stock StockAPI, deps map[string]Pinger) *Handler {
	return &Handler{
		inventory: inventory,
		imports:   imports,
		stock:     stock,
		deps:      deps,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		orders := v1.Group("/os")
		orders.POST("/parse", h.parseServiceOrder)
		orders.POST("/parse-pdf", h.parseServiceOrderPDF)
		orders.POST("/import", h.importServiceOrder)
		orders.GET("/:id", h.getServiceOrder)

		inv := v1.Group("/inventarios")
		inv.POST("", h.startSession)
		inv.GET("/produtos", h.loadPage)
		inv.PUT("/:id/itens/:produto_id", h.editCount)
		inv.DELETE("/:id/draft", h.closeDraft)
		inv.POST("/:id/submit", h.submitSession)
		inv.GET("/:id/itens", h.listItems)
		inv.GET("/:id/export", h.exportSession)

		review := inv.Group("", requireRole(roleReviewer))
		review.GET("/pendentes", h.listPending)
		review.POST("/:id/approve", h.approveSession)
		review.POST("/:id/reject", h.rejectSession)
		review.GET("/:id/movimentacoes", h.listMovements)

		v1.GET("/produtos/:id/estoque", h.getStock)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"details": failed,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// actor identifies the caller; authentication happens upstream
func actor(c *gin.Context) string {
	if id := c.GetHeader(headerUserID); id != "" {
		return id
	}
	return "anonymous"
}

func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerUserRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid " + name,
		})
		return 0, false
	}
	return id, true
}

// requestLogger attaches a request-scoped logger to the request context
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(headerRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header(headerRequestID, requestID)

		logger := util.GetLogger().With(
			zap.String("request_id", requestID),
			zap.String("actor", actor(c)),
		)
		c.Request = c.Request.WithContext(util.WithContext(c.Request.Context(), logger))

		c.Next()

		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

package service

import (
	"context"
	"fmt"

	"backoffice-service/internal/models"
	"backoffice-service/internal/store"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
)

// StockSource reads authoritative quantities
type StockSource interface {
	GetProductByID(ctx context.Context, id int64) (*models.Product, error)
	GetProductStocks(ctx context.Context) ([]store.ProductStock, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// StockCacheBackend is the cache the quantities are mirrored to
type StockCacheBackend interface {
	GetStock(ctx context.Context, productID int64) (int, bool, error)
	SetStocks(ctx context.Context, stocks map[int64]int) error
}

// StockCache serves product quantities from Redis with a database fallback
type StockCache struct {
	source StockSource
	cache  StockCacheBackend
	logger *zap.Logger
}

// NewStockCache creates a new stock cache
func NewStockCache(source StockSource, cache StockCacheBackend) *StockCache {
	return &StockCache{
		source: source,
		cache:  cache,
		logger: util.GetLogger(),
	}
}

// StockLevel is a product quantity and where it was read from
type StockLevel struct {
	ProductID int64  `json:"produto_id"`
	Quantity  int    `json:"quantidade"`
	Source    string `json:"source"`
}

// GetStock reads the cache first. A miss or cache error falls back to the
// database and refills the cache.
func (sc *StockCache) GetStock(ctx context.Context, productID int64) (*StockLevel, error) {
	ctx, span := util.StartSpan(ctx, "StockCache.GetStock")
	defer span.End()

	qty, ok, err := sc.cache.GetStock(ctx, productID)
	if err != nil {
		sc.logger.Warn("Redis stock lookup failed, falling back to DB",
			zap.Int64("product_id", productID),
			zap.Error(err))
	}
	if err == nil && ok {
		util.StockCacheLookupsTotal.WithLabelValues("cache").Inc()
		return &StockLevel{ProductID: productID, Quantity: qty, Source: "cache"}, nil
	}

	product, err := sc.source.GetProductByID(ctx, productID)
	if err != nil {
		return nil, util.SpanError(span, err)
	}
	util.StockCacheLookupsTotal.WithLabelValues("db").Inc()

	if err := sc.cache.SetStocks(ctx, map[int64]int{product.ID: product.Quantity}); err != nil {
		sc.logger.Warn("Failed to refill stock cache", zap.Int64("product_id", productID), zap.Error(err))
	}
	return &StockLevel{ProductID: productID, Quantity: product.Quantity, Source: "db"}, nil
}

// SyncStockToRedis copies every product quantity into the cache
func (sc *StockCache) SyncStockToRedis(ctx context.Context) error {
	sc.logger.Info("Starting stock sync to Redis")

	stocks, err := sc.source.GetProductStocks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get product stocks: %w", err)
	}

	values := make(map[int64]int, len(stocks))
	for _, st := range stocks {
		values[st.ProductID] = st.Quantity
	}
	if err := sc.cache.SetStocks(ctx, values); err != nil {
		return err
	}

	sc.logger.Info("Stock sync completed", zap.Int("count", len(values)))
	return nil
}

// HandleInventoryApproved mirrors the approved quantities into the cache.
// Redelivered events are skipped.
func (sc *StockCache) HandleInventoryApproved(ctx context.Context, event *models.InventoryApprovedEvent) error {
	ctx, span := util.StartSpan(ctx, "StockCache.HandleInventoryApproved")
	defer span.End()

	processed, err := sc.source.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return util.SpanError(span, fmt.Errorf("failed to check event: %w", err))
	}
	if processed {
		sc.logger.Info("Event already processed, skipping", zap.String("event_id", event.EventID))
		return nil
	}

	values := make(map[int64]int, len(event.Adjustments))
	for _, adj := range event.Adjustments {
		values[adj.ProductID] = adj.After
	}
	if err := sc.cache.SetStocks(ctx, values); err != nil {
		return util.SpanError(span, err)
	}

	if err := sc.source.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		return util.SpanError(span, fmt.Errorf("failed to mark event processed: %w", err))
	}

	sc.logger.Info("Stock cache updated from approved inventory",
		zap.Int64("inventario_id", event.SessionID),
		zap.Int("products", len(values)))
	return nil
}

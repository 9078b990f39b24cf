package worker

import (
	"context"

	"backoffice-service/internal/broker"
	"backoffice-service/internal/service"
	"backoffice-service/internal/util"

	"go.uber.org/zap"
)

// StockCacheWorker keeps the Redis stock cache in step with approved inventories
type StockCacheWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockCacheWorker creates a new stock cache worker
func NewStockCacheWorker(consumer *broker.Consumer, cache *service.StockCache) *StockCacheWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnInventoryApproved(cache.HandleInventoryApproved)

	return &StockCacheWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger().Named("stock-cache-worker"),
	}
}

// Start starts the worker
func (w *StockCacheWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock cache worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockCacheWorker) Stop() error {
	w.logger.Info("Stopping stock cache worker")
	return w.consumer.Close()
}

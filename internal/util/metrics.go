package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ServiceOrderParsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "service_order_parses_total",
		Help: "Total number of pasted service orders parsed, by verdict",
	}, []string{"verdict"})

	ServiceOrderIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "service_order_validation_issues_total",
		Help: "Validation issues found in parsed service orders",
	}, []string{"severity", "field"})

	ServiceOrdersImportedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "service_orders_imported_total",
		Help: "Total number of service orders persisted from an import",
	})

	ServiceOrderImportsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "service_order_imports_failed_total",
		Help: "Total number of failed service order imports",
	}, []string{"reason"})

	InventorySessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_sessions_created_total",
		Help: "Total number of inventory count sessions created",
	})

	InventoryItemsSeededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_items_seeded_total",
		Help: "Total number of count items created by page loads",
	})

	AutosaveWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_autosave_writes_total",
		Help: "Persisted count item writes issued by the autosave queue",
	}, []string{"result"})

	AutosaveCollapsedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_autosave_collapsed_total",
		Help: "Edits replaced by a newer edit before being persisted",
	})

	InventorySessionsTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_session_transitions_total",
		Help: "Inventory session status transitions",
	}, []string{"to"})

	StockAdjustmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_stock_adjustments_total",
		Help: "Product stock writes applied by approved inventory sessions",
	})

	InventoryApprovalLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "inventory_approval_latency_seconds",
		Help:    "Latency of inventory approval operations",
		Buckets: prometheus.DefBuckets,
	})

	StockCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_cache_lookups_total",
		Help: "Stock lookups by source",
	}, []string{"source"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

package models

import (
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	EventTypeInventorySubmitted   = "INVENTORY_SUBMITTED"
	EventTypeInventoryApproved    = "INVENTORY_APPROVED"
	EventTypeInventoryRejected    = "INVENTORY_REJECTED"
	EventTypeServiceOrderImported = "SERVICE_ORDER_IMPORTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event id and the current time
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// InventorySubmittedEvent published when a draft moves to pending
type InventorySubmittedEvent struct {
	BaseEvent
	SessionID   int64  `json:"inventario_id"`
	TotalItems  int    `json:"total_itens"`
	SubmittedBy string `json:"submitted_by"`
}

// InventoryApprovedEvent published after stock writes are committed
type InventoryApprovedEvent struct {
	BaseEvent
	SessionID   int64             `json:"inventario_id"`
	ApprovedBy  string            `json:"approved_by"`
	Adjustments []StockAdjustment `json:"adjustments"`
}

// InventoryRejectedEvent published when a reviewer rejects a session
type InventoryRejectedEvent struct {
	BaseEvent
	SessionID  int64  `json:"inventario_id"`
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason"`
}

// ServiceOrderImportedEvent published when a pasted service order is persisted
type ServiceOrderImportedEvent struct {
	BaseEvent
	ServiceOrderID int64  `json:"ordem_servico_id"`
	Number         string `json:"numero"`
	ClientID       int64  `json:"cliente_id"`
	ImportedBy     string `json:"imported_by"`
}

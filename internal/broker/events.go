package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"backoffice-service/internal/models"
	"backoffice-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer          *Producer
	inventoryTopic    string
	serviceOrderTopic string
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer, inventoryTopic, serviceOrderTopic string) *EventPublisher {
	return &EventPublisher{
		producer:          producer,
		inventoryTopic:    inventoryTopic,
		serviceOrderTopic: serviceOrderTopic,
	}
}

func sessionKey(id int64) string {
	return fmt.Sprintf("inventario-%d", id)
}

// PublishInventorySubmitted publishes InventorySubmitted event
func (ep *EventPublisher) PublishInventorySubmitted(ctx context.Context, event *models.InventorySubmittedEvent) error {
	return ep.producer.PublishEvent(ctx, ep.inventoryTopic, sessionKey(event.SessionID), event)
}

// PublishInventoryApproved publishes InventoryApproved event
func (ep *EventPublisher) PublishInventoryApproved(ctx context.Context, event *models.InventoryApprovedEvent) error {
	return ep.producer.PublishEvent(ctx, ep.inventoryTopic, sessionKey(event.SessionID), event)
}

// PublishInventoryRejected publishes InventoryRejected event
func (ep *EventPublisher) PublishInventoryRejected(ctx context.Context, event *models.InventoryRejectedEvent) error {
	return ep.producer.PublishEvent(ctx, ep.inventoryTopic, sessionKey(event.SessionID), event)
}

// PublishServiceOrderImported publishes ServiceOrderImported event
func (ep *EventPublisher) PublishServiceOrderImported(ctx context.Context, event *models.ServiceOrderImportedEvent) error {
	key := fmt.Sprintf("os-%d", event.ServiceOrderID)
	return ep.producer.PublishEvent(ctx, ep.serviceOrderTopic, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onInventoryApproved func(context.Context, *models.InventoryApprovedEvent) error
	logger              *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger().Named("event-handler")}
}

// OnInventoryApproved registers a handler for InventoryApproved events
func (eh *EventHandler) OnInventoryApproved(handler func(context.Context, *models.InventoryApprovedEvent) error) {
	eh.onInventoryApproved = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeInventoryApproved:
		if eh.onInventoryApproved != nil {
			var event models.InventoryApprovedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal InventoryApproved event: %w", err)
			}
			return eh.onInventoryApproved(ctx, &event)
		}

	default:
		eh.logger.Debug("Ignoring event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}

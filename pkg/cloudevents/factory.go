package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type correlationKey struct{}

// ContextWithCorrelationID stores a correlation ID picked up by CreateEvent
func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationKey{}, correlationID)
}

// EventFactory creates CloudEvents for one event source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: time.Now}
}

// CreateEvent creates a new event; a correlation ID in ctx is copied onto it
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *ShopCloudEvent {
	event := &ShopCloudEvent{
		SpecVersion:     SpecVersion,
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now().UTC(),
		DataContentType: ContentTypeJSON,
		Data:            data,
	}

	if id, ok := ctx.Value(correlationKey{}).(string); ok {
		event.CorrelationID = id
	}

	return event
}

// CreateShopEvent creates an event scoped to a shop
func (f *EventFactory) CreateShopEvent(ctx context.Context, eventType, shopID string, data interface{}) *ShopCloudEvent {
	event := f.CreateEvent(ctx, eventType, "shop/"+shopID, data)
	event.ShopID = shopID
	return event
}

// CreateBasketEvent creates an event scoped to a user's baskets
func (f *EventFactory) CreateBasketEvent(ctx context.Context, eventType, userID string, data interface{}) *ShopCloudEvent {
	event := f.CreateEvent(ctx, eventType, "basket/"+userID, data)
	event.UserID = userID
	return event
}

package mongodb

import (
	"context"
	"fmt"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/outbox"
)

// Collection names
const (
	ShopsCollection    = "shops"
	BasketsCollection  = "baskets"
	ReceiptsCollection = "receipts"
	LedgerCollection   = "ledger"
)

type eventSource interface {
	GetDomainEvents() []domain.DomainEvent
	ClearDomainEvents()
}

type cloudEventFunc func(ctx context.Context, event domain.DomainEvent) *cloudevents.ShopCloudEvent

// stageEvents converts the aggregate's pending events into outbox rows inside
// the caller's transaction. Events are cleared only by the caller once the
// transaction commits.
func stageEvents(
	ctx context.Context,
	repo outbox.Repository,
	source eventSource,
	aggregateID, aggregateType, topic string,
	toCloudEvent cloudEventFunc,
) error {
	domainEvents := source.GetDomainEvents()
	if len(domainEvents) == 0 {
		return nil
	}

	outboxEvents := make([]*outbox.OutboxEvent, 0, len(domainEvents))
	for _, event := range domainEvents {
		cloudEvent := toCloudEvent(ctx, event)
		if cloudEvent == nil {
			continue
		}

		outboxEvent, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, topic, cloudEvent)
		if err != nil {
			return fmt.Errorf("failed to create outbox event: %w", err)
		}
		outboxEvents = append(outboxEvents, outboxEvent)
	}

	if len(outboxEvents) == 0 {
		return nil
	}
	if err := repo.SaveAll(ctx, outboxEvents); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}

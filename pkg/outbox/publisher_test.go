package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

type memoryRepo struct {
	events    []*OutboxEvent
	published []string
	retried   map[string]string
}

func (m *memoryRepo) SaveAll(ctx context.Context, events []*OutboxEvent) error {
	m.events = append(m.events, events...)
	return nil
}

func (m *memoryRepo) FindUnpublished(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	var out []*OutboxEvent
	for _, e := range m.events {
		if e.ShouldRetry() && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) MarkPublished(ctx context.Context, eventID string) error {
	for _, e := range m.events {
		if e.ID == eventID {
			now := time.Now()
			e.PublishedAt = &now
		}
	}
	m.published = append(m.published, eventID)
	return nil
}

func (m *memoryRepo) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	if m.retried == nil {
		m.retried = make(map[string]string)
	}
	for _, e := range m.events {
		if e.ID == eventID {
			e.RetryCount++
			e.LastError = errorMsg
		}
	}
	m.retried[eventID] = errorMsg
	return nil
}

func (m *memoryRepo) FindByAggregateID(ctx context.Context, aggregateID string) ([]*OutboxEvent, error) {
	return nil, nil
}

type fakeProducer struct {
	failTopic string
	sent      []*cloudevents.ShopCloudEvent
}

func (f *fakeProducer) PublishEvent(ctx context.Context, topic string, event *cloudevents.ShopCloudEvent) error {
	if topic == f.failTopic {
		return errors.New("broker unavailable")
	}
	f.sent = append(f.sent, event)
	return nil
}

func newEvent(t *testing.T, topic, eventType string) *OutboxEvent {
	t.Helper()
	factory := cloudevents.NewEventFactory(cloudevents.SourceShopAPI)
	ce := factory.CreateShopEvent(context.Background(), eventType, "tavern", map[string]any{"count": 1})
	event, err := NewOutboxEventFromCloudEvent("tavern", "Shop", topic, ce)
	require.NoError(t, err)
	return event
}

func TestNewOutboxEventFromCloudEvent(t *testing.T) {
	event := newEvent(t, "shop.stock.events", "shop.stock.restocked")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "tavern", event.AggregateID)
	assert.Equal(t, "shop.stock.restocked", event.EventType)
	assert.Equal(t, DefaultMaxRetries, event.MaxRetries)
	assert.False(t, event.IsPublished())
	assert.True(t, event.ShouldRetry())

	ce, err := event.ToCloudEvent()
	require.NoError(t, err)
	assert.Equal(t, "shop/tavern", ce.Subject)
	assert.Equal(t, "tavern", ce.ShopID)
}

func TestOutboxEvent_ShouldRetry(t *testing.T) {
	event := newEvent(t, "shop.stock.events", "shop.stock.cleared")
	event.RetryCount = event.MaxRetries
	assert.False(t, event.ShouldRetry())

	event.RetryCount = 0
	now := time.Now()
	event.PublishedAt = &now
	assert.False(t, event.ShouldRetry())
}

func TestPublisher_ProcessBatch(t *testing.T) {
	repo := &memoryRepo{}
	ok := newEvent(t, "shop.stock.events", "shop.stock.item_added")
	bad := newEvent(t, "shop.receipts.events", "shop.receipt.issued")
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{ok, bad}))

	producer := &fakeProducer{failTopic: "shop.receipts.events"}
	m := metrics.New(metrics.DefaultConfig("outbox-test"))
	p := NewPublisher(repo, producer, logging.Discard(), m, nil)

	delivered := p.ProcessBatch(context.Background())

	assert.Equal(t, 1, delivered)
	assert.Equal(t, []string{ok.ID}, repo.published)
	assert.Contains(t, repo.retried[bad.ID], "broker unavailable")
	assert.Equal(t, 1, bad.RetryCount)
	require.Len(t, producer.sent, 1)
	assert.Equal(t, "shop.stock.item_added", producer.sent[0].Type)
	assert.Equal(t, map[string]int{"published": 1, "failed": 1}, p.Stats())

	// only the failed event is picked up again
	assert.Equal(t, 0, p.ProcessBatch(context.Background()))
	assert.Equal(t, 2, bad.RetryCount)
}

func TestPublisher_StartStop(t *testing.T) {
	repo := &memoryRepo{}
	require.NoError(t, repo.SaveAll(context.Background(), []*OutboxEvent{newEvent(t, "shop.stock.events", "shop.stock.restocked")}))

	producer := &fakeProducer{}
	p := NewPublisher(repo, producer, logging.Discard(), nil, &PublisherConfig{PollInterval: 5 * time.Millisecond, BatchSize: 10})

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Error(t, p.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return p.Stats()["published"] == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())
	assert.Error(t, p.Stop())
}

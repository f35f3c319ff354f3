package mongodb

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/event"

	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

// monitoredCommands are the commands worth a metric; handshakes and pings are skipped
var monitoredCommands = map[string]bool{
	"find":          true,
	"insert":        true,
	"update":        true,
	"delete":        true,
	"aggregate":     true,
	"findAndModify": true,
	"createIndexes": true,
}

type commandMonitor struct {
	metrics *metrics.Metrics

	mu          sync.Mutex
	collections map[int64]string
}

// NewCommandMonitor reports per-collection command outcomes and durations to m
func NewCommandMonitor(m *metrics.Metrics) *event.CommandMonitor {
	cm := &commandMonitor{metrics: m, collections: make(map[int64]string)}
	return &event.CommandMonitor{
		Started:   cm.started,
		Succeeded: cm.succeeded,
		Failed:    cm.failed,
	}
}

func (cm *commandMonitor) started(_ context.Context, evt *event.CommandStartedEvent) {
	if !monitoredCommands[evt.CommandName] {
		return
	}
	collection, _ := evt.Command.Lookup(evt.CommandName).StringValueOK()

	cm.mu.Lock()
	cm.collections[evt.RequestID] = collection
	cm.mu.Unlock()
}

func (cm *commandMonitor) finish(requestID int64, commandName string, success bool, duration time.Duration) {
	cm.mu.Lock()
	collection, ok := cm.collections[requestID]
	delete(cm.collections, requestID)
	cm.mu.Unlock()

	if ok {
		cm.metrics.RecordMongoDBOperation(collection, commandName, success, duration)
	}
}

func (cm *commandMonitor) succeeded(_ context.Context, evt *event.CommandSucceededEvent) {
	cm.finish(evt.RequestID, evt.CommandName, true, evt.Duration)
}

func (cm *commandMonitor) failed(_ context.Context, evt *event.CommandFailedEvent) {
	cm.finish(evt.RequestID, evt.CommandName, false, evt.Duration)
}

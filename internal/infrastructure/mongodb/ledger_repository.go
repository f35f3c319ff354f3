package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/kafka"
	mongoutil "github.com/tabletop-shop/shop-engine/pkg/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/outbox"
)

// LedgerRepository implements domain.LedgerRepository using MongoDB.
// The ledger is a single document keyed by domain.LedgerID.
type LedgerRepository struct {
	collection   *mongo.Collection
	transactor   mongoutil.Transactor
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
}

// NewLedgerRepository creates a new LedgerRepository
func NewLedgerRepository(db *mongo.Database, transactor mongoutil.Transactor, outboxRepo outbox.Repository, eventFactory *cloudevents.EventFactory) *LedgerRepository {
	repo := &LedgerRepository{
		collection:   db.Collection(LedgerCollection),
		transactor:   transactor,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *LedgerRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	index := mongo.IndexModel{Keys: bson.D{{Key: "ledgerId", Value: 1}}, Options: options.Index().SetUnique(true)}
	_, _ = r.collection.Indexes().CreateOne(ctx, index)
}

// Get returns nil when the ledger has not been written yet
func (r *LedgerRepository) Get(ctx context.Context) (*domain.Ledger, error) {
	var ledger domain.Ledger
	err := r.collection.FindOne(ctx, bson.M{"ledgerId": domain.LedgerID}).Decode(&ledger)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger: %w", err)
	}
	return &ledger, nil
}

// Save replaces the ledger document read at ledger.Version and stages one
// event per appended entry
func (r *LedgerRepository) Save(ctx context.Context, ledger *domain.Ledger) error {
	ledger.UpdatedAt = time.Now().UTC()
	expected := ledger.Version
	ledger.Version = expected + 1

	err := r.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		key := bson.E{Key: "ledgerId", Value: ledger.LedgerID}
		if err := replaceVersioned(txCtx, r.collection, key, expected, ledger); err != nil {
			return fmt.Errorf("failed to save ledger: %w", err)
		}

		return stageEvents(txCtx, r.outboxRepo, ledger, ledger.LedgerID, "Ledger", kafka.Topics.ShopReceipts,
			func(ctx context.Context, event domain.DomainEvent) *cloudevents.ShopCloudEvent {
				return r.eventFactory.CreateEvent(ctx, event.EventType(), "ledger/"+ledger.LedgerID, event)
			})
	})
	if err != nil {
		ledger.Version = expected
		return err
	}

	ledger.ClearDomainEvents()
	return nil
}

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

// BasketStateRepository implements domain.BasketStateRepository using MongoDB
type BasketStateRepository struct {
	collection   *mongo.Collection
	transactor   mongoutil.Transactor
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
}

// NewBasketStateRepository creates a new BasketStateRepository
func NewBasketStateRepository(db *mongo.Database, transactor mongoutil.Transactor, outboxRepo outbox.Repository, eventFactory *cloudevents.EventFactory) *BasketStateRepository {
	repo := &BasketStateRepository{
		collection:   db.Collection(BasketsCollection),
		transactor:   transactor,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *BasketStateRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "shopId", Value: 1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save replaces the user's basket state read at state.Version and stages its
// events. A state changed by another writer since it was read fails with
// domain.ErrConcurrentModification.
func (r *BasketStateRepository) Save(ctx context.Context, state *domain.BasketState) error {
	state.UpdatedAt = time.Now().UTC()
	expected := state.Version
	state.Version = expected + 1

	err := r.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		key := bson.E{Key: "userId", Value: state.UserID}
		if err := replaceVersioned(txCtx, r.collection, key, expected, state); err != nil {
			return fmt.Errorf("failed to save baskets: %w", err)
		}

		return stageEvents(txCtx, r.outboxRepo, state, state.UserID, "BasketState", kafka.Topics.ShopBaskets,
			func(ctx context.Context, event domain.DomainEvent) *cloudevents.ShopCloudEvent {
				ce := r.eventFactory.CreateBasketEvent(ctx, event.EventType(), state.UserID, event)
				ce.ShopID = state.ShopID
				return ce
			})
	})
	if err != nil {
		state.Version = expected
		return err
	}

	state.ClearDomainEvents()
	return nil
}

// FindByUserID returns nil when the user has no basket state yet
func (r *BasketStateRepository) FindByUserID(ctx context.Context, userID string) (*domain.BasketState, error) {
	var state domain.BasketState
	err := r.collection.FindOne(ctx, bson.M{"userId": userID}).Decode(&state)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find baskets: %w", err)
	}
	return &state, nil
}

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

// ShopRepository implements domain.ShopRepository using MongoDB
type ShopRepository struct {
	collection   *mongo.Collection
	transactor   mongoutil.Transactor
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
}

// NewShopRepository creates a new ShopRepository and ensures its indexes
func NewShopRepository(db *mongo.Database, transactor mongoutil.Transactor, outboxRepo outbox.Repository, eventFactory *cloudevents.EventFactory) *ShopRepository {
	repo := &ShopRepository{
		collection:   db.Collection(ShopsCollection),
		transactor:   transactor,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ShopRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "shopId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Save replaces the shop document read at shop.Version and stages its domain
// events in the same transaction. A shop changed by another writer since it
// was read fails with domain.ErrConcurrentModification.
func (r *ShopRepository) Save(ctx context.Context, shop *domain.Shop) error {
	shop.UpdatedAt = time.Now().UTC()
	expected := shop.Version
	shop.Version = expected + 1

	err := r.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		key := bson.E{Key: "shopId", Value: shop.ShopID}
		if err := replaceVersioned(txCtx, r.collection, key, expected, shop); err != nil {
			return fmt.Errorf("failed to save shop: %w", err)
		}

		return stageEvents(txCtx, r.outboxRepo, shop, shop.ShopID, "Shop", kafka.Topics.ShopStock,
			func(ctx context.Context, event domain.DomainEvent) *cloudevents.ShopCloudEvent {
				return r.eventFactory.CreateShopEvent(ctx, event.EventType(), shop.ShopID, event)
			})
	})
	if err != nil {
		shop.Version = expected
		return err
	}

	shop.ClearDomainEvents()
	return nil
}

// FindByID returns nil when the shop does not exist
func (r *ShopRepository) FindByID(ctx context.Context, shopID string) (*domain.Shop, error) {
	var shop domain.Shop
	err := r.collection.FindOne(ctx, bson.M{"shopId": shopID}).Decode(&shop)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find shop: %w", err)
	}
	return &shop, nil
}

// List returns every shop ordered by name
func (r *ShopRepository) List(ctx context.Context) ([]*domain.Shop, error) {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer cursor.Close(ctx)

	var shops []*domain.Shop
	if err := cursor.All(ctx, &shops); err != nil {
		return nil, fmt.Errorf("failed to decode shops: %w", err)
	}
	return shops, nil
}

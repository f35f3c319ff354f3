package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/kafka"
	mongoutil "github.com/tabletop-shop/shop-engine/pkg/mongodb"
	"github.com/tabletop-shop/shop-engine/pkg/outbox"
)

// ErrDuplicateReceipt is returned when a receipt id or owner/name pair already exists
var ErrDuplicateReceipt = errors.New("receipt already exists")

// ReceiptRepository implements domain.ReceiptRepository using MongoDB
type ReceiptRepository struct {
	collection   *mongo.Collection
	transactor   mongoutil.Transactor
	outboxRepo   outbox.Repository
	eventFactory *cloudevents.EventFactory
}

// NewReceiptRepository creates a new ReceiptRepository
func NewReceiptRepository(db *mongo.Database, transactor mongoutil.Transactor, outboxRepo outbox.Repository, eventFactory *cloudevents.EventFactory) *ReceiptRepository {
	repo := &ReceiptRepository{
		collection:   db.Collection(ReceiptsCollection),
		transactor:   transactor,
		outboxRepo:   outboxRepo,
		eventFactory: eventFactory,
	}
	repo.ensureIndexes(context.Background())
	return repo
}

func (r *ReceiptRepository) ensureIndexes(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "receiptId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}
	_, _ = r.collection.Indexes().CreateMany(ctx, indexes)
}

// Create inserts the receipt and stages its issued event
func (r *ReceiptRepository) Create(ctx context.Context, receipt *domain.Receipt) error {
	err := r.transactor.WithTransaction(ctx, func(txCtx context.Context) error {
		if _, err := r.collection.InsertOne(txCtx, receipt); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return fmt.Errorf("%w: %s", ErrDuplicateReceipt, receipt.Name)
			}
			return fmt.Errorf("failed to insert receipt: %w", err)
		}

		return stageEvents(txCtx, r.outboxRepo, receipt, receipt.ReceiptID, "Receipt", kafka.Topics.ShopReceipts,
			func(ctx context.Context, event domain.DomainEvent) *cloudevents.ShopCloudEvent {
				ce := r.eventFactory.CreateEvent(ctx, event.EventType(), "receipt/"+receipt.ReceiptID, event)
				ce.UserID = receipt.OwnerID
				return ce
			})
	})
	if err != nil {
		return err
	}

	receipt.ClearDomainEvents()
	return nil
}

// FindNames returns the names of ownerID's receipts that start with prefix
func (r *ReceiptRepository) FindNames(ctx context.Context, ownerID, prefix string) ([]string, error) {
	filter := bson.M{
		"ownerId": ownerID,
		"name":    primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)},
	}
	opts := options.Find().SetProjection(bson.M{"name": 1, "_id": 0})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt names: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Name string `bson:"name"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode receipt names: %w", err)
	}

	names := make([]string, 0, len(docs))
	for _, doc := range docs {
		names = append(names, doc.Name)
	}
	return names, nil
}

// FindByID returns nil when the receipt does not exist
func (r *ReceiptRepository) FindByID(ctx context.Context, receiptID string) (*domain.Receipt, error) {
	var receipt domain.Receipt
	err := r.collection.FindOne(ctx, bson.M{"receiptId": receiptID}).Decode(&receipt)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find receipt: %w", err)
	}
	return &receipt, nil
}

package mongodb

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tabletop-shop/shop-engine/internal/domain"
)

// replaceVersioned writes doc over the stored document matching key whose
// version is expected. Version 0 inserts, or adopts a document stored before
// it carried a version. Fields left empty in doc are dropped from the store.
// A stale expected version yields domain.ErrConcurrentModification.
func replaceVersioned(ctx context.Context, coll *mongo.Collection, key bson.E, expected int64, doc any) error {
	filter := bson.D{key}
	opts := options.Replace()
	if expected == 0 {
		filter = append(filter, bson.E{Key: "version", Value: bson.M{"$exists": false}})
		opts.SetUpsert(true)
	} else {
		filter = append(filter, bson.E{Key: "version", Value: expected})
	}

	result, err := coll.ReplaceOne(ctx, filter, doc, opts)
	if mongo.IsDuplicateKeyError(err) {
		// the upsert lost to a document that already carries a version
		return domain.ErrConcurrentModification
	}
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return domain.ErrConcurrentModification
	}
	return nil
}

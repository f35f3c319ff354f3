package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/cloudevents"
	"github.com/tabletop-shop/shop-engine/pkg/kafka"
	"github.com/tabletop-shop/shop-engine/pkg/outbox"
)

type inlineTransactor struct {
	calls int
}

func (t *inlineTransactor) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type fakeOutboxRepo struct {
	saveAllCalls int
	events       []*outbox.OutboxEvent
	saveAllErr   error
}

func (f *fakeOutboxRepo) SaveAll(ctx context.Context, events []*outbox.OutboxEvent) error {
	f.saveAllCalls++
	if f.saveAllErr != nil {
		return f.saveAllErr
	}
	f.events = append(f.events, events...)
	return nil
}

func (f *fakeOutboxRepo) FindUnpublished(ctx context.Context, limit int) ([]*outbox.OutboxEvent, error) {
	return nil, nil
}

func (f *fakeOutboxRepo) MarkPublished(ctx context.Context, eventID string) error {
	return nil
}

func (f *fakeOutboxRepo) IncrementRetry(ctx context.Context, eventID string, errorMsg string) error {
	return nil
}

func (f *fakeOutboxRepo) FindByAggregateID(ctx context.Context, aggregateID string) ([]*outbox.OutboxEvent, error) {
	return nil, nil
}

func namespace(coll *mongo.Collection) string {
	return coll.Database().Name() + "." + coll.Name()
}

// replaced answers a versioned replace that matched the stored document
func replaced() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1})
}

// upserted answers a versioned replace that inserted a new document
func upserted() bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: 1},
		bson.E{Key: "upserted", Value: bson.A{bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "new"}}}},
	)
}

// sentReplacement returns the filter and replacement document of the
// update command the driver sent last
func sentReplacement(mt *mtest.T) (q, u bson.Raw, upsert bool) {
	mt.Helper()
	evt := mt.GetStartedEvent()
	require.NotNil(mt, evt)
	require.Equal(mt, "update", evt.CommandName)
	updates, err := evt.Command.LookupErr("updates")
	require.NoError(mt, err)
	values, err := updates.Array().Values()
	require.NoError(mt, err)
	require.Len(mt, values, 1)
	stmt := values[0].Document()
	upsert, _ = stmt.Lookup("upsert").BooleanOK()
	return stmt.Lookup("q").Document(), stmt.Lookup("u").Document(), upsert
}

func assertAbsent(t *testing.T, doc bson.Raw, keys ...string) {
	t.Helper()
	for _, key := range keys {
		_, err := doc.LookupErr(key)
		assert.Error(t, err, "%s should not be stored", key)
	}
}

func TestRepositoryConstructors(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	factory := cloudevents.NewEventFactory(cloudevents.SourceShopAPI)

	mt.Run("shops", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewShopRepository(mt.DB, &inlineTransactor{}, &fakeOutboxRepo{}, factory)
		require.NotNil(t, repo)
	})

	mt.Run("baskets", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewBasketStateRepository(mt.DB, &inlineTransactor{}, &fakeOutboxRepo{}, factory)
		require.NotNil(t, repo)
	})

	mt.Run("receipts", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewReceiptRepository(mt.DB, &inlineTransactor{}, &fakeOutboxRepo{}, factory)
		require.NotNil(t, repo)
	})

	mt.Run("ledger", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		repo := NewLedgerRepository(mt.DB, &inlineTransactor{}, &fakeOutboxRepo{}, factory)
		require.NotNil(t, repo)
	})
}

func TestShopRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save stages events on the stock topic", func(mt *mtest.T) {
		tx := &inlineTransactor{}
		ob := &fakeOutboxRepo{}
		repo := &ShopRepository{
			collection:   mt.DB.Collection(ShopsCollection),
			transactor:   tx,
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}

		shop, err := domain.NewShop("shop-1", "The Gilded Flagon", "dm", 0)
		require.NoError(t, err)

		mt.AddMockResponses(upserted())
		require.NoError(t, repo.Save(context.Background(), shop))

		assert.Equal(t, 1, tx.calls)
		assert.Equal(t, int64(1), shop.Version)
		require.Len(t, ob.events, 1)
		assert.Equal(t, kafka.Topics.ShopStock, ob.events[0].Topic)
		assert.Equal(t, "shop-1", ob.events[0].AggregateID)
		assert.Equal(t, "shop.stock.shop_created", ob.events[0].EventType)
		assert.Empty(t, shop.GetDomainEvents())
	})

	mt.Run("save keeps events when the outbox fails", func(mt *mtest.T) {
		ob := &fakeOutboxRepo{saveAllErr: errors.New("outbox down")}
		repo := &ShopRepository{
			collection:   mt.DB.Collection(ShopsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}

		shop, err := domain.NewShop("shop-1", "The Gilded Flagon", "dm", 0)
		require.NoError(t, err)

		mt.AddMockResponses(upserted())
		err = repo.Save(context.Background(), shop)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "outbox")
		assert.Len(t, shop.GetDomainEvents(), 1)
		assert.Equal(t, int64(0), shop.Version)
	})

	mt.Run("save replaces the whole document at the read version", func(mt *mtest.T) {
		repo := &ShopRepository{
			collection:   mt.DB.Collection(ShopsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   &fakeOutboxRepo{},
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}

		shop, err := domain.NewShop("shop-1", "The Gilded Flagon", "dm", 0)
		require.NoError(t, err)
		_, err = shop.AddItem(domain.CatalogItem{ID: "dagger", Name: "Dagger", Category: "Weapons", Price: domain.Amount{GP: 2}}, 1, nil)
		require.NoError(t, err)
		require.NotEmpty(t, shop.Highlights)
		shop.ConsumeHighlights()
		shop.Version = 2

		mt.ClearEvents()
		mt.AddMockResponses(replaced())
		require.NoError(t, repo.Save(context.Background(), shop))

		q, u, upsert := sentReplacement(mt)
		assert.False(t, upsert)
		assert.Equal(t, "shop-1", q.Lookup("shopId").StringValue())
		assert.Equal(t, int64(2), q.Lookup("version").Int64())
		assert.Equal(t, int64(3), u.Lookup("version").Int64())
		assertAbsent(t, u, "$set", "highlights")
		assert.Equal(t, int64(3), shop.Version)
	})

	mt.Run("save at a stale version is a conflict", func(mt *mtest.T) {
		ob := &fakeOutboxRepo{}
		repo := &ShopRepository{
			collection:   mt.DB.Collection(ShopsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}

		shop, err := domain.NewShop("shop-1", "The Gilded Flagon", "dm", 0)
		require.NoError(t, err)
		shop.Version = 4

		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))
		err = repo.Save(context.Background(), shop)
		require.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(4), shop.Version)
		assert.Empty(t, ob.events)
		assert.Len(t, shop.GetDomainEvents(), 1)
	})

	mt.Run("find and list", func(mt *mtest.T) {
		coll := mt.DB.Collection(ShopsCollection)
		repo := &ShopRepository{collection: coll}
		ctx := context.Background()
		ns := namespace(coll)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "shopId", Value: "shop-1"},
			{Key: "name", Value: "The Gilded Flagon"},
			{Key: "sellModifier", Value: 0.5},
			{Key: "categories", Value: bson.A{
				bson.D{
					{Key: "name", Value: "Weapons"},
					{Key: "items", Value: bson.A{
						bson.D{
							{Key: "itemId", Value: "longsword"},
							{Key: "name", Value: "Longsword"},
							{Key: "price", Value: bson.D{{Key: "gp", Value: 15}}},
							{Key: "quantity", Value: 2},
							{Key: "maxStock", Value: 3},
						},
					}},
				},
			}},
		}))
		shop, err := repo.FindByID(ctx, "shop-1")
		require.NoError(t, err)
		require.NotNil(t, shop)
		item, ok := shop.FindItem("longsword")
		require.True(t, ok)
		assert.Equal(t, 1500, item.Price.ToBaseUnits())
		assert.Equal(t, 2, item.Quantity)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		missing, err := repo.FindByID(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "shopId", Value: "a"}, {Key: "name", Value: "Apothecary"}},
			bson.D{{Key: "shopId", Value: "b"}, {Key: "name", Value: "Blacksmith"}},
		))
		shops, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, shops, 2)
		assert.Equal(t, "Apothecary", shops[0].Name)
	})

	mt.Run("find surfaces driver errors", func(mt *mtest.T) {
		repo := &ShopRepository{collection: mt.DB.Collection(ShopsCollection)}

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))
		_, err := repo.FindByID(context.Background(), "shop-1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to find shop")
	})
}

func TestBasketStateRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("save and find", func(mt *mtest.T) {
		coll := mt.DB.Collection(BasketsCollection)
		ob := &fakeOutboxRepo{}
		repo := &BasketStateRepository{
			collection:   coll,
			transactor:   &inlineTransactor{},
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}
		ctx := context.Background()

		state := domain.NewBasketState("u1")
		state.ShopID = "shop-1"
		state.Buy = []domain.LineItem{{ItemID: "dagger", Name: "Dagger", Quantity: 1, Price: domain.Amount{GP: 2}}}
		require.NoError(t, state.HoldForCheckout("co-1", time.Now()))
		require.True(t, state.Settle("co-1", "r-1", time.Now()))

		mt.AddMockResponses(upserted())
		require.NoError(t, repo.Save(ctx, state))
		require.Len(t, ob.events, 1)
		assert.Equal(t, kafka.Topics.ShopBaskets, ob.events[0].Topic)

		ce, err := ob.events[0].ToCloudEvent()
		require.NoError(t, err)
		assert.Equal(t, "u1", ce.UserID)
		assert.Equal(t, "basket/u1", ce.Subject)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, bson.D{
			{Key: "userId", Value: "u1"},
			{Key: "shopId", Value: "shop-1"},
			{Key: "merge", Value: bson.D{{Key: "kind", Value: "merged"}}},
		}))
		found, err := repo.FindByUserID(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.Merge.IsMerged())

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch))
		found, err = repo.FindByUserID(ctx, "u2")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	mt.Run("cleared fields are dropped from the stored document", func(mt *mtest.T) {
		repo := &BasketStateRepository{
			collection:   mt.DB.Collection(BasketsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   &fakeOutboxRepo{},
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}
		now := time.Now()

		// as loaded: a sell session, a haggle and a checkout hold
		state := domain.NewBasketState("u1")
		state.ShopID = "shop-1"
		state.SellSourceCharacterID = "char-1"
		state.Sell = []domain.SellLineItem{{
			LineItem:    domain.LineItem{ItemID: "gem", Name: "Gem", Quantity: 1, Price: domain.Amount{GP: 5}},
			CharacterID: "char-1",
			BaseValue:   domain.Amount{GP: 10},
		}}
		state.Haggle = &domain.HaggleResult{Percent: 10, RecordedAt: now}
		state.Checkout = &domain.CheckoutHold{Reference: "co-1", Since: now}
		state.Version = 3

		require.True(t, state.Settle("co-1", "r-1", now))

		mt.ClearEvents()
		mt.AddMockResponses(replaced())
		require.NoError(t, repo.Save(context.Background(), state))

		q, u, upsert := sentReplacement(mt)
		assert.False(t, upsert)
		assert.Equal(t, "u1", q.Lookup("userId").StringValue())
		assert.Equal(t, int64(3), q.Lookup("version").Int64())
		assert.Equal(t, int64(4), u.Lookup("version").Int64())
		assertAbsent(t, u, "$set", "shopId", "sellSourceCharacterId", "haggle", "checkout")
	})

	mt.Run("first save inserts only while no versioned document exists", func(mt *mtest.T) {
		repo := &BasketStateRepository{
			collection:   mt.DB.Collection(BasketsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   &fakeOutboxRepo{},
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceShopAPI),
		}

		state := domain.NewBasketState("u1")
		mt.ClearEvents()
		mt.AddMockResponses(upserted())
		require.NoError(t, repo.Save(context.Background(), state))

		q, _, upsert := sentReplacement(mt)
		assert.True(t, upsert)
		exists, ok := q.Lookup("version").DocumentOK()
		require.True(t, ok)
		assert.False(t, exists.Lookup("$exists").Boolean())

		// another process inserted first; the upsert collides on the unique userId index
		other := domain.NewBasketState("u2")
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		err := repo.Save(context.Background(), other)
		require.ErrorIs(t, err, domain.ErrConcurrentModification)
		assert.Equal(t, int64(0), other.Version)
	})
}

func TestReceiptRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	newRepo := func(mt *mtest.T, ob *fakeOutboxRepo) *ReceiptRepository {
		return &ReceiptRepository{
			collection:   mt.DB.Collection(ReceiptsCollection),
			transactor:   &inlineTransactor{},
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceCheckout),
		}
	}

	sampleReceipt := func() *domain.Receipt {
		header := domain.ReceiptHeader{ShopName: "Flagon", CustomerName: "Thorin", Timestamp: time.Now()}
		buy := []domain.LineItem{{ItemID: "dagger", Name: "Dagger", Quantity: 1, Price: domain.Amount{GP: 2}}}
		r := domain.BuildReceipt(header, buy, nil, nil, domain.Amount{GP: 10}, domain.Amount{GP: 8})
		r.Issue("owner-1", "Thorin - Flagon - 2024-03-09")
		return r
	}

	mt.Run("create stages issued event", func(mt *mtest.T) {
		ob := &fakeOutboxRepo{}
		repo := newRepo(mt, ob)
		receipt := sampleReceipt()

		mt.AddMockResponses(mtest.CreateSuccessResponse())
		require.NoError(t, repo.Create(context.Background(), receipt))

		require.Len(t, ob.events, 1)
		assert.Equal(t, kafka.Topics.ShopReceipts, ob.events[0].Topic)
		assert.Equal(t, "shop.receipt.issued", ob.events[0].EventType)
		assert.Empty(t, receipt.GetDomainEvents())
	})

	mt.Run("duplicate name", func(mt *mtest.T) {
		ob := &fakeOutboxRepo{}
		repo := newRepo(mt, ob)

		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))
		err := repo.Create(context.Background(), sampleReceipt())
		require.ErrorIs(t, err, ErrDuplicateReceipt)
		assert.Empty(t, ob.events)
	})

	mt.Run("find names and by id", func(mt *mtest.T) {
		repo := newRepo(mt, &fakeOutboxRepo{})
		ns := namespace(repo.collection)
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			bson.D{{Key: "name", Value: "Thorin - Flagon - 2024-03-09"}},
			bson.D{{Key: "name", Value: "Thorin - Flagon - 2024-03-09 (2)"}},
		))
		names, err := repo.FindNames(ctx, "owner-1", "Thorin - Flagon - 2024-03-09")
		require.NoError(t, err)
		assert.Equal(t, []string{"Thorin - Flagon - 2024-03-09", "Thorin - Flagon - 2024-03-09 (2)"}, names)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "receiptId", Value: "r-1"},
			{Key: "name", Value: "Thorin - Flagon - 2024-03-09"},
			{Key: "body", Value: "RECEIPT"},
		}))
		receipt, err := repo.FindByID(ctx, "r-1")
		require.NoError(t, err)
		require.NotNil(t, receipt)
		assert.Equal(t, "RECEIPT", receipt.Body)

		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))
		receipt, err = repo.FindByID(ctx, "r-2")
		require.NoError(t, err)
		assert.Nil(t, receipt)
	})
}

func TestLedgerRepository_MockOps(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("get and save", func(mt *mtest.T) {
		coll := mt.DB.Collection(LedgerCollection)
		ob := &fakeOutboxRepo{}
		repo := &LedgerRepository{
			collection:   coll,
			transactor:   &inlineTransactor{},
			outboxRepo:   ob,
			eventFactory: cloudevents.NewEventFactory(cloudevents.SourceCheckout),
		}
		ctx := context.Background()

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch))
		ledger, err := repo.Get(ctx)
		require.NoError(t, err)
		assert.Nil(t, ledger)

		ledger = domain.NewLedger()
		ledger.Append(domain.LedgerEntry{Actor: "Thorin", ShopName: "Flagon", Type: domain.LedgerPurchase, Amount: domain.Amount{GP: 2}})
		ledger.Append(domain.LedgerEntry{Actor: "Thorin", ShopName: "Flagon", Type: domain.LedgerSale, Amount: domain.Amount{SP: 5}})

		mt.AddMockResponses(upserted())
		require.NoError(t, repo.Save(ctx, ledger))
		require.Len(t, ob.events, 2)
		assert.Equal(t, int64(1), ledger.Version)
		for _, e := range ob.events {
			assert.Equal(t, domain.LedgerID, e.AggregateID)
			assert.Equal(t, "shop.ledger.appended", e.EventType)
		}

		mt.AddMockResponses(mtest.CreateCursorResponse(0, namespace(coll), mtest.FirstBatch, bson.D{
			{Key: "ledgerId", Value: domain.LedgerID},
			{Key: "name", Value: domain.LedgerName},
			{Key: "body", Value: "line\n"},
		}))
		ledger, err = repo.Get(ctx)
		require.NoError(t, err)
		require.NotNil(t, ledger)
		assert.Equal(t, domain.LedgerName, ledger.Name)
	})
}

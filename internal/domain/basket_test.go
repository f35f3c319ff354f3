package domain

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stockedItem(price Amount, quantity int) StockItem {
	return StockItem{ItemID: "x", Name: "Item X", Category: "Gear", Rarity: RarityCommon, Price: price, Quantity: quantity, MaxStock: quantity}
}

func sellable(quantity int) SellableItem {
	return SellableItem{ID: "gem", Name: "Ruby", Quantity: quantity, Price: Amount{GP: 10, SP: 5}}
}

func stagedBaskets(t *testing.T) *BasketState {
	t.Helper()
	b := NewBasketState("user-1")
	_, err := b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 2)
	require.NoError(t, err)
	require.NoError(t, b.BeginSellSession("char-1"))
	_, err = b.AddToSell(sellable(3), 1, 0.5)
	require.NoError(t, err)
	return b
}

func TestBasket_AddToBuySnapshotsPrice(t *testing.T) {
	b := NewBasketState("user-1")
	item := stockedItem(Amount{GP: 5}, 10)

	line, err := b.AddToBuy("shop-1", item, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity)
	assert.Equal(t, Amount{GP: 5}, line.Price)
	assert.Equal(t, "15gp", FormatCopper(BuySubtotal(b.Buy)))

	item.Price = Amount{GP: 6}
	line, err = b.AddToBuy("shop-1", item, 3)
	require.NoError(t, err)
	require.Len(t, b.Buy, 1)
	assert.Equal(t, 6, line.Quantity)
	assert.Equal(t, Amount{GP: 5}, line.Price)
	assert.Equal(t, "30gp", FormatCopper(BuySubtotal(b.Buy)))
}

func TestBasket_AddToBuyValidation(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(b *BasketState)
		shopID   string
		quantity int
		wantErr  error
	}{
		{name: "exceeds stock", shopID: "shop-1", quantity: 11, wantErr: ErrInsufficientStock},
		{
			name:     "cumulative exceeds stock",
			prepare:  func(b *BasketState) { _, _ = b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 8) },
			shopID:   "shop-1",
			quantity: 3,
			wantErr:  ErrInsufficientStock,
		},
		{name: "zero quantity", shopID: "shop-1", quantity: 0, wantErr: ErrInvalidQuantity},
		{
			name:     "other shop",
			prepare:  func(b *BasketState) { _, _ = b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 1) },
			shopID:   "shop-2",
			quantity: 1,
			wantErr:  ErrShopMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBasketState("user-1")
			if tt.prepare != nil {
				tt.prepare(b)
			}
			before := slices.Clone(b.Buy)

			_, err := b.AddToBuy(tt.shopID, stockedItem(Amount{GP: 5}, 10), tt.quantity)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, b.Buy)
		})
	}
}

func TestBasket_RemoveByIndex(t *testing.T) {
	b := stagedBaskets(t)

	_, err := b.RemoveFromBuy(1)
	assert.ErrorIs(t, err, ErrItemNotInBasket)
	_, err = b.RemoveFromBuy(-1)
	assert.ErrorIs(t, err, ErrItemNotInBasket)

	removed, err := b.RemoveFromBuy(0)
	require.NoError(t, err)
	assert.Equal(t, "x", removed.ItemID)
	assert.Empty(t, b.Buy)

	sold, err := b.RemoveFromSell(0)
	require.NoError(t, err)
	assert.Equal(t, "gem", sold.ItemID)
	assert.Empty(t, b.Sell)
}

func TestBasket_AddToSell(t *testing.T) {
	b := NewBasketState("user-1")

	_, err := b.AddToSell(sellable(3), 1, 0.5)
	assert.ErrorIs(t, err, ErrNoSellSource)

	require.NoError(t, b.BeginSellSession("char-1"))

	line, err := b.AddToSell(sellable(3), 2, 0.5)
	require.NoError(t, err)
	assert.Equal(t, Amount{GP: 5, SP: 2, CP: 5}, line.Price)
	assert.Equal(t, Amount{GP: 10, SP: 5}, line.BaseValue)
	assert.Equal(t, "char-1", line.CharacterID)

	line, err = b.AddToSell(sellable(3), 5, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 3, line.Quantity, "quantity is clamped to what the character holds")
	require.Len(t, b.Sell, 1)

	_, err = b.AddToSell(sellable(3), 1, 0.5)
	assert.ErrorIs(t, err, ErrInsufficientStock)
}

func TestSellPrice(t *testing.T) {
	tests := []struct {
		base     Amount
		modifier float64
		expected Amount
	}{
		{Amount{GP: 10}, 0.5, Amount{GP: 5}},
		{Amount{CP: 3}, 0.5, Amount{CP: 1}},
		{Amount{EP: 1}, 0.5, Amount{SP: 2, CP: 5}},
		{Amount{GP: 1}, 1, Amount{GP: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.base.String(), func(t *testing.T) {
			assert.Equal(t, tt.expected, SellPrice(tt.base, tt.modifier))
		})
	}
}

func TestBasket_MergeLocksMutation(t *testing.T) {
	b := NewBasketState("user-1")
	_, err := b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 1)
	require.NoError(t, err)

	assert.False(t, b.CanMerge())
	assert.ErrorIs(t, b.MergeBaskets(time.Now()), ErrCannotMerge)

	b = stagedBaskets(t)
	assert.True(t, b.CanMerge())
	require.NoError(t, b.MergeBaskets(time.Now()))
	assert.True(t, b.Merge.IsMerged())
	require.NotNil(t, b.Merge.Since)
	assert.ErrorIs(t, b.MergeBaskets(time.Now()), ErrCannotMerge)

	_, err = b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 1)
	assert.ErrorIs(t, err, ErrBasketsLocked)
	_, err = b.AddToSell(sellable(3), 1, 0.5)
	assert.ErrorIs(t, err, ErrBasketsLocked)
	_, err = b.RemoveFromBuy(0)
	assert.ErrorIs(t, err, ErrBasketsLocked)
	_, err = b.RemoveFromSell(0)
	assert.ErrorIs(t, err, ErrBasketsLocked)
	_, err = b.ClearBuy()
	assert.ErrorIs(t, err, ErrBasketsLocked)
	_, err = b.ClearSell()
	assert.ErrorIs(t, err, ErrBasketsLocked)
	assert.ErrorIs(t, b.BeginSellSession("char-2"), ErrBasketsLocked)

	require.NoError(t, b.UnmergeBaskets())
	assert.False(t, b.Merge.IsMerged())
	assert.ErrorIs(t, b.UnmergeBaskets(), ErrNotMerged)

	_, err = b.AddToBuy("shop-1", stockedItem(Amount{GP: 5}, 10), 1)
	assert.NoError(t, err)

	var types []string
	for _, e := range b.GetDomainEvents() {
		types = append(types, e.EventType())
	}
	assert.Equal(t, []string{"shop.basket.merged", "shop.basket.unmerged"}, types)
}

func TestBasket_ClearDropsHaggle(t *testing.T) {
	b := stagedBaskets(t)
	require.NoError(t, b.RecordHaggle(10, "persuasion 18", time.Now()))

	n, err := b.ClearBuy()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, b.Haggle)
	assert.Empty(t, b.ShopID)

	require.NoError(t, b.RecordHaggle(-5, "", time.Now()))
	n, err = b.ClearSell()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Nil(t, b.Haggle)
	assert.Empty(t, b.SellSourceCharacterID)
	assert.True(t, b.IsEmpty())
}

func TestBasket_RecordHaggleBounds(t *testing.T) {
	b := NewBasketState("user-1")

	assert.NoError(t, b.RecordHaggle(MaxHagglePercent, "", time.Now()))
	assert.NoError(t, b.RecordHaggle(-MaxHagglePercent, "", time.Now()))
	assert.ErrorIs(t, b.RecordHaggle(MaxHagglePercent+1, "", time.Now()), ErrInvalidHaggle)
	assert.ErrorIs(t, b.RecordHaggle(-MaxHagglePercent-1, "", time.Now()), ErrInvalidHaggle)
}

func TestBasket_Settle(t *testing.T) {
	b := stagedBaskets(t)
	require.NoError(t, b.MergeBaskets(time.Now()))
	b.ClearDomainEvents()

	require.NoError(t, b.HoldForCheckout("co-1", time.Now()))

	assert.True(t, b.Settle("co-1", "receipt-1", time.Now()))

	assert.True(t, b.IsEmpty())
	assert.False(t, b.Merge.IsMerged())
	assert.Nil(t, b.Checkout)
	assert.Empty(t, b.SellSourceCharacterID)
	require.Len(t, b.GetDomainEvents(), 1)
	settled, ok := b.GetDomainEvents()[0].(*BasketsSettledEvent)
	require.True(t, ok)
	assert.Equal(t, "shop-1", settled.ShopID)
	assert.Equal(t, "receipt-1", settled.ReceiptID)

	assert.False(t, b.Settle("co-1", "receipt-1", time.Now()), "already settled")
	assert.Len(t, b.GetDomainEvents(), 1)
}

func TestBasket_SettleNeedsTheHold(t *testing.T) {
	b := stagedBaskets(t)
	b.ClearDomainEvents()

	assert.False(t, b.Settle("co-1", "receipt-1", time.Now()), "never held")
	assert.False(t, b.IsEmpty())

	require.NoError(t, b.HoldForCheckout("co-1", time.Now()))
	assert.False(t, b.Settle("co-2", "receipt-2", time.Now()), "held by another checkout")
	assert.False(t, b.IsEmpty())
	assert.Empty(t, b.GetDomainEvents())
}

func TestBasket_CheckoutHold(t *testing.T) {
	b := stagedBaskets(t)
	now := time.Now()

	require.NoError(t, b.HoldForCheckout("co-1", now))
	require.NotNil(t, b.Checkout)
	assert.Equal(t, "co-1", b.Checkout.Reference)
	assert.NoError(t, b.HoldForCheckout("co-1", now), "same checkout again")
	assert.ErrorIs(t, b.HoldForCheckout("co-2", now), ErrCheckoutInProgress)

	_, err := b.AddToBuy("shop-1", StockItem{ItemID: "rope", Name: "Rope", Quantity: 5, MaxStock: 5, Price: Amount{SP: 1}}, 1)
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	_, err = b.ClearSell()
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.ErrorIs(t, b.MergeBaskets(now), ErrCheckoutInProgress)
	assert.ErrorIs(t, b.RecordHaggle(5, "", now), ErrCheckoutInProgress)

	assert.False(t, b.ReleaseCheckout("co-2"))
	assert.NotNil(t, b.Checkout)
	assert.True(t, b.ReleaseCheckout("co-1"))
	assert.Nil(t, b.Checkout)
	assert.False(t, b.IsEmpty(), "release keeps the staged lines")
	assert.NoError(t, b.RecordHaggle(5, "", now))

	empty := NewBasketState("user-2")
	assert.ErrorIs(t, empty.HoldForCheckout("co-3", now), ErrEmptyBaskets)
}

func TestQuote(t *testing.T) {
	buy := []LineItem{{ItemID: "x", Quantity: 3, Price: Amount{GP: 5}}}
	sell := []SellLineItem{{LineItem: LineItem{ItemID: "gem", Quantity: 2, Price: Amount{GP: 2}}}}

	t.Run("without haggle", func(t *testing.T) {
		q := NewQuote(buy, sell, nil)
		assert.Equal(t, 1500, q.BuyTotal)
		assert.Equal(t, 400, q.SellTotal)
		assert.Equal(t, -1100, q.NetCopper)
		assert.Equal(t, DirectionPay, q.Direction)
	})

	t.Run("haggle favours customer", func(t *testing.T) {
		q := NewQuote(buy, sell, &HaggleResult{Percent: 10})
		assert.Equal(t, -150, q.BuyAdjustment)
		assert.Equal(t, 1350, q.BuyTotal)
		assert.Equal(t, 40, q.SellAdjustment)
		assert.Equal(t, 440, q.SellTotal)
		assert.Equal(t, -910, q.NetCopper)
	})

	t.Run("sell only receives", func(t *testing.T) {
		q := NewQuote(nil, sell, nil)
		assert.Equal(t, 400, q.NetCopper)
		assert.Equal(t, DirectionReceive, q.Direction)
	})

	t.Run("adjustment truncates toward zero", func(t *testing.T) {
		assert.Equal(t, 3, HaggleAdjustment(35, 10))
		assert.Equal(t, -3, HaggleAdjustment(35, -10))
	})
}

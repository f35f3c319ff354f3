package domain

import (
	"math"
	"time"
)

// MaxHagglePercent bounds a haggle adjustment either way
const MaxHagglePercent = 50

// LineItem is a staged purchase. Price is frozen when the item is staged.
type LineItem struct {
	ItemID   string `bson:"itemId" json:"itemId"`
	Name     string `bson:"name" json:"name"`
	Quantity int    `bson:"quantity" json:"quantity"`
	Price    Amount `bson:"price" json:"price"`
}

// TotalCopper returns price times quantity in copper
func (l LineItem) TotalCopper() int {
	return l.Price.ToBaseUnits() * l.Quantity
}

// SellLineItem is a staged sale from a character's inventory
type SellLineItem struct {
	LineItem    `bson:",inline"`
	CharacterID string `bson:"characterId" json:"characterId"`
	BaseValue   Amount `bson:"baseValue" json:"baseValue"`
}

// MergeKind tags the merge state of a user's baskets
type MergeKind string

const (
	MergeIndependent MergeKind = "independent"
	MergeMerged      MergeKind = "merged"
)

// MergeStatus is either Independent or Merged since a point in time
type MergeStatus struct {
	Kind  MergeKind  `bson:"kind" json:"kind"`
	Since *time.Time `bson:"since,omitempty" json:"since,omitempty"`
}

// Independent returns the unmerged status
func Independent() MergeStatus {
	return MergeStatus{Kind: MergeIndependent}
}

// IsMerged reports whether the baskets are merged
func (m MergeStatus) IsMerged() bool {
	return m.Kind == MergeMerged
}

// Merge transitions Independent to Merged{now}
func (m MergeStatus) Merge(now time.Time) (MergeStatus, error) {
	if m.IsMerged() {
		return m, ErrCannotMerge
	}
	return MergeStatus{Kind: MergeMerged, Since: &now}, nil
}

// Unmerge transitions Merged back to Independent
func (m MergeStatus) Unmerge() (MergeStatus, error) {
	if !m.IsMerged() {
		return m, ErrNotMerged
	}
	return Independent(), nil
}

// HaggleResult is a pending price adjustment in the customer's favour.
// Purchases get Percent cheaper and sales pay Percent more; negative
// values work against the customer.
type HaggleResult struct {
	Percent    int       `bson:"percent" json:"percent"`
	Note       string    `bson:"note,omitempty" json:"note,omitempty"`
	RecordedAt time.Time `bson:"recordedAt" json:"recordedAt"`
}

// CheckoutHold freezes the baskets while one checkout settles them
type CheckoutHold struct {
	Reference string    `bson:"reference" json:"reference"`
	Since     time.Time `bson:"since" json:"since"`
}

// BasketState holds one user's buy and sell baskets
type BasketState struct {
	UserID                string         `bson:"userId" json:"userId"`
	ShopID                string         `bson:"shopId,omitempty" json:"shopId,omitempty"`
	Buy                   []LineItem     `bson:"buy" json:"buy"`
	Sell                  []SellLineItem `bson:"sell" json:"sell"`
	SellSourceCharacterID string         `bson:"sellSourceCharacterId,omitempty" json:"sellSourceCharacterId,omitempty"`
	Merge                 MergeStatus    `bson:"merge" json:"merge"`
	Haggle                *HaggleResult  `bson:"haggle,omitempty" json:"haggle,omitempty"`
	Checkout              *CheckoutHold  `bson:"checkout,omitempty" json:"checkout,omitempty"`
	Version               int64          `bson:"version" json:"-"`
	CreatedAt             time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt             time.Time      `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewBasketState returns an empty, independent basket state for userID
func NewBasketState(userID string) *BasketState {
	now := time.Now().UTC()
	return &BasketState{
		UserID:    userID,
		Buy:       []LineItem{},
		Sell:      []SellLineItem{},
		Merge:     Independent(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (b *BasketState) checkUnlocked() error {
	if b.Checkout != nil {
		return ErrCheckoutInProgress
	}
	if b.Merge.IsMerged() {
		return ErrBasketsLocked
	}
	return nil
}

// AddToBuy stages quantity units of a stocked item from shopID. The requested
// quantity plus anything already staged must not exceed current stock.
// A repeated item keeps the price it was first staged at.
func (b *BasketState) AddToBuy(shopID string, item StockItem, quantity int) (LineItem, error) {
	if err := b.checkUnlocked(); err != nil {
		return LineItem{}, err
	}
	if quantity <= 0 {
		return LineItem{}, ErrInvalidQuantity
	}
	if len(b.Buy) > 0 && b.ShopID != "" && b.ShopID != shopID {
		return LineItem{}, ErrShopMismatch
	}

	existing := -1
	staged := 0
	for i := range b.Buy {
		if b.Buy[i].ItemID == item.ItemID {
			existing = i
			staged = b.Buy[i].Quantity
			break
		}
	}
	if staged+quantity > item.Quantity {
		return LineItem{}, ErrInsufficientStock
	}

	b.ShopID = shopID
	if existing >= 0 {
		b.Buy[existing].Quantity += quantity
		b.touch()
		return b.Buy[existing], nil
	}

	line := LineItem{ItemID: item.ItemID, Name: item.Name, Quantity: quantity, Price: item.Price}
	b.Buy = append(b.Buy, line)
	b.touch()
	return line, nil
}

// RemoveFromBuy removes the buy line at a zero-based index
func (b *BasketState) RemoveFromBuy(index int) (LineItem, error) {
	if err := b.checkUnlocked(); err != nil {
		return LineItem{}, err
	}
	if index < 0 || index >= len(b.Buy) {
		return LineItem{}, ErrItemNotInBasket
	}
	removed := b.Buy[index]
	b.Buy = append(b.Buy[:index], b.Buy[index+1:]...)
	b.touch()
	return removed, nil
}

// BeginSellSession associates the character whose items will be sold
func (b *BasketState) BeginSellSession(characterID string) error {
	if err := b.checkUnlocked(); err != nil {
		return err
	}
	b.SellSourceCharacterID = characterID
	b.touch()
	return nil
}

// SellPrice returns floor(base × modifier) in canonical denominations
func SellPrice(base Amount, modifier float64) Amount {
	return FromBaseUnits(int(math.Floor(float64(base.ToBaseUnits()) * modifier)))
}

// AddToSell stages up to quantity units of a character's item. The quantity is
// clamped to what the character holds minus what is already staged.
func (b *BasketState) AddToSell(item SellableItem, quantity int, sellModifier float64) (SellLineItem, error) {
	if err := b.checkUnlocked(); err != nil {
		return SellLineItem{}, err
	}
	if b.SellSourceCharacterID == "" {
		return SellLineItem{}, ErrNoSellSource
	}
	if quantity <= 0 {
		return SellLineItem{}, ErrInvalidQuantity
	}

	existing := -1
	staged := 0
	for i := range b.Sell {
		if b.Sell[i].ItemID == item.ID && b.Sell[i].CharacterID == b.SellSourceCharacterID {
			existing = i
			staged = b.Sell[i].Quantity
			break
		}
	}

	available := item.Quantity - staged
	if available <= 0 {
		return SellLineItem{}, ErrInsufficientStock
	}
	if quantity > available {
		quantity = available
	}

	if existing >= 0 {
		b.Sell[existing].Quantity += quantity
		b.touch()
		return b.Sell[existing], nil
	}

	line := SellLineItem{
		LineItem: LineItem{
			ItemID:   item.ID,
			Name:     item.Name,
			Quantity: quantity,
			Price:    SellPrice(item.Price, sellModifier),
		},
		CharacterID: b.SellSourceCharacterID,
		BaseValue:   item.Price,
	}
	b.Sell = append(b.Sell, line)
	b.touch()
	return line, nil
}

// RemoveFromSell removes the sell line at a zero-based index
func (b *BasketState) RemoveFromSell(index int) (SellLineItem, error) {
	if err := b.checkUnlocked(); err != nil {
		return SellLineItem{}, err
	}
	if index < 0 || index >= len(b.Sell) {
		return SellLineItem{}, ErrItemNotInBasket
	}
	removed := b.Sell[index]
	b.Sell = append(b.Sell[:index], b.Sell[index+1:]...)
	b.touch()
	return removed, nil
}

// ClearBuy empties the buy basket and drops any pending haggle
func (b *BasketState) ClearBuy() (int, error) {
	if err := b.checkUnlocked(); err != nil {
		return 0, err
	}
	n := len(b.Buy)
	b.Buy = []LineItem{}
	b.ShopID = ""
	b.Haggle = nil
	b.touch()
	return n, nil
}

// ClearSell empties the sell basket, drops any pending haggle and forgets the source character
func (b *BasketState) ClearSell() (int, error) {
	if err := b.checkUnlocked(); err != nil {
		return 0, err
	}
	n := len(b.Sell)
	b.Sell = []SellLineItem{}
	b.SellSourceCharacterID = ""
	b.Haggle = nil
	b.touch()
	return n, nil
}

// CanMerge reports whether both baskets hold items and are not yet merged
func (b *BasketState) CanMerge() bool {
	return len(b.Buy) > 0 && len(b.Sell) > 0 && !b.Merge.IsMerged()
}

// MergeBaskets locks both baskets into one net transaction
func (b *BasketState) MergeBaskets(now time.Time) error {
	if b.Checkout != nil {
		return ErrCheckoutInProgress
	}
	if !b.CanMerge() {
		return ErrCannotMerge
	}
	merged, err := b.Merge.Merge(now)
	if err != nil {
		return err
	}
	b.Merge = merged
	b.touch()
	b.addDomainEvent(&BasketsMergedEvent{
		UserID:    b.UserID,
		ShopID:    b.ShopID,
		NetCopper: b.Quote().NetCopper,
		MergedAt:  now,
	})
	return nil
}

// UnmergeBaskets restores independent mutability
func (b *BasketState) UnmergeBaskets() error {
	if b.Checkout != nil {
		return ErrCheckoutInProgress
	}
	status, err := b.Merge.Unmerge()
	if err != nil {
		return err
	}
	b.Merge = status
	b.touch()
	b.addDomainEvent(&BasketsUnmergedEvent{UserID: b.UserID, UnmergedAt: b.UpdatedAt})
	return nil
}

// RecordHaggle stores the outcome of a haggle check for the next settlement
func (b *BasketState) RecordHaggle(percent int, note string, now time.Time) error {
	if b.Checkout != nil {
		return ErrCheckoutInProgress
	}
	if percent < -MaxHagglePercent || percent > MaxHagglePercent {
		return ErrInvalidHaggle
	}
	b.Haggle = &HaggleResult{Percent: percent, Note: note, RecordedAt: now}
	b.touch()
	return nil
}

// IsEmpty reports whether nothing is staged
func (b *BasketState) IsEmpty() bool {
	return len(b.Buy) == 0 && len(b.Sell) == 0
}

// HoldForCheckout freezes the baskets for the checkout named by reference.
// Holding again under the same reference is a no-op.
func (b *BasketState) HoldForCheckout(reference string, now time.Time) error {
	if b.Checkout != nil {
		if b.Checkout.Reference == reference {
			return nil
		}
		return ErrCheckoutInProgress
	}
	if b.IsEmpty() {
		return ErrEmptyBaskets
	}
	b.Checkout = &CheckoutHold{Reference: reference, Since: now}
	b.touch()
	return nil
}

// ReleaseCheckout lifts the hold of an abandoned checkout and keeps the staged
// lines. It reports false when reference does not hold the baskets.
func (b *BasketState) ReleaseCheckout(reference string) bool {
	if b.Checkout == nil || b.Checkout.Reference != reference {
		return false
	}
	b.Checkout = nil
	b.touch()
	return true
}

// Settle resets the baskets held by the checkout named by reference. Nothing
// can be staged while the hold lasts, so everything cleared was settled.
// It reports false, changing nothing, when reference does not hold the baskets.
func (b *BasketState) Settle(reference, receiptID string, now time.Time) bool {
	if b.Checkout == nil || b.Checkout.Reference != reference {
		return false
	}
	shopID := b.ShopID
	b.Buy = []LineItem{}
	b.Sell = []SellLineItem{}
	b.ShopID = ""
	b.SellSourceCharacterID = ""
	b.Haggle = nil
	b.Checkout = nil
	b.Merge = Independent()
	b.touch()
	b.addDomainEvent(&BasketsSettledEvent{UserID: b.UserID, ShopID: shopID, ReceiptID: receiptID, SettledAt: now})
	return true
}

func (b *BasketState) touch() {
	b.UpdatedAt = time.Now().UTC()
}

func (b *BasketState) addDomainEvent(event DomainEvent) {
	b.domainEvents = append(b.domainEvents, event)
}

// GetDomainEvents returns pending domain events
func (b *BasketState) GetDomainEvents() []DomainEvent {
	return b.domainEvents
}

// ClearDomainEvents drops pending domain events once they are recorded
func (b *BasketState) ClearDomainEvents() {
	b.domainEvents = nil
}

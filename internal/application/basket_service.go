package application

import (
	"context"
	"fmt"
	"time"

	"github.com/tabletop-shop/shop-engine/internal/domain"
	"github.com/tabletop-shop/shop-engine/pkg/logging"
	"github.com/tabletop-shop/shop-engine/pkg/metrics"
)

// BasketService handles per-user buy and sell baskets
type BasketService struct {
	baskets   domain.BasketStateRepository
	shops     domain.ShopRepository
	extractor domain.InventoryExtractor
	locks     *keyedLocker
	now       func() time.Time
	logger    *logging.Logger
	metrics   *metrics.Metrics
}

// NewBasketService creates a new BasketService
func NewBasketService(
	baskets domain.BasketStateRepository,
	shops domain.ShopRepository,
	extractor domain.InventoryExtractor,
	logger *logging.Logger,
	m *metrics.Metrics,
) *BasketService {
	return &BasketService{
		baskets:   baskets,
		shops:     shops,
		extractor: extractor,
		locks:     newKeyedLocker(),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.WithComponent("basket-service"),
		metrics:   m,
	}
}

// load returns the user's basket state, creating an empty one on first access
func (s *BasketService) load(ctx context.Context, userID string) (*domain.BasketState, error) {
	state, err := s.baskets.FindByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to load baskets", "userId", userID, "error", err)
		return nil, persistenceError(err)
	}
	if state == nil {
		state = domain.NewBasketState(userID)
	}
	return state, nil
}

func (s *BasketService) save(ctx context.Context, state *domain.BasketState) error {
	if err := s.baskets.Save(ctx, state); err != nil {
		s.logger.Error("Failed to save baskets", "userId", state.UserID, "error", err)
		return persistenceError(err)
	}
	return nil
}

func (s *BasketService) loadShop(ctx context.Context, shopID string) (*domain.Shop, error) {
	if shopID == "" {
		return nil, domain.ErrShopNotConfigured
	}
	shop, err := s.shops.FindByID(ctx, shopID)
	if err != nil {
		return nil, persistenceError(err)
	}
	if shop == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrShopNotConfigured, shopID)
	}
	return shop, nil
}

// update runs fn against the user's baskets under the user's lock and saves the
// result. fn runs again on a fresh copy if another process saved in between.
func (s *BasketService) update(ctx context.Context, userID, basket, operation string, fn func(state *domain.BasketState) error) (*domain.BasketState, error) {
	unlock := s.locks.Lock(basketKey(userID))
	defer unlock()

	var state *domain.BasketState
	err := retryOnConflict(ctx, func() error {
		var err error
		if state, err = s.load(ctx, userID); err != nil {
			return err
		}
		if err := fn(state); err != nil {
			return err
		}
		return s.save(ctx, state)
	})
	if err != nil {
		s.metrics.RecordBasketOperation(basket, operation, false)
		return nil, err
	}
	s.metrics.RecordBasketOperation(basket, operation, true)
	return state, nil
}

// GetBaskets returns the user's full basket state
func (s *BasketService) GetBaskets(ctx context.Context, userID string) (*BasketDTO, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ToBasketDTO(state), nil
}

// AddToBuy stages a purchase at the shop's current price
func (s *BasketService) AddToBuy(ctx context.Context, cmd AddToBuyCommand) (*BasketDTO, error) {
	state, err := s.update(ctx, cmd.UserID, "buy", "add", func(state *domain.BasketState) error {
		if state.Merge.IsMerged() {
			return domain.ErrBasketsLocked
		}
		shop, err := s.loadShop(ctx, cmd.ShopID)
		if err != nil {
			return err
		}
		item, ok := shop.FindItem(cmd.ItemID)
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrItemNotFound, cmd.ItemID)
		}
		_, err = state.AddToBuy(shop.ShopID, item, cmd.Quantity)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "add_to_buy", "basket", cmd.UserID, cmd.UserID, map[string]any{
		"shopId":   cmd.ShopID,
		"itemId":   cmd.ItemID,
		"quantity": cmd.Quantity,
	})
	return ToBasketDTO(state), nil
}

// RemoveFromBuy removes the buy line at a zero-based index
func (s *BasketService) RemoveFromBuy(ctx context.Context, userID string, index int) (*BasketDTO, error) {
	state, err := s.update(ctx, userID, "buy", "remove", func(state *domain.BasketState) error {
		_, err := state.RemoveFromBuy(index)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToBasketDTO(state), nil
}

// ClearBuy empties the buy basket and drops any pending haggle
func (s *BasketService) ClearBuy(ctx context.Context, userID string) (*CountDTO, error) {
	var cleared int
	_, err := s.update(ctx, userID, "buy", "clear", func(state *domain.BasketState) error {
		n, err := state.ClearBuy()
		cleared = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CountDTO{Count: cleared}, nil
}

// BeginSellSession selects the character to sell from and lists what it can sell
func (s *BasketService) BeginSellSession(ctx context.Context, cmd BeginSellSessionCommand) (*SellSessionDTO, error) {
	items, err := s.extractor.ExtractSellableItems(ctx, cmd.CharacterID)
	if err != nil {
		s.logger.Error("Failed to extract sellable items", "characterId", cmd.CharacterID, "error", err)
		return nil, err
	}

	state, err := s.update(ctx, cmd.UserID, "sell", "session", func(state *domain.BasketState) error {
		return state.BeginSellSession(cmd.CharacterID)
	})
	if err != nil {
		return nil, err
	}

	modifier := domain.DefaultSellModifier
	if state.ShopID != "" {
		if shop, err := s.loadShop(ctx, state.ShopID); err == nil {
			modifier = shop.EffectiveSellModifier()
		}
	}

	dto := &SellSessionDTO{UserID: cmd.UserID, CharacterID: cmd.CharacterID, Items: make([]SellableItemDTO, 0, len(items))}
	for _, item := range items {
		dto.Items = append(dto.Items, ToSellableItemDTO(item, modifier))
	}
	return dto, nil
}

// AddToSell stages a sale from the session's character, priced by the shop's sell modifier
func (s *BasketService) AddToSell(ctx context.Context, cmd AddToSellCommand) (*BasketDTO, error) {
	state, err := s.update(ctx, cmd.UserID, "sell", "add", func(state *domain.BasketState) error {
		if state.Merge.IsMerged() {
			return domain.ErrBasketsLocked
		}
		if state.SellSourceCharacterID == "" {
			return domain.ErrNoSellSource
		}

		modifier := domain.DefaultSellModifier
		shopID := cmd.ShopID
		if shopID == "" {
			shopID = state.ShopID
		}
		if shopID != "" {
			shop, err := s.loadShop(ctx, shopID)
			if err != nil {
				return err
			}
			modifier = shop.EffectiveSellModifier()
		}

		items, err := s.extractor.ExtractSellableItems(ctx, state.SellSourceCharacterID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.ID == cmd.ItemID {
				_, err := state.AddToSell(item, cmd.Quantity, modifier)
				return err
			}
		}
		return fmt.Errorf("%w: %s on %s", domain.ErrItemNotFound, cmd.ItemID, state.SellSourceCharacterID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Audit(ctx, "add_to_sell", "basket", cmd.UserID, cmd.UserID, map[string]any{
		"characterId": state.SellSourceCharacterID,
		"itemId":      cmd.ItemID,
		"quantity":    cmd.Quantity,
	})
	return ToBasketDTO(state), nil
}

// RemoveFromSell removes the sell line at a zero-based index
func (s *BasketService) RemoveFromSell(ctx context.Context, userID string, index int) (*BasketDTO, error) {
	state, err := s.update(ctx, userID, "sell", "remove", func(state *domain.BasketState) error {
		_, err := state.RemoveFromSell(index)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ToBasketDTO(state), nil
}

// ClearSell empties the sell basket, drops any haggle and ends the sell session
func (s *BasketService) ClearSell(ctx context.Context, userID string) (*CountDTO, error) {
	var cleared int
	_, err := s.update(ctx, userID, "sell", "clear", func(state *domain.BasketState) error {
		n, err := state.ClearSell()
		cleared = n
		return err
	})
	if err != nil {
		return nil, err
	}
	return &CountDTO{Count: cleared}, nil
}

// ViewBuy renders the buy basket
func (s *BasketService) ViewBuy(ctx context.Context, userID string) (*BasketViewDTO, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BasketViewDTO{
		UserID:   userID,
		Lines:    toBuyLineDTOs(state.Buy),
		Total:    domain.FormatCopper(domain.BuySubtotal(state.Buy)),
		Merged:   state.Merge.IsMerged(),
		Rendered: domain.RenderBuyBasket(state),
	}, nil
}

// ViewSell renders the sell basket
func (s *BasketService) ViewSell(ctx context.Context, userID string) (*BasketViewDTO, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &BasketViewDTO{
		UserID:   userID,
		Lines:    toSellLineDTOs(state.Sell),
		Total:    domain.FormatCopper(domain.SellSubtotal(state.Sell)),
		Merged:   state.Merge.IsMerged(),
		Rendered: domain.RenderSellBasket(state),
	}, nil
}

// ViewMerged renders both baskets as one net transaction
func (s *BasketService) ViewMerged(ctx context.Context, userID string) (*BasketViewDTO, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	quote := ToQuoteDTO(state.Quote())
	lines := append(toBuyLineDTOs(state.Buy), toSellLineDTOs(state.Sell)...)
	return &BasketViewDTO{
		UserID:   userID,
		Lines:    lines,
		Total:    quote.Net,
		Merged:   state.Merge.IsMerged(),
		Quote:    &quote,
		Rendered: domain.RenderMergedBaskets(state),
	}, nil
}

// CanMerge reports whether both baskets hold items and are not merged yet
func (s *BasketService) CanMerge(ctx context.Context, userID string) (*CanMergeDTO, error) {
	state, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &CanMergeDTO{UserID: userID, CanMerge: state.CanMerge()}, nil
}

// Merge locks both baskets into one net transaction
func (s *BasketService) Merge(ctx context.Context, userID string) (*BasketDTO, error) {
	state, err := s.update(ctx, userID, "both", "merge", func(state *domain.BasketState) error {
		return state.MergeBaskets(s.now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "merge", "basket", userID, userID, map[string]any{"netCopper": state.Quote().NetCopper})
	return ToBasketDTO(state), nil
}

// Unmerge restores independent basket mutability
func (s *BasketService) Unmerge(ctx context.Context, userID string) (*BasketDTO, error) {
	state, err := s.update(ctx, userID, "both", "unmerge", func(state *domain.BasketState) error {
		return state.UnmergeBaskets()
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "unmerge", "basket", userID, userID, nil)
	return ToBasketDTO(state), nil
}

// RecordHaggle stores the haggle outcome applied at the next settlement
func (s *BasketService) RecordHaggle(ctx context.Context, cmd RecordHaggleCommand) (*BasketDTO, error) {
	state, err := s.update(ctx, cmd.UserID, "both", "haggle", func(state *domain.BasketState) error {
		return state.RecordHaggle(cmd.Percent, cmd.Note, s.now())
	})
	if err != nil {
		return nil, err
	}
	s.logger.Audit(ctx, "haggle", "basket", cmd.UserID, cmd.UserID, map[string]any{"percent": cmd.Percent})
	return ToBasketDTO(state), nil
}

// CheckoutPlan is a frozen snapshot of what a checkout will settle
type CheckoutPlan struct {
	UserID       string                `json:"userId"`
	Reference    string                `json:"reference,omitempty"`
	ShopID       string                `json:"shopId"`
	ShopName     string                `json:"shopName"`
	CharacterID  string                `json:"characterId"`
	Buy          []domain.LineItem     `json:"buy"`
	Sell         []domain.SellLineItem `json:"sell"`
	Haggle       *domain.HaggleResult  `json:"haggle,omitempty"`
	Quote        domain.Quote          `json:"quote"`
	PreparedAt   time.Time             `json:"preparedAt"`
	CustomerName string                `json:"customerName"`
	OwnerID      string                `json:"ownerId"`
}

// PrepareCheckout snapshots the user's baskets for settlement. When cmd names
// a Reference the baskets are also held for that checkout: nothing can be
// staged, merged or haggled until Settle or ReleaseCheckout with the same
// reference. Without one it only validates.
func (s *BasketService) PrepareCheckout(ctx context.Context, cmd CheckoutCommand) (*CheckoutPlan, error) {
	if cmd.Reference == "" {
		state, err := s.load(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}
		return s.planCheckout(ctx, state, cmd)
	}

	var plan *CheckoutPlan
	_, err := s.update(ctx, cmd.UserID, "both", "checkout", func(state *domain.BasketState) error {
		p, err := s.planCheckout(ctx, state, cmd)
		if err != nil {
			return err
		}
		if err := state.HoldForCheckout(cmd.Reference, s.now()); err != nil {
			return err
		}
		plan = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *BasketService) planCheckout(ctx context.Context, state *domain.BasketState, cmd CheckoutCommand) (*CheckoutPlan, error) {
	if state.IsEmpty() {
		return nil, domain.ErrEmptyBaskets
	}

	plan := &CheckoutPlan{
		UserID:       cmd.UserID,
		Reference:    cmd.Reference,
		ShopID:       state.ShopID,
		CharacterID:  state.SellSourceCharacterID,
		Buy:          append([]domain.LineItem{}, state.Buy...),
		Sell:         append([]domain.SellLineItem{}, state.Sell...),
		Quote:        state.Quote(),
		PreparedAt:   s.now(),
		CustomerName: cmd.CustomerName,
		OwnerID:      cmd.OwnerID,
	}
	if state.Haggle != nil {
		haggle := *state.Haggle
		plan.Haggle = &haggle
	}
	if plan.OwnerID == "" {
		plan.OwnerID = cmd.UserID
	}
	if plan.CustomerName == "" {
		plan.CustomerName = cmd.UserID
	}

	if plan.CharacterID == "" {
		plan.CharacterID = cmd.CharacterID
	}
	if plan.CharacterID == "" {
		return nil, domain.ErrNoCharacter
	}

	switch {
	case plan.ShopID == "":
		plan.ShopID = cmd.ShopID
	case cmd.ShopID != "" && cmd.ShopID != plan.ShopID:
		return nil, domain.ErrShopMismatch
	}

	shop, err := s.loadShop(ctx, plan.ShopID)
	if err != nil {
		return nil, err
	}
	plan.ShopName = shop.Name
	return plan, nil
}

// ReleaseCheckout lifts the hold of a checkout that settled nothing. The staged
// lines stay. Releasing a hold the reference does not own is a no-op.
func (s *BasketService) ReleaseCheckout(ctx context.Context, userID, reference string) error {
	released := false
	_, err := s.update(ctx, userID, "both", "release", func(state *domain.BasketState) error {
		released = state.ReleaseCheckout(reference)
		return nil
	})
	if err != nil {
		return err
	}
	if released {
		s.logger.Info("Released checkout hold", "userId", userID, "reference", reference)
	}
	return nil
}

// Settle resets the baskets held by the checkout named by reference. A repeat
// after the reset, or a reference that does not hold the baskets, changes nothing.
func (s *BasketService) Settle(ctx context.Context, userID, reference, receiptID string, netCopper int) error {
	settled := false
	_, err := s.update(ctx, userID, "both", "settle", func(state *domain.BasketState) error {
		settled = state.Settle(reference, receiptID, s.now())
		return nil
	})
	if err != nil {
		return err
	}
	if !settled {
		s.logger.Warn("Baskets not held by this checkout; nothing settled", "userId", userID, "reference", reference)
		return nil
	}
	direction := domain.DirectionOf(netCopper)
	s.metrics.RecordSettlement(string(direction), netCopper)
	s.logger.Audit(ctx, "settle", "basket", userID, userID, map[string]any{"receiptId": receiptID, "reference": reference, "netCopper": netCopper})
	return nil
}

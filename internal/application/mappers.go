package application

import "github.com/tabletop-shop/shop-engine/internal/domain"

// ToShopDTO converts a domain Shop to ShopDTO
func ToShopDTO(shop *domain.Shop) *ShopDTO {
	if shop == nil {
		return nil
	}

	categories := make([]StockCategoryDTO, 0, len(shop.Categories))
	for _, cat := range shop.Categories {
		if len(cat.Items) == 0 {
			continue
		}
		items := make([]StockItemDTO, 0, len(cat.Items))
		for _, item := range cat.Items {
			items = append(items, ToStockItemDTO(item))
		}
		categories = append(categories, StockCategoryDTO{Name: cat.Name, Items: items})
	}

	return &ShopDTO{
		ShopID:       shop.ShopID,
		Name:         shop.Name,
		OwnerID:      shop.OwnerID,
		SellModifier: shop.EffectiveSellModifier(),
		Categories:   categories,
		ItemCount:    shop.ItemCount(),
		CreatedAt:    shop.CreatedAt,
		UpdatedAt:    shop.UpdatedAt,
	}
}

// ToStockItemDTO converts a stocked entry
func ToStockItemDTO(item domain.StockItem) StockItemDTO {
	return StockItemDTO{
		ItemID:   item.ItemID,
		Name:     item.Name,
		Category: item.Category,
		Rarity:   string(item.Rarity),
		Price:    item.Price,
		PriceStr: item.Price.String(),
		Quantity: item.Quantity,
		MaxStock: item.MaxStock,
		InStock:  item.InStock(),
	}
}

// ToGeneratedItemDTO converts one generation result
func ToGeneratedItemDTO(g domain.GeneratedItem) GeneratedItemDTO {
	return GeneratedItemDTO{
		ItemID:   g.Item.ID,
		Name:     g.Item.Name,
		Category: g.Item.Category,
		Rarity:   string(g.Item.Rarity),
		Price:    g.Item.Price.String(),
		Quantity: g.Quantity,
		MaxStock: g.MaxStock,
	}
}

func toBuyLineDTOs(lines []domain.LineItem) []LineItemDTO {
	out := make([]LineItemDTO, 0, len(lines))
	for i, l := range lines {
		out = append(out, LineItemDTO{
			Index:    i,
			ItemID:   l.ItemID,
			Name:     l.Name,
			Quantity: l.Quantity,
			Price:    l.Price,
			Total:    domain.FormatCopper(l.TotalCopper()),
		})
	}
	return out
}

func toSellLineDTOs(lines []domain.SellLineItem) []LineItemDTO {
	out := make([]LineItemDTO, 0, len(lines))
	for i, l := range lines {
		out = append(out, LineItemDTO{
			Index:       i,
			ItemID:      l.ItemID,
			Name:        l.Name,
			Quantity:    l.Quantity,
			Price:       l.Price,
			Total:       domain.FormatCopper(l.TotalCopper()),
			CharacterID: l.CharacterID,
			BaseValue:   l.BaseValue.String(),
		})
	}
	return out
}

// ToQuoteDTO renders a quote's copper values as denominations
func ToQuoteDTO(q domain.Quote) QuoteDTO {
	return QuoteDTO{
		BuySubtotal:    domain.FormatCopper(q.BuySubtotal),
		BuyAdjustment:  domain.FormatSigned(q.BuyAdjustment),
		BuyTotal:       domain.FormatCopper(q.BuyTotal),
		SellSubtotal:   domain.FormatCopper(q.SellSubtotal),
		SellAdjustment: domain.FormatSigned(q.SellAdjustment),
		SellTotal:      domain.FormatCopper(q.SellTotal),
		HagglePercent:  q.HagglePercent,
		NetCopper:      q.NetCopper,
		Net:            domain.FormatCopper(domain.Abs(q.NetCopper)),
		Direction:      string(q.Direction),
	}
}

// ToBasketDTO converts a user's basket state
func ToBasketDTO(b *domain.BasketState) *BasketDTO {
	if b == nil {
		return nil
	}

	dto := &BasketDTO{
		UserID:                b.UserID,
		ShopID:                b.ShopID,
		Buy:                   toBuyLineDTOs(b.Buy),
		Sell:                  toSellLineDTOs(b.Sell),
		SellSourceCharacterID: b.SellSourceCharacterID,
		Merged:                b.Merge.IsMerged(),
		MergedSince:           b.Merge.Since,
		CheckingOut:           b.Checkout != nil,
		Quote:                 ToQuoteDTO(b.Quote()),
		UpdatedAt:             b.UpdatedAt,
	}
	if b.Haggle != nil {
		dto.Haggle = &HaggleDTO{Percent: b.Haggle.Percent, Note: b.Haggle.Note, RecordedAt: b.Haggle.RecordedAt}
	}
	return dto
}

// ToSellableItemDTO converts a sellable item and prices the shop's offer
func ToSellableItemDTO(item domain.SellableItem, sellModifier float64) SellableItemDTO {
	return SellableItemDTO{
		ID:         item.ID,
		Name:       item.Name,
		Quantity:   item.Quantity,
		BaseValue:  item.Price,
		OfferPrice: domain.SellPrice(item.Price, sellModifier),
		Category:   item.Category,
		Rarity:     string(item.Rarity),
	}
}

// ToReceiptDTO converts a receipt
func ToReceiptDTO(r *domain.Receipt) *ReceiptDTO {
	if r == nil {
		return nil
	}
	return &ReceiptDTO{
		ReceiptID:    r.ReceiptID,
		Name:         r.Name,
		OwnerID:      r.OwnerID,
		ShopName:     r.Header.ShopName,
		CustomerName: r.Header.CustomerName,
		Quote:        ToQuoteDTO(r.Quote),
		Before:       r.Before.String(),
		After:        r.After.String(),
		Body:         r.Body,
		CreatedAt:    r.CreatedAt,
	}
}

// ToLedgerEntryDTO converts a ledger entry
func ToLedgerEntryDTO(e domain.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		EntryID:     e.EntryID,
		Timestamp:   e.Timestamp,
		Actor:       e.Actor,
		ShopName:    e.ShopName,
		Type:        string(e.Type),
		Amount:      e.Amount.String(),
		Direction:   string(e.Direction),
		Items:       e.Items,
		ReceiptName: e.ReceiptName,
		Line:        e.Format(),
	}
}

// ToLedgerDTO converts the ledger document
func ToLedgerDTO(l *domain.Ledger) *LedgerDTO {
	if l == nil {
		return nil
	}
	entries := make([]LedgerEntryDTO, 0, len(l.Entries))
	for _, e := range l.Entries {
		entries = append(entries, ToLedgerEntryDTO(e))
	}
	return &LedgerDTO{
		LedgerID:  l.LedgerID,
		Name:      l.Name,
		Entries:   entries,
		Body:      l.Body,
		UpdatedAt: l.UpdatedAt,
	}
}

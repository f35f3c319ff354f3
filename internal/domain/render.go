package domain

import (
	"fmt"
	"strings"
)

// FormatInventory renders the shop's stock per category and consumes the
// highlight set. Recently modified items are prefixed with "*".
func FormatInventory(shop *Shop) string {
	highlights := shop.ConsumeHighlights()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s ===\n", shop.Name)

	if shop.ItemCount() == 0 {
		sb.WriteString("No items in stock.\n")
		return sb.String()
	}

	first := true
	for _, cat := range shop.Categories {
		if len(cat.Items) == 0 {
			continue
		}
		if !first {
			sb.WriteString("\n")
		}
		first = false

		fmt.Fprintf(&sb, "[%s]\n", cat.Name)
		for _, item := range cat.Items {
			marker := " "
			if highlights[item.ItemID] {
				marker = "*"
			}
			stock := "out of stock"
			if item.InStock() {
				stock = fmt.Sprintf("%d/%d", item.Quantity, item.MaxStock)
			}
			fmt.Fprintf(&sb, "%s [%s] %s %s - %s\n", marker, item.Rarity, stock, item.Name, item.Price)
		}
	}
	return sb.String()
}

func lockNote(b *BasketState) string {
	if b.Checkout != nil {
		return " (checking out)"
	}
	if b.Merge.IsMerged() {
		return " (merged)"
	}
	return ""
}

// RenderBuyBasket renders the buy basket with its running total
func RenderBuyBasket(b *BasketState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "BUY BASKET%s\n", lockNote(b))
	if len(b.Buy) == 0 {
		sb.WriteString("Your buy basket is empty.\n")
		return sb.String()
	}
	for i, l := range b.Buy {
		fmt.Fprintf(&sb, "  [%d] %s x%d @ %s = %s\n", i, l.Name, l.Quantity, l.Price, FormatCopper(l.TotalCopper()))
	}
	fmt.Fprintf(&sb, "Total: %s\n", FormatCopper(BuySubtotal(b.Buy)))
	return sb.String()
}

// RenderSellBasket renders the sell basket with its running total
func RenderSellBasket(b *BasketState) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELL BASKET%s\n", lockNote(b))
	if b.SellSourceCharacterID != "" {
		fmt.Fprintf(&sb, "Selling from: %s\n", b.SellSourceCharacterID)
	}
	if len(b.Sell) == 0 {
		sb.WriteString("Your sell basket is empty.\n")
		return sb.String()
	}
	for i, l := range b.Sell {
		fmt.Fprintf(&sb, "  [%d] %s x%d @ %s = %s (base %s)\n", i, l.Name, l.Quantity, l.Price, FormatCopper(l.TotalCopper()), l.BaseValue)
	}
	fmt.Fprintf(&sb, "Total: %s\n", FormatCopper(SellSubtotal(b.Sell)))
	return sb.String()
}

// RenderMergedBaskets renders both baskets as one net transaction
func RenderMergedBaskets(b *BasketState) string {
	q := b.Quote()

	var sb strings.Builder
	fmt.Fprintf(&sb, "MERGED TRANSACTION%s\n", lockNote(b))

	sb.WriteString("Buying:\n")
	for _, l := range b.Buy {
		fmt.Fprintf(&sb, "  %s x%d @ %s = %s\n", l.Name, l.Quantity, l.Price, FormatCopper(l.TotalCopper()))
	}
	fmt.Fprintf(&sb, "  Subtotal: %s\n", FormatCopper(q.BuySubtotal))

	sb.WriteString("Selling:\n")
	for _, l := range b.Sell {
		fmt.Fprintf(&sb, "  %s x%d @ %s = %s\n", l.Name, l.Quantity, l.Price, FormatCopper(l.TotalCopper()))
	}
	fmt.Fprintf(&sb, "  Subtotal: %s\n", FormatCopper(q.SellSubtotal))

	if b.Haggle != nil {
		fmt.Fprintf(&sb, "Haggle (%d%%): buying %s, selling %s\n",
			b.Haggle.Percent, FormatSigned(q.BuyAdjustment), FormatSigned(q.SellAdjustment))
	}

	verb := "you receive"
	if q.Direction == DirectionPay {
		verb = "you pay"
	}
	fmt.Fprintf(&sb, "Net: %s (%s)\n", FormatCopper(Abs(q.NetCopper)), verb)
	return sb.String()
}

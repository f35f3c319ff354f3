package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	receiptRule  = "========================================"
	receiptBreak = "----------------------------------------"
	receiptDate  = "2006-01-02"
)

// ReceiptHeader identifies the parties and time of a transaction
type ReceiptHeader struct {
	ShopName     string    `bson:"shopName" json:"shopName"`
	CustomerName string    `bson:"customerName" json:"customerName"`
	CharacterID  string    `bson:"characterId,omitempty" json:"characterId,omitempty"`
	Timestamp    time.Time `bson:"timestamp" json:"timestamp"`
}

// Receipt is an immutable rendered record of a settled transaction
type Receipt struct {
	ReceiptID string         `bson:"receiptId" json:"receiptId"`
	Name      string         `bson:"name" json:"name"`
	OwnerID   string         `bson:"ownerId" json:"ownerId"`
	Header    ReceiptHeader  `bson:"header" json:"header"`
	BuyLines  []LineItem     `bson:"buyLines,omitempty" json:"buyLines,omitempty"`
	SellLines []SellLineItem `bson:"sellLines,omitempty" json:"sellLines,omitempty"`
	Haggle    *HaggleResult  `bson:"haggle,omitempty" json:"haggle,omitempty"`
	Quote     Quote          `bson:"quote" json:"quote"`
	Before    Amount         `bson:"before" json:"before"`
	After     Amount         `bson:"after" json:"after"`
	Body      string         `bson:"body" json:"body"`
	CreatedAt time.Time      `bson:"createdAt" json:"createdAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// BuildReceipt prices the lines and renders the receipt body. Either line
// list may be empty, in which case its section is omitted.
func BuildReceipt(header ReceiptHeader, buy []LineItem, sell []SellLineItem, haggle *HaggleResult, before, after Amount) *Receipt {
	if header.Timestamp.IsZero() {
		header.Timestamp = time.Now().UTC()
	}

	r := &Receipt{
		ReceiptID: uuid.New().String(),
		Header:    header,
		BuyLines:  buy,
		SellLines: sell,
		Haggle:    haggle,
		Quote:     NewQuote(buy, sell, haggle),
		Before:    before,
		After:     after,
		CreatedAt: header.Timestamp,
	}
	r.Body = r.render()
	return r
}

// FormatSigned renders copper with an explicit sign, e.g. "-1gp 5sp"
func FormatSigned(copper int) string {
	if copper < 0 {
		return "-" + FormatCopper(-copper)
	}
	return "+" + FormatCopper(copper)
}

func writeLine(sb *strings.Builder, l LineItem) {
	fmt.Fprintf(sb, "  %s x%d @ %s = %s\n", l.Name, l.Quantity, l.Price, FormatCopper(l.TotalCopper()))
}

func writeTotals(sb *strings.Builder, subtotal, adjustment, total int, haggle *HaggleResult) {
	fmt.Fprintf(sb, "  Subtotal: %s\n", FormatCopper(subtotal))
	if haggle != nil {
		fmt.Fprintf(sb, "  Haggle (%d%%): %s\n", haggle.Percent, FormatSigned(adjustment))
	}
	fmt.Fprintf(sb, "  Total: %s\n", FormatCopper(total))
}

func (r *Receipt) render() string {
	var sb strings.Builder

	sb.WriteString(receiptRule + "\n")
	sb.WriteString("RECEIPT\n")
	fmt.Fprintf(&sb, "Shop: %s\n", r.Header.ShopName)
	fmt.Fprintf(&sb, "Customer: %s\n", r.Header.CustomerName)
	fmt.Fprintf(&sb, "Date: %s\n", r.Header.Timestamp.UTC().Format("2006-01-02 15:04 MST"))
	sb.WriteString(receiptRule + "\n")

	if len(r.BuyLines) > 0 {
		sb.WriteString("PURCHASES\n")
		for _, l := range r.BuyLines {
			writeLine(&sb, l)
		}
		writeTotals(&sb, r.Quote.BuySubtotal, r.Quote.BuyAdjustment, r.Quote.BuyTotal, r.Haggle)
		sb.WriteString(receiptBreak + "\n")
	}

	if len(r.SellLines) > 0 {
		sb.WriteString("SALES\n")
		for _, l := range r.SellLines {
			writeLine(&sb, l.LineItem)
		}
		writeTotals(&sb, r.Quote.SellSubtotal, r.Quote.SellAdjustment, r.Quote.SellTotal, r.Haggle)
		sb.WriteString(receiptBreak + "\n")
	}

	sb.WriteString("SUMMARY\n")
	fmt.Fprintf(&sb, "  Net: %s (%s)\n", FormatCopper(Abs(r.Quote.NetCopper)), r.Quote.Direction)
	fmt.Fprintf(&sb, "  Currency before: %s\n", r.Before)
	fmt.Fprintf(&sb, "  Currency after: %s\n", r.After)
	sb.WriteString(receiptRule + "\n")
	sb.WriteString("Thank you for your business!\n")

	return sb.String()
}

// ReceiptBaseName returns "Receipt: <customer> - <shop> - <YYYY-MM-DD>"
func ReceiptBaseName(customerName, shopName string, date time.Time) string {
	return fmt.Sprintf("Receipt: %s - %s - %s", customerName, shopName, date.UTC().Format(receiptDate))
}

// NextReceiptName picks a free name for base given the names already in use.
// The bare base counts as number one, so the first duplicate is "base (2)".
func NextReceiptName(base string, existing []string) string {
	suffix := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + ` \((\d+)\)$`)

	highest := 0
	for _, name := range existing {
		if name == base {
			if highest < 1 {
				highest = 1
			}
			continue
		}
		if m := suffix.FindStringSubmatch(name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > highest {
				highest = n
			}
		}
	}

	if highest == 0 {
		return base
	}
	return fmt.Sprintf("%s (%d)", base, highest+1)
}

// Issue names the receipt for its owner and records the issued event
func (r *Receipt) Issue(ownerID, name string) {
	r.OwnerID = ownerID
	r.Name = name
	r.domainEvents = append(r.domainEvents, &ReceiptIssuedEvent{
		ReceiptID:    r.ReceiptID,
		Name:         name,
		OwnerID:      ownerID,
		CustomerName: r.Header.CustomerName,
		ShopName:     r.Header.ShopName,
		NetCopper:    r.Quote.NetCopper,
		Direction:    string(r.Quote.Direction),
		IssuedAt:     r.CreatedAt,
	})
}

// GetDomainEvents returns pending domain events
func (r *Receipt) GetDomainEvents() []DomainEvent {
	return r.domainEvents
}

// ClearDomainEvents drops pending domain events once they are recorded
func (r *Receipt) ClearDomainEvents() {
	r.domainEvents = nil
}

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LedgerID identifies the singleton ledger document
const LedgerID = "transaction-ledger"

// LedgerName is the display name of the ledger document
const LedgerName = "Transaction Ledger"

// LedgerEntryType classifies a ledger line
type LedgerEntryType string

const (
	LedgerPurchase   LedgerEntryType = "purchase"
	LedgerSale       LedgerEntryType = "sale"
	LedgerTrade      LedgerEntryType = "trade"
	LedgerAdjustment LedgerEntryType = "adjustment"
)

// EntryTypeFor classifies a settlement by which baskets held items
func EntryTypeFor(hasBuy, hasSell bool) LedgerEntryType {
	switch {
	case hasBuy && hasSell:
		return LedgerTrade
	case hasSell:
		return LedgerSale
	default:
		return LedgerPurchase
	}
}

// LedgerEntry is one audit line
type LedgerEntry struct {
	EntryID     string          `bson:"entryId" json:"entryId"`
	Timestamp   time.Time       `bson:"timestamp" json:"timestamp"`
	Actor       string          `bson:"actor" json:"actor"`
	ShopName    string          `bson:"shopName" json:"shopName"`
	Type        LedgerEntryType `bson:"type" json:"type"`
	Amount      Amount          `bson:"amount" json:"amount"`
	Direction   Direction       `bson:"direction,omitempty" json:"direction,omitempty"`
	Items       []string        `bson:"items,omitempty" json:"items,omitempty"`
	ReceiptName string          `bson:"receiptName,omitempty" json:"receiptName,omitempty"`
}

// Format renders the entry as a single ledger line
func (e LedgerEntry) Format() string {
	line := fmt.Sprintf("[%s] %s @ %s | %s | %s",
		e.Timestamp.UTC().Format("2006-01-02 15:04"),
		e.Actor,
		e.ShopName,
		e.Type,
		e.Amount,
	)
	if e.Direction != "" {
		line += " " + string(e.Direction)
	}
	if len(e.Items) > 0 {
		line += " | " + strings.Join(e.Items, ", ")
	}
	return line
}

// Ledger is the append-only audit document
type Ledger struct {
	LedgerID  string        `bson:"ledgerId" json:"ledgerId"`
	Name      string        `bson:"name" json:"name"`
	Entries   []LedgerEntry `bson:"entries" json:"entries"`
	Body      string        `bson:"body" json:"body"`
	Version   int64         `bson:"version" json:"-"`
	CreatedAt time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updatedAt" json:"updatedAt"`

	domainEvents []DomainEvent `bson:"-" json:"-"`
}

// NewLedger creates the empty singleton ledger
func NewLedger() *Ledger {
	now := time.Now().UTC()
	return &Ledger{
		LedgerID:  LedgerID,
		Name:      LedgerName,
		Entries:   []LedgerEntry{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append adds entry to the ledger and its body, filling in id and timestamp when unset
func (l *Ledger) Append(entry LedgerEntry) LedgerEntry {
	if entry.EntryID == "" {
		entry.EntryID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	l.Entries = append(l.Entries, entry)
	if l.Body != "" && !strings.HasSuffix(l.Body, "\n") {
		l.Body += "\n"
	}
	l.Body += entry.Format() + "\n"
	l.UpdatedAt = time.Now().UTC()

	l.domainEvents = append(l.domainEvents, &LedgerEntryAppendedEvent{
		EntryID:    entry.EntryID,
		Actor:      entry.Actor,
		ShopName:   entry.ShopName,
		Type:       string(entry.Type),
		Amount:     entry.Amount.String(),
		AppendedAt: entry.Timestamp,
	})
	return entry
}

// GetDomainEvents returns pending domain events
func (l *Ledger) GetDomainEvents() []DomainEvent {
	return l.domainEvents
}

// ClearDomainEvents drops pending domain events once they are recorded
func (l *Ledger) ClearDomainEvents() {
	l.domainEvents = nil
}

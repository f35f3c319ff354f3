package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Denomination is one coin tier
type Denomination string

const (
	Copper   Denomination = "cp"
	Silver   Denomination = "sp"
	Electrum Denomination = "ep"
	Gold     Denomination = "gp"
	Platinum Denomination = "pp"
)

// Ratio returns the value of one coin in copper
func (d Denomination) Ratio() int {
	switch d {
	case Copper:
		return 1
	case Silver:
		return 10
	case Electrum:
		return 50
	case Gold:
		return 100
	case Platinum:
		return 1000
	}
	return 0
}

// displayOrder lists every denomination from most to least valuable
var displayOrder = []Denomination{Platinum, Gold, Electrum, Silver, Copper}

// canonicalOrder is the greedy decomposition order. Electrum is accepted on
// input but never produced, so persisted amounts that carry ep do not survive
// a FromBaseUnits round trip unchanged.
var canonicalOrder = []Denomination{Platinum, Gold, Silver, Copper}

// Amount is a multi-denomination coin count. The zero value is nothing.
type Amount struct {
	CP int `bson:"cp,omitempty" json:"cp,omitempty"`
	SP int `bson:"sp,omitempty" json:"sp,omitempty"`
	EP int `bson:"ep,omitempty" json:"ep,omitempty"`
	GP int `bson:"gp,omitempty" json:"gp,omitempty"`
	PP int `bson:"pp,omitempty" json:"pp,omitempty"`
}

// NewAmount builds an Amount, rejecting negative counts
func NewAmount(cp, sp, ep, gp, pp int) (Amount, error) {
	a := Amount{CP: cp, SP: sp, EP: ep, GP: gp, PP: pp}
	if err := a.Validate(); err != nil {
		return Amount{}, err
	}
	return a, nil
}

// Validate reports ErrInvalidAmount when any count is negative
func (a Amount) Validate() error {
	for _, d := range displayOrder {
		if a.Count(d) < 0 {
			return fmt.Errorf("%w: negative %s", ErrInvalidAmount, d)
		}
	}
	return nil
}

// Count returns the number of coins of denomination d
func (a Amount) Count(d Denomination) int {
	switch d {
	case Copper:
		return a.CP
	case Silver:
		return a.SP
	case Electrum:
		return a.EP
	case Gold:
		return a.GP
	case Platinum:
		return a.PP
	}
	return 0
}

func (a *Amount) set(d Denomination, n int) {
	switch d {
	case Copper:
		a.CP = n
	case Silver:
		a.SP = n
	case Electrum:
		a.EP = n
	case Gold:
		a.GP = n
	case Platinum:
		a.PP = n
	}
}

// ToBaseUnits returns the value in copper. Negative counts are not checked.
func (a Amount) ToBaseUnits() int {
	total := 0
	for _, d := range displayOrder {
		total += a.Count(d) * d.Ratio()
	}
	return total
}

// FromBaseUnits decomposes copper greedily into pp, gp, sp and cp.
// Totals at or below zero yield the zero Amount.
func FromBaseUnits(total int) Amount {
	var a Amount
	if total <= 0 {
		return a
	}
	for _, d := range canonicalOrder {
		a.set(d, total/d.Ratio())
		total %= d.Ratio()
	}
	return a
}

// IsZero reports whether the amount is worth nothing
func (a Amount) IsZero() bool {
	return a == Amount{}
}

// Times returns the canonical form of a multiplied by n
func (a Amount) Times(n int) Amount {
	return FromBaseUnits(a.ToBaseUnits() * n)
}

// String renders non-zero denominations high to low, e.g. "2pp 3gp 5sp".
// An all-zero amount renders as "0 gp".
func (a Amount) String() string {
	parts := make([]string, 0, len(displayOrder))
	for _, d := range displayOrder {
		if n := a.Count(d); n != 0 {
			parts = append(parts, strconv.Itoa(n)+string(d))
		}
	}
	if len(parts) == 0 {
		return "0 gp"
	}
	return strings.Join(parts, " ")
}

// FormatCopper renders a copper total in canonical denominations
func FormatCopper(total int) string {
	return FromBaseUnits(total).String()
}

var amountToken = regexp.MustCompile(`(?i)^(\d+)\s*(cp|sp|ep|gp|pp)$`)

// ParseAmount parses the display form, e.g. "2pp 3gp 5sp" or "0 gp".
// Repeated denominations are summed.
func ParseAmount(s string) (Amount, error) {
	fields := strings.Fields(strings.ReplaceAll(s, ",", " "))
	if len(fields) == 0 {
		return Amount{}, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	var a Amount
	for i := 0; i < len(fields); i++ {
		token := fields[i]
		if _, err := strconv.Atoi(token); err == nil && i+1 < len(fields) {
			token += fields[i+1]
			i++
		}

		m := amountToken.FindStringSubmatch(token)
		if m == nil {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, token)
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return Amount{}, fmt.Errorf("%w: %q", ErrInvalidAmount, token)
		}
		d := Denomination(strings.ToLower(m[2]))
		a.set(d, a.Count(d)+n)
	}
	return a, nil
}

package domain

// Direction states who pays whom from the customer's point of view
type Direction string

const (
	DirectionReceive Direction = "receive"
	DirectionPay     Direction = "pay"
)

// Quote is the priced outcome of a user's baskets. All values are copper.
type Quote struct {
	BuySubtotal    int       `json:"buySubtotal"`
	BuyAdjustment  int       `json:"buyAdjustment"`
	BuyTotal       int       `json:"buyTotal"`
	SellSubtotal   int       `json:"sellSubtotal"`
	SellAdjustment int       `json:"sellAdjustment"`
	SellTotal      int       `json:"sellTotal"`
	HagglePercent  int       `json:"hagglePercent"`
	NetCopper      int       `json:"netCopper"`
	Direction      Direction `json:"direction"`
}

// HaggleAdjustment returns percent of subtotal, truncated toward zero
func HaggleAdjustment(subtotal, percent int) int {
	return subtotal * percent / 100
}

// BuySubtotal sums the staged purchases in copper
func BuySubtotal(lines []LineItem) int {
	total := 0
	for _, l := range lines {
		total += l.TotalCopper()
	}
	return total
}

// SellSubtotal sums the staged sales in copper
func SellSubtotal(lines []SellLineItem) int {
	total := 0
	for _, l := range lines {
		total += l.TotalCopper()
	}
	return total
}

// NewQuote prices buy and sell lines with an optional haggle. A positive
// haggle lowers what the customer pays and raises what they receive.
func NewQuote(buy []LineItem, sell []SellLineItem, haggle *HaggleResult) Quote {
	q := Quote{
		BuySubtotal:  BuySubtotal(buy),
		SellSubtotal: SellSubtotal(sell),
	}
	if haggle != nil {
		q.HagglePercent = haggle.Percent
		q.BuyAdjustment = -HaggleAdjustment(q.BuySubtotal, haggle.Percent)
		q.SellAdjustment = HaggleAdjustment(q.SellSubtotal, haggle.Percent)
	}
	q.BuyTotal = q.BuySubtotal + q.BuyAdjustment
	q.SellTotal = q.SellSubtotal + q.SellAdjustment
	q.NetCopper = q.SellTotal - q.BuyTotal
	q.Direction = DirectionOf(q.NetCopper)
	return q
}

// DirectionOf returns receive for a non-negative net and pay otherwise
func DirectionOf(netCopper int) Direction {
	if netCopper < 0 {
		return DirectionPay
	}
	return DirectionReceive
}

// Quote prices the user's current baskets
func (b *BasketState) Quote() Quote {
	return NewQuote(b.Buy, b.Sell, b.Haggle)
}

// Abs returns the magnitude of a copper value
func Abs(copper int) int {
	if copper < 0 {
		return -copper
	}
	return copper
}

package metadex

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/types"
)

// Order is a resting token-for-token order. Its price is fixed by the
// original amounts; AmountRemaining counts what is still for sale.
type Order struct {
	TxID            string           `json:"txid"`
	Address         types.Address    `json:"address"`
	Block           int64            `json:"block"`
	Index           int              `json:"index"`
	PropertyForSale types.PropertyID `json:"property_for_sale"`
	AmountForSale   int64            `json:"amount_for_sale"`
	AmountRemaining int64            `json:"amount_remaining"`
	PropertyDesired types.PropertyID `json:"property_desired"`
	AmountDesired   int64            `json:"amount_desired"`
}

// UnitPrice is the amount desired per unit for sale.
func (o Order) UnitPrice() decimal.Decimal {
	return decimal.NewFromInt(o.AmountDesired).DivRound(decimal.NewFromInt(o.AmountForSale), 16)
}

// comparePrice orders a and b by unit price without rounding, comparing
// a.desired*b.forSale with b.desired*a.forSale.
func comparePrice(a, b *Order) int {
	return cross(a.AmountDesired, b.AmountForSale).Cmp(cross(b.AmountDesired, a.AmountForSale))
}

func cross(x, y int64) decimal.Decimal {
	return decimal.NewFromInt(x).Mul(decimal.NewFromInt(y))
}

// before reports whether a has priority over b: cheaper first, then older.
func before(a, b *Order) bool {
	if c := comparePrice(a, b); c != 0 {
		return c < 0
	}
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	return a.Index < b.Index
}

type pair struct {
	forSale types.PropertyID
	desired types.PropertyID
}

// book holds the resting orders of one pair in priority order.
type book struct {
	orders []*Order
}

func (b *book) insert(o *Order) {
	i := sort.Search(len(b.orders), func(i int) bool { return before(o, b.orders[i]) })
	b.orders = append(b.orders, nil)
	copy(b.orders[i+1:], b.orders[i:])
	b.orders[i] = o
}

func (b *book) remove(o *Order) {
	for i, x := range b.orders {
		if x == o {
			b.orders = append(b.orders[:i], b.orders[i+1:]...)
			return
		}
	}
}

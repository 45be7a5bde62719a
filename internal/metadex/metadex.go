// Package metadex implements the token-for-token order book.
package metadex

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

var (
	ErrInvalidTrade    = errors.New("invalid metadex trade")
	ErrOrderNotFound   = errors.New("order not found")
	ErrNotOrderOwner   = errors.New("order belongs to another address")
	ErrNothingToCancel = errors.New("no matching orders to cancel")
)

// Fill is one match between an incoming order and a resting one.
type Fill struct {
	MakerTxID string        `json:"maker_txid"`
	Maker     types.Address `json:"maker"`
	Taker     types.Address `json:"taker"`
	// the maker sells AmountSold of PropertySold to the taker
	PropertySold types.PropertyID `json:"property_sold"`
	AmountSold   int64            `json:"amount_sold"`
	// and receives AmountPaid of PropertyPaid
	PropertyPaid types.PropertyID `json:"property_paid"`
	AmountPaid   int64            `json:"amount_paid"`
	// the taker pays Fee out of AmountSold
	Fee int64 `json:"fee"`
}

// TradeResult reports what happened to an incoming order.
type TradeResult struct {
	Fills []Fill
	// Rested is set when the remainder was added to the book.
	Rested    bool
	Remaining int64
	// Returned is a remainder too small to buy a single unit, handed back
	// to the sender.
	Returned int64
}

// LastTrade is the most recent fill on a pair, oriented by property id.
type LastTrade struct {
	PropertyA types.PropertyID `json:"property_a"`
	AmountA   int64            `json:"amount_a"`
	PropertyB types.PropertyID `json:"property_b"`
	AmountB   int64            `json:"amount_b"`
	Block     int64            `json:"block"`
}

// Engine holds all books.
type Engine struct {
	takerFee decimal.Decimal

	books  map[pair]*book
	byTxID map[string]*Order
	last   map[pair]*LastTrade
}

// NewEngine returns an engine charging takerFee (a fraction, e.g. 0.0005)
// on the amount each taker receives.
func NewEngine(takerFee decimal.Decimal) *Engine {
	return &Engine{
		takerFee: takerFee,
		books:    make(map[pair]*book),
		byTxID:   make(map[string]*Order),
		last:     make(map[pair]*LastTrade),
	}
}

func (e *Engine) validate(l *ledger.Store, sender types.Address, msg *payload.MetaDExTrade) error {
	if msg.PropertyForSale == msg.PropertyDesired {
		return fmt.Errorf("%w: same property on both sides", ErrInvalidTrade)
	}
	if msg.AmountForSale <= 0 || msg.AmountDesired <= 0 {
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidTrade)
	}
	for _, id := range []types.PropertyID{msg.PropertyForSale, msg.PropertyDesired} {
		p, ok := l.Property(id)
		if !ok {
			return fmt.Errorf("%w: %d", ledger.ErrPropertyNotFound, id)
		}
		if p.Kind == ledger.KindContract || p.ID == types.PropertyVesting {
			return fmt.Errorf("%w: property %d is not tradable", ErrInvalidTrade, id)
		}
	}
	if have := l.Balance(sender, msg.PropertyForSale); have < msg.AmountForSale {
		return fmt.Errorf("%w: has %d, selling %d", ledger.ErrInsufficientBalance, have, msg.AmountForSale)
	}
	return nil
}

// Trade places msg for the sender, matching it against crossing orders of
// the reverse pair at the resting orders' prices.
func (e *Engine) Trade(l *ledger.Store, tx types.TxContext, msg *payload.MetaDExTrade) (*TradeResult, error) {
	if _, ok := e.byTxID[tx.TxID]; ok {
		return nil, fmt.Errorf("%w: duplicate txid %s", ErrInvalidTrade, tx.TxID)
	}
	if err := e.validate(l, tx.Sender, msg); err != nil {
		return nil, err
	}

	taker := &Order{
		TxID:            tx.TxID,
		Address:         tx.Sender,
		Block:           tx.Height,
		Index:           tx.Index,
		PropertyForSale: msg.PropertyForSale,
		AmountForSale:   msg.AmountForSale,
		AmountRemaining: msg.AmountForSale,
		PropertyDesired: msg.PropertyDesired,
		AmountDesired:   msg.AmountDesired,
	}
	mustLedger(l.Reserve(taker.Address, taker.PropertyForSale, taker.AmountForSale, ledger.MetaDExReserve))

	res := &TradeResult{}
	if reverse, ok := e.books[pair{forSale: msg.PropertyDesired, desired: msg.PropertyForSale}]; ok {
		res.Fills = e.match(l, taker, reverse, tx.Height)
		if len(reverse.orders) == 0 {
			delete(e.books, pair{forSale: msg.PropertyDesired, desired: msg.PropertyForSale})
		}
	}

	res.Remaining = taker.AmountRemaining
	if taker.AmountRemaining > 0 {
		if canBuy(taker) {
			e.add(taker)
			res.Rested = true
		} else {
			mustLedger(l.Unreserve(taker.Address, taker.PropertyForSale, taker.AmountRemaining, ledger.MetaDExReserve))
			res.Returned = taker.AmountRemaining
			res.Remaining = 0
		}
	}
	return res, nil
}

func (e *Engine) match(l *ledger.Store, taker *Order, reverse *book, height int64) []Fill {
	var fills []Fill
	for i := 0; i < len(reverse.orders) && taker.AmountRemaining > 0; {
		maker := reverse.orders[i]
		// taker accepts at least taker.desired/taker.forSale per unit, the
		// maker offers maker.forSale/maker.desired
		if cross(maker.AmountForSale, taker.AmountForSale).LessThan(cross(maker.AmountDesired, taker.AmountDesired)) {
			break
		}
		if maker.Address == taker.Address {
			i++
			continue
		}

		buy, err := tlmath.MulDivFloor(taker.AmountRemaining, maker.AmountForSale, maker.AmountDesired)
		if err != nil {
			buy = maker.AmountRemaining
		}
		buy = tlmath.MinInt64(buy, maker.AmountRemaining)
		if buy <= 0 {
			break
		}
		pay, err := tlmath.MulDivCeil(buy, maker.AmountDesired, maker.AmountForSale)
		if err != nil || pay > taker.AmountRemaining {
			pay = taker.AmountRemaining
		}
		fee, err := tlmath.Floor(decimal.NewFromInt(buy).Mul(e.takerFee))
		if err != nil || fee < 0 || fee > buy {
			fee = 0
		}

		mustLedger(l.Move(taker.Address, ledger.MetaDExReserve, maker.Address, ledger.Balance, taker.PropertyForSale, pay))
		mustLedger(l.Move(maker.Address, ledger.MetaDExReserve, taker.Address, ledger.Balance, maker.PropertyForSale, buy))
		if fee > 0 {
			mustLedger(l.Transfer(taker.Address, types.FeeCacheAddress, maker.PropertyForSale, fee))
		}

		taker.AmountRemaining -= pay
		maker.AmountRemaining -= buy
		fills = append(fills, Fill{
			MakerTxID:    maker.TxID,
			Maker:        maker.Address,
			Taker:        taker.Address,
			PropertySold: maker.PropertyForSale,
			AmountSold:   buy,
			PropertyPaid: taker.PropertyForSale,
			AmountPaid:   pay,
			Fee:          fee,
		})
		e.recordTrade(taker.PropertyForSale, pay, maker.PropertyForSale, buy, height)

		if maker.AmountRemaining == 0 || !canBuy(maker) {
			if maker.AmountRemaining > 0 {
				mustLedger(l.Unreserve(maker.Address, maker.PropertyForSale, maker.AmountRemaining, ledger.MetaDExReserve))
				maker.AmountRemaining = 0
			}
			reverse.remove(maker)
			delete(e.byTxID, maker.TxID)
			continue
		}
		i++
	}
	return fills
}

// canBuy reports whether the remainder of o still buys one unit at its own
// price.
func canBuy(o *Order) bool {
	units, err := tlmath.MulDivFloor(o.AmountRemaining, o.AmountDesired, o.AmountForSale)
	return err != nil || units >= 1
}

func (e *Engine) recordTrade(a types.PropertyID, amountA int64, b types.PropertyID, amountB int64, height int64) {
	if a > b {
		a, b = b, a
		amountA, amountB = amountB, amountA
	}
	e.last[pair{forSale: a, desired: b}] = &LastTrade{PropertyA: a, AmountA: amountA, PropertyB: b, AmountB: amountB, Block: height}
}

// LastPrice returns the price of one token of base in tokens of quote at
// the most recent fill between them.
func (e *Engine) LastPrice(l *ledger.Store, base, quote types.PropertyID) (decimal.Decimal, int64, bool) {
	a, b := base, quote
	if a > b {
		a, b = b, a
	}
	lt, ok := e.last[pair{forSale: a, desired: b}]
	if !ok {
		return decimal.Zero, 0, false
	}
	baseAmount, quoteAmount := lt.AmountA, lt.AmountB
	if lt.PropertyA != base {
		baseAmount, quoteAmount = lt.AmountB, lt.AmountA
	}
	bp, _ := l.Property(base)
	qp, _ := l.Property(quote)
	baseTokens := types.UnitsToTokens(baseAmount, bp.Divisible)
	if baseTokens.IsZero() {
		return decimal.Zero, 0, false
	}
	price := types.UnitsToTokens(quoteAmount, qp.Divisible).DivRound(baseTokens, types.PriceDecimals)
	return price, lt.Block, true
}

func (e *Engine) add(o *Order) {
	p := pair{forSale: o.PropertyForSale, desired: o.PropertyDesired}
	b, ok := e.books[p]
	if !ok {
		b = &book{}
		e.books[p] = b
	}
	b.insert(o)
	e.byTxID[o.TxID] = o
}

func (e *Engine) cancel(l *ledger.Store, o *Order) {
	p := pair{forSale: o.PropertyForSale, desired: o.PropertyDesired}
	if b, ok := e.books[p]; ok {
		b.remove(o)
		if len(b.orders) == 0 {
			delete(e.books, p)
		}
	}
	delete(e.byTxID, o.TxID)
	mustLedger(l.Unreserve(o.Address, o.PropertyForSale, o.AmountRemaining, ledger.MetaDExReserve))
}

func (e *Engine) cancelWhere(l *ledger.Store, match func(*Order) bool) ([]Order, error) {
	var victims []*Order
	for _, o := range e.sortedOrders() {
		if match(o) {
			victims = append(victims, o)
		}
	}
	if len(victims) == 0 {
		return nil, ErrNothingToCancel
	}
	out := make([]Order, 0, len(victims))
	for _, o := range victims {
		e.cancel(l, o)
		out = append(out, *o)
	}
	return out, nil
}

// CancelOrder cancels the order placed by txid.
func (e *Engine) CancelOrder(l *ledger.Store, sender types.Address, txid string) ([]Order, error) {
	o, ok := e.byTxID[txid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, txid)
	}
	if o.Address != sender {
		return nil, ErrNotOrderOwner
	}
	return e.cancelWhere(l, func(x *Order) bool { return x == o })
}

// CancelAll cancels every order of sender.
func (e *Engine) CancelAll(l *ledger.Store, sender types.Address) ([]Order, error) {
	return e.cancelWhere(l, func(o *Order) bool { return o.Address == sender })
}

// CancelPair cancels sender's orders selling forSale for desired.
func (e *Engine) CancelPair(l *ledger.Store, sender types.Address, forSale, desired types.PropertyID) ([]Order, error) {
	return e.cancelWhere(l, func(o *Order) bool {
		return o.Address == sender && o.PropertyForSale == forSale && o.PropertyDesired == desired
	})
}

// CancelPrice cancels sender's orders on a pair at exactly the price
// amountDesired/amountForSale.
func (e *Engine) CancelPrice(l *ledger.Store, sender types.Address, msg *payload.MetaDExCancelPrice) ([]Order, error) {
	if msg.AmountForSale <= 0 || msg.AmountDesired <= 0 {
		return nil, fmt.Errorf("%w: amounts must be positive", ErrInvalidTrade)
	}
	ref := &Order{AmountForSale: msg.AmountForSale, AmountDesired: msg.AmountDesired}
	return e.cancelWhere(l, func(o *Order) bool {
		return o.Address == sender && o.PropertyForSale == msg.PropertyForSale &&
			o.PropertyDesired == msg.PropertyDesired && comparePrice(o, ref) == 0
	})
}

// Book returns the resting orders selling forSale for desired in priority
// order.
func (e *Engine) Book(forSale, desired types.PropertyID) []Order {
	b, ok := e.books[pair{forSale: forSale, desired: desired}]
	if !ok {
		return nil
	}
	out := make([]Order, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, *o)
	}
	return out
}

// GetOrder returns the order placed by txid.
func (e *Engine) GetOrder(txid string) (Order, bool) {
	o, ok := e.byTxID[txid]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Orders returns every resting order by pair, then priority.
func (e *Engine) Orders() []Order {
	sorted := e.sortedOrders()
	out := make([]Order, 0, len(sorted))
	for _, o := range sorted {
		out = append(out, *o)
	}
	return out
}

func (e *Engine) sortedOrders() []*Order {
	pairs := make([]pair, 0, len(e.books))
	for p := range e.books {
		pairs = append(pairs, p)
	}
	sortPairs(pairs)
	var out []*Order
	for _, p := range pairs {
		out = append(out, e.books[p].orders...)
	}
	return out
}

func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].forSale != pairs[j].forSale {
			return pairs[i].forSale < pairs[j].forSale
		}
		return pairs[i].desired < pairs[j].desired
	})
}

// LastTrades returns the last fill of every traded pair.
func (e *Engine) LastTrades() []LastTrade {
	pairs := make([]pair, 0, len(e.last))
	for p := range e.last {
		pairs = append(pairs, p)
	}
	sortPairs(pairs)
	out := make([]LastTrade, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, *e.last[p])
	}
	return out
}

func (e *Engine) WriteConsensus(w io.Writer) {
	for _, o := range e.Orders() {
		fmt.Fprintf(w, "mdex|%d|%d|%s|%s|%d|%d|%d|%d|%d\n",
			o.PropertyForSale, o.PropertyDesired, o.TxID, o.Address, o.Block, o.Index,
			o.AmountForSale, o.AmountRemaining, o.AmountDesired)
	}
	for _, lt := range e.LastTrades() {
		fmt.Fprintf(w, "mdexlast|%d|%d|%d|%d|%d\n", lt.PropertyA, lt.PropertyB, lt.AmountA, lt.AmountB, lt.Block)
	}
}

// Snapshot is the serializable form of an Engine.
type Snapshot struct {
	Orders     []Order     `json:"orders"`
	LastTrades []LastTrade `json:"last_trades"`
}

func (e *Engine) Export() Snapshot {
	return Snapshot{Orders: e.Orders(), LastTrades: e.LastTrades()}
}

func (e *Engine) Import(snap Snapshot) {
	*e = *NewEngine(e.takerFee)
	for _, o := range snap.Orders {
		o := o
		e.add(&o)
	}
	for _, lt := range snap.LastTrades {
		lt := lt
		e.last[pair{forSale: lt.PropertyA, desired: lt.PropertyB}] = &lt
	}
}

func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("metadex: ledger update failed after validation: %v", err))
	}
}

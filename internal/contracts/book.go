package contracts

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

// Order is a resting limit order on a contract book. Reserved is the
// margin still held for the unfilled part.
type Order struct {
	TxID       string           `json:"txid"`
	Address    types.Address    `json:"address"`
	ContractID types.PropertyID `json:"contract_id"`
	Action     uint64           `json:"action"`
	Price      decimal.Decimal  `json:"price"`
	Amount     int64            `json:"amount"`
	Remaining  int64            `json:"remaining"`
	Leverage   int64            `json:"leverage"`
	Reserved   int64            `json:"reserved"`
	Block      int64            `json:"block"`
	Index      int              `json:"index"`
}

func (o *Order) buy() bool { return o.Action == payload.ActionBuy }

// release takes qty off the order and returns the share of its reserve
// that backed it.
func (o *Order) release(qty int64) int64 {
	r := o.Reserved
	if qty < o.Remaining {
		r = mustUnits(tlmath.MulDivFloor(o.Reserved, qty, o.Remaining))
	}
	o.Reserved -= r
	o.Remaining -= qty
	return r
}

// Fill is one match on a contract book.
type Fill struct {
	MakerTxID string           `json:"maker_txid"`
	Maker     types.Address    `json:"maker"`
	Taker     types.Address    `json:"taker"`
	Buyer     types.Address    `json:"buyer"`
	Seller    types.Address    `json:"seller"`
	Amount    int64            `json:"amount"`
	Price     decimal.Decimal  `json:"price"`
	Fee       int64            `json:"fee"`
	Rebate    int64            `json:"rebate"`
	Contract  types.PropertyID `json:"contract_id"`
}

// TradeResult reports the outcome of an incoming contract order.
type TradeResult struct {
	Fills     []Fill
	Rested    bool
	Remaining int64
}

type orderBook struct {
	bids []*Order // best (highest) first
	asks []*Order // best (lowest) first
}

func priority(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		if a.buy() {
			return c > 0
		}
		return c < 0
	}
	if a.Block != b.Block {
		return a.Block < b.Block
	}
	return a.Index < b.Index
}

func (b *orderBook) side(buy bool) *[]*Order {
	if buy {
		return &b.bids
	}
	return &b.asks
}

func (b *orderBook) insert(o *Order) {
	s := b.side(o.buy())
	i := sort.Search(len(*s), func(i int) bool { return priority(o, (*s)[i]) })
	*s = append(*s, nil)
	copy((*s)[i+1:], (*s)[i:])
	(*s)[i] = o
}

func (b *orderBook) remove(o *Order) {
	s := b.side(o.buy())
	for i, x := range *s {
		if x == o {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}

func (b *orderBook) empty() bool { return len(b.bids) == 0 && len(b.asks) == 0 }

func (e *Engine) book(cid types.PropertyID) *orderBook {
	b, ok := e.books[cid]
	if !ok {
		b = &orderBook{}
		e.books[cid] = b
	}
	return b
}

func (e *Engine) addOrder(o *Order) {
	e.book(o.ContractID).insert(o)
	e.byTxID[o.TxID] = o
}

func (e *Engine) removeOrder(o *Order) {
	if b, ok := e.books[o.ContractID]; ok {
		b.remove(o)
		if b.empty() {
			delete(e.books, o.ContractID)
		}
	}
	delete(e.byTxID, o.TxID)
}

// Trade places a limit order, reserving its margin at the order price, and
// matches it against the opposite side at maker prices. The remainder
// rests on the book.
func (e *Engine) Trade(l *ledger.Store, tx types.TxContext, msg *payload.ContractTrade) (*TradeResult, error) {
	c, err := e.tradingContract(msg.ContractID, tx.Height)
	if err != nil {
		return nil, err
	}
	if msg.Amount <= 0 || msg.Price == 0 {
		return nil, fmt.Errorf("%w: amount and price must be positive", ErrInvalidOrder)
	}
	if msg.Action != payload.ActionBuy && msg.Action != payload.ActionSell {
		return nil, fmt.Errorf("%w: action %d", ErrInvalidOrder, msg.Action)
	}
	if msg.Leverage < 1 || msg.Leverage > uint64(e.params.MaxLeverage) {
		return nil, fmt.Errorf("%w: leverage %d outside 1..%d", ErrInvalidOrder, msg.Leverage, e.params.MaxLeverage)
	}
	price := types.PriceFromFixed(msg.Price)
	lev := int64(msg.Leverage)
	margin, err := c.RequiredMargin(msg.Amount, price, lev)
	if err != nil {
		return nil, err
	}
	if err := c.checkExposure(c.exposure(msg.Amount), price, c.MarkPrice); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	if bal := l.Balance(tx.Sender, c.Collateral); bal < margin {
		return nil, fmt.Errorf("%w: margin %d, balance %d", ledger.ErrInsufficientBalance, margin, bal)
	}

	if margin > 0 {
		mustLedger(l.Reserve(tx.Sender, c.Collateral, margin, ledger.MarginReserve))
	}
	taker := &Order{
		TxID:       tx.TxID,
		Address:    tx.Sender,
		ContractID: c.ID,
		Action:     msg.Action,
		Price:      price,
		Amount:     msg.Amount,
		Remaining:  msg.Amount,
		Leverage:   lev,
		Reserved:   margin,
		Block:      tx.Height,
		Index:      tx.Index,
	}
	res := &TradeResult{Fills: e.match(l, c, taker, true)}
	if taker.Remaining > 0 {
		e.addOrder(taker)
		res.Rested = true
		res.Remaining = taker.Remaining
	} else if taker.Reserved > 0 {
		mustLedger(l.Unreserve(taker.Address, c.Collateral, taker.Reserved, ledger.MarginReserve))
	}
	return res, nil
}

// match crosses taker with the opposite side of the book. A limit taker
// stops at its price; a market taker walks the whole side. Orders of the
// taker's own address are skipped.
func (e *Engine) match(l *ledger.Store, c *Contract, taker *Order, limit bool) []Fill {
	b, ok := e.books[c.ID]
	if !ok {
		return nil
	}
	opposite := b.side(!taker.buy())
	var fills []Fill
	for i := 0; i < len(*opposite) && taker.Remaining > 0; {
		maker := (*opposite)[i]
		if limit {
			if taker.buy() && maker.Price.GreaterThan(taker.Price) {
				break
			}
			if !taker.buy() && maker.Price.LessThan(taker.Price) {
				break
			}
		}
		if maker.Address == taker.Address {
			i++
			continue
		}

		qty := tlmath.MinInt64(taker.Remaining, maker.Remaining)
		price := maker.Price
		// the rest of the taker rests when a fill could not be settled
		if c.checkExposure(c.exposure(qty), price, c.MarkPrice) != nil || e.settle(l, c, price) != nil {
			break
		}
		makerRel := maker.release(qty)
		takerRel := taker.release(qty)

		sign := int64(1)
		if !maker.buy() {
			sign = -1
		}
		e.fill(l, c, maker.Address, sign*qty, price, makerRel, maker.Leverage)
		e.fill(l, c, taker.Address, -sign*qty, price, takerRel, taker.Leverage)
		fee, rebate := e.chargeFees(l, c, taker.Address, maker.Address, qty, price, taker.Leverage)
		e.recordTrade(c, price)

		f := Fill{
			MakerTxID: maker.TxID,
			Maker:     maker.Address,
			Taker:     taker.Address,
			Buyer:     maker.Address,
			Seller:    taker.Address,
			Amount:    qty,
			Price:     price,
			Fee:       fee,
			Rebate:    rebate,
			Contract:  c.ID,
		}
		if !maker.buy() {
			f.Buyer, f.Seller = taker.Address, maker.Address
		}
		fills = append(fills, f)

		if maker.Remaining == 0 {
			e.removeOrder(maker)
			if _, ok := e.books[c.ID]; !ok {
				break
			}
			continue
		}
		i++
	}
	return fills
}

// chargeFees takes the taker fee on the margin of the filled quantity,
// pays the maker rebate out of it and sends the rest to the insurance
// fund. The fee is capped by the taker's balance.
func (e *Engine) chargeFees(l *ledger.Store, c *Contract, taker, maker types.Address, qty int64, price decimal.Decimal, leverage int64) (int64, int64) {
	base := decimal.NewFromInt(mustUnits(c.RequiredMargin(qty, price, leverage)))
	fee := mustUnits(tlmath.Floor(base.Mul(e.params.TakerFee)))
	fee = tlmath.MinInt64(fee, l.Balance(taker, c.Collateral))
	if fee <= 0 {
		return 0, 0
	}
	rebate := tlmath.MinInt64(mustUnits(tlmath.Floor(base.Mul(e.params.MakerRebate))), fee)
	if rebate > 0 {
		mustLedger(l.Transfer(taker, maker, c.Collateral, rebate))
	}
	if rest := fee - rebate; rest > 0 {
		mustLedger(l.Transfer(taker, types.InsuranceAddress(c.ID), c.Collateral, rest))
	}
	return fee, rebate
}

func (e *Engine) recordTrade(c *Contract, price decimal.Decimal) {
	c.LastPrice = price
	if c.High.IsZero() || price.GreaterThan(c.High) {
		c.High = price
	}
	if c.Low.IsZero() || price.LessThan(c.Low) {
		c.Low = price
	}
	e.updateOpenInterest(c)
}

// ClosePosition cancels the sender's orders on the contract and sends a
// market order for the opposite of the position. Whatever the book cannot
// absorb stays open.
func (e *Engine) ClosePosition(l *ledger.Store, tx types.TxContext, msg *payload.ClosePosition) (*TradeResult, error) {
	c, err := e.tradingContract(msg.ContractID, tx.Height)
	if err != nil {
		return nil, err
	}
	p, ok := e.positions[c.ID][tx.Sender]
	if !ok || p.Amount == 0 {
		return nil, ErrNoPosition
	}
	action := uint64(payload.ActionSell)
	if p.Amount < 0 {
		action = payload.ActionBuy
	}
	if !e.hasCounterparty(c.ID, tx.Sender, action == payload.ActionBuy) {
		return nil, ErrNoLiquidity
	}
	e.cancelWhere(l, c, func(o *Order) bool { return o.Address == tx.Sender })

	taker := &Order{
		TxID:       tx.TxID,
		Address:    tx.Sender,
		ContractID: c.ID,
		Action:     action,
		Amount:     tlmath.AbsInt64(p.Amount),
		Remaining:  tlmath.AbsInt64(p.Amount),
		Leverage:   p.Leverage,
		Block:      tx.Height,
		Index:      tx.Index,
	}
	fills := e.match(l, c, taker, false)
	return &TradeResult{Fills: fills, Remaining: taker.Remaining}, nil
}

func (e *Engine) hasCounterparty(cid types.PropertyID, addr types.Address, buy bool) bool {
	b, ok := e.books[cid]
	if !ok {
		return false
	}
	for _, o := range *b.side(!buy) {
		if o.Address != addr {
			return true
		}
	}
	return false
}

// CancelPrice cancels the sender's orders on one side of a contract at an
// exact price.
func (e *Engine) CancelPrice(l *ledger.Store, tx types.TxContext, msg *payload.ContractCancelPrice) ([]Order, error) {
	c, ok := e.contracts[msg.ContractID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, msg.ContractID)
	}
	price := types.PriceFromFixed(msg.Price)
	cancelled := e.cancelWhere(l, c, func(o *Order) bool {
		return o.Address == tx.Sender && o.Action == msg.Action && o.Price.Equal(price)
	})
	if len(cancelled) == 0 {
		return nil, ErrNothingToCancel
	}
	return cancelled, nil
}

// CancelAll cancels every order of the sender on a contract.
func (e *Engine) CancelAll(l *ledger.Store, tx types.TxContext, msg *payload.ContractCancelAll) ([]Order, error) {
	c, ok := e.contracts[msg.ContractID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContractNotFound, msg.ContractID)
	}
	cancelled := e.cancelWhere(l, c, func(o *Order) bool { return o.Address == tx.Sender })
	if len(cancelled) == 0 {
		return nil, ErrNothingToCancel
	}
	return cancelled, nil
}

func (e *Engine) cancelWhere(l *ledger.Store, c *Contract, match func(*Order) bool) []Order {
	b, ok := e.books[c.ID]
	if !ok {
		return nil
	}
	var victims []*Order
	for _, side := range [][]*Order{b.bids, b.asks} {
		for _, o := range side {
			if match(o) {
				victims = append(victims, o)
			}
		}
	}
	out := make([]Order, 0, len(victims))
	for _, o := range victims {
		if o.Reserved > 0 {
			mustLedger(l.Unreserve(o.Address, c.Collateral, o.Reserved, ledger.MarginReserve))
		}
		e.removeOrder(o)
		out = append(out, *o)
	}
	return out
}

// Book returns copies of both sides of a contract book in priority order.
func (e *Engine) Book(cid types.PropertyID) (bids, asks []Order) {
	b, ok := e.books[cid]
	if !ok {
		return nil, nil
	}
	for _, o := range b.bids {
		bids = append(bids, *o)
	}
	for _, o := range b.asks {
		asks = append(asks, *o)
	}
	return bids, asks
}

// Orders returns the resting orders of addr across all contracts.
func (e *Engine) Orders(addr types.Address) []Order {
	var out []Order
	for _, id := range e.contractIDs() {
		bids, asks := e.Book(id)
		for _, o := range append(bids, asks...) {
			if o.Address == addr {
				out = append(out, o)
			}
		}
	}
	return out
}

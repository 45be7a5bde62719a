package contracts

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

// Position is the net exposure of one address to one contract. Amount is
// positive for longs and negative for shorts. Margin is the collateral held
// for it in the address's margin reserve; the insurance account keeps its
// collateral as plain balance and its Margin stays zero.
type Position struct {
	ContractID types.PropertyID `json:"contract_id"`
	Address    types.Address    `json:"address"`
	Amount     int64            `json:"amount"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	Margin     int64            `json:"margin"`
	Leverage   int64            `json:"leverage"`
}

// Long returns the long side of the position.
func (p Position) Long() int64 { return tlmath.MaxInt64(p.Amount, 0) }

// Short returns the short side of the position as a positive number.
func (p Position) Short() int64 { return tlmath.MaxInt64(-p.Amount, 0) }

func (e *Engine) position(cid types.PropertyID, addr types.Address, leverage int64) *Position {
	byAddr, ok := e.positions[cid]
	if !ok {
		byAddr = make(map[types.Address]*Position)
		e.positions[cid] = byAddr
	}
	p, ok := byAddr[addr]
	if !ok {
		p = &Position{ContractID: cid, Address: addr, Leverage: leverage}
		byAddr[addr] = p
	}
	return p
}

func (e *Engine) dropPosition(cid types.PropertyID, addr types.Address) {
	delete(e.positions[cid], addr)
	if len(e.positions[cid]) == 0 {
		delete(e.positions, cid)
	}
}

func (e *Engine) sortedPositions(cid types.PropertyID) []*Position {
	out := make([]*Position, 0, len(e.positions[cid]))
	for _, p := range e.positions[cid] {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// shift changes the position by delta contracts traded at price. Entry price is the weighted average while
// exposure grows, unchanged while it shrinks, and reset when the position
// flips side.
func shift(p *Position, delta int64, price decimal.Decimal) {
	old := p.Amount
	next := old + delta
	switch {
	case next == 0:
		p.EntryPrice = decimal.Zero
	case old == 0 || (old > 0) == (delta > 0):
		oldAbs := decimal.NewFromInt(tlmath.AbsInt64(old))
		dAbs := decimal.NewFromInt(tlmath.AbsInt64(delta))
		p.EntryPrice = oldAbs.Mul(p.EntryPrice).Add(dAbs.Mul(price)).
			DivRound(oldAbs.Add(dAbs), types.PriceDecimals)
	case (old > 0) != (next > 0):
		p.EntryPrice = price
	}
	p.Amount = next
}

// fill applies delta contracts at price to the trader's position. released
// is collateral already sitting in the trader's margin reserve that now
// backs the position. Afterwards the position margin equals its
// requirement: excess goes back to the balance and a shortfall is covered
// from the balance as far as it reaches.
func (e *Engine) fill(l *ledger.Store, c *Contract, addr types.Address, delta int64, price decimal.Decimal, released, leverage int64) {
	p := e.position(c.ID, addr, leverage)
	p.Margin += released
	grows := p.Amount == 0 || (p.Amount > 0) == (delta > 0) || tlmath.AbsInt64(delta) > tlmath.AbsInt64(p.Amount)
	shift(p, delta, price)
	if grows {
		p.Leverage = leverage
	}

	if p.Amount == 0 {
		if p.Margin > 0 {
			mustLedger(l.Unreserve(addr, c.Collateral, p.Margin, ledger.MarginReserve))
		}
		e.dropPosition(c.ID, addr)
		return
	}

	required := mustUnits(c.RequiredMargin(tlmath.AbsInt64(p.Amount), p.EntryPrice, p.Leverage))
	switch {
	case p.Margin > required:
		mustLedger(l.Unreserve(addr, c.Collateral, p.Margin-required, ledger.MarginReserve))
		p.Margin = required
	case p.Margin < required:
		top := tlmath.MinInt64(required-p.Margin, l.Balance(addr, c.Collateral))
		if top > 0 {
			mustLedger(l.Reserve(addr, c.Collateral, top, ledger.MarginReserve))
			p.Margin += top
		}
	}
}

// settle marks every position of c to price. Losses are collected first,
// from position margin, then balance, then the insurance fund, into the
// settlement pool; gains are then paid from the pool, pro rata if it falls
// short. Losses round up and gains round down; the remainder feeds the
// insurance fund. Nothing changes when a variation does not fit in int64.
func (e *Engine) settle(l *ledger.Store, c *Contract, price decimal.Decimal) error {
	from := c.MarkPrice
	if from.IsZero() || from.Equal(price) {
		c.MarkPrice = price
		return nil
	}

	type variation struct {
		p      *Position
		amount int64
	}
	var (
		losses, gains []variation
		totalGain     int64
	)
	for _, p := range e.sortedPositions(c.ID) {
		delta := c.pnl(p.Amount, from, price)
		switch delta.Sign() {
		case -1:
			v, err := tlmath.Ceil(delta.Neg())
			if err != nil {
				return fmt.Errorf("%w: marking %s to %s: %v", ErrPriceOutOfRange, p.Address, price, err)
			}
			losses = append(losses, variation{p, v})
		case 1:
			v, err := tlmath.Floor(delta)
			if err != nil {
				return fmt.Errorf("%w: marking %s to %s: %v", ErrPriceOutOfRange, p.Address, price, err)
			}
			if v == 0 {
				continue
			}
			var overflow bool
			if totalGain, overflow = tlmath.SafeAdd(totalGain, v); overflow {
				return fmt.Errorf("%w: gains at %s", ErrPriceOutOfRange, price)
			}
			gains = append(gains, variation{p, v})
		}
	}

	c.MarkPrice = price
	var collected int64
	for _, v := range losses {
		collected += e.collect(l, c, v.p, v.amount)
	}

	pool := types.SettlementAddress(c.ID)
	var paid int64
	for _, g := range gains {
		amt := g.amount
		if collected < totalGain {
			amt = mustUnits(tlmath.MulDivFloor(g.amount, collected, totalGain))
		}
		if amt == 0 {
			continue
		}
		if g.p.Address == types.InsuranceAddress(c.ID) {
			mustLedger(l.Transfer(pool, g.p.Address, c.Collateral, amt))
		} else {
			mustLedger(l.Move(pool, ledger.Balance, g.p.Address, ledger.MarginReserve, c.Collateral, amt))
			g.p.Margin += amt
		}
		paid += amt
	}
	if rest := collected - paid; rest > 0 {
		mustLedger(l.Transfer(pool, types.InsuranceAddress(c.ID), c.Collateral, rest))
	}
	return nil
}

// collect moves up to loss from the position's funding sources into the
// settlement pool and returns the amount moved.
func (e *Engine) collect(l *ledger.Store, c *Contract, p *Position, loss int64) int64 {
	pool := types.SettlementAddress(c.ID)
	insurance := types.InsuranceAddress(c.ID)
	remaining := loss

	if p.Address != insurance {
		if take := tlmath.MinInt64(remaining, p.Margin); take > 0 {
			mustLedger(l.Move(p.Address, ledger.MarginReserve, pool, ledger.Balance, c.Collateral, take))
			p.Margin -= take
			remaining -= take
		}
		if take := tlmath.MinInt64(remaining, l.Balance(p.Address, c.Collateral)); take > 0 {
			mustLedger(l.Transfer(p.Address, pool, c.Collateral, take))
			remaining -= take
		}
	}
	if take := tlmath.MinInt64(remaining, l.Balance(insurance, c.Collateral)); take > 0 {
		mustLedger(l.Transfer(insurance, pool, c.Collateral, take))
		remaining -= take
	}
	return loss - remaining
}

func (e *Engine) updateOpenInterest(c *Contract) {
	var oi int64
	for _, p := range e.positions[c.ID] {
		oi += p.Long()
	}
	c.OpenInterest = oi
}

// Position returns a copy of the position of addr in contract cid.
func (e *Engine) Position(cid types.PropertyID, addr types.Address) (Position, bool) {
	p, ok := e.positions[cid][addr]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns all open positions of a contract sorted by address.
func (e *Engine) Positions(cid types.PropertyID) []Position {
	ps := e.sortedPositions(cid)
	out := make([]Position, len(ps))
	for i, p := range ps {
		out[i] = *p
	}
	return out
}

// AddressPositions returns the open positions of addr across contracts.
func (e *Engine) AddressPositions(addr types.Address) []Position {
	var out []Position
	for _, id := range e.contractIDs() {
		if p, ok := e.positions[id][addr]; ok {
			out = append(out, *p)
		}
	}
	return out
}

func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("contracts: ledger update failed after validation: %v", err))
	}
}

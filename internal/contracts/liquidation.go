package contracts

import (
	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	tlmath "github.com/tradelayer/tradelayer/libs/math"
	"github.com/tradelayer/tradelayer/types"
)

// Liquidation records contracts moved from a trader to the insurance
// account.
type Liquidation struct {
	ContractID types.PropertyID `json:"contract_id"`
	Address    types.Address    `json:"address"`
	Amount     int64            `json:"amount"`
	Price      decimal.Decimal  `json:"price"`
	Margin     int64            `json:"margin"`
	Full       bool             `json:"full"`
}

// liquidate sweeps the positions of c against the current mark. Positions
// past their bankruptcy price move entirely to the insurance account;
// positions past their liquidation price move half, rounded up.
func (e *Engine) liquidate(l *ledger.Store, c *Contract) []Liquidation {
	if c.MarkPrice.IsZero() {
		return nil
	}
	insurance := types.InsuranceAddress(c.ID)
	var out []Liquidation
	for _, p := range e.sortedPositions(c.ID) {
		if p.Address == insurance || p.Amount == 0 {
			continue
		}
		abs := tlmath.AbsInt64(p.Amount)
		var qty int64
		switch {
		case c.crossed(*p, c.MarkPrice, c.BankruptcyPrice(*p)):
			qty = abs
		case c.crossed(*p, c.MarkPrice, c.LiquidationPrice(*p, e.params.MaintenanceRatio)):
			qty = (abs + 1) / 2
		default:
			continue
		}
		out = append(out, e.transferToInsurance(l, c, p, qty))
	}
	if len(out) > 0 {
		e.updateOpenInterest(c)
	}
	return out
}

func (e *Engine) transferToInsurance(l *ledger.Store, c *Contract, p *Position, qty int64) Liquidation {
	insurance := types.InsuranceAddress(c.ID)
	abs := tlmath.AbsInt64(p.Amount)
	signed := qty
	if p.Amount < 0 {
		signed = -qty
	}
	moved := p.Margin
	if qty < abs {
		moved = mustUnits(tlmath.MulDivFloor(p.Margin, qty, abs))
	}
	if moved > 0 {
		mustLedger(l.Move(p.Address, ledger.MarginReserve, insurance, ledger.Balance, c.Collateral, moved))
		p.Margin -= moved
	}
	liq := Liquidation{
		ContractID: c.ID,
		Address:    p.Address,
		Amount:     qty,
		Price:      c.MarkPrice,
		Margin:     moved,
		Full:       qty == abs,
	}

	p.Amount -= signed
	if p.Amount == 0 {
		if p.Margin > 0 {
			mustLedger(l.Unreserve(p.Address, c.Collateral, p.Margin, ledger.MarginReserve))
		}
		e.dropPosition(c.ID, p.Address)
	}

	ins := e.position(c.ID, insurance, 1)
	shift(ins, signed, c.MarkPrice)
	if ins.Amount == 0 {
		e.dropPosition(c.ID, insurance)
	}
	return liq
}

// shutdown cancels all orders and closes every position of c at the
// current mark, returning margins to their owners.
func (e *Engine) shutdown(l *ledger.Store, c *Contract, status Status) {
	e.cancelWhere(l, c, func(*Order) bool { return true })
	for _, p := range e.sortedPositions(c.ID) {
		if p.Margin > 0 {
			mustLedger(l.Unreserve(p.Address, c.Collateral, p.Margin, ledger.MarginReserve))
		}
		e.dropPosition(c.ID, p.Address)
	}
	c.OpenInterest = 0
	c.Status = status
}

// PriceSource reports the latest MetaDEx price of base in quote.
type PriceSource func(base, quote types.PropertyID) (decimal.Decimal, bool)

// EndBlock expires contracts that reached their expiry height, marks
// native contracts to the latest pair price and runs the liquidation sweep
// on every trading contract.
func (e *Engine) EndBlock(l *ledger.Store, height int64, prices PriceSource) []Liquidation {
	var out []Liquidation
	for _, id := range e.contractIDs() {
		c := e.contracts[id]
		if c.Status != StatusActive {
			continue
		}
		if exp := c.ExpiryBlock(); exp != 0 && height >= exp {
			e.shutdown(l, c, StatusExpired)
			continue
		}
		if c.Kind == KindNative && prices != nil {
			// a pair price the positions cannot be settled at leaves the mark unchanged
			if price, ok := prices(c.NativeBase, c.NativeQuote); ok && price.Sign() > 0 &&
				c.checkExposure(c.exposure(0), price) == nil {
				_ = e.settle(l, c, price)
			}
		}
		out = append(out, e.liquidate(l, c)...)
	}
	return out
}

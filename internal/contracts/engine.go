package contracts

import (
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/types"
)

// Params are the consensus parameters of the futures engine.
type Params struct {
	// TakerFee is charged on the margin of each filled quantity.
	TakerFee decimal.Decimal
	// MakerRebate is paid to the maker out of the taker fee.
	MakerRebate decimal.Decimal
	// MaintenanceRatio places the liquidation price between entry and
	// bankruptcy.
	MaintenanceRatio decimal.Decimal
	MaxLeverage      int64
}

// DefaultParams returns the mainnet parameters.
func DefaultParams() Params {
	return Params{
		TakerFee:         decimal.RequireFromString("0.0001"),
		MakerRebate:      decimal.RequireFromString("0.00005"),
		MaintenanceRatio: decimal.RequireFromString("0.5"),
		MaxLeverage:      10,
	}
}

// Engine holds every contract with its book and positions.
type Engine struct {
	params Params

	contracts map[types.PropertyID]*Contract
	positions map[types.PropertyID]map[types.Address]*Position
	books     map[types.PropertyID]*orderBook
	byTxID    map[string]*Order
}

func NewEngine(params Params) *Engine {
	return &Engine{
		params:    params,
		contracts: make(map[types.PropertyID]*Contract),
		positions: make(map[types.PropertyID]map[types.Address]*Position),
		books:     make(map[types.PropertyID]*orderBook),
		byTxID:    make(map[string]*Order),
	}
}

// Params returns the engine parameters.
func (e *Engine) Params() Params { return e.params }

func (e *Engine) contractIDs() []types.PropertyID {
	ids := make([]types.PropertyID, 0, len(e.contracts))
	for id := range e.contracts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contracts returns copies of all contracts ordered by id.
func (e *Engine) Contracts() []Contract {
	out := make([]Contract, 0, len(e.contracts))
	for _, id := range e.contractIDs() {
		out = append(out, *e.contracts[id])
	}
	return out
}

// Margin validates an off-book trade of qty contracts at price and returns
// the contract collateral and the margin each side has to post.
func (e *Engine) Margin(cid types.PropertyID, height, qty int64, price decimal.Decimal, leverage int64) (types.PropertyID, int64, error) {
	c, err := e.tradingContract(cid, height)
	if err != nil {
		return 0, 0, err
	}
	if qty <= 0 || price.Sign() <= 0 {
		return 0, 0, fmt.Errorf("%w: amount and price must be positive", ErrInvalidOrder)
	}
	if leverage < 1 || leverage > e.params.MaxLeverage {
		return 0, 0, fmt.Errorf("%w: leverage %d outside 1..%d", ErrInvalidOrder, leverage, e.params.MaxLeverage)
	}
	m, err := c.RequiredMargin(qty, price, leverage)
	if err != nil {
		return 0, 0, err
	}
	if err := c.checkExposure(c.exposure(qty), price, c.MarkPrice); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}
	return c.Collateral, m, nil
}

// InstantTrade opens or adjusts the positions of two parties that agreed
// on a trade off the book. Both margins must already be in the parties'
// margin reserves. No fees are charged.
func (e *Engine) InstantTrade(l *ledger.Store, height int64, cid types.PropertyID, buyer, seller types.Address,
	qty int64, price decimal.Decimal, leverage, buyerMargin, sellerMargin int64) (*Fill, error) {
	if _, _, err := e.Margin(cid, height, qty, price, leverage); err != nil {
		return nil, err
	}
	if buyer == seller {
		return nil, fmt.Errorf("%w: buyer and seller are the same address", ErrInvalidOrder)
	}
	c := e.contracts[cid]
	if err := e.settle(l, c, price); err != nil {
		return nil, err
	}
	e.fill(l, c, buyer, qty, price, buyerMargin, leverage)
	e.fill(l, c, seller, -qty, price, sellerMargin, leverage)
	e.recordTrade(c, price)
	return &Fill{Buyer: buyer, Seller: seller, Amount: qty, Price: price, Contract: cid}, nil
}

// CheckInvariants verifies that positions of every contract net to zero,
// that open interest matches the long side, and that margin reserves in
// the ledger equal position margins plus order reserves.
func (e *Engine) CheckInvariants(l *ledger.Store) error {
	type key struct {
		addr types.Address
		id   types.PropertyID
	}
	expected := make(map[key]int64)
	collaterals := make(map[types.PropertyID]bool)

	for _, id := range e.contractIDs() {
		c := e.contracts[id]
		collaterals[c.Collateral] = true
		var net, long int64
		for _, p := range e.positions[id] {
			net += p.Amount
			long += p.Long()
			if p.Margin < 0 {
				return fmt.Errorf("contract %d: negative margin for %s", id, p.Address)
			}
			expected[key{p.Address, c.Collateral}] += p.Margin
		}
		if net != 0 {
			return fmt.Errorf("%w: contract %d nets to %d", ErrZeroSum, id, net)
		}
		if long != c.OpenInterest {
			return fmt.Errorf("contract %d: open interest %d, longs %d", id, c.OpenInterest, long)
		}
		if b, ok := e.books[id]; ok {
			for _, side := range [][]*Order{b.bids, b.asks} {
				for _, o := range side {
					expected[key{o.Address, c.Collateral}] += o.Reserved
				}
			}
		}
	}

	for id := range collaterals {
		for _, rec := range l.Holders(id) {
			k := key{rec.Address, id}
			if got := rec.Tally[ledger.MarginReserve]; got != expected[k] {
				return fmt.Errorf("margin reserve of %s in %d is %d, contracts hold %d", rec.Address, id, got, expected[k])
			}
			delete(expected, k)
		}
	}
	for k, v := range expected {
		if v != 0 {
			return fmt.Errorf("contracts hold %d margin for %s in %d without a ledger reserve", v, k.addr, k.id)
		}
	}
	return nil
}

// WriteConsensus writes one line per contract, position and order.
func (e *Engine) WriteConsensus(w io.Writer) {
	for _, id := range e.contractIDs() {
		c := e.contracts[id]
		fmt.Fprintf(w, "contract|%d|%q|%s|%d|%t|%s|%d|%s|%d|%d|%d|%d|%v|%s|%s|%s|%s|%s|%s|%s|%d|%d\n",
			c.ID, c.Name, c.Admin, c.Kind, c.Inverse, types.FormatPrice(c.NotionalSize), c.Collateral,
			types.FormatPrice(c.MarginRequirement), c.BlocksUntilExpiration, c.CreationBlock,
			c.NativeBase, c.NativeQuote, c.KYC,
			types.FormatPrice(c.OracleHigh), types.FormatPrice(c.OracleLow), types.FormatPrice(c.OracleClose),
			types.FormatPrice(c.High), types.FormatPrice(c.Low), types.FormatPrice(c.LastPrice),
			types.FormatPrice(c.MarkPrice), c.OpenInterest, c.Status)
		for _, p := range e.sortedPositions(id) {
			fmt.Fprintf(w, "position|%d|%s|%d|%s|%d|%d\n",
				id, p.Address, p.Amount, types.FormatPrice(p.EntryPrice), p.Margin, p.Leverage)
		}
		bids, asks := e.Book(id)
		for _, o := range append(bids, asks...) {
			fmt.Fprintf(w, "corder|%d|%s|%s|%d|%s|%d|%d|%d|%d|%d|%d\n",
				id, o.TxID, o.Address, o.Action, types.FormatPrice(o.Price), o.Amount, o.Remaining,
				o.Leverage, o.Reserved, o.Block, o.Index)
		}
	}
}

// Snapshot is the serializable state of the engine.
type Snapshot struct {
	Contracts []Contract `json:"contracts"`
	Positions []Position `json:"positions"`
	Orders    []Order    `json:"orders"`
}

func (e *Engine) Export() Snapshot {
	snap := Snapshot{Contracts: e.Contracts()}
	for _, id := range e.contractIDs() {
		snap.Positions = append(snap.Positions, e.Positions(id)...)
		bids, asks := e.Book(id)
		snap.Orders = append(snap.Orders, bids...)
		snap.Orders = append(snap.Orders, asks...)
	}
	return snap
}

// Import replaces the engine state with snap.
func (e *Engine) Import(snap Snapshot) {
	fresh := NewEngine(e.params)
	*e = *fresh
	for i := range snap.Contracts {
		c := snap.Contracts[i]
		e.contracts[c.ID] = &c
	}
	for i := range snap.Positions {
		p := snap.Positions[i]
		*e.position(p.ContractID, p.Address, p.Leverage) = p
	}
	for i := range snap.Orders {
		o := snap.Orders[i]
		e.addOrder(&o)
	}
}

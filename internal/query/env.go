package query

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/activation"
	"github.com/tradelayer/tradelayer/internal/contracts"
	"github.com/tradelayer/tradelayer/internal/dex"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/nodereward"
	"github.com/tradelayer/tradelayer/internal/payload"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/types"
)

// TxIndexer looks up the recorded result of a transaction.
type TxIndexer interface {
	GetTxResult(txid string) (*types.TxResult, error)
}

// Environment serves reads against the last fully applied state. The node
// swaps in each new state with SetState; a State is never mutated after it
// was handed over, so readers only hold the lock long enough to grab it.
type Environment struct {
	mtx   sync.RWMutex
	state *sm.State

	TxIndexer TxIndexer
}

// NewEnvironment returns an Environment serving state.
func NewEnvironment(state *sm.State, indexer TxIndexer) *Environment {
	return &Environment{state: state, TxIndexer: indexer}
}

// SetState replaces the served state.
func (env *Environment) SetState(state *sm.State) {
	env.mtx.Lock()
	defer env.mtx.Unlock()
	env.state = state
}

func (env *Environment) current() (*sm.State, error) {
	env.mtx.RLock()
	defer env.mtx.RUnlock()
	if env.state == nil {
		return nil, ErrNotReady
	}
	return env.state, nil
}

func (env *Environment) divisible(s *sm.State, id types.PropertyID) bool {
	p, ok := s.Ledger.Property(id)
	return ok && p.Divisible
}

func balanceOf(rec ledger.TallyRecord, divisible bool) ResultBalance {
	t := rec.Tally
	return ResultBalance{
		Address:    rec.Address,
		PropertyID: rec.PropertyID,
		Balance:    types.FormatAmount(t[ledger.Balance], divisible),
		Reserved:   types.FormatAmount(t[ledger.OfferReserve]+t[ledger.AcceptReserve]+t[ledger.MetaDExReserve], divisible),
		Margin:     types.FormatAmount(t[ledger.MarginReserve], divisible),
		Channel:    types.FormatAmount(t[ledger.ChannelReserve], divisible),
	}
}

// GetBalance returns the tallies of addr in property id.
func (env *Environment) GetBalance(ctx context.Context, addr types.Address, id types.PropertyID) (*ResultBalance, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	if !s.Ledger.HasProperty(id) {
		return nil, fmt.Errorf("%w: property %d", ErrNotFound, id)
	}
	rec := ledger.TallyRecord{Address: addr, PropertyID: id, Tally: s.Ledger.Tally(addr, id)}
	res := balanceOf(rec, env.divisible(s, id))
	return &res, nil
}

// GetAllBalances returns every non-empty tally of addr.
func (env *Environment) GetAllBalances(ctx context.Context, addr types.Address) (*ResultBalances, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	res := &ResultBalances{Address: addr, Balances: []ResultBalance{}}
	for _, rec := range s.Ledger.AddressTallies(addr) {
		res.Balances = append(res.Balances, balanceOf(rec, env.divisible(s, rec.PropertyID)))
	}
	return res, nil
}

func propertyResult(p ledger.Property) ResultProperty {
	return ResultProperty{
		Property: p,
		Type:     p.Kind.String(),
		Total:    types.FormatAmount(p.TotalTokens, p.Divisible),
	}
}

// GetProperty returns the registry entry of id.
func (env *Environment) GetProperty(ctx context.Context, id types.PropertyID) (*ResultProperty, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	p, ok := s.Ledger.Property(id)
	if !ok {
		return nil, fmt.Errorf("%w: property %d", ErrNotFound, id)
	}
	res := propertyResult(p)
	return &res, nil
}

// ListProperties returns every property in id order.
func (env *Environment) ListProperties(ctx context.Context) ([]ResultProperty, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	props := s.Ledger.Properties()
	out := make([]ResultProperty, len(props))
	for i, p := range props {
		out[i] = propertyResult(p)
	}
	return out, nil
}

// GetActiveOffers returns the open DEx offers, optionally restricted to one
// property (id 0 returns all).
func (env *Environment) GetActiveOffers(ctx context.Context, id types.PropertyID) ([]ResultOffer, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	out := []ResultOffer{}
	for _, o := range s.DEx.Offers() {
		if id != 0 && o.PropertyID != id {
			continue
		}
		out = append(out, offerResult(o, env.divisible(s, o.PropertyID)))
	}
	return out, nil
}

// GetOffer returns the offer of seller for property id.
func (env *Environment) GetOffer(ctx context.Context, seller types.Address, id types.PropertyID) (ResultOffer, error) {
	s, err := env.current()
	if err != nil {
		return ResultOffer{}, err
	}
	o, ok := s.DEx.GetOffer(seller, id)
	if !ok {
		return ResultOffer{}, fmt.Errorf("%w: offer of %s for property %d", ErrNotFound, seller, id)
	}
	return offerResult(o, env.divisible(s, id)), nil
}

func offerResult(o dex.Offer, divisible bool) ResultOffer {
	var unit decimal.Decimal
	if o.AmountOriginal > 0 {
		unit = decimal.NewFromInt(o.LTCDesired).Div(types.UnitsToTokens(o.AmountOriginal, divisible))
	}
	return ResultOffer{
		Offer:     o,
		Available: types.FormatAmount(o.AmountAvailable, divisible),
		Desired:   types.FormatAmount(o.LTCDesired, true),
		UnitPrice: types.FormatAmount(unit.Round(0).IntPart(), true),
	}
}

// GetAccepts returns the outstanding accepts, optionally of one buyer.
func (env *Environment) GetAccepts(ctx context.Context, buyer types.Address) ([]ResultAccept, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	out := []ResultAccept{}
	for _, a := range s.DEx.Accepts() {
		if buyer != "" && a.Buyer != buyer {
			continue
		}
		out = append(out, ResultAccept{
			Accept:    a,
			Remaining: types.FormatAmount(a.AmountRemaining, env.divisible(s, a.PropertyID)),
		})
	}
	return out, nil
}

// GetOrderbook returns the MetaDEx orders selling forSale for desired.
func (env *Environment) GetOrderbook(ctx context.Context, forSale, desired types.PropertyID) (*ResultOrderbook, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	if forSale == desired {
		return nil, fmt.Errorf("%w: same property on both sides", ErrInvalidRequest)
	}
	res := &ResultOrderbook{PropertyForSale: forSale, PropertyDesired: desired, Orders: []ResultMetaDExOrder{}}
	if price, _, ok := s.MetaDEx.LastPrice(s.Ledger, forSale, desired); ok {
		res.LastPrice = types.FormatPrice(price)
	}
	for _, o := range s.MetaDEx.Book(forSale, desired) {
		res.Orders = append(res.Orders, ResultMetaDExOrder{Order: o, UnitPrice: types.FormatPrice(o.UnitPrice())})
	}
	return res, nil
}

func (env *Environment) contract(s *sm.State, id types.PropertyID) (contracts.Contract, error) {
	c, ok := s.Contracts.Contract(id)
	if !ok {
		return c, fmt.Errorf("%w: contract %d", ErrNotFound, id)
	}
	return c, nil
}

// GetContract returns the definition and market state of a contract.
func (env *Environment) GetContract(ctx context.Context, id types.PropertyID) (*ResultContract, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	c, err := env.contract(s, id)
	if err != nil {
		return nil, err
	}
	res := &ResultContract{
		ID:           c.ID,
		Name:         c.Name,
		Admin:        c.Admin,
		Kind:         c.Kind.String(),
		Inverse:      c.Inverse,
		NotionalSize: c.NotionalSize.String(),
		Collateral:   c.Collateral,
		Margin:       c.MarginRequirement.String(),
		LastPrice:    types.FormatPrice(c.LastPrice),
		MarkPrice:    types.FormatPrice(c.MarkPrice),
		OpenInterest: c.OpenInterest,
		ExpiryBlock:  c.ExpiryBlock(),
		Status:       c.Status.String(),
	}
	if c.Kind == contracts.KindOracle {
		res.OracleHigh = types.FormatPrice(c.OracleHigh)
		res.OracleLow = types.FormatPrice(c.OracleLow)
		res.OracleClose = types.FormatPrice(c.OracleClose)
	}
	return res, nil
}

func contractOrders(orders []contracts.Order) []ResultContractOrder {
	out := make([]ResultContractOrder, 0, len(orders))
	for _, o := range orders {
		side := "sell"
		if o.Action == payload.ActionBuy {
			side = "buy"
		}
		out = append(out, ResultContractOrder{
			TxID:     o.TxID,
			Address:  o.Address,
			Side:     side,
			Price:    types.FormatPrice(o.Price),
			Amount:   o.Remaining,
			Leverage: o.Leverage,
		})
	}
	return out
}

// GetContractOrderbook returns the resting orders of a contract.
func (env *Environment) GetContractOrderbook(ctx context.Context, id types.PropertyID) (*ResultContractOrderbook, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	if _, err := env.contract(s, id); err != nil {
		return nil, err
	}
	bids, asks := s.Contracts.Book(id)
	return &ResultContractOrderbook{ContractID: id, Bids: contractOrders(bids), Asks: contractOrders(asks)}, nil
}

// GetPosition returns the position of addr in a contract, valued at the
// contract's mark price. An address without a position gets a flat one.
func (env *Environment) GetPosition(ctx context.Context, addr types.Address, id types.PropertyID) (*ResultPosition, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	c, err := env.contract(s, id)
	if err != nil {
		return nil, err
	}
	p, ok := s.Contracts.Position(id, addr)
	if !ok {
		p = contracts.Position{ContractID: id, Address: addr}
	}
	return &ResultPosition{
		ContractID: id,
		Address:    addr,
		Long:       p.Long(),
		Short:      p.Short(),
		EntryPrice: types.FormatPrice(p.EntryPrice),
		Margin:     types.FormatAmount(p.Margin, c.CollateralDivisible),
		UPNL:       types.FormatSigned(c.UnrealizedPnL(p), c.CollateralDivisible),
		Leverage:   p.Leverage,
	}, nil
}

// GetChannel returns the channel at the multisig address.
func (env *Environment) GetChannel(ctx context.Context, addr types.Address) (*ResultChannel, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	ch, ok := s.Channels.Channel(addr)
	if !ok {
		return nil, fmt.Errorf("%w: channel %s", ErrNotFound, addr)
	}
	return &ResultChannel{Channel: ch, State: ch.Status.String()}, nil
}

// GetConsensusHash returns the hash of the last applied block.
func (env *Environment) GetConsensusHash(ctx context.Context) (*ResultConsensusHash, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	return &ResultConsensusHash{
		Height:        s.LastBlockHeight,
		BlockHash:     s.LastBlockHash,
		ConsensusHash: s.ConsensusHash.Copy(),
	}, nil
}

// ListAttestations returns what is attested about addr.
func (env *Environment) ListAttestations(ctx context.Context, addr types.Address) (*ResultAttestations, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	res := &ResultAttestations{Address: addr, IDs: s.KYC.IDs(addr)}
	for _, a := range s.KYC.Attestations() {
		if a.Receiver == addr {
			res.Attestations = append(res.Attestations, a)
		}
	}
	return res, nil
}

// ListKYC returns the registered KYC providers.
func (env *Environment) ListKYC(ctx context.Context) ([]ResultKYCProvider, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	out := []ResultKYCProvider{}
	for _, r := range s.KYC.Providers() {
		out = append(out, ResultKYCProvider{Record: r})
	}
	return out, nil
}

// GetVesting returns the vesting schedule progress and the holders of
// Vesting Tokens.
func (env *Environment) GetVesting(ctx context.Context) (*ResultVesting, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	res := &ResultVesting{
		Admin:       s.Vesting.Admin(),
		CliffHeight: s.Vesting.CliffHeight(),
		Volume:      types.FormatAmount(s.DEx.Volume(), true),
		Fraction:    s.Vesting.Fraction().String(),
		Holders:     []ResultVestingHolder{},
	}
	for _, h := range s.Vesting.Holders() {
		res.Holders = append(res.Holders, ResultVestingHolder{
			Address:  h.Address,
			Vesting:  types.FormatAmount(s.Ledger.Balance(h.Address, types.PropertyVesting), true),
			Unvested: types.FormatAmount(h.Amount, true),
		})
	}
	return res, nil
}

// GetActivations returns every known feature and whether it is active at
// the next block.
func (env *Environment) GetActivations(ctx context.Context) ([]ResultActivation, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	next := s.LastBlockHeight + 1
	records := make(map[activation.Feature]activation.Record)
	for _, r := range s.Activation.Records() {
		records[r.Feature] = r
	}
	out := make([]ResultActivation, 0, len(activation.AllFeatures()))
	for _, f := range activation.AllFeatures() {
		r, ok := records[f]
		if !ok {
			r = activation.Record{Feature: f}
		}
		out = append(out, ResultActivation{Record: r, Name: f.String(), Active: s.Activation.IsActive(f, next)})
	}
	return out, nil
}

// GetNodeRewards returns the registered nodes and the emission of the next
// block.
func (env *Environment) GetNodeRewards(ctx context.Context) (*ResultNodeRewards, error) {
	s, err := env.current()
	if err != nil {
		return nil, err
	}
	nodes := s.NodeReward.Nodes()
	if nodes == nil {
		nodes = []nodereward.Node{}
	}
	return &ResultNodeRewards{
		NextReward: types.FormatAmount(s.NodeReward.Reward(s.LastBlockHeight+1), true),
		Nodes:      nodes,
	}, nil
}

// GetTransaction returns the recorded result of txid.
func (env *Environment) GetTransaction(ctx context.Context, txid string) (*types.TxResult, error) {
	if txid == "" {
		return nil, fmt.Errorf("%w: empty txid", ErrInvalidRequest)
	}
	if env.TxIndexer == nil {
		return nil, fmt.Errorf("%w: transaction indexing is disabled", ErrInvalidRequest)
	}
	res, err := env.TxIndexer.GetTxResult(txid)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, txid)
	}
	return res, nil
}

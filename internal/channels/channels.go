// Package channels implements two-party trade channels: reserves
// committed to a multisig address that the parties can swap between them
// or use as margin, without going through the public books.
package channels

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tradelayer/tradelayer/internal/contracts"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

var (
	ErrNoChannel       = errors.New("channel not found")
	ErrNotParty        = errors.New("address is not a party of the channel")
	ErrChannelFull     = errors.New("channel already has two parties")
	ErrNotActive       = errors.New("channel is not active")
	ErrExpiredTrade    = errors.New("instant trade past its block expiry")
	ErrInvalidChannel  = errors.New("invalid channel operation")
	ErrInsufficientRes = errors.New("insufficient channel reserve")
)

// Status of a channel.
type Status uint8

const (
	StatusPending Status = iota + 1
	StatusActive
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusActive:
		return "active"
	case StatusClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// Withdrawal is a queued request to take reserve out of a channel.
type Withdrawal struct {
	Address    types.Address    `json:"address"`
	PropertyID types.PropertyID `json:"property_id"`
	Amount     int64            `json:"amount"`
	Matures    int64            `json:"matures"`
	TxID       string           `json:"txid"`
}

// Channel is the state kept for one multisig address.
type Channel struct {
	Address     types.Address                                `json:"address"`
	PartyA      types.Address                                `json:"party_a"`
	PartyB      types.Address                                `json:"party_b,omitempty"`
	Status      Status                                       `json:"status"`
	ExpiryBlock int64                                        `json:"expiry_block"`
	Reserves    map[types.Address]map[types.PropertyID]int64 `json:"reserves"`
	Withdrawals []Withdrawal                                 `json:"withdrawals,omitempty"`
}

func (c *Channel) isParty(addr types.Address) bool {
	return addr == c.PartyA || (c.PartyB != "" && addr == c.PartyB)
}

// Reserve returns the contribution of addr in property id.
func (c *Channel) Reserve(addr types.Address, id types.PropertyID) int64 {
	return c.Reserves[addr][id]
}

// Contributed lists the properties addr has in the channel.
func (c *Channel) Contributed(addr types.Address) []types.PropertyID {
	return sortedProps(c.Reserves[addr])
}

// available is the contribution not already queued for withdrawal.
func (c *Channel) available(addr types.Address, id types.PropertyID) int64 {
	v := c.Reserve(addr, id)
	for _, w := range c.Withdrawals {
		if w.Address == addr && w.PropertyID == id {
			v -= w.Amount
		}
	}
	return v
}

func (c *Channel) add(addr types.Address, id types.PropertyID, delta int64) {
	byProp, ok := c.Reserves[addr]
	if !ok {
		byProp = make(map[types.PropertyID]int64)
		c.Reserves[addr] = byProp
	}
	byProp[id] += delta
	if byProp[id] == 0 {
		delete(byProp, id)
	}
	if len(byProp) == 0 {
		delete(c.Reserves, addr)
	}
}

// Total is the sum of all contributions in property id.
func (c *Channel) Total(id types.PropertyID) int64 {
	var t int64
	for _, byProp := range c.Reserves {
		t += byProp[id]
	}
	return t
}

func (c *Channel) contributors() []types.Address {
	out := make([]types.Address, 0, len(c.Reserves))
	for a := range c.Reserves {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedProps(m map[types.PropertyID]int64) []types.PropertyID {
	out := make([]types.PropertyID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Params of the channel engine.
type Params struct {
	// Lifetime is how long a channel stays open after its last commit.
	Lifetime int64
	// WithdrawalDelay is the number of blocks before a withdrawal is paid.
	WithdrawalDelay int64
}

// ContractMatcher opens positions for instant contract trades.
type ContractMatcher interface {
	Margin(cid types.PropertyID, height, qty int64, price decimal.Decimal, leverage int64) (types.PropertyID, int64, error)
	InstantTrade(l *ledger.Store, height int64, cid types.PropertyID, buyer, seller types.Address,
		qty int64, price decimal.Decimal, leverage, buyerMargin, sellerMargin int64) (*contracts.Fill, error)
}

type Engine struct {
	params   Params
	channels map[types.Address]*Channel
}

func NewEngine(params Params) *Engine {
	return &Engine{params: params, channels: make(map[types.Address]*Channel)}
}

func (e *Engine) open(addr types.Address) (*Channel, error) {
	c, ok := e.channels[addr]
	if !ok || c.Status == StatusClosed {
		return nil, fmt.Errorf("%w: %s", ErrNoChannel, addr)
	}
	return c, nil
}

// Commit moves tokens from the sender into the channel at the reference
// address. The first committer opens the channel, the second distinct
// committer activates it. Every commit renews the expiry.
func (e *Engine) Commit(l *ledger.Store, tx types.TxContext, msg *payload.CommitChannel) (*Channel, error) {
	addr := tx.Reference
	if addr == "" || addr == tx.Sender || addr.IsSystem() {
		return nil, fmt.Errorf("%w: bad channel address %q", ErrInvalidChannel, addr)
	}
	if msg.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount %d", ErrInvalidChannel, msg.Amount)
	}
	if bal := l.Balance(tx.Sender, msg.PropertyID); bal < msg.Amount {
		return nil, fmt.Errorf("%w: balance %d, committing %d", ledger.ErrInsufficientBalance, bal, msg.Amount)
	}
	c, ok := e.channels[addr]
	if ok && c.Status != StatusClosed && !c.isParty(tx.Sender) && c.PartyB != "" {
		return nil, ErrChannelFull
	}

	if err := l.Move(tx.Sender, ledger.Balance, addr, ledger.ChannelReserve, msg.PropertyID, msg.Amount); err != nil {
		return nil, err
	}
	if !ok || c.Status == StatusClosed {
		c = &Channel{
			Address:  addr,
			PartyA:   tx.Sender,
			Status:   StatusPending,
			Reserves: make(map[types.Address]map[types.PropertyID]int64),
		}
		e.channels[addr] = c
	} else if !c.isParty(tx.Sender) {
		c.PartyB = tx.Sender
		c.Status = StatusActive
	}
	c.add(tx.Sender, msg.PropertyID, msg.Amount)
	c.ExpiryBlock = tx.Height + e.params.Lifetime
	return c, nil
}

// Withdraw queues the return of part of the sender's contribution.
func (e *Engine) Withdraw(tx types.TxContext, msg *payload.WithdrawChannel) (*Withdrawal, error) {
	c, err := e.open(tx.Reference)
	if err != nil {
		return nil, err
	}
	if !c.isParty(tx.Sender) {
		return nil, ErrNotParty
	}
	if msg.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount %d", ErrInvalidChannel, msg.Amount)
	}
	if avail := c.available(tx.Sender, msg.PropertyID); avail < msg.Amount {
		return nil, fmt.Errorf("%w: %d available, withdrawing %d", ErrInsufficientRes, avail, msg.Amount)
	}
	w := Withdrawal{
		Address:    tx.Sender,
		PropertyID: msg.PropertyID,
		Amount:     msg.Amount,
		Matures:    tx.Height + e.params.WithdrawalDelay,
		TxID:       tx.TxID,
	}
	c.Withdrawals = append(c.Withdrawals, w)
	return &w, nil
}

// Transfer moves the sender's whole contribution out of the source
// channel, into the channel at the reference address when one is open
// there, otherwise onto the reference address's balance.
func (e *Engine) Transfer(l *ledger.Store, tx types.TxContext, msg *payload.TransferChannel) error {
	src, err := e.open(msg.SourceChannel)
	if err != nil {
		return err
	}
	dest := tx.Reference
	if dest == "" || dest == src.Address {
		return fmt.Errorf("%w: bad destination %q", ErrInvalidChannel, dest)
	}
	contribution := src.Reserves[tx.Sender]
	if len(contribution) == 0 {
		return fmt.Errorf("%w: %s has nothing in %s", ErrInsufficientRes, tx.Sender, src.Address)
	}
	to, toChannel := e.channels[dest]
	toChannel = toChannel && to.Status != StatusClosed
	if toChannel && !to.isParty(tx.Sender) && to.PartyB != "" {
		return ErrChannelFull
	}

	for _, id := range sortedProps(contribution) {
		amt := contribution[id]
		toTT := ledger.Balance
		if toChannel {
			toTT = ledger.ChannelReserve
		}
		mustLedger(l.Move(src.Address, ledger.ChannelReserve, dest, toTT, id, amt))
		src.add(tx.Sender, id, -amt)
		if toChannel {
			to.add(tx.Sender, id, amt)
		}
	}
	src.Withdrawals = dropWithdrawals(src.Withdrawals, func(w Withdrawal) bool { return w.Address == tx.Sender })
	if toChannel && !to.isParty(tx.Sender) {
		to.PartyB = tx.Sender
		to.Status = StatusActive
	}
	return nil
}

func dropWithdrawals(ws []Withdrawal, drop func(Withdrawal) bool) []Withdrawal {
	out := ws[:0]
	for _, w := range ws {
		if !drop(w) {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (e *Engine) tradingChannel(tx types.TxContext, blockExpiry int64) (*Channel, error) {
	c, err := e.open(tx.Sender)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrNotActive, c.Address)
	}
	if tx.Height > blockExpiry {
		return nil, fmt.Errorf("%w: height %d, expiry %d", ErrExpiredTrade, tx.Height, blockExpiry)
	}
	return c, nil
}

// InstantTrade swaps partyA's AmountA of PropertyA for partyB's AmountB of
// PropertyB inside the channel that sent the transaction.
func (e *Engine) InstantTrade(tx types.TxContext, msg *payload.InstantTrade) error {
	c, err := e.tradingChannel(tx, msg.BlockExpiry)
	if err != nil {
		return err
	}
	if msg.AmountA <= 0 || msg.AmountB <= 0 || msg.PropertyA == msg.PropertyB {
		return fmt.Errorf("%w: bad instant trade terms", ErrInvalidChannel)
	}
	if avail := c.available(c.PartyA, msg.PropertyA); avail < msg.AmountA {
		return fmt.Errorf("%w: party A has %d, needs %d", ErrInsufficientRes, avail, msg.AmountA)
	}
	if avail := c.available(c.PartyB, msg.PropertyB); avail < msg.AmountB {
		return fmt.Errorf("%w: party B has %d, needs %d", ErrInsufficientRes, avail, msg.AmountB)
	}
	c.add(c.PartyA, msg.PropertyA, -msg.AmountA)
	c.add(c.PartyB, msg.PropertyA, msg.AmountA)
	c.add(c.PartyB, msg.PropertyB, -msg.AmountB)
	c.add(c.PartyA, msg.PropertyB, msg.AmountB)
	return nil
}

// InstantContractTrade opens matched positions between the two parties at
// the agreed price, drawing each side's margin from its contribution.
func (e *Engine) InstantContractTrade(l *ledger.Store, tx types.TxContext, msg *payload.InstantContractTrade, m ContractMatcher) (*contracts.Fill, error) {
	c, err := e.tradingChannel(tx, msg.BlockExpiry)
	if err != nil {
		return nil, err
	}
	price := types.PriceFromFixed(msg.Price)
	collateral, margin, err := m.Margin(msg.ContractID, tx.Height, msg.Amount, price, int64(msg.Leverage))
	if err != nil {
		return nil, err
	}
	for _, party := range []types.Address{c.PartyA, c.PartyB} {
		if avail := c.available(party, collateral); avail < margin {
			return nil, fmt.Errorf("%w: %s has %d, margin %d", ErrInsufficientRes, party, avail, margin)
		}
	}
	buyer, seller := c.PartyA, c.PartyB
	if !msg.PartyABuys {
		buyer, seller = seller, buyer
	}
	if margin > 0 {
		for _, party := range []types.Address{buyer, seller} {
			mustLedger(l.Move(c.Address, ledger.ChannelReserve, party, ledger.MarginReserve, collateral, margin))
			c.add(party, collateral, -margin)
		}
	}
	fill, err := m.InstantTrade(l, tx.Height, msg.ContractID, buyer, seller, msg.Amount, price, int64(msg.Leverage), margin, margin)
	if err != nil {
		panic(fmt.Sprintf("channels: instant contract trade failed after validation: %v", err))
	}
	return fill, nil
}

// Event is a payout made by BeginBlock.
type Event struct {
	Channel    types.Address    `json:"channel"`
	Address    types.Address    `json:"address"`
	PropertyID types.PropertyID `json:"property_id"`
	Amount     int64            `json:"amount"`
	Closed     bool             `json:"closed"`
}

// BeginBlock pays matured withdrawals and closes channels whose expiry
// passed, returning every remaining contribution to its owner.
func (e *Engine) BeginBlock(l *ledger.Store, height int64) []Event {
	var out []Event
	for _, addr := range e.addresses() {
		c := e.channels[addr]
		if c.Status == StatusClosed {
			continue
		}
		var keep []Withdrawal
		for _, w := range c.Withdrawals {
			if w.Matures > height {
				keep = append(keep, w)
				continue
			}
			amt := c.Reserve(w.Address, w.PropertyID)
			if w.Amount < amt {
				amt = w.Amount
			}
			if amt <= 0 {
				continue
			}
			mustLedger(l.Move(c.Address, ledger.ChannelReserve, w.Address, ledger.Balance, w.PropertyID, amt))
			c.add(w.Address, w.PropertyID, -amt)
			out = append(out, Event{Channel: c.Address, Address: w.Address, PropertyID: w.PropertyID, Amount: amt})
		}
		c.Withdrawals = keep

		if height > c.ExpiryBlock {
			for _, who := range c.contributors() {
				for _, id := range sortedProps(c.Reserves[who]) {
					amt := c.Reserves[who][id]
					mustLedger(l.Move(c.Address, ledger.ChannelReserve, who, ledger.Balance, id, amt))
					out = append(out, Event{Channel: c.Address, Address: who, PropertyID: id, Amount: amt, Closed: true})
				}
			}
			c.Reserves = make(map[types.Address]map[types.PropertyID]int64)
			c.Withdrawals = nil
			c.Status = StatusClosed
		}
	}
	return out
}

func (e *Engine) addresses() []types.Address {
	out := make([]types.Address, 0, len(e.channels))
	for a := range e.channels {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Channel returns a copy of the channel at addr.
func (e *Engine) Channel(addr types.Address) (Channel, bool) {
	c, ok := e.channels[addr]
	if !ok {
		return Channel{}, false
	}
	return clone(c), true
}

// Channels returns copies of every channel ordered by address.
func (e *Engine) Channels() []Channel {
	out := make([]Channel, 0, len(e.channels))
	for _, a := range e.addresses() {
		out = append(out, clone(e.channels[a]))
	}
	return out
}

func clone(c *Channel) Channel {
	cp := *c
	cp.Reserves = make(map[types.Address]map[types.PropertyID]int64, len(c.Reserves))
	for who, byProp := range c.Reserves {
		m := make(map[types.PropertyID]int64, len(byProp))
		for id, v := range byProp {
			m[id] = v
		}
		cp.Reserves[who] = m
	}
	cp.Withdrawals = append([]Withdrawal(nil), c.Withdrawals...)
	return cp
}

// CheckReserves verifies that the ledger channel reserve of every channel
// address equals the sum of its contributions.
func (e *Engine) CheckReserves(l *ledger.Store) error {
	for _, addr := range e.addresses() {
		c := e.channels[addr]
		want := make(map[types.PropertyID]int64)
		for _, byProp := range c.Reserves {
			for id, v := range byProp {
				want[id] += v
			}
		}
		for _, rec := range l.AddressTallies(addr) {
			if got := rec.Tally[ledger.ChannelReserve]; got != want[rec.PropertyID] {
				return fmt.Errorf("channel %s: ledger reserve %d of property %d, contributions %d", addr, got, rec.PropertyID, want[rec.PropertyID])
			}
			delete(want, rec.PropertyID)
		}
		for id, v := range want {
			if v != 0 {
				return fmt.Errorf("channel %s: contributions %d of property %d without ledger reserve", addr, v, id)
			}
		}
	}
	return nil
}

func (e *Engine) WriteConsensus(w io.Writer) {
	for _, addr := range e.addresses() {
		c := e.channels[addr]
		fmt.Fprintf(w, "channel|%s|%s|%s|%d|%d\n", c.Address, c.PartyA, c.PartyB, c.Status, c.ExpiryBlock)
		for _, who := range c.contributors() {
			for _, id := range sortedProps(c.Reserves[who]) {
				fmt.Fprintf(w, "creserve|%s|%s|%d|%d\n", c.Address, who, id, c.Reserves[who][id])
			}
		}
		for _, wd := range c.Withdrawals {
			fmt.Fprintf(w, "cwithdraw|%s|%s|%d|%d|%d|%s\n", c.Address, wd.Address, wd.PropertyID, wd.Amount, wd.Matures, wd.TxID)
		}
	}
}

func (e *Engine) Export() []Channel { return e.Channels() }

func (e *Engine) Import(chs []Channel) {
	e.channels = make(map[types.Address]*Channel, len(chs))
	for i := range chs {
		c := clone(&chs[i])
		e.channels[c.Address] = &c
	}
}

func mustLedger(err error) {
	if err != nil {
		panic(fmt.Sprintf("channels: ledger update failed after validation: %v", err))
	}
}

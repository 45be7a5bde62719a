package channels_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/channels"
	"github.com/tradelayer/tradelayer/internal/contracts"
	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

const (
	alice = types.Address("alice")
	bob   = types.Address("bob")
	carol = types.Address("carol")
	multi = types.Address("multisig")
	other = types.Address("multisig2")
)

type fixture struct {
	l      *ledger.Store
	e      *channels.Engine
	a, b   types.PropertyID
	height int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := ledger.NewStore()
	a := l.CreateProperty(ledger.Property{Name: "A", Divisible: true, Issuer: alice, Kind: ledger.KindFixed})
	b := l.CreateProperty(ledger.Property{Name: "B", Divisible: true, Issuer: bob, Kind: ledger.KindFixed})
	for _, addr := range []types.Address{alice, bob, carol} {
		require.NoError(t, l.Issue(addr, a, 5000*types.COIN))
		require.NoError(t, l.Issue(addr, b, 5000*types.COIN))
	}
	return &fixture{
		l:      l,
		e:      channels.NewEngine(channels.Params{Lifetime: 100, WithdrawalDelay: 5}),
		a:      a,
		b:      b,
		height: 200,
	}
}

func (f *fixture) tx(sender, ref types.Address) types.TxContext {
	return types.TxContext{TxID: "tx", Height: f.height, Sender: sender, Reference: ref}
}

func (f *fixture) commit(t *testing.T, sender types.Address, id types.PropertyID, amount int64) *channels.Channel {
	t.Helper()
	c, err := f.e.Commit(f.l, f.tx(sender, multi), &payload.CommitChannel{PropertyID: id, Amount: amount})
	require.NoError(t, err)
	f.check(t)
	return c
}

func (f *fixture) check(t *testing.T) {
	t.Helper()
	require.NoError(t, f.l.CheckConservation())
	require.NoError(t, f.e.CheckReserves(f.l))
}

func TestCommitLifecycle(t *testing.T) {
	f := newFixture(t)

	c := f.commit(t, alice, f.a, 1000*types.COIN)
	assert.Equal(t, channels.StatusPending, c.Status)
	assert.Equal(t, alice, c.PartyA)
	assert.EqualValues(t, 300, c.ExpiryBlock)
	assert.Equal(t, "1000.00000000", types.FormatAmount(f.l.Get(multi, f.a, ledger.ChannelReserve), true))

	f.commit(t, alice, f.a, 500*types.COIN)
	f.height = 250
	c = f.commit(t, bob, f.b, 200*types.COIN)
	assert.Equal(t, channels.StatusActive, c.Status)
	assert.Equal(t, bob, c.PartyB)
	assert.EqualValues(t, 350, c.ExpiryBlock)

	got, ok := f.e.Channel(multi)
	require.True(t, ok)
	assert.EqualValues(t, 1500*types.COIN, got.Reserve(alice, f.a))
	assert.EqualValues(t, 200*types.COIN, got.Reserve(bob, f.b))

	_, err := f.e.Commit(f.l, f.tx(carol, multi), &payload.CommitChannel{PropertyID: f.a, Amount: 1})
	assert.ErrorIs(t, err, channels.ErrChannelFull)
	_, err = f.e.Commit(f.l, f.tx(alice, multi), &payload.CommitChannel{PropertyID: f.a, Amount: 10000 * types.COIN})
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	_, err = f.e.Commit(f.l, f.tx(alice, ""), &payload.CommitChannel{PropertyID: f.a, Amount: 1})
	assert.ErrorIs(t, err, channels.ErrInvalidChannel)
}

func TestWithdrawMatures(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 1000*types.COIN)

	_, err := f.e.Withdraw(f.tx(bob, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: 1})
	assert.ErrorIs(t, err, channels.ErrNotParty)
	_, err = f.e.Withdraw(f.tx(alice, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: 1001 * types.COIN})
	assert.ErrorIs(t, err, channels.ErrInsufficientRes)

	w, err := f.e.Withdraw(f.tx(alice, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: 400 * types.COIN})
	require.NoError(t, err)
	assert.EqualValues(t, 205, w.Matures)

	// the queued amount cannot be withdrawn twice
	_, err = f.e.Withdraw(f.tx(alice, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: 601 * types.COIN})
	assert.ErrorIs(t, err, channels.ErrInsufficientRes)

	assert.Empty(t, f.e.BeginBlock(f.l, 204))
	assert.EqualValues(t, 1000*types.COIN, f.l.Get(multi, f.a, ledger.ChannelReserve))

	events := f.e.BeginBlock(f.l, 205)
	require.Len(t, events, 1)
	assert.EqualValues(t, 400*types.COIN, events[0].Amount)
	assert.EqualValues(t, 600*types.COIN, f.l.Get(multi, f.a, ledger.ChannelReserve))
	assert.EqualValues(t, 4400*types.COIN, f.l.Balance(alice, f.a))
	f.check(t)
}

func TestInstantTrade(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 100*types.COIN)
	f.commit(t, bob, f.b, 50*types.COIN)

	msg := &payload.InstantTrade{PropertyA: f.a, AmountA: 40 * types.COIN, PropertyB: f.b, AmountB: 20 * types.COIN, BlockExpiry: 210}
	assert.ErrorIs(t, f.e.InstantTrade(f.tx(alice, ""), msg), channels.ErrNoChannel)

	require.NoError(t, f.e.InstantTrade(f.tx(multi, ""), msg))
	f.check(t)
	c, _ := f.e.Channel(multi)
	assert.EqualValues(t, 60*types.COIN, c.Reserve(alice, f.a))
	assert.EqualValues(t, 20*types.COIN, c.Reserve(alice, f.b))
	assert.EqualValues(t, 40*types.COIN, c.Reserve(bob, f.a))
	assert.EqualValues(t, 30*types.COIN, c.Reserve(bob, f.b))

	f.height = 211
	assert.ErrorIs(t, f.e.InstantTrade(f.tx(multi, ""), msg), channels.ErrExpiredTrade)
	f.height = 200
	msg.AmountB = 31 * types.COIN
	assert.ErrorIs(t, f.e.InstantTrade(f.tx(multi, ""), msg), channels.ErrInsufficientRes)
}

func TestInstantTradeNeedsActiveChannel(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 100*types.COIN)
	msg := &payload.InstantTrade{PropertyA: f.a, AmountA: 1, PropertyB: f.b, AmountB: 1, BlockExpiry: 300}
	assert.ErrorIs(t, f.e.InstantTrade(f.tx(multi, ""), msg), channels.ErrNotActive)
}

func TestInstantContractTrade(t *testing.T) {
	f := newFixture(t)
	ce := contracts.NewEngine(contracts.DefaultParams())
	cid, err := ce.Create(f.l, types.TxContext{TxID: "c", Height: 100, Sender: carol}, &payload.CreateContract{
		Name:              "A perp",
		Kind:              uint64(contracts.KindOracle),
		NotionalSize:      100000000,
		Collateral:        f.a,
		MarginRequirement: 10000000,
	})
	require.NoError(t, err)

	f.commit(t, alice, f.a, 100*types.COIN)
	f.commit(t, bob, f.a, 100*types.COIN)

	fill, err := f.e.InstantContractTrade(f.l, f.tx(multi, ""), &payload.InstantContractTrade{
		ContractID: cid, Amount: 10, Price: 50 * types.COIN, Leverage: 1, PartyABuys: true, BlockExpiry: 300,
	}, ce)
	require.NoError(t, err)
	assert.Equal(t, alice, fill.Buyer)
	assert.Equal(t, bob, fill.Seller)
	f.check(t)
	require.NoError(t, ce.CheckInvariants(f.l))

	// 10 contracts * 1 * 50 * 0.1
	c, _ := f.e.Channel(multi)
	assert.EqualValues(t, 50*types.COIN, c.Reserve(alice, f.a))
	assert.EqualValues(t, 50*types.COIN, c.Reserve(bob, f.a))
	long, ok := ce.Position(cid, alice)
	require.True(t, ok)
	assert.EqualValues(t, 10, long.Amount)
	assert.EqualValues(t, 50*types.COIN, long.Margin)

	_, err = f.e.InstantContractTrade(f.l, f.tx(multi, ""), &payload.InstantContractTrade{
		ContractID: cid, Amount: 1000, Price: 50 * types.COIN, Leverage: 1, BlockExpiry: 300,
	}, ce)
	assert.ErrorIs(t, err, channels.ErrInsufficientRes)
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 100*types.COIN)
	f.commit(t, alice, f.b, 10*types.COIN)
	_, err := f.e.Withdraw(f.tx(alice, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: types.COIN})
	require.NoError(t, err)

	err = f.e.Transfer(f.l, f.tx(bob, other), &payload.TransferChannel{SourceChannel: multi})
	assert.ErrorIs(t, err, channels.ErrInsufficientRes)

	// into another channel
	_, err = f.e.Commit(f.l, f.tx(bob, other), &payload.CommitChannel{PropertyID: f.b, Amount: types.COIN})
	require.NoError(t, err)
	require.NoError(t, f.e.Transfer(f.l, f.tx(alice, other), &payload.TransferChannel{SourceChannel: multi}))
	f.check(t)

	src, _ := f.e.Channel(multi)
	assert.Empty(t, src.Reserves)
	assert.Empty(t, src.Withdrawals)
	dst, _ := f.e.Channel(other)
	assert.Equal(t, channels.StatusActive, dst.Status)
	assert.Equal(t, alice, dst.PartyB)
	assert.EqualValues(t, 100*types.COIN, dst.Reserve(alice, f.a))
	assert.EqualValues(t, 10*types.COIN, dst.Reserve(alice, f.b))

	// out to a plain address
	require.NoError(t, f.e.Transfer(f.l, f.tx(alice, carol), &payload.TransferChannel{SourceChannel: other}))
	f.check(t)
	assert.EqualValues(t, 5100*types.COIN, f.l.Balance(carol, f.a))
}

func TestExpiryClosesChannel(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 100*types.COIN)
	f.commit(t, bob, f.b, 100*types.COIN)

	assert.Empty(t, f.e.BeginBlock(f.l, 300))
	events := f.e.BeginBlock(f.l, 301)
	require.Len(t, events, 2)
	for _, ev := range events {
		assert.True(t, ev.Closed)
	}
	f.check(t)

	c, _ := f.e.Channel(multi)
	assert.Equal(t, channels.StatusClosed, c.Status)
	assert.EqualValues(t, 5000*types.COIN, f.l.Balance(alice, f.a))
	assert.EqualValues(t, 5000*types.COIN, f.l.Balance(bob, f.b))

	// committing again reopens it from scratch
	f.height = 400
	reopened := f.commit(t, carol, f.a, types.COIN)
	assert.Equal(t, carol, reopened.PartyA)
	assert.Equal(t, channels.StatusPending, reopened.Status)
}

func TestExportImport(t *testing.T) {
	f := newFixture(t)
	f.commit(t, alice, f.a, 1000*types.COIN)
	_, err := f.e.Withdraw(f.tx(alice, multi), &payload.WithdrawChannel{PropertyID: f.a, Amount: types.COIN})
	require.NoError(t, err)

	restored := channels.NewEngine(channels.Params{Lifetime: 100, WithdrawalDelay: 5})
	restored.Import(f.e.Export())
	assert.Equal(t, f.e.Channels(), restored.Channels())
	require.NoError(t, restored.CheckReserves(f.l))
}

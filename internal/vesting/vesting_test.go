package vesting_test

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/vesting"
	"github.com/tradelayer/tradelayer/types"
)

const (
	admin = types.Address("admin")
	alice = types.Address("alice")
	bob   = types.Address("bob")
	carol = types.Address("carol")
)

func setup(t *testing.T) (*ledger.Store, *vesting.Engine) {
	t.Helper()
	l := ledger.NewStore()
	require.NoError(t, l.RegisterSystemProperty(ledger.Property{ID: types.PropertyALL, Name: "ALL", Divisible: true, Kind: ledger.KindSystem}))
	require.NoError(t, l.RegisterSystemProperty(ledger.Property{ID: types.PropertyVesting, Name: "Vesting ALL", Divisible: true, Kind: ledger.KindSystem}))
	e := vesting.NewEngine(vesting.Params{
		Admin:       admin,
		Pool:        1000 * types.COIN,
		CliffHeight: 120,
		Steps: []vesting.Step{
			{Volume: 400 * types.COIN, Fraction: decimal.RequireFromString("0.1505")},
			{Volume: 200 * types.COIN, Fraction: decimal.RequireFromString("0.075")},
		},
	})
	require.NoError(t, e.Genesis(l))
	return l, e
}

func send(t *testing.T, l *ledger.Store, e *vesting.Engine, from, to types.Address, amount, height int64) int64 {
	t.Helper()
	require.NoError(t, e.CheckSend(from, to, height))
	require.NoError(t, l.Transfer(from, to, types.PropertyVesting, amount))
	return e.OnTransfer(l, from, to, amount)
}

func TestVestingSchedule(t *testing.T) {
	l, e := setup(t)
	require.EqualValues(t, 1000*types.COIN, l.Balance(admin, types.PropertyVesting))

	credit := send(t, l, e, admin, alice, 100*types.COIN, 110)
	assert.Zero(t, credit)
	assert.EqualValues(t, 100*types.COIN, e.Unvested(alice))

	assert.ErrorIs(t, e.CheckSend(alice, bob, 110), vesting.ErrBeforeCliff)
	assert.ErrorIs(t, e.CheckSend(alice, admin, 130), vesting.ErrInvalidReceiver)

	// volume before the cliff releases nothing
	assert.Empty(t, e.EndBlock(l, 115, 250*types.COIN))
	assert.True(t, e.Fraction().IsZero())

	rel := e.EndBlock(l, 120, 250*types.COIN)
	require.Len(t, rel, 1)
	assert.EqualValues(t, 750000000, rel[0].Amount)
	assert.EqualValues(t, 9250000000, e.Unvested(alice))
	assert.Equal(t, "0.075", e.Fraction().String())

	// grants after the cliff pay the released share at once
	credit = send(t, l, e, admin, bob, 100*types.COIN, 121)
	assert.EqualValues(t, 750000000, credit)
	assert.EqualValues(t, 9250000000, e.Unvested(bob))

	// holders carry the unvested share along
	send(t, l, e, alice, carol, 50*types.COIN, 122)
	assert.EqualValues(t, 4625000000, e.Unvested(alice))
	assert.EqualValues(t, 4625000000, e.Unvested(carol))

	rel = e.EndBlock(l, 123, 400*types.COIN)
	require.Len(t, rel, 3)
	assert.Equal(t, []vesting.Release{
		{Address: alice, Amount: 377500000},
		{Address: bob, Amount: 755000000},
		{Address: carol, Amount: 377500000},
	}, rel)
	assert.EqualValues(t, 750000000+377500000, l.Balance(alice, types.PropertyALL))
	assert.EqualValues(t, 750000000+755000000, l.Balance(bob, types.PropertyALL))
	assert.EqualValues(t, 377500000, l.Balance(carol, types.PropertyALL))

	// no further step, nothing more to release
	assert.Empty(t, e.EndBlock(l, 124, 10000*types.COIN))
	require.NoError(t, l.CheckConservation())
}

func TestVestingExportImport(t *testing.T) {
	l, e := setup(t)
	send(t, l, e, admin, alice, 10*types.COIN, 110)
	e.EndBlock(l, 120, 200*types.COIN)

	var before, after bytes.Buffer
	e.WriteConsensus(&before)

	restored := vesting.NewEngine(vesting.Params{Admin: admin})
	restored.Import(e.Export())
	restored.WriteConsensus(&after)
	assert.Equal(t, before.String(), after.String())
	assert.Equal(t, e.Holders(), restored.Holders())
}

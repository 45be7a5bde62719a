package nodereward_test

import (
	"testing"

	"github.com/btcsuite/btcutil/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/ledger"
	"github.com/tradelayer/tradelayer/internal/nodereward"
	"github.com/tradelayer/tradelayer/internal/payload"
	"github.com/tradelayer/tradelayer/types"
)

func params() nodereward.Params {
	return nodereward.Params{
		Base:          100,
		DecayStart:    10,
		DecayFactor:   decimal.RequireFromString("0.5"),
		DecayInterval: 5,
		Tail:          10,
		Winners:       2,
	}
}

func receiver(b byte) string {
	return base58.CheckEncode([]byte{b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b, b}, 0x30)
}

func register(t *testing.T, e *nodereward.Engine, addrs ...types.Address) {
	t.Helper()
	for i, a := range addrs {
		require.NoError(t, e.Submit(types.TxContext{Sender: a, Height: 5}, &payload.SubmitNodeAddress{Receiver: receiver(byte(i + 1))}))
	}
}

func TestReward(t *testing.T) {
	e := nodereward.NewEngine(params())
	testCases := []struct {
		height int64
		want   int64
	}{
		{1, 100}, {9, 100}, {10, 50}, {14, 50}, {15, 25}, {20, 12}, {25, 10}, {1000000, 10},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.want, e.Reward(tc.height), "height %d", tc.height)
	}
}

func TestSubmitValidatesReceiver(t *testing.T) {
	e := nodereward.NewEngine(params())
	err := e.Submit(types.TxContext{Sender: "n1"}, &payload.SubmitNodeAddress{Receiver: "not-an-address"})
	assert.ErrorIs(t, err, nodereward.ErrInvalidReceiver)

	register(t, e, "n1")
	n, ok := e.Node("n1")
	require.True(t, ok)
	assert.Equal(t, receiver(1), n.Receiver)
	assert.EqualValues(t, 5, n.Registered)
}

func TestLotteryIsDeterministic(t *testing.T) {
	a := nodereward.NewEngine(params())
	b := nodereward.NewEngine(params())
	nodes := []types.Address{"n1", "n2", "n3", "n4", "n5"}
	register(t, a, nodes...)
	register(t, b, nodes...)

	prev := []byte("previous block hash")
	for h := int64(1); h < 30; h++ {
		wa, err := a.EndBlock(h, prev)
		require.NoError(t, err)
		wb, err := b.EndBlock(h, prev)
		require.NoError(t, err)
		require.Equal(t, wa, wb)
		require.Len(t, wa, 2)
		assert.NotEqual(t, wa[0].Address, wa[1].Address)
		assert.Equal(t, a.Reward(h), wa[0].Amount+wa[1].Amount)
		prev = []byte(wa[0].Address)
	}
	assert.Equal(t, a.Nodes(), b.Nodes())
}

func TestClaim(t *testing.T) {
	l := ledger.NewStore()
	require.NoError(t, l.RegisterSystemProperty(ledger.Property{ID: types.PropertyALL, Name: "ALL", Divisible: true, Kind: ledger.KindSystem}))
	p := params()
	p.Winners = 1
	e := nodereward.NewEngine(p)
	register(t, e, "n1")

	_, err := e.Claim(l, types.TxContext{Sender: "n1"})
	assert.ErrorIs(t, err, nodereward.ErrNothingToClaim)
	_, err = e.Claim(l, types.TxContext{Sender: "stranger"})
	assert.ErrorIs(t, err, nodereward.ErrNotRegistered)

	awards, err := e.EndBlock(1, []byte{1})
	require.NoError(t, err)
	require.Len(t, awards, 1)
	assert.Equal(t, types.Address("n1"), awards[0].Address)

	amt, err := e.Claim(l, types.TxContext{Sender: "n1"})
	require.NoError(t, err)
	assert.EqualValues(t, 100, amt)
	assert.EqualValues(t, 100, l.Balance(types.Address(receiver(1)), types.PropertyALL))

	n, _ := e.Node("n1")
	assert.Zero(t, n.Pending)
	assert.EqualValues(t, 100, n.Claimed)

	restored := nodereward.NewEngine(p)
	restored.Import(e.Export())
	assert.Equal(t, e.Nodes(), restored.Nodes())
}

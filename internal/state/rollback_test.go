package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/payload"
	sm "github.com/tradelayer/tradelayer/internal/state"
)

func TestRollback(t *testing.T) {
	ctx := context.Background()
	genDoc, state := makeGenesisState(t)
	blockExec, stateStore := makeExecutor(t, state)

	var err error
	state, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 1, issueLihki("tx1")))
	require.NoError(t, err)
	atOne := state

	state, _, err = blockExec.ApplyBlock(ctx, state, makeBlock("a", "a", 2,
		makeTx("tx2", alice, bob, &payload.SimpleSend{PropertyID: lihki, Amount: tokens}),
	))
	require.NoError(t, err)
	require.Equal(t, tokens, state.Ledger.Balance(bob, lihki))

	rolled, err := sm.Rollback(stateStore, genDoc, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rolled.LastBlockHeight)
	assert.Equal(t, "a-1", rolled.LastBlockHash)
	assert.Equal(t, atOne.ConsensusHash, rolled.ConsensusHash)
	assert.Zero(t, rolled.Ledger.Balance(bob, lihki))

	// height 2 is forgotten and the keyed state is the rolled back one
	_, err = stateStore.LoadHash(2)
	assert.ErrorIs(t, err, sm.ErrNoState)
	loaded, err := sm.LoadState(stateStore, genDoc)
	require.NoError(t, err)
	assert.Equal(t, rolled.ConsensusHash, loaded.ConsensusHash)

	_, err = sm.Rollback(stateStore, genDoc, 5)
	assert.ErrorIs(t, err, sm.ErrNoSnapshot)
}

// Replacing a branch through a rollback ends in the same state as applying
// the winning branch directly.
func TestReorgDeterminism(t *testing.T) {
	ctx := context.Background()
	genDoc, genesis := makeGenesisState(t)

	send := func(txid string, amount int64) chain.Tx {
		return makeTx(txid, alice, bob, &payload.SimpleSend{PropertyID: lihki, Amount: amount})
	}
	common := makeBlock("a", "a", 1, issueLihki("tx1"))
	winning := []*chain.Block{
		makeBlock("a", "a", 2, send("tx2", 3*tokens)),
		makeBlock("a", "a", 3, makeTx("tx3", bob, carol, &payload.SimpleSend{PropertyID: lihki, Amount: tokens})),
	}
	losing := []*chain.Block{
		makeBlock("b", "a", 2, send("tx2", 7*tokens)),
		makeBlock("b", "b", 3, makeTx("tx4", alice, "", &payload.MetaDExCancelAll{})),
	}

	// direct
	blockExec, _ := makeExecutor(t, genesis)
	direct, _, err := blockExec.ApplyBlock(ctx, genesis, common)
	require.NoError(t, err)
	for _, block := range winning {
		direct, _, err = blockExec.ApplyBlock(ctx, direct, block)
		require.NoError(t, err)
	}

	// through the losing branch
	blockExec, stateStore := makeExecutor(t, genesis)
	state, _, err := blockExec.ApplyBlock(ctx, genesis, common)
	require.NoError(t, err)
	for _, block := range losing {
		state, _, err = blockExec.ApplyBlock(ctx, state, block)
		require.NoError(t, err)
	}
	require.NotEqual(t, direct.ConsensusHash, state.ConsensusHash)

	_, _, err = blockExec.ApplyBlock(ctx, state, winning[0])
	require.Error(t, err, "the winning branch does not connect to the losing tip")

	state, err = sm.Rollback(stateStore, genDoc, 1)
	require.NoError(t, err)
	for _, block := range winning {
		state, _, err = blockExec.ApplyBlock(ctx, state, block)
		require.NoError(t, err)
	}
	assert.Equal(t, direct.ConsensusHash, state.ConsensusHash)
	assert.Equal(t, direct.LastBlockHash, state.LastBlockHash)
}

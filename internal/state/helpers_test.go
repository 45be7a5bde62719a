package state_test

import (
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/payload"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/types"
)

const (
	admin  = types.Address("admin")
	alice  = types.Address("alice")
	bob    = types.Address("bob")
	carol  = types.Address("carol")
	lihki  = types.FirstUserProperty
	tokens = int64(types.COIN)
)

func testGenesis(t *testing.T) *sm.GenesisDoc {
	t.Helper()
	genDoc, err := sm.GenesisDocFromTOML([]byte(config.TestGenesis))
	require.NoError(t, err)
	return genDoc
}

func makeGenesisState(t *testing.T) (*sm.GenesisDoc, *sm.State) {
	t.Helper()
	genDoc := testGenesis(t)
	state, err := sm.MakeGenesisState(genDoc)
	require.NoError(t, err)
	return genDoc, state
}

// makeExecutor returns an executor persisting into a fresh memdb, with the
// genesis state already saved.
func makeExecutor(t *testing.T, state *sm.State) (*sm.BlockExecutor, sm.Store) {
	t.Helper()
	stateStore := sm.NewStore(dbm.NewMemDB(), sm.StoreOptions{SyncWrites: true})
	require.NoError(t, stateStore.Save(state))
	return sm.NewBlockExecutor(stateStore, log.TestingLogger()), stateStore
}

type txOpt func(*chain.Tx)

func withFee(fee int64) txOpt           { return func(tx *chain.Tx) { tx.Fee = fee } }
func withBaseAmount(amt int64) txOpt    { return func(tx *chain.Tx) { tx.BaseAmount = amt } }
func withRawPayload(hexed string) txOpt { return func(tx *chain.Tx) { tx.Payload = hexed } }

func makeTx(txid string, sender, reference types.Address, msg payload.Msg, opts ...txOpt) chain.Tx {
	tx := chain.Tx{TxID: txid, Sender: sender, Reference: reference}
	if msg != nil {
		tx.Payload = hex.EncodeToString(payload.MustEncode(msg))
	}
	for _, opt := range opts {
		opt(&tx)
	}
	return tx
}

func blockHash(branch string, height int64) string {
	return fmt.Sprintf("%s-%d", branch, height)
}

// makeBlock builds the block at height of the named branch, linked to the
// previous block of parentBranch.
func makeBlock(branch, parentBranch string, height int64, txs ...chain.Tx) *chain.Block {
	prev := ""
	if height > 1 {
		prev = blockHash(parentBranch, height-1)
	}
	return &chain.Block{Height: height, Hash: blockHash(branch, height), PrevHash: prev, Txs: txs}
}

// issueLihki is the block creating 90,000,000 divisible lihki tokens for
// alice.
func issueLihki(txid string) chain.Tx {
	return makeTx(txid, alice, "", &payload.CreatePropertyFixed{
		PropertyType: payload.PropertyTypeDivisible,
		Name:         "lihki",
		Amount:       90000000 * tokens,
	})
}

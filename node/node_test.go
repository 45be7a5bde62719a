package node_test

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/google/orderedcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/chain/mocks"
	"github.com/tradelayer/tradelayer/internal/payload"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/node"
	"github.com/tradelayer/tradelayer/types"
)

const waitFor = 5 * time.Second

// dbs hands out one memdb per id, so a node built again over the same dbs
// sees what the previous one wrote.
type dbs map[string]dbm.DB

func (d dbs) provider(ctx *config.DBContext) (dbm.DB, error) {
	if db, ok := d[ctx.ID]; ok {
		return db, nil
	}
	db := dbm.NewMemDB()
	d[ctx.ID] = db
	return db, nil
}

func testGenesis(t *testing.T) *sm.GenesisDoc {
	t.Helper()
	genDoc, err := sm.GenesisDocFromTOML([]byte(config.TestGenesis))
	require.NoError(t, err)
	return genDoc
}

func makeNode(t *testing.T, source chain.Source, d dbs) *node.Node {
	t.Helper()
	n, err := node.NewNode(config.TestConfig(), testGenesis(t), source, d.provider,
		node.DefaultMetricsProvider(config.TestInstrumentationConfig()), log.TestingLogger())
	require.NoError(t, err)
	return n
}

func startNode(t *testing.T, n *node.Node) {
	t.Helper()
	require.NoError(t, n.Start(context.Background()))
	t.Cleanup(func() {
		if n.IsRunning() {
			require.NoError(t, n.Stop())
		}
	})
}

func block(branch, parent string, height int64, txs ...chain.Tx) *chain.Block {
	b := &chain.Block{Height: height, Hash: fmt.Sprintf("%s-%d", branch, height), Txs: txs}
	if height > 1 {
		b.PrevHash = fmt.Sprintf("%s-%d", parent, height-1)
	}
	return b
}

func send(txid string, amount int64) chain.Tx {
	msg := &payload.SimpleSend{PropertyID: types.FirstUserProperty, Amount: amount * types.COIN}
	return chain.Tx{TxID: txid, Sender: "alice", Reference: "bob", Payload: hex.EncodeToString(payload.MustEncode(msg))}
}

func issue(txid string) chain.Tx {
	msg := &payload.CreatePropertyFixed{PropertyType: payload.PropertyTypeDivisible, Name: "lihki", Amount: 1000 * types.COIN}
	return chain.Tx{TxID: txid, Sender: "alice", Payload: hex.EncodeToString(payload.MustEncode(msg))}
}

// expectedHash applies blocks to the genesis state without a node.
func expectedHash(t *testing.T, blocks ...*chain.Block) []byte {
	t.Helper()
	state, err := sm.MakeGenesisState(testGenesis(t))
	require.NoError(t, err)
	blockExec := sm.NewBlockExecutor(nil, log.NewNopLogger())
	for _, b := range blocks {
		state, _, err = blockExec.ApplyBlock(context.Background(), state, b)
		require.NoError(t, err)
	}
	return state.ConsensusHash
}

func waitForHeight(t *testing.T, n *node.Node, height int64, blockHash string) {
	t.Helper()
	require.Eventually(t, func() bool {
		res, err := n.Environment().GetConsensusHash(context.Background())
		return err == nil && res.Height == height && res.BlockHash == blockHash
	}, waitFor, 5*time.Millisecond, "node did not reach %s", blockHash)
}

func TestNodeFollowsChain(t *testing.T) {
	defer leaktest.Check(t)()

	source := chain.NewMemSource(1)
	a := []*chain.Block{block("a", "a", 1, issue("tx1")), block("a", "a", 2, send("tx2", 10))}
	for _, b := range a {
		require.NoError(t, source.Append(b))
	}

	n := makeNode(t, source, dbs{})
	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")

	// new blocks are picked up by polling
	a = append(a, block("a", "a", 3, send("tx3", 5)))
	require.NoError(t, source.Append(a[2]))
	waitForHeight(t, n, 3, "a-3")

	ctx := context.Background()
	hash, err := n.Environment().GetConsensusHash(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, expectedHash(t, a...), hash.ConsensusHash)

	bal, err := n.Environment().GetBalance(ctx, "bob", types.FirstUserProperty)
	require.NoError(t, err)
	assert.Equal(t, "15.00000000", bal.Balance)

	res, err := n.Environment().GetTransaction(ctx, "tx3")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Height)

	require.NoError(t, n.Stop())
	<-n.Halted()
	assert.NoError(t, n.Err())
}

func TestNodeHandlesReorg(t *testing.T) {
	defer leaktest.Check(t)()

	source := chain.NewMemSource(1)
	a := []*chain.Block{
		block("a", "a", 1, issue("tx1")),
		block("a", "a", 2, send("tx2", 10)),
		block("a", "a", 3, send("tx3", 20)),
	}
	for _, b := range a {
		require.NoError(t, source.Append(b))
	}

	n := makeNode(t, source, dbs{})
	startNode(t, n)
	waitForHeight(t, n, 3, "a-3")

	b := []*chain.Block{
		block("b", "a", 2, send("tx4", 1)),
		block("b", "b", 3),
		block("b", "b", 4, send("tx5", 2)),
	}
	require.NoError(t, source.Reorg(2, b...))
	waitForHeight(t, n, 4, "b-4")

	ctx := context.Background()
	hash, err := n.Environment().GetConsensusHash(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, expectedHash(t, a[0], b[0], b[1], b[2]), hash.ConsensusHash)

	bal, err := n.Environment().GetBalance(ctx, "bob", types.FirstUserProperty)
	require.NoError(t, err)
	assert.Equal(t, "3.00000000", bal.Balance)

	// results of the abandoned branch are gone
	_, err = n.Environment().GetTransaction(ctx, "tx3")
	assert.Error(t, err)
	res, err := n.Environment().GetTransaction(ctx, "tx5")
	require.NoError(t, err)
	assert.EqualValues(t, 4, res.Height)
	require.NoError(t, n.Stop())
}

func TestNodeHaltsOnTooDeepReorg(t *testing.T) {
	defer leaktest.Check(t)()

	genDoc := testGenesis(t)
	last := genDoc.MaxReorgDepth + 3
	source := chain.NewMemSource(1)
	for h := int64(1); h <= last; h++ {
		require.NoError(t, source.Append(block("a", "a", h)))
	}

	n := makeNode(t, source, dbs{})
	startNode(t, n)
	waitForHeight(t, n, last, fmt.Sprintf("a-%d", last))

	var fork []*chain.Block
	for h := int64(2); h <= last+1; h++ {
		parent := "b"
		if h == 2 {
			parent = "a"
		}
		fork = append(fork, block("b", parent, h))
	}
	require.NoError(t, source.Reorg(2, fork...))

	select {
	case <-n.Halted():
	case <-time.After(waitFor):
		t.Fatal("node did not halt")
	}
	assert.ErrorIs(t, n.Err(), node.ErrReorgTooDeep)

	// the state is left at the last applied block
	hash, err := n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, last, hash.Height)
	require.NoError(t, n.Stop())
}

func TestNodeRetriesFailingSource(t *testing.T) {
	defer leaktest.Check(t)()

	source := &mocks.Source{}
	source.On("TipHeight", mock.Anything).Return(int64(0), errors.New("connection refused")).Twice()
	source.On("TipHeight", mock.Anything).Return(int64(1), nil)
	source.On("BlockAt", mock.Anything, int64(1)).Return(block("a", "a", 1, issue("tx1")), nil)

	n := makeNode(t, source, dbs{})
	startNode(t, n)
	waitForHeight(t, n, 1, "a-1")
	require.NoError(t, n.Stop())

	assert.NoError(t, n.Err())
	source.AssertNumberOfCalls(t, "BlockAt", 1)
}

func TestNodeRestarts(t *testing.T) {
	defer leaktest.Check(t)()

	source := chain.NewMemSource(1)
	a := []*chain.Block{block("a", "a", 1, issue("tx1")), block("a", "a", 2, send("tx2", 10))}
	for _, b := range a {
		require.NoError(t, source.Append(b))
	}
	d := dbs{}

	n := makeNode(t, source, d)
	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")
	require.NoError(t, n.Stop())

	// the second node starts where the first one stopped
	n = makeNode(t, source, d)
	hash, err := n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, hash.Height)

	a = append(a, block("a", "a", 3, send("tx3", 1)))
	require.NoError(t, source.Append(a[2]))
	startNode(t, n)
	waitForHeight(t, n, 3, "a-3")
	hash, err = n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, expectedHash(t, a...), hash.ConsensusHash)
	require.NoError(t, n.Stop())
}

func TestNodeReplaysCorruptedState(t *testing.T) {
	defer leaktest.Check(t)()

	source := chain.NewMemSource(1)
	a := []*chain.Block{block("a", "a", 1, issue("tx1")), block("a", "a", 2, send("tx2", 10))}
	for _, b := range a {
		require.NoError(t, source.Append(b))
	}
	d := dbs{}

	n := makeNode(t, source, d)
	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")
	require.NoError(t, n.Stop())

	stateStore := sm.NewStore(d["state"], sm.StoreOptions{})
	state, err := sm.LoadState(stateStore, testGenesis(t))
	require.NoError(t, err)
	state.ConsensusHash = []byte("garbage")
	require.NoError(t, stateStore.Save(state))

	n = makeNode(t, source, d)
	hash, err := n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, hash.Height)

	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")
	hash, err = n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, expectedHash(t, a...), hash.ConsensusHash)
	require.NoError(t, n.Stop())
}

func TestNodeReplaysUndecodableState(t *testing.T) {
	defer leaktest.Check(t)()

	source := chain.NewMemSource(1)
	a := []*chain.Block{block("a", "a", 1, issue("tx1")), block("a", "a", 2, send("tx2", 10))}
	for _, b := range a {
		require.NoError(t, source.Append(b))
	}
	d := dbs{}

	n := makeNode(t, source, d)
	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")
	require.NoError(t, n.Stop())

	key, err := orderedcode.Append(nil, "engine", "dex")
	require.NoError(t, err)
	require.NoError(t, d["state"].Set(key, []byte("\x00garbage")))

	n = makeNode(t, source, d)
	hash, err := n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 0, hash.Height)

	startNode(t, n)
	waitForHeight(t, n, 2, "a-2")
	hash, err = n.Environment().GetConsensusHash(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, expectedHash(t, a...), hash.ConsensusHash)
	require.NoError(t, n.Stop())
}

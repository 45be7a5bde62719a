package chain_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradelayer/tradelayer/internal/chain"
)

func block(height int64, hash, prev string, txs ...chain.Tx) *chain.Block {
	return &chain.Block{Height: height, Hash: hash, PrevHash: prev, Txs: txs}
}

func TestMemSourceAppendAndReorg(t *testing.T) {
	ctx := context.Background()
	src := chain.NewMemSource(10)

	require.NoError(t, src.Append(block(10, "a", "")))
	require.NoError(t, src.Append(block(11, "b", "a")))
	require.Error(t, src.Append(block(13, "x", "b")), "gap")
	require.Error(t, src.Append(block(12, "x", "zz")), "does not connect")

	tip, err := src.TipHeight(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 11, tip)

	require.NoError(t, src.Reorg(11, block(11, "b2", "a"), block(12, "c2", "b2")))
	b, err := src.BlockAt(ctx, 11)
	require.NoError(t, err)
	assert.Equal(t, "b2", b.Hash)

	_, err = src.BlockAt(ctx, 13)
	assert.True(t, errors.Is(err, chain.ErrBlockNotFound))

	// a failed reorg leaves the chain untouched
	require.Error(t, src.Reorg(11, block(11, "b3", "nope")))
	b, err = src.BlockAt(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, "c2", b.Hash)
}

func TestBlockValidateBasic(t *testing.T) {
	testCases := []struct {
		name  string
		block *chain.Block
		err   string
	}{
		{"ok", block(1, "h", "", chain.Tx{TxID: "t1"}, chain.Tx{TxID: "t2"}), ""},
		{"no hash", block(1, "", ""), "missing block hash"},
		{"no txid", block(1, "h", "", chain.Tx{}), "missing txid"},
		{"dup txid", block(1, "h", "", chain.Tx{TxID: "t"}, chain.Tx{TxID: "t"}), "duplicate txid"},
		{"negative fee", block(1, "h", "", chain.Tx{TxID: "t", Fee: -1}), "negative amount"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			err := tc.block.ValidateBasic()
			if tc.err == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}

func TestTxContextAndPayload(t *testing.T) {
	tx := chain.Tx{TxID: "t", Sender: "s", Reference: "r", Payload: "0001", BaseAmount: 5, Fee: 1}
	bz, err := tx.PayloadBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, bz)

	tc := tx.Context(7, 2)
	assert.EqualValues(t, 7, tc.Height)
	assert.Equal(t, 2, tc.Index)
	assert.EqualValues(t, "r", tc.Reference)
	assert.EqualValues(t, 5, tc.BaseAmount)

	_, err = chain.Tx{TxID: "t", Payload: "zz"}.PayloadBytes()
	require.Error(t, err)
}

func writeBlocks(t *testing.T, path string, blocks ...*chain.Block) {
	t.Helper()
	var sb strings.Builder
	for _, b := range blocks {
		bz, err := json.Marshal(b)
		require.NoError(t, err)
		sb.Write(bz)
		sb.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, []byte(sb.String()), 0o644))
}

func TestFileSource(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "blocks.jsonl")
	writeBlocks(t, path, block(5, "a", ""), block(6, "b", "a"))

	src := chain.NewFileSource(path)
	tip, err := src.TipHeight(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, tip)

	writeBlocks(t, path, block(5, "a", ""), block(6, "b", "a"), block(7, "c", "b"))
	b, err := src.BlockAt(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "c", b.Hash)

	require.NoError(t, os.WriteFile(path, []byte("{not json\n"), 0o644))
	_, err = chain.ReadBlocks(path)
	require.Error(t, err)
}

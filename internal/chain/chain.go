// Package chain describes the blocks the protocol layer consumes from the
// underlying UTXO chain and the sources that serve them.
package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/tradelayer/tradelayer/types"
)

// ErrBlockNotFound is returned by a Source asked for a height above its tip.
var ErrBlockNotFound = errors.New("block not found")

// Tx is one chain transaction carrying (or not) a protocol payload. Sender
// and Reference are already resolved from the transaction's inputs and
// outputs.
type Tx struct {
	TxID      string        `json:"txid"`
	Sender    types.Address `json:"sender"`
	Reference types.Address `json:"reference,omitempty"`
	// Payload is the hex encoded marker payload. Empty for plain transfers.
	Payload    string `json:"payload,omitempty"`
	BaseAmount int64  `json:"base_amount,omitempty"`
	Fee        int64  `json:"fee,omitempty"`
}

// PayloadBytes decodes the hex payload.
func (tx Tx) PayloadBytes() ([]byte, error) {
	bz, err := hex.DecodeString(tx.Payload)
	if err != nil {
		return nil, fmt.Errorf("tx %s: payload: %w", tx.TxID, err)
	}
	return bz, nil
}

// Context returns the execution context of tx at position index of the
// block at height.
func (tx Tx) Context(height int64, index int) types.TxContext {
	return types.TxContext{
		TxID:       tx.TxID,
		Height:     height,
		Index:      index,
		Sender:     tx.Sender,
		Reference:  tx.Reference,
		BaseAmount: tx.BaseAmount,
		Fee:        tx.Fee,
	}
}

// Block is a connected block of the underlying chain.
type Block struct {
	Height   int64     `json:"height"`
	Hash     string    `json:"hash"`
	PrevHash string    `json:"prev_hash"`
	Time     time.Time `json:"time"`
	Txs      []Tx      `json:"txs"`
}

// ValidateBasic performs stateless checks on b.
func (b *Block) ValidateBasic() error {
	if b.Height < 0 {
		return fmt.Errorf("negative height %d", b.Height)
	}
	if b.Hash == "" {
		return errors.New("missing block hash")
	}
	seen := make(map[string]struct{}, len(b.Txs))
	for i, tx := range b.Txs {
		if tx.TxID == "" {
			return fmt.Errorf("tx %d: missing txid", i)
		}
		if _, ok := seen[tx.TxID]; ok {
			return fmt.Errorf("tx %d: duplicate txid %s", i, tx.TxID)
		}
		seen[tx.TxID] = struct{}{}
		if tx.BaseAmount < 0 || tx.Fee < 0 {
			return fmt.Errorf("tx %s: negative amount", tx.TxID)
		}
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{%d %s txs:%d}", b.Height, b.Hash, len(b.Txs))
}

// Source serves the blocks of the best chain. A reorganisation shows up as
// a block whose PrevHash differs from the hash previously served at the
// height below it.
type Source interface {
	// TipHeight returns the height of the best block.
	TipHeight(ctx context.Context) (int64, error)
	// BlockAt returns the best-chain block at height, or ErrBlockNotFound.
	BlockAt(ctx context.Context, height int64) (*Block, error)
}

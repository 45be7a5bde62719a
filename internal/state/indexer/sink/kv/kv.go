package kv

import (
	"encoding/json"
	"fmt"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/types"
)

const (
	txIDKey     = "tx.id"
	txHeightKey = "tx.height"
)

var _ indexer.EventSink = (*EventSink)(nil)

// EventSink is an indexer backend providing the tx result store over a
// tm-db database. Results are stored by txid and referenced by height so
// that a rollback can find them.
type EventSink struct {
	store dbm.DB
}

func NewEventSink(store dbm.DB) *EventSink {
	return &EventSink{store: store}
}

func (kves *EventSink) Type() indexer.EventSinkType {
	return indexer.KV
}

func (kves *EventSink) IndexTxResults(results []*types.TxResult) error {
	b := kves.store.NewBatch()
	defer b.Close()

	for _, result := range results {
		bz, err := json.Marshal(result)
		if err != nil {
			return err
		}
		if err := b.Set(primaryKey(result.TxID), bz); err != nil {
			return err
		}
		if err := b.Set(heightKey(result.Height, result.Index), []byte(result.TxID)); err != nil {
			return err
		}
	}
	return b.WriteSync()
}

func (kves *EventSink) GetTxResult(txid string) (*types.TxResult, error) {
	if txid == "" {
		return nil, indexer.ErrEmptyTxID
	}
	bz, err := kves.store.Get(primaryKey(txid))
	if err != nil {
		return nil, err
	}
	if bz == nil {
		return nil, nil
	}
	res := new(types.TxResult)
	if err := json.Unmarshal(bz, res); err != nil {
		return nil, fmt.Errorf("error reading TxResult: %w", err)
	}
	return res, nil
}

// TxResultsAt returns the results of the block at height in block order.
func (kves *EventSink) TxResultsAt(height int64) ([]*types.TxResult, error) {
	it, err := kves.store.Iterator(heightKey(height, 0), heightKey(height+1, 0))
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []*types.TxResult
	for ; it.Valid(); it.Next() {
		res, err := kves.GetTxResult(string(it.Value()))
		if err != nil {
			return nil, err
		}
		if res != nil {
			out = append(out, res)
		}
	}
	return out, it.Error()
}

func (kves *EventSink) Rollback(height int64) error {
	it, err := kves.store.Iterator(heightKey(height+1, 0), prefixEnd(heightPrefix()))
	if err != nil {
		return err
	}
	var keys, txids [][]byte
	for ; it.Valid(); it.Next() {
		keys = append(keys, append([]byte(nil), it.Key()...))
		txids = append(txids, append([]byte(nil), it.Value()...))
	}
	if err := it.Error(); err != nil {
		it.Close()
		return err
	}
	it.Close()

	b := kves.store.NewBatch()
	defer b.Close()
	for i := range keys {
		if err := b.Delete(keys[i]); err != nil {
			return err
		}
		if err := b.Delete(primaryKey(string(txids[i]))); err != nil {
			return err
		}
	}
	return b.WriteSync()
}

func (kves *EventSink) Stop() error {
	return kves.store.Close()
}

func primaryKey(txid string) []byte {
	key, err := orderedcode.Append(nil, txIDKey, txid)
	if err != nil {
		panic(err)
	}
	return key
}

func heightKey(height int64, index int) []byte {
	key, err := orderedcode.Append(nil, txHeightKey, height, int64(index))
	if err != nil {
		panic(err)
	}
	return key
}

func heightPrefix() []byte {
	key, err := orderedcode.Append(nil, txHeightKey)
	if err != nil {
		panic(err)
	}
	return key
}

// prefixEnd returns the first key after every key starting with prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

package indexer

import (
	"errors"

	"github.com/tradelayer/tradelayer/types"
)

type EventSinkType string

const (
	NULL EventSinkType = "null"
	KV   EventSinkType = "kv"
	PSQL EventSinkType = "psql"
)

var (
	// ErrEmptyTxID is returned when looking up a result without a txid.
	ErrEmptyTxID = errors.New("transaction id cannot be empty")
	// ErrNotSupported is returned by sinks that only write.
	ErrNotSupported = errors.New("not supported by this event sink")
)

// EventSink interface is defined the APIs for the IndexerService to interact
// with the data store.
//
// The IndexerService will accept a list of one or more EventSink types and
// hand every applied block's results to each of them in order.
type EventSink interface {

	// IndexTxResults stores the results of one block. The results must be in
	// block order.
	IndexTxResults([]*types.TxResult) error

	// GetTxResult returns the result of the given transaction, or nil when
	// it was never indexed.
	GetTxResult(txid string) (*types.TxResult, error)

	// Rollback drops every result above height.
	Rollback(height int64) error

	// Type checks the eventsink structure type.
	Type() EventSinkType

	// Stop will close the data store connection, if the eventsink supports it.
	Stop() error
}

package null

import (
	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/types"
)

var _ indexer.EventSink = (*EventSink)(nil)

// EventSink implements a no-op indexer.
type EventSink struct{}

func NewEventSink() indexer.EventSink {
	return &EventSink{}
}

func (nes *EventSink) Type() indexer.EventSinkType {
	return indexer.NULL
}

func (nes *EventSink) IndexTxResults(results []*types.TxResult) error {
	return nil
}

func (nes *EventSink) GetTxResult(txid string) (*types.TxResult, error) {
	return nil, nil
}

func (nes *EventSink) Rollback(height int64) error {
	return nil
}

func (nes *EventSink) Stop() error {
	return nil
}

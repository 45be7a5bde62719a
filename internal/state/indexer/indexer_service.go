package indexer

import (
	"context"
	"fmt"
	"time"

	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/libs/service"
	"github.com/tradelayer/tradelayer/types"
)

// Service fans the results of every applied block out to the configured
// sinks.
type Service struct {
	service.BaseService
	logger log.Logger

	eventSinks []EventSink
	metrics    *Metrics
}

// ServiceArgs are arguments for constructing a new indexer service.
type ServiceArgs struct {
	Sinks   []EventSink
	Metrics *Metrics
	Logger  log.Logger
}

// NewService constructs a new indexer service from the given arguments.
func NewService(args ServiceArgs) *Service {
	is := &Service{
		eventSinks: args.Sinks,
		metrics:    args.Metrics,
		logger:     args.Logger,
	}
	if is.metrics == nil {
		is.metrics = NopMetrics()
	}
	if is.logger == nil {
		is.logger = log.NewNopLogger()
	}
	is.BaseService = *service.NewBaseService(is.logger, "IndexerService", is)
	return is
}

func (is *Service) OnStart(context.Context) error { return nil }

// OnStop implements service.Service by closing the event sinks.
func (is *Service) OnStop() {
	for _, sink := range is.eventSinks {
		if err := sink.Stop(); err != nil {
			is.logger.Error("failed to close eventsink", "eventsink", sink.Type(), "err", err)
		}
	}
}

// Index writes the results of the block at height to every sink. Indexing
// failures are logged; they never affect state.
func (is *Service) Index(height int64, results []*types.TxResult) {
	if !IndexingEnabled(is.eventSinks) || len(results) == 0 {
		return
	}
	for _, sink := range is.eventSinks {
		start := time.Now()
		if err := sink.IndexTxResults(results); err != nil {
			is.logger.Error("failed to index block txs", "height", height, "err", err)
			continue
		}
		is.metrics.TxResultsSeconds.Observe(time.Since(start).Seconds())
		is.metrics.TransactionsIndexed.Add(float64(len(results)))
		is.logger.Debug("indexed txs", "height", height, "sink", sink.Type())
	}
}

// Rollback drops the results above height from every sink.
func (is *Service) Rollback(height int64) error {
	for _, sink := range is.eventSinks {
		if err := sink.Rollback(height); err != nil {
			return fmt.Errorf("rolling back %s sink to %d: %w", sink.Type(), height, err)
		}
	}
	is.metrics.Rollbacks.Add(1)
	return nil
}

// GetTxResult looks txid up in the first sink that can answer.
func (is *Service) GetTxResult(txid string) (*types.TxResult, error) {
	for _, sink := range is.eventSinks {
		if sink.Type() != KV {
			continue
		}
		return sink.GetTxResult(txid)
	}
	return nil, ErrNotSupported
}

// KVSinkEnabled returns the given eventSinks is containing KVEventSink.
func KVSinkEnabled(sinks []EventSink) bool {
	for _, sink := range sinks {
		if sink.Type() == KV {
			return true
		}
	}

	return false
}

// IndexingEnabled returns the given eventSinks is supporting the indexing services.
func IndexingEnabled(sinks []EventSink) bool {
	for _, sink := range sinks {
		if sink.Type() == KV || sink.Type() == PSQL {
			return true
		}
	}

	return false
}

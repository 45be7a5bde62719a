package node

import (
	"errors"
	"fmt"

	"github.com/tradelayer/tradelayer/config"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/internal/state/indexer/sink"
	"github.com/tradelayer/tradelayer/libs/log"
)

// MetricsProvider returns the state and indexer metrics of a chain.
type MetricsProvider func(chainID string) (*sm.Metrics, *indexer.Metrics)

// DefaultMetricsProvider returns Metrics build using Prometheus client library
// if Prometheus is enabled. Otherwise, it returns no-op Metrics.
func DefaultMetricsProvider(cfg *config.InstrumentationConfig) MetricsProvider {
	return func(chainID string) (*sm.Metrics, *indexer.Metrics) {
		if cfg.Prometheus {
			return sm.PrometheusMetrics(cfg.Namespace, "chain_id", chainID),
				indexer.PrometheusMetrics(cfg.Namespace, "chain_id", chainID)
		}
		return sm.NopMetrics(), indexer.NopMetrics()
	}
}

func initDBs(cfg *config.Config, dbProvider config.DBProvider) (sm.Store, error) {
	stateDB, err := dbProvider(&config.DBContext{ID: config.StateDBID, Config: cfg})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	return sm.NewStore(stateDB, sm.StoreOptions{SyncWrites: cfg.Storage.SyncWrites}), nil
}

func createIndexerService(
	cfg *config.Config,
	dbProvider config.DBProvider,
	logger log.Logger,
	chainID string,
	metrics *indexer.Metrics,
) (*indexer.Service, []indexer.EventSink, error) {
	eventSinks, err := sink.EventSinksFromConfig(cfg, dbProvider, chainID)
	if err != nil {
		return nil, nil, err
	}
	indexerService := indexer.NewService(indexer.ServiceArgs{
		Sinks:   eventSinks,
		Logger:  logger.With("module", "txindex"),
		Metrics: metrics,
	})
	return indexerService, eventSinks, nil
}

// loadStateFromDBOrGenesis returns the persisted state, or the genesis state
// when there is none, it cannot be decoded or it fails its hash check. In
// the latter cases the store and the indexer are reset so the chain is
// replayed from its first block.
func loadStateFromDBOrGenesis(
	stateStore sm.Store,
	genDoc *sm.GenesisDoc,
	indexerService *indexer.Service,
	logger log.Logger,
) (*sm.State, error) {
	state, err := sm.LoadState(stateStore, genDoc)
	var mismatch sm.ErrHashMismatch
	switch {
	case err == nil:
		return state, nil
	case errors.Is(err, sm.ErrNoState):
		logger.Info("no stored state; starting from genesis", "chain_id", genDoc.ChainID)
	case errors.Is(err, sm.ErrCorruptState):
		logger.Error("stored state cannot be decoded; replaying from genesis", "err", err)
	case errors.As(err, &mismatch):
		logger.Error("stored state is corrupted; replaying from genesis",
			"height", mismatch.Height, "stored", fmt.Sprintf("%X", mismatch.Stored), "got", fmt.Sprintf("%X", mismatch.Got))
	default:
		return nil, err
	}

	state, err = sm.MakeGenesisState(genDoc)
	if err != nil {
		return nil, err
	}
	if err := stateStore.Save(state); err != nil {
		return nil, err
	}
	if err := stateStore.Truncate(state.LastBlockHeight); err != nil {
		return nil, err
	}
	if err := indexerService.Rollback(state.LastBlockHeight); err != nil {
		return nil, err
	}
	return state, nil
}

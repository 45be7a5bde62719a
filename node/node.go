// Package node follows the underlying chain and applies its blocks to the
// protocol state.
package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tradelayer/tradelayer/config"
	"github.com/tradelayer/tradelayer/internal/chain"
	"github.com/tradelayer/tradelayer/internal/query"
	sm "github.com/tradelayer/tradelayer/internal/state"
	"github.com/tradelayer/tradelayer/internal/state/indexer"
	"github.com/tradelayer/tradelayer/libs/log"
	"github.com/tradelayer/tradelayer/libs/service"
	"github.com/tradelayer/tradelayer/types"
)

// ErrReorgTooDeep is returned when the chain reorganized below the oldest
// retained snapshot.
var ErrReorgTooDeep = errors.New("reorganization deeper than max_reorg_depth")

// Node is the single writer of the protocol state. It polls the block
// source, applies every new block and rolls back when the source switched
// branches.
type Node struct {
	service.BaseService
	logger log.Logger

	config *config.Config
	genDoc *sm.GenesisDoc
	source chain.Source

	stateStore     sm.Store
	blockExec      *sm.BlockExecutor
	indexerService *indexer.Service
	env            *query.Environment
	metrics        *sm.Metrics
	prometheusSrv  *http.Server

	// owned by the follow routine
	state *sm.State

	cancel context.CancelFunc
	halted chan struct{}
	mtx    sync.Mutex
	err    error
}

// New builds a node from its configuration, reading blocks from the
// configured blocks file.
func New(cfg *config.Config, logger log.Logger) (*Node, error) {
	genDoc, err := sm.GenesisDocFromFile(cfg.GenesisFile())
	if err != nil {
		return nil, err
	}
	return NewNode(cfg, genDoc, chain.NewFileSource(cfg.Chain.BlocksFilePath()),
		config.DefaultDBProvider, DefaultMetricsProvider(cfg.Instrumentation), logger)
}

// NewNode returns a node following source from the state persisted by
// dbProvider, or from genDoc on a fresh database.
func NewNode(
	cfg *config.Config,
	genDoc *sm.GenesisDoc,
	source chain.Source,
	dbProvider config.DBProvider,
	metricsProvider MetricsProvider,
	logger log.Logger,
) (*Node, error) {
	stateStore, err := initDBs(cfg, dbProvider)
	if err != nil {
		return nil, err
	}
	closeOnErr := func(err error) error {
		if cerr := stateStore.Close(); cerr != nil {
			return fmt.Errorf("%w (also failed to close db: %v)", err, cerr)
		}
		return err
	}

	smMetrics, indexerMetrics := metricsProvider(genDoc.ChainID)

	indexerService, _, err := createIndexerService(cfg, dbProvider, logger, genDoc.ChainID, indexerMetrics)
	if err != nil {
		return nil, closeOnErr(err)
	}

	state, err := loadStateFromDBOrGenesis(stateStore, genDoc, indexerService, logger)
	if err != nil {
		return nil, closeOnErr(err)
	}

	blockExec := sm.NewBlockExecutor(
		stateStore,
		logger.With("module", "state"),
		sm.BlockExecutorWithMetrics(smMetrics),
		sm.BlockExecutorWithIndexer(indexerService),
	)

	n := &Node{
		logger:         logger,
		config:         cfg,
		genDoc:         genDoc,
		source:         source,
		stateStore:     stateStore,
		blockExec:      blockExec,
		indexerService: indexerService,
		env:            query.NewEnvironment(state, indexerService),
		metrics:        smMetrics,
		state:          state,
		halted:         make(chan struct{}),
	}
	n.BaseService = *service.NewBaseService(logger, "Node", n)

	logger.Info("loaded state",
		"chain_id", genDoc.ChainID,
		"height", state.LastBlockHeight,
		"consensus_hash", state.ConsensusHash,
	)
	return n, nil
}

// OnStart starts the indexer, the metrics server and the follow routine.
func (n *Node) OnStart(ctx context.Context) error {
	if err := n.indexerService.Start(ctx); err != nil {
		return err
	}

	ctx, n.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	if n.config.Instrumentation.Prometheus && n.config.Instrumentation.PrometheusListenAddr != "" {
		n.prometheusSrv = n.startPrometheusServer(n.config.Instrumentation.PrometheusListenAddr)
		g.Go(func() error {
			<-gctx.Done()
			return n.prometheusSrv.Shutdown(context.Background())
		})
	}
	g.Go(func() error { return n.followRoutine(gctx) })

	go func() {
		defer close(n.halted)
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			n.logger.Error("node halted", "height", n.state.LastBlockHeight, "err", err)
			n.mtx.Lock()
			n.err = err
			n.mtx.Unlock()
		}
	}()
	return nil
}

// OnStop waits for the follow routine to finish, then closes the indexer
// and the database.
func (n *Node) OnStop() {
	n.logger.Info("Stopping Node")
	if n.cancel != nil {
		n.cancel()
		<-n.halted
	}
	if err := n.indexerService.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
		n.logger.Error("failed to stop the indexer service", "err", err)
	}
	if err := n.stateStore.Close(); err != nil {
		n.logger.Error("problem closing statestore", "err", err)
	}
}

// Halted is closed once the follow routine returned, either because the
// node was stopped or because applying a block failed.
func (n *Node) Halted() <-chan struct{} { return n.halted }

// Err returns the error that halted the node, if any.
func (n *Node) Err() error {
	n.mtx.Lock()
	defer n.mtx.Unlock()
	return n.err
}

// Environment returns the read surface over the last applied state.
func (n *Node) Environment() *query.Environment { return n.env }

// GenesisDoc returns the genesis the node was built from.
func (n *Node) GenesisDoc() *sm.GenesisDoc { return n.genDoc }

func (n *Node) startPrometheusServer(addr string) *http.Server {
	srv := &http.Server{
		Addr: addr,
		Handler: promhttp.InstrumentMetricHandler(
			prometheus.DefaultRegisterer, promhttp.HandlerFor(
				prometheus.DefaultGatherer,
				promhttp.HandlerOpts{MaxRequestsInFlight: n.config.Instrumentation.MaxOpenConnections},
			),
		),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Error starting or closing listener:
			n.logger.Error("Prometheus HTTP server ListenAndServe", "err", err)
		}
	}()
	return srv
}

// followRoutine syncs with the source until ctx is done or a block cannot be
// applied. Source failures are retried with an exponential backoff.
func (n *Node) followRoutine(ctx context.Context) error {
	ticker := time.NewTicker(n.config.Chain.PollInterval)
	defer ticker.Stop()

	for {
		if err := n.syncWithRetry(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *Node) syncWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = n.config.Chain.PollInterval
	b.MaxInterval = n.config.Chain.RetryMaxInterval
	b.MaxElapsedTime = n.config.Chain.RetryMaxElapsed

	var attempts int
	notify := func(err error, next time.Duration) {
		attempts++
		n.logger.Error("block source failed; retrying", "attempt", attempts, "next_retry_in", next, "err", err)
	}
	return backoff.RetryNotify(func() error { return n.sync(ctx) }, backoff.WithContext(b, ctx), notify)
}

// sync applies every block between the state and the source tip. Errors of
// the source are returned as is so they are retried; anything else stops
// the node.
func (n *Node) sync(ctx context.Context) error {
	tip, err := n.source.TipHeight(ctx)
	if err != nil {
		return err
	}
	for height := n.state.LastBlockHeight + 1; height <= tip; height++ {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		block, err := n.source.BlockAt(ctx, height)
		if err != nil {
			return err
		}

		err = n.applyBlock(ctx, block)
		var mismatch sm.ErrPrevHashMismatch
		switch {
		case err == nil:
		case errors.As(err, &mismatch):
			n.logger.Info("chain reorganized", "height", height, "prev_hash", mismatch.Got, "last_applied", mismatch.Expected)
			if err := n.handleReorg(ctx); err != nil {
				return err
			}
			// start over from the fork point
			return n.sync(ctx)
		default:
			return backoff.Permanent(err)
		}
	}
	return nil
}

func (n *Node) applyBlock(ctx context.Context, block *chain.Block) error {
	state, results, err := n.blockExec.ApplyBlock(ctx, n.state, block)
	if err != nil {
		return err
	}
	var invalid int
	for _, res := range results {
		if res.Status != types.TxValid {
			invalid++
		}
	}
	n.logger.Debug("block results", "height", block.Height, "results", len(results), "not_valid", invalid)
	n.setState(state)
	return nil
}

func (n *Node) setState(state *sm.State) {
	n.state = state
	n.env.SetState(state)
}

// handleReorg walks back from the last applied block to the highest height
// whose block the source still serves, and rolls the state back to it.
func (n *Node) handleReorg(ctx context.Context) error {
	fork, err := n.findFork(ctx)
	if err != nil {
		return err
	}
	state, err := sm.Rollback(n.stateStore, n.genDoc, fork)
	if err != nil {
		if errors.Is(err, sm.ErrNoSnapshot) {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrReorgTooDeep, err))
		}
		return backoff.Permanent(err)
	}
	if err := n.indexerService.Rollback(fork); err != nil {
		return backoff.Permanent(err)
	}
	n.metrics.Rollbacks.Add(1)
	n.logger.Info("rolled back", "height", fork, "from", n.state.LastBlockHeight, "consensus_hash", state.ConsensusHash)
	n.setState(state)
	return nil
}

func (n *Node) findFork(ctx context.Context) (int64, error) {
	last := n.state.LastBlockHeight
	lowest := last - n.genDoc.MaxReorgDepth
	for h := last; h >= lowest; h-- {
		if h < n.genDoc.GenesisHeight {
			return h, nil
		}
		applied, err := n.stateStore.LoadBlockHash(h)
		if err != nil {
			return 0, backoff.Permanent(err)
		}
		block, err := n.source.BlockAt(ctx, h)
		if err != nil {
			return 0, err
		}
		if block.Hash == applied {
			return h, nil
		}
	}
	return 0, backoff.Permanent(fmt.Errorf("%w: no common block above height %d", ErrReorgTooDeep, lowest))
}

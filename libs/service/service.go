package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tradelayer/tradelayer/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates. If the service is already running, Start
	// must report an error.
	Start(context.Context) error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the
// BaseService implementation wraps.
type Implementation interface {
	Service

	// Called by the Services Start Method
	OnStart(context.Context) error

	// Called when the service's context is canceled.
	OnStop()
}

type runState uint8

const (
	stateIdle runState = iota
	stateRunning
	stateStopped
)

// BaseService tracks the lifecycle of an Implementation. A service runs from
// a successful Start until Stop is called or the context passed to Start is
// canceled, whichever comes first. A stopped service cannot be restarted.
//
//	type Indexer struct {
//		service.BaseService
//		...
//	}
//
//	func NewIndexer(logger log.Logger) *Indexer {
//		ix := &Indexer{}
//		ix.BaseService = *service.NewBaseService(logger, "Indexer", ix)
//		return ix
//	}
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx   sync.Mutex
	state runState
	quit  chan struct{}
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start runs OnStart and, on success, watches ctx so the service stops when
// the context is canceled.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	switch bs.state {
	case stateRunning:
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	case stateStopped:
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}

	bs.logger.Info("starting service", "service", bs.name, "impl", bs.impl.String())
	if err := bs.impl.OnStart(ctx); err != nil {
		bs.mtx.Unlock()
		return err
	}
	bs.state = stateRunning
	bs.mtx.Unlock()

	go func() {
		select {
		case <-bs.quit:
		case <-ctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "service", bs.name, "err", err)
			}
		}
	}()

	return nil
}

// Stop calls OnStop and releases everybody blocked in Wait.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()

	switch bs.state {
	case stateIdle:
		bs.logger.Error("not stopping service; not started yet", "service", bs.name)
		return ErrNotStarted
	case stateStopped:
		return ErrAlreadyStopped
	}

	bs.logger.Info("stopping service", "service", bs.name, "impl", bs.impl.String())
	bs.impl.OnStop()
	bs.state = stateStopped
	close(bs.quit)

	return nil
}

// IsRunning reports whether the service has started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.state == stateRunning
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }

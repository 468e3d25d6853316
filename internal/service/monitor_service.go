// Package service glues the monitor engine to durable wallet storage.
// The engine itself is storage-agnostic; this layer restores scheduler
// state at startup and persists checkpoints as checks complete.
package service

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/monitor"
	"github.com/wallet-monitor/internal/types"
)

// WalletRepository is the durable wallet store the service reads at startup
// and writes checkpoints back to.
type WalletRepository interface {
	List(ctx context.Context) ([]*types.WalletConfig, error)
	UpdateCheckpoint(ctx context.Context, address string, checkedAt time.Time, balance *big.Int) error
	MarkDegraded(ctx context.Context, address string) error
}

// MonitorService keeps the scheduler and the wallet repository in sync.
// It is optional: with no repository configured the engine runs purely
// in memory and wallet configs do not survive a restart.
type MonitorService struct {
	engine *monitor.Engine
	repo   WalletRepository
	logger *logging.Logger

	mu      sync.Mutex
	sub     *monitor.Subscription
	done    chan struct{}
	running bool
}

// NewMonitorService creates a service over the given engine and repository.
func NewMonitorService(engine *monitor.Engine, repo WalletRepository, logger *logging.Logger) *MonitorService {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &MonitorService{
		engine: engine,
		repo:   repo,
		logger: logger.WithField("component", "monitor_service"),
	}
}

// LoadWallets seeds the scheduler from the repository. Checkpoints are
// restored so a restart resumes the cadence instead of re-checking every
// wallet at once. Wallets that fail to load are skipped, not fatal.
func (s *MonitorService) LoadWallets(ctx context.Context) (int, error) {
	wallets, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}

	scheduler := s.engine.Scheduler()
	loaded := 0
	for _, w := range wallets {
		if _, err := scheduler.AddWallet(w.Clone()); err != nil {
			s.logger.WithError(err).WithField("address", w.Address).Warn("Skipping persisted wallet")
			continue
		}
		if !w.LastCheckedAt.IsZero() {
			scheduler.SetLastChecked(w.Address, w.LastCheckedAt, w.LastKnownBalanceWei)
		}
		if w.Degraded {
			scheduler.MarkDegraded(w.Address)
		}
		loaded++
	}

	s.logger.WithField("count", loaded).Info("Loaded persisted wallets into scheduler")
	return loaded, nil
}

// Start subscribes to the engine's event stream and persists checkpoints
// in the background. Idempotent.
func (s *MonitorService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	s.sub = s.engine.Events().Subscribe()
	s.done = make(chan struct{})
	s.running = true

	go s.consume(ctx, s.sub, s.done)
}

// Stop unsubscribes and waits for the consumer goroutine to exit.
func (s *MonitorService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	sub, done := s.sub, s.done
	s.running = false
	s.sub = nil
	s.done = nil
	s.mu.Unlock()

	sub.Close()
	<-done
}

func (s *MonitorService) consume(ctx context.Context, sub *monitor.Subscription, done chan struct{}) {
	defer close(done)

	for event := range sub.C {
		switch event.Kind {
		case types.EventWalletChecked:
			s.persistCheckpoint(ctx, event)
		case types.EventError:
			if event.ErrorKind == string(errors.CategoryInvalidAddress) {
				s.persistDegraded(ctx, event.Address)
			}
		}
	}
}

func (s *MonitorService) persistCheckpoint(ctx context.Context, event types.StatusEvent) {
	if err := s.repo.UpdateCheckpoint(ctx, event.Address, event.At, event.BalanceWei); err != nil {
		// The observation itself is already durable in history storage;
		// a stale checkpoint only costs one early re-check after restart.
		s.logger.WithError(err).WithField("address", event.Address).Error("Failed to persist checkpoint")
	}
}

func (s *MonitorService) persistDegraded(ctx context.Context, address string) {
	if err := s.repo.MarkDegraded(ctx, address); err != nil {
		if errors.IsNotFound(err) {
			return
		}
		s.logger.WithError(err).WithField("address", address).Error("Failed to persist degraded flag")
	}
}

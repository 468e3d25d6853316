package monitor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/logging"
	"github.com/wallet-monitor/internal/types"
)

// EngineConfig configures the monitor engine.
type EngineConfig struct {
	// PollLoopPeriod is how often the engine looks for due wallets.
	PollLoopPeriod time.Duration
	// MaxConcurrentChecks bounds simultaneous balance fetches. Keep it
	// below the provider's request quota.
	MaxConcurrentChecks int
	// DrainTimeout is how long Stop waits for in-flight checks.
	DrainTimeout time.Duration
}

// DefaultEngineConfig returns engine defaults sized for the Etherscan
// free tier.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PollLoopPeriod:      10 * time.Second,
		MaxConcurrentChecks: 3,
		DrainTimeout:        30 * time.Second,
	}
}

// Engine drives the monitoring loop: it asks the scheduler for due
// wallets, fetches balances with bounded concurrency, persists
// observations, and routes alerts to the sink.
type Engine struct {
	scheduler *WalletScheduler
	fetcher   BalanceFetcher
	store     HistoryStore
	sink      AlertSink
	events    *EventBus
	clock     Clock
	logger    *logging.Logger
	cfg       EngineConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewEngine creates a monitor engine. The sink may be nil, in which case
// alerts are logged and dropped.
func NewEngine(scheduler *WalletScheduler, fetcher BalanceFetcher, store HistoryStore, sink AlertSink, events *EventBus, clock Clock, logger *logging.Logger, cfg EngineConfig) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	if events == nil {
		events = NewEventBus()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	if cfg.PollLoopPeriod <= 0 {
		cfg.PollLoopPeriod = DefaultEngineConfig().PollLoopPeriod
	}
	if cfg.MaxConcurrentChecks <= 0 {
		cfg.MaxConcurrentChecks = DefaultEngineConfig().MaxConcurrentChecks
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultEngineConfig().DrainTimeout
	}
	return &Engine{
		scheduler: scheduler,
		fetcher:   fetcher,
		store:     store,
		sink:      sink,
		events:    events,
		clock:     clock,
		logger:    logger.WithField("component", "engine"),
		cfg:       cfg,
	}
}

// Events returns the engine's event bus.
func (e *Engine) Events() *EventBus {
	return e.events
}

// Scheduler returns the engine's wallet scheduler.
func (e *Engine) Scheduler() *WalletScheduler {
	return e.scheduler
}

// Running reports whether the poll loop is active.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Start launches the poll loop. Calling Start on a running engine is a
// no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel
	e.done = make(chan struct{})

	e.events.Publish(types.StatusEvent{
		Kind:    types.EventConnectionStatus,
		Message: "monitoring started",
		At:      e.clock.Now(),
	})
	e.logger.WithField("pollPeriod", e.cfg.PollLoopPeriod.String()).Info("Monitor engine started")

	go e.loop(loopCtx)
}

// Stop cancels the poll loop and waits up to DrainTimeout for in-flight
// checks to finish. Checks still running after the timeout are abandoned.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	cancel := e.cancel
	done := e.done
	e.mu.Unlock()

	cancel()

	select {
	case <-done:
		e.logger.Info("Monitor engine stopped")
	case <-time.After(e.cfg.DrainTimeout):
		e.logger.Warn("Monitor engine drain timeout exceeded, abandoning in-flight checks")
	}

	e.events.Publish(types.StatusEvent{
		Kind:    types.EventConnectionStatus,
		Message: "monitoring stopped",
		At:      e.clock.Now(),
	})
}

func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)

	ticker := e.clock.NewTicker(e.cfg.PollLoopPeriod)
	defer ticker.Stop()

	// First pass runs immediately so freshly added wallets are not stuck
	// waiting a full poll period.
	e.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			e.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single scheduling pass: every due wallet is checked,
// with concurrency capped at MaxConcurrentChecks. It returns once all
// dispatched checks have completed.
func (e *Engine) RunOnce(ctx context.Context) {
	due := e.scheduler.DueWallets(e.clock.Now())
	if len(due) == 0 {
		return
	}

	sem := make(chan struct{}, e.cfg.MaxConcurrentChecks)
	var wg sync.WaitGroup

	for _, w := range due {
		if ctx.Err() != nil {
			break
		}
		if !e.scheduler.BeginCheck(w.Address) {
			continue
		}

		sem <- struct{}{}
		wg.Add(1)
		go func(w *types.WalletConfig) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := e.checkWallet(ctx, w); err != nil {
				e.logger.WithError(err).WithField("address", w.Address).Warn("Wallet check failed")
			}
		}(w)
	}

	wg.Wait()
}

// CheckNow runs an immediate check for one wallet, bypassing the interval.
// It fails when the wallet is unknown or a check is already in flight.
func (e *Engine) CheckNow(ctx context.Context, address string) (*types.BalanceObservation, error) {
	w, err := e.scheduler.GetWallet(address)
	if err != nil {
		return nil, err
	}
	if !w.Enabled {
		return nil, errors.NewValidationError("address", "wallet is disabled")
	}
	if w.Degraded {
		return nil, errors.NewValidationError("address", "wallet is degraded; re-enable it to resume checks")
	}
	if !e.scheduler.BeginCheck(w.Address) {
		return nil, errors.NewValidationError("address", "a check is already in flight for this wallet")
	}
	return e.checkWallet(ctx, w)
}

// checkWallet runs one complete check. The caller must have claimed the
// in-flight slot via BeginCheck; checkWallet always releases it.
func (e *Engine) checkWallet(ctx context.Context, w *types.WalletConfig) (*types.BalanceObservation, error) {
	balance, err := e.fetcher.FetchBalance(ctx, w.Address)
	if err != nil {
		e.scheduler.AbortCheck(w.Address)
		if errors.IsInvalidAddress(err) {
			// The provider says this address can never resolve. Stop
			// scheduling it instead of burning quota every pass.
			e.scheduler.MarkDegraded(w.Address)
			e.logger.WithField("address", w.Address).Warn("Provider rejected address, wallet degraded")
		}
		e.publishError(w.Address, err)
		return nil, err
	}

	prev, err := e.store.LastObservation(ctx, w.Address)
	if err != nil {
		e.scheduler.AbortCheck(w.Address)
		e.publishError(w.Address, err)
		return nil, err
	}

	observedAt := e.clock.Now()
	var prevBalance *big.Int
	if prev != nil {
		prevBalance = prev.BalanceWei
		// Per-address history is strictly ordered. If the clock reads at
		// or before the previous observation, nudge forward.
		if !observedAt.After(prev.ObservedAt) {
			observedAt = prev.ObservedAt.Add(time.Nanosecond)
		}
	}

	payload := Evaluate(w.Address, prevBalance, balance, w.ThresholdWei, observedAt)

	obs := &types.BalanceObservation{
		ID:         uuid.NewString(),
		Address:    w.Address,
		BalanceWei: new(big.Int).Set(balance),
		ObservedAt: observedAt,
		Alerted:    payload != nil,
	}
	if prevBalance != nil {
		obs.DeltaWei = new(big.Int).Sub(balance, prevBalance)
	}

	if err := e.store.Append(ctx, obs); err != nil {
		// The check is abandoned entirely: no scheduler update, so the
		// wallet stays due and the gap in history is bounded.
		e.scheduler.AbortCheck(w.Address)
		e.publishError(w.Address, err)
		return nil, err
	}

	e.scheduler.FinishCheck(w.Address, balance, observedAt)

	e.events.Publish(types.StatusEvent{
		Kind:       types.EventWalletChecked,
		Address:    w.Address,
		BalanceWei: new(big.Int).Set(balance),
		Alerted:    obs.Alerted,
		At:         observedAt,
	})

	if payload != nil && e.sink != nil {
		if err := e.sink.Deliver(ctx, payload); err != nil {
			// The observation is already durable; alerting is best effort.
			e.logger.WithError(err).WithField("address", w.Address).Error("Alert delivery failed")
			e.publishError(w.Address, errors.NewSinkFailureError("alert", err))
		}
	} else if payload != nil {
		e.logger.WithFields(map[string]interface{}{
			"address":  w.Address,
			"deltaWei": payload.DeltaWei.String(),
		}).Info("Threshold alert (no sink configured)")
	}

	return obs, nil
}

func (e *Engine) publishError(address string, err error) {
	e.events.Publish(types.StatusEvent{
		Kind:      types.EventError,
		Address:   address,
		ErrorKind: string(errors.CategoryOf(err)),
		Message:   err.Error(),
		At:        e.clock.Now(),
	})
}

package monitor

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/types"
)

// WalletScheduler owns the monitored wallet set. All mutations go through
// one mutex; callers only ever see deep copies, so nothing outside this
// struct can mutate scheduling state.
//
// A wallet with a check in flight is tracked in the inflight set so it is
// never dispatched twice concurrently, no matter how slow the check is.
type WalletScheduler struct {
	mu       sync.Mutex
	clock    Clock
	wallets  map[string]*types.WalletConfig
	inflight map[string]struct{}
}

// NewWalletScheduler creates an empty scheduler.
func NewWalletScheduler(clock Clock) *WalletScheduler {
	if clock == nil {
		clock = SystemClock()
	}
	return &WalletScheduler{
		clock:    clock,
		wallets:  make(map[string]*types.WalletConfig),
		inflight: make(map[string]struct{}),
	}
}

// AddWallet registers a wallet for monitoring. The address is normalized
// before insertion; adding an address that is already monitored fails with
// a duplicate error regardless of the casing it was supplied in.
func (s *WalletScheduler) AddWallet(cfg *types.WalletConfig) (*types.WalletConfig, error) {
	addr, err := types.NormalizeAddress(cfg.Address)
	if err != nil {
		return nil, err
	}
	interval := cfg.CheckInterval
	if interval == 0 {
		interval = types.DefaultCheckInterval
	}
	if interval < types.MinCheckInterval {
		return nil, errors.NewValidationError("checkInterval",
			"below minimum of "+types.MinCheckInterval.String())
	}
	if cfg.ThresholdWei != nil && cfg.ThresholdWei.Sign() < 0 {
		return nil, errors.NewValidationError("thresholdWei", "must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[addr]; exists {
		return nil, errors.NewDuplicateAddressError(addr)
	}

	stored := cfg.Clone()
	stored.Address = addr
	stored.CheckInterval = interval
	if stored.ThresholdWei == nil {
		stored.ThresholdWei = big.NewInt(0)
	}
	stored.Degraded = false
	stored.LastCheckedAt = time.Time{}
	stored.LastKnownBalanceWei = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.clock.Now()
	}

	s.wallets[addr] = stored
	return stored.Clone(), nil
}

// RemoveWallet stops monitoring an address. After it returns, no new check
// will be dispatched for the address; a check already in flight may still
// complete and write its observation.
func (s *WalletScheduler) RemoveWallet(address string) error {
	addr, err := types.NormalizeAddress(address)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.wallets[addr]; !exists {
		return errors.NewNotFoundError(addr)
	}
	delete(s.wallets, addr)
	delete(s.inflight, addr)
	return nil
}

// UpdateConfig applies a partial update. Enabling a degraded wallet clears
// the degraded flag so it is eligible for scheduling again.
func (s *WalletScheduler) UpdateConfig(address string, upd types.WalletUpdate) (*types.WalletConfig, error) {
	addr, err := types.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}
	if upd.CheckInterval != nil && *upd.CheckInterval < types.MinCheckInterval {
		return nil, errors.NewValidationError("checkInterval",
			"below minimum of "+types.MinCheckInterval.String())
	}
	if upd.ThresholdWei != nil && upd.ThresholdWei.Sign() < 0 {
		return nil, errors.NewValidationError("thresholdWei", "must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.wallets[addr]
	if !exists {
		return nil, errors.NewNotFoundError(addr)
	}

	if upd.Label != nil {
		w.Label = *upd.Label
	}
	if upd.ThresholdWei != nil {
		w.ThresholdWei = new(big.Int).Set(upd.ThresholdWei)
	}
	if upd.CheckInterval != nil {
		w.CheckInterval = *upd.CheckInterval
	}
	if upd.Enabled != nil {
		w.Enabled = *upd.Enabled
		if *upd.Enabled {
			w.Degraded = false
		}
	}

	return w.Clone(), nil
}

// GetWallet returns a copy of one wallet's config.
func (s *WalletScheduler) GetWallet(address string) (*types.WalletConfig, error) {
	addr, err := types.NormalizeAddress(address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.wallets[addr]
	if !exists {
		return nil, errors.NewNotFoundError(addr)
	}
	return w.Clone(), nil
}

// Snapshot returns copies of all wallet configs, sorted by address.
func (s *WalletScheduler) Snapshot() []*types.WalletConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*types.WalletConfig, 0, len(s.wallets))
	for _, w := range s.wallets {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Address < out[j].Address
	})
	return out
}

// Count returns the number of monitored wallets.
func (s *WalletScheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.wallets)
}

// InflightCount returns the number of checks currently in flight.
func (s *WalletScheduler) InflightCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// DueWallets returns copies of every enabled, non-degraded wallet whose
// check interval has elapsed and that has no check in flight. Results are
// ordered earliest due first, ties broken by address.
func (s *WalletScheduler) DueWallets(now time.Time) []*types.WalletConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*types.WalletConfig
	for addr, w := range s.wallets {
		if !w.Enabled || w.Degraded {
			continue
		}
		if _, busy := s.inflight[addr]; busy {
			continue
		}
		if w.NextDueAt().After(now) {
			continue
		}
		due = append(due, w.Clone())
	}

	sort.Slice(due, func(i, j int) bool {
		di, dj := due[i].NextDueAt(), due[j].NextDueAt()
		if di.Equal(dj) {
			return due[i].Address < due[j].Address
		}
		return di.Before(dj)
	})
	return due
}

// BeginCheck marks a check as in flight. It returns false when the wallet
// is unknown, disabled, degraded, or already being checked; the caller must
// not proceed in that case.
func (s *WalletScheduler) BeginCheck(address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.wallets[address]
	if !exists || !w.Enabled || w.Degraded {
		return false
	}
	if _, busy := s.inflight[address]; busy {
		return false
	}
	s.inflight[address] = struct{}{}
	return true
}

// FinishCheck records a successful check: the last-checked timestamp and
// cached balance are updated and the in-flight slot is released. A wallet
// removed mid-check is a no-op.
func (s *WalletScheduler) FinishCheck(address string, balance *big.Int, checkedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.inflight, address)
	w, exists := s.wallets[address]
	if !exists {
		return
	}
	w.LastCheckedAt = checkedAt
	if balance != nil {
		w.LastKnownBalanceWei = new(big.Int).Set(balance)
	}
}

// AbortCheck releases the in-flight slot without touching the schedule, so
// a failed check leaves the wallet due for the next pass.
func (s *WalletScheduler) AbortCheck(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, address)
}

// MarkDegraded flags a wallet whose address the provider rejected. A
// degraded wallet is skipped by DueWallets until re-enabled explicitly.
func (s *WalletScheduler) MarkDegraded(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, exists := s.wallets[address]; exists {
		w.Degraded = true
	}
}

// SetLastChecked restores scheduling state loaded from durable storage.
// Used at startup so a restart does not re-check every wallet immediately.
func (s *WalletScheduler) SetLastChecked(address string, checkedAt time.Time, balance *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w, exists := s.wallets[address]; exists {
		w.LastCheckedAt = checkedAt
		if balance != nil {
			w.LastKnownBalanceWei = new(big.Int).Set(balance)
		}
	}
}

package storage

import (
	"context"
	"math/big"
	"sync"

	"github.com/wallet-monitor/internal/types"
)

// MemoryHistoryStore keeps observation history in process memory. It backs
// deployments that run without ClickHouse; history is lost on restart.
type MemoryHistoryStore struct {
	mu        sync.RWMutex
	byAddress map[string][]*types.BalanceObservation
}

// NewMemoryHistoryStore creates an empty in-memory history store.
func NewMemoryHistoryStore() *MemoryHistoryStore {
	return &MemoryHistoryStore{byAddress: make(map[string][]*types.BalanceObservation)}
}

// Append stores one observation.
func (m *MemoryHistoryStore) Append(ctx context.Context, obs *types.BalanceObservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byAddress[obs.Address] = append(m.byAddress[obs.Address], cloneObservation(obs))
	return nil
}

// LastObservation returns the most recent observation, or (nil, nil) when
// the address has no history.
func (m *MemoryHistoryStore) LastObservation(ctx context.Context, address string) (*types.BalanceObservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.byAddress[address]
	if len(history) == 0 {
		return nil, nil
	}
	return cloneObservation(history[len(history)-1]), nil
}

// Observations returns up to limit observations, newest first.
func (m *MemoryHistoryStore) Observations(ctx context.Context, address string, limit int) ([]*types.BalanceObservation, error) {
	if limit <= 0 {
		limit = 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	history := m.byAddress[address]
	out := make([]*types.BalanceObservation, 0, limit)
	for i := len(history) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, cloneObservation(history[i]))
	}
	return out, nil
}

func cloneObservation(obs *types.BalanceObservation) *types.BalanceObservation {
	c := *obs
	if obs.BalanceWei != nil {
		c.BalanceWei = new(big.Int).Set(obs.BalanceWei)
	}
	if obs.DeltaWei != nil {
		c.DeltaWei = new(big.Int).Set(obs.DeltaWei)
	}
	return &c
}

package monitor

import (
	"context"
	"math/big"

	"github.com/wallet-monitor/internal/types"
)

// HistoryStore persists the append-only balance observation history.
// Implementations must treat observations as immutable once appended.
type HistoryStore interface {
	// Append stores a new observation. It never overwrites.
	Append(ctx context.Context, obs *types.BalanceObservation) error

	// LastObservation returns the most recent observation for an address,
	// or (nil, nil) when the address has no history.
	LastObservation(ctx context.Context, address string) (*types.BalanceObservation, error)

	// Observations returns up to limit observations for an address,
	// newest first.
	Observations(ctx context.Context, address string, limit int) ([]*types.BalanceObservation, error)
}

// BalanceFetcher retrieves the current on-chain balance for an address.
type BalanceFetcher interface {
	FetchBalance(ctx context.Context, address string) (*big.Int, error)
}

// AlertSink receives alert payloads. Delivery is best effort: a sink
// failure never rolls back the observation that triggered it.
type AlertSink interface {
	Deliver(ctx context.Context, payload *types.AlertPayload) error
}

// Package types provides common type definitions for the wallet monitor system.
package types

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Default wallet configuration values, matching the free-tier Etherscan quota
// and the original monitoring cadence.
const (
	// DefaultCheckInterval is the polling period applied when a wallet is
	// added without an explicit interval.
	DefaultCheckInterval = 300 * time.Second
	// MinCheckInterval is the smallest accepted polling period per wallet.
	MinCheckInterval = 10 * time.Second
)

// WalletConfig identifies a monitored wallet and its polling settings.
// The address is the unique key; it is always stored normalized (lowercase
// hex with 0x prefix).
type WalletConfig struct {
	Address       string        `json:"address"`
	Label         string        `json:"label,omitempty"`
	ThresholdWei  *big.Int      `json:"thresholdWei"`
	CheckInterval time.Duration `json:"checkInterval"`
	Enabled       bool          `json:"enabled"`
	// Degraded is set when the provider reports the address as invalid.
	// A degraded wallet is never scheduled again until it is re-enabled
	// through an explicit config update.
	Degraded bool `json:"degraded,omitempty"`

	// Scheduling/cache fields, updated only after a successful check.
	LastCheckedAt       time.Time `json:"lastCheckedAt,omitzero"`
	LastKnownBalanceWei *big.Int  `json:"lastKnownBalanceWei,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Clone returns a deep copy of the wallet config. big.Int fields are copied
// so callers can never mutate scheduler-owned state through a snapshot.
func (w *WalletConfig) Clone() *WalletConfig {
	if w == nil {
		return nil
	}
	c := *w
	if w.ThresholdWei != nil {
		c.ThresholdWei = new(big.Int).Set(w.ThresholdWei)
	}
	if w.LastKnownBalanceWei != nil {
		c.LastKnownBalanceWei = new(big.Int).Set(w.LastKnownBalanceWei)
	}
	return &c
}

// NextDueAt returns the instant at which the wallet becomes due for a check.
// A wallet that has never been checked is due immediately.
func (w *WalletConfig) NextDueAt() time.Time {
	if w.LastCheckedAt.IsZero() {
		return time.Time{}
	}
	return w.LastCheckedAt.Add(w.CheckInterval)
}

// WalletUpdate is a partial update of a wallet's mutable settings.
// Nil fields are left unchanged.
type WalletUpdate struct {
	Label         *string
	ThresholdWei  *big.Int
	CheckInterval *time.Duration
	Enabled       *bool
}

// BalanceObservation is one immutable historical balance record.
// DeltaWei is the signed difference from the immediately preceding
// observation for the same address, nil for the first observation.
type BalanceObservation struct {
	ID         string    `json:"id"`
	Address    string    `json:"address"`
	BalanceWei *big.Int  `json:"balanceWei"`
	DeltaWei   *big.Int  `json:"deltaWei,omitempty"`
	ObservedAt time.Time `json:"observedAt"`
	Alerted    bool      `json:"alerted"`
}

// AlertPayload is produced by the threshold evaluator and consumed by alert
// sinks. It is ephemeral: the monitor core never persists it.
type AlertPayload struct {
	Address            string    `json:"address"`
	PreviousBalanceWei *big.Int  `json:"previousBalanceWei"`
	NewBalanceWei      *big.Int  `json:"newBalanceWei"`
	DeltaWei           *big.Int  `json:"deltaWei"`
	ThresholdWei       *big.Int  `json:"thresholdWei"`
	TriggeredAt        time.Time `json:"triggeredAt"`
}

// EventKind categorizes status events published by the monitor engine.
type EventKind string

const (
	// EventConnectionStatus reports engine lifecycle transitions (started,
	// stopped, draining).
	EventConnectionStatus EventKind = "connection_status"
	// EventWalletChecked reports a completed balance check.
	EventWalletChecked EventKind = "wallet_checked"
	// EventError reports a per-wallet check failure.
	EventError EventKind = "error"
)

// StatusEvent is a typed event emitted by the monitor engine for the
// presentation layer. Fields are populated depending on Kind.
type StatusEvent struct {
	Kind       EventKind `json:"kind"`
	Address    string    `json:"address,omitempty"`
	BalanceWei *big.Int  `json:"balanceWei,omitempty"`
	Alerted    bool      `json:"alerted,omitempty"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Message    string    `json:"message,omitempty"`
	At         time.Time `json:"at"`
}

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// NormalizeAddress validates an Ethereum address and returns its canonical
// lowercase form. Case differences never produce distinct wallets.
func NormalizeAddress(address string) (string, error) {
	address = strings.TrimSpace(address)
	if !common.IsHexAddress(address) {
		return "", &ServiceError{
			Code:    "INVALID_ADDRESS_FORMAT",
			Message: fmt.Sprintf("invalid address format: %s (must be 0x followed by 40 hexadecimal characters)", address),
			Details: map[string]interface{}{
				"address": address,
			},
		}
	}
	if !strings.HasPrefix(address, "0x") && !strings.HasPrefix(address, "0X") {
		address = "0x" + address
	}
	return strings.ToLower(address), nil
}

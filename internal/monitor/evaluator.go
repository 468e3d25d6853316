package monitor

import (
	"math/big"
	"time"

	"github.com/wallet-monitor/internal/types"
)

// Evaluate decides whether a balance change warrants an alert.
//
// A nil prev means this is the first observation for the wallet: it becomes
// the baseline and never alerts. Otherwise an alert fires when the absolute
// change meets the threshold and the balance actually moved. A zero
// threshold alerts on every nonzero change.
func Evaluate(address string, prev, curr, threshold *big.Int, at time.Time) *types.AlertPayload {
	if prev == nil {
		return nil
	}

	delta := new(big.Int).Sub(curr, prev)
	if delta.Sign() == 0 {
		return nil
	}

	if threshold == nil {
		threshold = big.NewInt(0)
	}
	if new(big.Int).Abs(delta).Cmp(threshold) < 0 {
		return nil
	}

	return &types.AlertPayload{
		Address:            address,
		PreviousBalanceWei: new(big.Int).Set(prev),
		NewBalanceWei:      new(big.Int).Set(curr),
		DeltaWei:           delta,
		ThresholdWei:       new(big.Int).Set(threshold),
		TriggeredAt:        at,
	}
}

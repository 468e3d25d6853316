package monitor

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/types"
)

// fakeClock is a manually advanced Clock for deterministic scheduling
// tests.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	tick chan time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start, tick: make(chan time.Time, 1)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) NewTicker(time.Duration) Ticker {
	return &fakeTicker{ch: c.tick}
}

// Tick fires the ticker channel once.
func (c *fakeClock) Tick() {
	c.tick <- c.Now()
}

type fakeTicker struct {
	ch chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}

var schedulerEpoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*WalletScheduler, *fakeClock) {
	t.Helper()
	clock := newFakeClock(schedulerEpoch)
	return NewWalletScheduler(clock), clock
}

func addWallet(t *testing.T, s *WalletScheduler, address string, interval time.Duration) *types.WalletConfig {
	t.Helper()
	w, err := s.AddWallet(&types.WalletConfig{
		Address:       address,
		ThresholdWei:  big.NewInt(0),
		CheckInterval: interval,
		Enabled:       true,
	})
	require.NoError(t, err)
	return w
}

func TestWalletScheduler_AddWallet(t *testing.T) {
	s, _ := newTestScheduler(t)

	t.Run("normalizes address", func(t *testing.T) {
		w := addWallet(t, s, "0x742D35CC6634C0532925A3B844BC454E4438F44E", time.Minute)
		assert.Equal(t, "0x742d35cc6634c0532925a3b844bc454e4438f44e", w.Address)
	})

	t.Run("rejects duplicate with different casing", func(t *testing.T) {
		_, err := s.AddWallet(&types.WalletConfig{
			Address: "0x742d35cc6634c0532925a3b844bc454e4438f44e",
			Enabled: true,
		})
		require.Error(t, err)
		assert.True(t, errors.IsDuplicateAddress(err))
	})

	t.Run("rejects malformed address", func(t *testing.T) {
		_, err := s.AddWallet(&types.WalletConfig{Address: "not-hex", Enabled: true})
		require.Error(t, err)
	})

	t.Run("rejects interval below minimum", func(t *testing.T) {
		_, err := s.AddWallet(&types.WalletConfig{
			Address:       "0x1111111111111111111111111111111111111111",
			CheckInterval: time.Second,
			Enabled:       true,
		})
		require.Error(t, err)
	})

	t.Run("applies default interval", func(t *testing.T) {
		w := addWallet(t, s, "0x2222222222222222222222222222222222222222", 0)
		assert.Equal(t, types.DefaultCheckInterval, w.CheckInterval)
	})

	t.Run("leaves caller config untouched", func(t *testing.T) {
		cfg := &types.WalletConfig{
			Address: "0x4444444444444444444444444444444444444444",
			Enabled: true,
		}
		w, err := s.AddWallet(cfg)
		require.NoError(t, err)
		assert.Equal(t, types.DefaultCheckInterval, w.CheckInterval)
		assert.Zero(t, cfg.CheckInterval)
		assert.Nil(t, cfg.ThresholdWei)
		assert.True(t, cfg.CreatedAt.IsZero())
	})

	t.Run("rejects negative threshold", func(t *testing.T) {
		_, err := s.AddWallet(&types.WalletConfig{
			Address:      "0x3333333333333333333333333333333333333333",
			ThresholdWei: big.NewInt(-1),
			Enabled:      true,
		})
		require.Error(t, err)
	})
}

func TestWalletScheduler_RemoveWallet(t *testing.T) {
	s, _ := newTestScheduler(t)
	addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	require.NoError(t, s.RemoveWallet("0x1111111111111111111111111111111111111111"))
	assert.Equal(t, 0, s.Count())

	err := s.RemoveWallet("0x1111111111111111111111111111111111111111")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestWalletScheduler_UpdateConfig(t *testing.T) {
	s, _ := newTestScheduler(t)
	w := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	newThreshold := big.NewInt(5000)
	newInterval := 2 * time.Minute
	disabled := false
	updated, err := s.UpdateConfig(w.Address, types.WalletUpdate{
		ThresholdWei:  newThreshold,
		CheckInterval: &newInterval,
		Enabled:       &disabled,
	})
	require.NoError(t, err)
	assert.Equal(t, newThreshold, updated.ThresholdWei)
	assert.Equal(t, newInterval, updated.CheckInterval)
	assert.False(t, updated.Enabled)

	t.Run("partial update leaves other fields", func(t *testing.T) {
		label := "savings"
		updated, err := s.UpdateConfig(w.Address, types.WalletUpdate{Label: &label})
		require.NoError(t, err)
		assert.Equal(t, "savings", updated.Label)
		assert.Equal(t, newInterval, updated.CheckInterval)
	})

	t.Run("re-enable clears degraded", func(t *testing.T) {
		s.MarkDegraded(w.Address)
		enabled := true
		updated, err := s.UpdateConfig(w.Address, types.WalletUpdate{Enabled: &enabled})
		require.NoError(t, err)
		assert.False(t, updated.Degraded)
		assert.True(t, updated.Enabled)
	})

	t.Run("unknown wallet", func(t *testing.T) {
		_, err := s.UpdateConfig("0x9999999999999999999999999999999999999999", types.WalletUpdate{})
		require.Error(t, err)
		assert.True(t, errors.IsNotFound(err))
	})
}

func TestWalletScheduler_DueWallets(t *testing.T) {
	s, clock := newTestScheduler(t)

	a := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)
	b := addWallet(t, s, "0x2222222222222222222222222222222222222222", time.Minute)

	t.Run("never-checked wallets are due immediately, ordered by address", func(t *testing.T) {
		due := s.DueWallets(clock.Now())
		require.Len(t, due, 2)
		assert.Equal(t, a.Address, due[0].Address)
		assert.Equal(t, b.Address, due[1].Address)
	})

	t.Run("checked wallets wait out their interval", func(t *testing.T) {
		s.SetLastChecked(a.Address, clock.Now(), big.NewInt(100))
		s.SetLastChecked(b.Address, clock.Now(), big.NewInt(200))

		assert.Empty(t, s.DueWallets(clock.Now()))

		clock.Advance(59 * time.Second)
		assert.Empty(t, s.DueWallets(clock.Now()))

		clock.Advance(time.Second)
		assert.Len(t, s.DueWallets(clock.Now()), 2)
	})

	t.Run("earliest due first", func(t *testing.T) {
		s.SetLastChecked(a.Address, clock.Now(), nil)
		s.SetLastChecked(b.Address, clock.Now().Add(-30*time.Second), nil)
		clock.Advance(2 * time.Minute)

		due := s.DueWallets(clock.Now())
		require.Len(t, due, 2)
		assert.Equal(t, b.Address, due[0].Address)
	})

	t.Run("disabled and degraded wallets are skipped", func(t *testing.T) {
		disabled := false
		_, err := s.UpdateConfig(a.Address, types.WalletUpdate{Enabled: &disabled})
		require.NoError(t, err)
		s.MarkDegraded(b.Address)

		clock.Advance(time.Hour)
		assert.Empty(t, s.DueWallets(clock.Now()))
	})
}

func TestWalletScheduler_InflightGate(t *testing.T) {
	s, clock := newTestScheduler(t)
	w := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	require.True(t, s.BeginCheck(w.Address))
	assert.False(t, s.BeginCheck(w.Address), "second BeginCheck must fail while in flight")
	assert.Empty(t, s.DueWallets(clock.Now()), "in-flight wallet is not due")

	t.Run("abort leaves wallet due", func(t *testing.T) {
		s.AbortCheck(w.Address)
		assert.Len(t, s.DueWallets(clock.Now()), 1)
		assert.True(t, s.BeginCheck(w.Address))
	})

	t.Run("finish updates schedule", func(t *testing.T) {
		s.FinishCheck(w.Address, big.NewInt(777), clock.Now())
		assert.Empty(t, s.DueWallets(clock.Now()))

		got, err := s.GetWallet(w.Address)
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(777), got.LastKnownBalanceWei)
		assert.Equal(t, clock.Now(), got.LastCheckedAt)
	})

	t.Run("begin fails for unknown wallet", func(t *testing.T) {
		assert.False(t, s.BeginCheck("0x9999999999999999999999999999999999999999"))
	})
}

func TestWalletScheduler_RemoveMidCheck(t *testing.T) {
	s, clock := newTestScheduler(t)
	w := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	require.True(t, s.BeginCheck(w.Address))
	require.NoError(t, s.RemoveWallet(w.Address))

	// FinishCheck after removal must not resurrect the wallet.
	s.FinishCheck(w.Address, big.NewInt(1), clock.Now())
	assert.Equal(t, 0, s.Count())
	assert.False(t, s.BeginCheck(w.Address))
}

func TestWalletScheduler_SnapshotIsIsolated(t *testing.T) {
	s, _ := newTestScheduler(t)
	w := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	snap := s.Snapshot()
	require.Len(t, snap, 1)
	snap[0].ThresholdWei.SetInt64(999999)
	snap[0].Enabled = false

	got, err := s.GetWallet(w.Address)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(0), got.ThresholdWei)
	assert.True(t, got.Enabled)
}

func TestWalletScheduler_ConcurrentBeginCheck(t *testing.T) {
	s, _ := newTestScheduler(t)
	w := addWallet(t, s, "0x1111111111111111111111111111111111111111", time.Minute)

	const attempts = 50
	var wins int32
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.BeginCheck(w.Address) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins, "exactly one goroutine may claim the check")
}

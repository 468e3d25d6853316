package service

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/monitor"
	"github.com/wallet-monitor/internal/storage"
	"github.com/wallet-monitor/internal/types"
)

const (
	svcAddrA = "0x1111111111111111111111111111111111111111"
	svcAddrB = "0x2222222222222222222222222222222222222222"
)

type fakeWalletRepo struct {
	mu          sync.Mutex
	wallets     []*types.WalletConfig
	listErr     error
	checkpoints map[string]time.Time
	balances    map[string]*big.Int
	degraded    map[string]bool
	updateErr   error
}

func newFakeWalletRepo(wallets ...*types.WalletConfig) *fakeWalletRepo {
	return &fakeWalletRepo{
		wallets:     wallets,
		checkpoints: make(map[string]time.Time),
		balances:    make(map[string]*big.Int),
		degraded:    make(map[string]bool),
	}
}

func (r *fakeWalletRepo) List(ctx context.Context) ([]*types.WalletConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*types.WalletConfig, len(r.wallets))
	for i, w := range r.wallets {
		out[i] = w.Clone()
	}
	return out, nil
}

func (r *fakeWalletRepo) UpdateCheckpoint(ctx context.Context, address string, checkedAt time.Time, balance *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.checkpoints[address] = checkedAt
	if balance != nil {
		r.balances[address] = new(big.Int).Set(balance)
	}
	return nil
}

func (r *fakeWalletRepo) MarkDegraded(ctx context.Context, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.degraded[address] = true
	return nil
}

func (r *fakeWalletRepo) checkpointFor(address string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.checkpoints[address]
	return at, ok
}

func (r *fakeWalletRepo) degradedFor(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.degraded[address]
}

type svcFetcher struct {
	mu       sync.Mutex
	balances map[string]*big.Int
	errs     map[string]error
}

func (f *svcFetcher) FetchBalance(ctx context.Context, address string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[address]; ok {
		return nil, err
	}
	if b, ok := f.balances[address]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func newServiceEngine(t *testing.T, fetcher monitor.BalanceFetcher) *monitor.Engine {
	t.Helper()
	scheduler := monitor.NewWalletScheduler(nil)
	return monitor.NewEngine(scheduler, fetcher, storage.NewMemoryHistoryStore(), nil, nil, nil, nil, monitor.EngineConfig{})
}

func TestMonitorService_LoadWallets(t *testing.T) {
	checked := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := newFakeWalletRepo(
		&types.WalletConfig{
			Address:             svcAddrA,
			Label:               "treasury",
			ThresholdWei:        big.NewInt(1000),
			CheckInterval:       time.Minute,
			Enabled:             true,
			LastCheckedAt:       checked,
			LastKnownBalanceWei: big.NewInt(42),
		},
		&types.WalletConfig{
			Address:       svcAddrB,
			ThresholdWei:  big.NewInt(0),
			CheckInterval: time.Minute,
			Enabled:       true,
			Degraded:      true,
		},
	)

	engine := newServiceEngine(t, &svcFetcher{})
	svc := NewMonitorService(engine, repo, nil)

	loaded, err := svc.LoadWallets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)
	assert.Equal(t, 2, engine.Scheduler().Count())

	a, err := engine.Scheduler().GetWallet(svcAddrA)
	require.NoError(t, err)
	assert.Equal(t, "treasury", a.Label)
	assert.True(t, a.LastCheckedAt.Equal(checked))
	require.NotNil(t, a.LastKnownBalanceWei)
	assert.Equal(t, "42", a.LastKnownBalanceWei.String())
	assert.False(t, a.Degraded)

	b, err := engine.Scheduler().GetWallet(svcAddrB)
	require.NoError(t, err)
	assert.True(t, b.Degraded)

	// The restored checkpoint keeps the wallet off the due list; the
	// degraded one is excluded outright.
	due := engine.Scheduler().DueWallets(checked.Add(30 * time.Second))
	assert.Empty(t, due)
}

func TestMonitorService_LoadWalletsSkipsMalformed(t *testing.T) {
	repo := newFakeWalletRepo(
		&types.WalletConfig{Address: "not-an-address", CheckInterval: time.Minute, Enabled: true},
		&types.WalletConfig{Address: svcAddrA, CheckInterval: time.Minute, Enabled: true},
	)

	engine := newServiceEngine(t, &svcFetcher{})
	svc := NewMonitorService(engine, repo, nil)

	loaded, err := svc.LoadWallets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded)
	assert.Equal(t, 1, engine.Scheduler().Count())
}

func TestMonitorService_LoadWalletsListError(t *testing.T) {
	repo := newFakeWalletRepo()
	repo.listErr = errors.NewStoreUnavailableError("postgres", nil)

	engine := newServiceEngine(t, &svcFetcher{})
	svc := NewMonitorService(engine, repo, nil)

	_, err := svc.LoadWallets(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, engine.Scheduler().Count())
}

func TestMonitorService_PersistsCheckpointOnCheck(t *testing.T) {
	repo := newFakeWalletRepo()
	fetcher := &svcFetcher{balances: map[string]*big.Int{svcAddrA: big.NewInt(500)}}
	engine := newServiceEngine(t, fetcher)

	_, err := engine.Scheduler().AddWallet(&types.WalletConfig{
		Address:       svcAddrA,
		CheckInterval: time.Minute,
		Enabled:       true,
	})
	require.NoError(t, err)

	svc := NewMonitorService(engine, repo, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	obs, err := engine.CheckNow(context.Background(), svcAddrA)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := repo.checkpointFor(svcAddrA)
		return ok
	}, time.Second, 5*time.Millisecond)

	at, _ := repo.checkpointFor(svcAddrA)
	assert.True(t, at.Equal(obs.ObservedAt))

	repo.mu.Lock()
	balance := repo.balances[svcAddrA]
	repo.mu.Unlock()
	require.NotNil(t, balance)
	assert.Equal(t, "500", balance.String())
}

func TestMonitorService_PersistsDegradedOnInvalidAddress(t *testing.T) {
	repo := newFakeWalletRepo()
	fetcher := &svcFetcher{errs: map[string]error{svcAddrA: errors.NewInvalidAddressError(svcAddrA)}}
	engine := newServiceEngine(t, fetcher)

	_, err := engine.Scheduler().AddWallet(&types.WalletConfig{
		Address:       svcAddrA,
		CheckInterval: time.Minute,
		Enabled:       true,
	})
	require.NoError(t, err)

	svc := NewMonitorService(engine, repo, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	_, err = engine.CheckNow(context.Background(), svcAddrA)
	require.Error(t, err)

	require.Eventually(t, func() bool {
		return repo.degradedFor(svcAddrA)
	}, time.Second, 5*time.Millisecond)
}

func TestMonitorService_TransientErrorNotPersistedAsDegraded(t *testing.T) {
	repo := newFakeWalletRepo()
	fetcher := &svcFetcher{errs: map[string]error{svcAddrA: errors.NewTransientError("etherscan", nil)}}
	engine := newServiceEngine(t, fetcher)

	_, err := engine.Scheduler().AddWallet(&types.WalletConfig{
		Address:       svcAddrA,
		CheckInterval: time.Minute,
		Enabled:       true,
	})
	require.NoError(t, err)

	svc := NewMonitorService(engine, repo, nil)
	svc.Start(context.Background())

	_, err = engine.CheckNow(context.Background(), svcAddrA)
	require.Error(t, err)

	svc.Stop()
	assert.False(t, repo.degradedFor(svcAddrA))
}

func TestMonitorService_StartStopIdempotent(t *testing.T) {
	repo := newFakeWalletRepo()
	engine := newServiceEngine(t, &svcFetcher{})
	svc := NewMonitorService(engine, repo, nil)

	svc.Start(context.Background())
	svc.Start(context.Background())
	assert.Equal(t, 1, engine.Events().SubscriberCount())

	svc.Stop()
	svc.Stop()
	assert.Equal(t, 0, engine.Events().SubscriberCount())
}

package storage

import (
	"context"
	stderrors "errors"
	"math/big"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/types"
)

// WalletRepository persists the monitored wallet set. The scheduler remains
// the runtime source of truth; this table exists so the set survives
// restarts.
type WalletRepository struct {
	db *PostgresDB
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *PostgresDB) *WalletRepository {
	return &WalletRepository{db: db}
}

// Create inserts a wallet config. The address must already be normalized.
func (r *WalletRepository) Create(ctx context.Context, w *types.WalletConfig) error {
	query := `
		INSERT INTO wallet_configs (
			address, label, threshold_wei, check_interval_seconds,
			enabled, degraded, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		w.Address,
		w.Label,
		weiToText(w.ThresholdWei),
		int64(w.CheckInterval/time.Second),
		w.Enabled,
		w.Degraded,
		w.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.NewDuplicateAddressError(w.Address)
		}
		return errors.NewStoreUnavailableError("create wallet", err)
	}
	return nil
}

// GetByAddress loads one wallet config.
func (r *WalletRepository) GetByAddress(ctx context.Context, address string) (*types.WalletConfig, error) {
	query := `
		SELECT address, label, threshold_wei, check_interval_seconds,
		       enabled, degraded, last_checked_at, last_known_balance_wei, created_at
		FROM wallet_configs
		WHERE address = $1
	`

	w, err := scanWallet(r.db.Pool().QueryRow(ctx, query, address))
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError(address)
		}
		return nil, errors.NewStoreUnavailableError("get wallet", err)
	}
	return w, nil
}

// List returns all wallet configs ordered by address.
func (r *WalletRepository) List(ctx context.Context) ([]*types.WalletConfig, error) {
	query := `
		SELECT address, label, threshold_wei, check_interval_seconds,
		       enabled, degraded, last_checked_at, last_known_balance_wei, created_at
		FROM wallet_configs
		ORDER BY address
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("list wallets", err)
	}
	defer rows.Close()

	var wallets []*types.WalletConfig
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, errors.NewStoreUnavailableError("list wallets", err)
		}
		wallets = append(wallets, w)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailableError("list wallets", err)
	}
	return wallets, nil
}

// Update overwrites the mutable settings of a wallet config.
func (r *WalletRepository) Update(ctx context.Context, w *types.WalletConfig) error {
	query := `
		UPDATE wallet_configs
		SET label = $2, threshold_wei = $3, check_interval_seconds = $4,
		    enabled = $5, degraded = $6
		WHERE address = $1
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		w.Address,
		w.Label,
		weiToText(w.ThresholdWei),
		int64(w.CheckInterval/time.Second),
		w.Enabled,
		w.Degraded,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("update wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError(w.Address)
	}
	return nil
}

// UpdateCheckpoint records a completed check so the schedule survives a
// restart. Called from the event stream, not from the check path, so a
// slow Postgres never delays checks.
func (r *WalletRepository) UpdateCheckpoint(ctx context.Context, address string, checkedAt time.Time, balance *big.Int) error {
	query := `
		UPDATE wallet_configs
		SET last_checked_at = $2, last_known_balance_wei = $3
		WHERE address = $1
	`

	var balanceText *string
	if balance != nil {
		s := balance.String()
		balanceText = &s
	}
	_, err := r.db.Pool().Exec(ctx, query, address, checkedAt, balanceText)
	if err != nil {
		return errors.NewStoreUnavailableError("update checkpoint", err)
	}
	return nil
}

// MarkDegraded flags a wallet as degraded.
func (r *WalletRepository) MarkDegraded(ctx context.Context, address string) error {
	_, err := r.db.Pool().Exec(ctx,
		`UPDATE wallet_configs SET degraded = true WHERE address = $1`, address)
	if err != nil {
		return errors.NewStoreUnavailableError("mark degraded", err)
	}
	return nil
}

// Delete removes a wallet config.
func (r *WalletRepository) Delete(ctx context.Context, address string) error {
	tag, err := r.db.Pool().Exec(ctx,
		`DELETE FROM wallet_configs WHERE address = $1`, address)
	if err != nil {
		return errors.NewStoreUnavailableError("delete wallet", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError(address)
	}
	return nil
}

func scanWallet(row pgx.Row) (*types.WalletConfig, error) {
	var (
		w               types.WalletConfig
		thresholdText   string
		intervalSeconds int64
		lastCheckedAt   *time.Time
		lastBalanceText *string
	)
	err := row.Scan(
		&w.Address,
		&w.Label,
		&thresholdText,
		&intervalSeconds,
		&w.Enabled,
		&w.Degraded,
		&lastCheckedAt,
		&lastBalanceText,
		&w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.ThresholdWei, err = types.ParseWei(thresholdText)
	if err != nil {
		return nil, err
	}
	w.CheckInterval = time.Duration(intervalSeconds) * time.Second
	if lastCheckedAt != nil {
		w.LastCheckedAt = *lastCheckedAt
	}
	if lastBalanceText != nil {
		w.LastKnownBalanceWei, err = types.ParseWei(*lastBalanceText)
		if err != nil {
			return nil, err
		}
	}
	return &w, nil
}

// weiToText renders a big.Int for a TEXT column, treating nil as zero.
func weiToText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

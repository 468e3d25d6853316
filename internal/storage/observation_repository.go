package storage

import (
	"context"
	"time"

	"github.com/wallet-monitor/internal/errors"
	"github.com/wallet-monitor/internal/types"
)

// ObservationRepository stores balance observations in ClickHouse. The
// table is append-only; observations are never updated or deleted.
//
// Balances are stored as decimal strings because wei values overflow every
// native integer column.
type ObservationRepository struct {
	db *ClickHouseDB
}

// NewObservationRepository creates a new observation repository
func NewObservationRepository(db *ClickHouseDB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

// EnsureSchema creates the observation table if it does not exist.
func (r *ObservationRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS balance_observations (
			id String,
			address String,
			balance_wei String,
			delta_wei String,
			has_delta UInt8,
			observed_at DateTime64(9, 'UTC'),
			alerted UInt8
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(observed_at)
		ORDER BY (address, observed_at)
	`
	if err := r.db.Exec(ctx, query); err != nil {
		return errors.NewStoreUnavailableError("ensure schema", err)
	}
	return nil
}

// Append stores one observation.
func (r *ObservationRepository) Append(ctx context.Context, obs *types.BalanceObservation) error {
	query := `
		INSERT INTO balance_observations (id, address, balance_wei, delta_wei, has_delta, observed_at, alerted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	deltaText := ""
	hasDelta := uint8(0)
	if obs.DeltaWei != nil {
		deltaText = obs.DeltaWei.String()
		hasDelta = 1
	}
	alerted := uint8(0)
	if obs.Alerted {
		alerted = 1
	}

	err := r.db.Exec(ctx, query,
		obs.ID,
		obs.Address,
		obs.BalanceWei.String(),
		deltaText,
		hasDelta,
		obs.ObservedAt,
		alerted,
	)
	if err != nil {
		return errors.NewStoreUnavailableError("append observation", err)
	}
	return nil
}

// LastObservation returns the most recent observation for an address, or
// (nil, nil) when the address has no history.
func (r *ObservationRepository) LastObservation(ctx context.Context, address string) (*types.BalanceObservation, error) {
	query := `
		SELECT id, address, balance_wei, delta_wei, has_delta, observed_at, alerted
		FROM balance_observations
		WHERE address = ?
		ORDER BY observed_at DESC
		LIMIT 1
	`

	observations, err := r.query(ctx, query, address)
	if err != nil {
		return nil, err
	}
	if len(observations) == 0 {
		return nil, nil
	}
	return observations[0], nil
}

// Observations returns up to limit observations for an address, newest
// first.
func (r *ObservationRepository) Observations(ctx context.Context, address string, limit int) ([]*types.BalanceObservation, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, address, balance_wei, delta_wei, has_delta, observed_at, alerted
		FROM balance_observations
		WHERE address = ?
		ORDER BY observed_at DESC
		LIMIT ?
	`
	return r.query(ctx, query, address, limit)
}

func (r *ObservationRepository) query(ctx context.Context, query string, args ...interface{}) ([]*types.BalanceObservation, error) {
	rows, err := r.db.Conn().Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewStoreUnavailableError("query observations", err)
	}
	defer rows.Close()

	var observations []*types.BalanceObservation
	for rows.Next() {
		var (
			obs         types.BalanceObservation
			balanceText string
			deltaText   string
			hasDelta    uint8
			observedAt  time.Time
			alerted     uint8
		)
		if err := rows.Scan(&obs.ID, &obs.Address, &balanceText, &deltaText, &hasDelta, &observedAt, &alerted); err != nil {
			return nil, errors.NewStoreUnavailableError("scan observation", err)
		}

		obs.BalanceWei, err = types.ParseWei(balanceText)
		if err != nil {
			return nil, errors.NewStoreUnavailableError("scan observation", err)
		}
		if hasDelta == 1 {
			obs.DeltaWei, err = types.ParseWei(deltaText)
			if err != nil {
				return nil, errors.NewStoreUnavailableError("scan observation", err)
			}
		}
		obs.ObservedAt = observedAt
		obs.Alerted = alerted == 1
		observations = append(observations, &obs)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStoreUnavailableError("query observations", err)
	}
	return observations, nil
}

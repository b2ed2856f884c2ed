package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// openLockKey serialises Open calls so the active-count check and the insert
// see a consistent view. Any constant works; it only has to be unique
// among advisory locks used against this database.
const openLockKey int64 = 0x70756d70626f74 // "pumpbot"

const uniqueViolation = "23505"

// PositionStore implements domain.PositionStore using PostgreSQL. Monetary
// columns are NUMERIC and travel as text to keep decimal precision.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionCols = `id, asset_id, name, symbol,
	entry_value::TEXT, exit_value::TEXT, target_value::TEXT, quantity::TEXT,
	status, close_reason, opened_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPosition(row rowScanner) (domain.Position, error) {
	var (
		p                       domain.Position
		entry, target, quantity string
		exit                    *string
		status, reason          string
	)
	if err := row.Scan(
		&p.ID, &p.AssetID, &p.Name, &p.Symbol,
		&entry, &exit, &target, &quantity,
		&status, &reason, &p.OpenedAt, &p.ClosedAt,
	); err != nil {
		return domain.Position{}, err
	}

	var err error
	if p.EntryValue, err = decimal.NewFromString(entry); err != nil {
		return domain.Position{}, fmt.Errorf("parse entry_value: %w", err)
	}
	if p.TargetValue, err = decimal.NewFromString(target); err != nil {
		return domain.Position{}, fmt.Errorf("parse target_value: %w", err)
	}
	if p.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return domain.Position{}, fmt.Errorf("parse quantity: %w", err)
	}
	if exit != nil {
		v, err := decimal.NewFromString(*exit)
		if err != nil {
			return domain.Position{}, fmt.Errorf("parse exit_value: %w", err)
		}
		p.ExitValue = &v
	}
	p.Status = domain.PositionStatus(status)
	p.CloseReason = domain.CloseReason(reason)
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	defer rows.Close()
	positions := []domain.Position{}
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// Open inserts pos as active. The cap check and insert run in one
// transaction under an advisory lock; the partial unique index on asset_id
// backs up the duplicate check.
func (s *PositionStore) Open(ctx context.Context, pos domain.Position, maxActive int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin open %s: %w", pos.AssetID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, openLockKey); err != nil {
		return fmt.Errorf("postgres: lock open %s: %w", pos.AssetID, err)
	}

	var active int
	var assetActive bool
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(BOOL_OR(asset_id = $1), false)
		 FROM positions WHERE status = 'active'`, pos.AssetID,
	).Scan(&active, &assetActive); err != nil {
		return fmt.Errorf("postgres: count active: %w", err)
	}
	if assetActive {
		return domain.ErrAlreadyActive
	}
	if maxActive > 0 && active >= maxActive {
		return domain.ErrCapReached
	}

	const insert = `
		INSERT INTO positions (
			id, asset_id, name, symbol,
			entry_value, target_value, quantity,
			status, opened_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::NUMERIC, $6::NUMERIC, $7::NUMERIC,
			'active', $8, NOW()
		)`
	_, err = tx.Exec(ctx, insert,
		pos.ID, pos.AssetID, pos.Name, pos.Symbol,
		pos.EntryValue.String(), pos.TargetValue.String(), pos.Quantity.String(),
		pos.OpenedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrAlreadyActive
		}
		return fmt.Errorf("postgres: insert position %s: %w", pos.AssetID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit open %s: %w", pos.AssetID, err)
	}
	return nil
}

// Close transitions the position with id to closed. The status guard in the
// WHERE clause makes a second close a no-op that reports ErrNotActive.
func (s *PositionStore) Close(ctx context.Context, id string, exitValue decimal.Decimal, reason domain.CloseReason, closedAt time.Time) (domain.Position, error) {
	const query = `
		UPDATE positions SET
			status       = 'closed',
			exit_value   = $2::NUMERIC,
			close_reason = $3,
			closed_at    = $4,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING ` + positionCols

	p, err := scanPosition(s.pool.QueryRow(ctx, query, id, exitValue.String(), string(reason), closedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotActive
		}
		return domain.Position{}, fmt.Errorf("postgres: close position %s: %w", id, err)
	}
	return p, nil
}

func (s *PositionStore) CountActive(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM positions WHERE status = 'active'`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count active: %w", err)
	}
	return n, nil
}

// ListActive returns active positions oldest first.
func (s *PositionStore) ListActive(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions WHERE status = 'active' ORDER BY opened_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active: %w", err)
	}
	return positions, nil
}

func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionCols+` FROM positions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListHistory returns positions newest first, filtered by status and
// opened_at range.
func (s *PositionStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.Position, error) {
	query, args := buildListQuery(`SELECT `+positionCols+` FROM positions`, "opened_at", opts)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list history: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history: %w", err)
	}
	return positions, nil
}

// ClosedBetween returns positions closed in [since, until), oldest first.
func (s *PositionStore) ClosedBetween(ctx context.Context, since, until time.Time) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions
		 WHERE status = 'closed' AND closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at`, since, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed: %w", err)
	}
	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed: %w", err)
	}
	return positions, nil
}

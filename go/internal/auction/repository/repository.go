package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/veilinghq/veiling/go/internal/auction"
	"github.com/veilinghq/veiling/go/internal/auction/engine"
)

// Repository persists clock records in Postgres. The engine keeps all live
// state in memory; this store only sees a clock at creation, at hydration
// after a restart, and once more when it ends.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS auction_clocks (
    id               UUID PRIMARY KEY,
    country          TEXT NOT NULL,
    region           TEXT NOT NULL,
    status           TEXT NOT NULL,
    rounds_completed INT  NOT NULL DEFAULT 0,
    lots             JSONB NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS auction_clocks_status_idx ON auction_clocks (status);
`

// EnsureSchema creates the clock table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure auction schema: %w", err)
	}
	return nil
}

// SaveClock upserts a clock record.
func (r *Repository) SaveClock(ctx context.Context, rec engine.ClockRecord) error {
	lots, err := json.Marshal(rec.Lots)
	if err != nil {
		return fmt.Errorf("marshal lots: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO auction_clocks (id, country, region, status, rounds_completed, lots)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			rounds_completed = EXCLUDED.rounds_completed,
			lots = EXCLUDED.lots,
			updated_at = now()`,
		rec.ID, rec.Region.Country, rec.Region.Region, rec.Status, rec.RoundsCompleted, lots)
	if err != nil {
		return fmt.Errorf("save clock %s: %w", rec.ID, err)
	}
	return nil
}

// SaveFinal writes a clock's terminal state.
func (r *Repository) SaveFinal(ctx context.Context, rec engine.ClockRecord) error {
	return r.SaveClock(ctx, rec)
}

// LoadUnresolved returns every clock that has not reached its terminal
// state, for registry hydration at startup.
func (r *Repository) LoadUnresolved(ctx context.Context) ([]engine.ClockRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, country, region, status, rounds_completed, lots
		FROM auction_clocks
		WHERE status <> $1
		ORDER BY created_at`,
		auction.StatusEnded)
	if err != nil {
		return nil, fmt.Errorf("query unresolved clocks: %w", err)
	}
	defer rows.Close()

	var records []engine.ClockRecord
	for rows.Next() {
		var rec engine.ClockRecord
		var lots []byte
		if err := rows.Scan(&rec.ID, &rec.Region.Country, &rec.Region.Region, &rec.Status, &rec.RoundsCompleted, &lots); err != nil {
			return nil, fmt.Errorf("scan clock row: %w", err)
		}
		if err := json.Unmarshal(lots, &rec.Lots); err != nil {
			return nil, fmt.Errorf("unmarshal lots for clock %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate clock rows: %w", err)
	}
	return records, nil
}

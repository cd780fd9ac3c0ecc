package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MarkAbandonedCarts flags every active cart whose last interaction is older
// than cutoff. Work proceeds in batches of batchSize so a single sweep never
// holds long scans or locks; each batch is one atomic statement, so the job
// can be interrupted between batches and re-run safely. Already-abandoned
// carts are filtered out, which makes the job idempotent.
func MarkAbandonedCarts(ctx context.Context, db *sql.DB, cutoff time.Time, batchSize int) (int64, error) {
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		result, err := db.ExecContext(ctx,
			`UPDATE carts
			 SET abandoned = TRUE, updated_at = NOW()
			 WHERE id IN (
			     SELECT id
			     FROM carts
			     WHERE abandoned = FALSE
			       AND last_interaction_at < $1
			     ORDER BY last_interaction_at
			     LIMIT $2
			     FOR UPDATE SKIP LOCKED)`,
			cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("mark abandoned carts: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("get rows affected: %w", err)
		}

		total += affected
		if affected < int64(batchSize) {
			return total, nil
		}
	}
}

// RemoveAbandonedCarts deletes every abandoned cart whose last interaction is
// older than cutoff; cart items go with it via the FK cascade. Staleness is
// measured from last_interaction_at, not from when the abandoned flag was
// set, so a revived-then-idle cart still gets the full retention window.
func RemoveAbandonedCarts(ctx context.Context, db *sql.DB, cutoff time.Time, batchSize int) (int64, error) {
	var total int64

	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		result, err := db.ExecContext(ctx,
			`DELETE FROM carts
			 WHERE id IN (
			     SELECT id
			     FROM carts
			     WHERE abandoned = TRUE
			       AND last_interaction_at < $1
			     ORDER BY last_interaction_at
			     LIMIT $2
			     FOR UPDATE SKIP LOCKED)`,
			cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("remove abandoned carts: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("get rows affected: %w", err)
		}

		total += affected
		if affected < int64(batchSize) {
			return total, nil
		}
	}
}

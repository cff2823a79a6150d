// Package license writes enterprise licensing parameters into a run's
// database.
package license

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const upsertSQL = `INSERT INTO ir_config_parameter (key, value, create_uid, write_uid, create_date, write_date)
VALUES ($1, $2, 1, 1, $3, $3)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, write_date = EXCLUDED.write_date`

// Inject upserts the enterprise code and privilege flag into
// ir_config_parameter with UTC timestamps.
func Inject(ctx context.Context, dsn, code string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open licence connection: %w", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := [][2]string{
		{"database.enterprise_code", code},
		{"database.enterprise_privilege", "1"},
	}
	for _, kv := range rows {
		if _, err := db.ExecContext(ctx, upsertSQL, kv[0], kv[1], now); err != nil {
			return fmt.Errorf("inject %s: %w", kv[0], err)
		}
	}
	return nil
}

package pricepersist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"
)

const (
	codeDuplicateTable  = "42P07"
	codeDuplicateColumn = "42701"
)

// schema is applied statement by statement. Columns added after the first
// release are separate ALTERs so existing databases pick them up.
var schema = []string{
	`CREATE TABLE prices_eod (
		ticker     TEXT             NOT NULL,
		date       DATE             NOT NULL,
		close      DOUBLE PRECISION NOT NULL,
		source     TEXT             NOT NULL,
		created_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
		PRIMARY KEY (ticker, date)
	)`,
	`ALTER TABLE prices_eod ADD COLUMN market_cap DOUBLE PRECISION`,
	`ALTER TABLE prices_eod ADD COLUMN currency TEXT`,
	`CREATE INDEX idx_prices_eod_ticker_updated ON prices_eod (ticker, updated_at DESC)`,
}

// Migrate creates or evolves the prices_eod table. Objects that already exist are skipped.
func Migrate(ctx context.Context, conn sqlx.SqlConn) error {
	for i, stmt := range schema {
		if _, err := conn.ExecCtx(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				continue
			}
			return fmt.Errorf("pricepersist: migrate step %d: %w", i+1, err)
		}
		logx.WithContext(ctx).Infof("pricepersist: applied schema step %d", i+1)
	}
	return nil
}

func isAlreadyExists(err error) bool {
	code := sqlState(err)
	return code == codeDuplicateTable || code == codeDuplicateColumn
}

// sqlState extracts the SQLSTATE from pgx or lib/pq errors.
func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

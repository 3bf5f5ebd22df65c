package budget

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresSource loads initial budgets from the platform database.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

// OpenPostgres opens a lib/pq connection pool and verifies it.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Load records the configured budget of every brand in gameIDs into ledger.
// An empty gameIDs loads every game. It returns the number of records loaded.
func (p *PostgresSource) Load(ctx context.Context, ledger *Ledger, gameIDs []string) (int, error) {
	q := `SELECT game_id, brand_id, total_budget FROM game_brand_budgets`
	var args []interface{}
	if len(gameIDs) > 0 {
		q += ` WHERE game_id = ANY($1)`
		args = append(args, pq.Array(gameIDs))
	}
	q += ` ORDER BY game_id, brand_id`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var gameID, brandID string
		var total int64
		if err := rows.Scan(&gameID, &brandID, &total); err != nil {
			return n, fmt.Errorf("scan budget: %w", err)
		}
		ledger.Record(gameID, brandID, total)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate budgets: %w", err)
	}
	return n, nil
}

// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// usageTable is the shared two-column event log.
const usageTable = "usage_events"

// SQLStore is a SQL-based implementation of Store.
// It supports Postgres, MySQL, and SQLite. Timestamps are persisted as
// fractional epoch seconds.
type SQLStore struct {
	db      *sql.DB
	dialect string
	tsCol   string
}

// NewSQLStore creates a new SQL-based store and creates its table if absent.
// Supported dialects: "postgres", "mysql", "sqlite".
func NewSQLStore(db *sql.DB, dialect string) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &SQLStore{
		db:      db,
		dialect: dialect,
	}

	switch dialect {
	case "postgres", "sqlite":
		s.tsCol = `"timestamp"`
	case "mysql":
		s.tsCol = "`timestamp`"
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// schema returns the DDL statements for the store's dialect.
func (s *SQLStore) schema() []string {
	switch s.dialect {
	case "postgres":
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (identity TEXT NOT NULL, %s DOUBLE PRECISION NOT NULL)`, usageTable, s.tsCol),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_identity_ts ON %s (identity, %s)`, usageTable, usageTable, s.tsCol),
		}
	case "mysql":
		return []string{
			fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (identity VARCHAR(255) NOT NULL, %s DOUBLE NOT NULL, INDEX idx_%s_identity_ts (identity, %s))",
				usageTable, s.tsCol, usageTable, s.tsCol),
		}
	default:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (identity TEXT NOT NULL, %s REAL NOT NULL)`, usageTable, s.tsCol),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_identity_ts ON %s (identity, %s)`, usageTable, usageTable, s.tsCol),
		}
	}
}

// initSchema creates the necessary tables.
func (s *SQLStore) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create %s table: %w", usageTable, err)
		}
	}

	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Query returns the identity's events after cutoff, oldest first.
func (s *SQLStore) Query(ctx context.Context, identity string, cutoff time.Time) ([]UsageEvent, error) {
	query := s.rebind(fmt.Sprintf(`SELECT %s FROM %s WHERE identity = ? AND %s > ? ORDER BY %s ASC`,
		s.tsCol, usageTable, s.tsCol, s.tsCol))

	rows, err := s.db.QueryContext(ctx, query, identity, UnixSeconds(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer rows.Close()

	var events []UsageEvent
	for rows.Next() {
		var ts float64
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan usage row: %w", err)
		}
		events = append(events, UsageEvent{Identity: identity, Timestamp: FromUnixSeconds(ts)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read usage rows: %w", err)
	}

	return events, nil
}

// Insert appends an event.
func (s *SQLStore) Insert(ctx context.Context, event UsageEvent) error {
	query := s.rebind(fmt.Sprintf(`INSERT INTO %s (identity, %s) VALUES (?, ?)`, usageTable, s.tsCol))

	if _, err := s.db.ExecContext(ctx, query, event.Identity, UnixSeconds(event.Timestamp)); err != nil {
		return fmt.Errorf("failed to insert usage: %w", err)
	}
	return nil
}

// Prune deletes events at or before cutoff across all identities.
func (s *SQLStore) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	query := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE %s <= ?`, usageTable, s.tsCol))

	result, err := s.db.ExecContext(ctx, query, UnixSeconds(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Reset deletes all events of an identity.
func (s *SQLStore) Reset(ctx context.Context, identity string) error {
	query := s.rebind(fmt.Sprintf(`DELETE FROM %s WHERE identity = ?`, usageTable))

	if _, err := s.db.ExecContext(ctx, query, identity); err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}
	return nil
}

// Count returns the total number of stored events (for testing and stats).
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, usageTable)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return n, nil
}

// Close is a no-op: the connection is owned by the DBPool.
func (s *SQLStore) Close() error {
	return nil
}

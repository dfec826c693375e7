// Copyright (c) 2026 Venlock. All rights reserved.

package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements the Repository interface over the audit.log
// table. The table is append-only; there is no update or delete path.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL implementation of the Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

/*
Record persists one audit entry.

Parameters:
  - context: context.Context
  - entry: Entry (ID and CreatedAt assigned here when zero)

Returns:
  - error: Execution errors
*/
func (repository *PostgresRepository) Record(context context.Context, entry Entry) error {
	const query = `
		INSERT INTO audit.log (
			id, actorid, action, targettype, targetid, ipaddress, metadata, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := repository.pool.Exec(context, query,
		entry.ID,
		nullable(entry.ActorID),
		entry.Action,
		nullable(entry.TargetType),
		nullable(entry.TargetID),
		nullable(entry.IPAddress),
		entry.Metadata,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("postgres_audit_repo_record_failed: %w", err)
	}

	return nil
}

/*
List returns entries matching the filter, newest first.

Parameters:
  - context: context.Context
  - filter: Filter (zero values mean no constraint)

Returns:
  - []Entry: Matching page
  - error: Retrieval failures
*/
func (repository *PostgresRepository) List(context context.Context, filter Filter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	addClause := func(condition string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(condition, len(args)))
	}

	if filter.ActorID != "" {
		addClause("actorid = $%d", filter.ActorID)
	}
	if filter.Action != "" {
		addClause("action = $%d", filter.Action)
	}
	if !filter.Since.IsZero() {
		addClause("createdat >= $%d", filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		addClause("createdat <= $%d", filter.Until.UTC())
	}

	query := `
		SELECT id, actorid, action, targettype, targetid, ipaddress, metadata, createdat
		FROM audit.log`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY createdat DESC"

	limit := filter.Limit
	if limit < 1 || limit > 500 {
		limit = 100
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += " LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)

	rows, err := repository.pool.Query(context, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres_audit_repo_list_failed: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var actorID, targetType, targetID, ipAddress *string

		err := rows.Scan(
			&entry.ID,
			&actorID,
			&entry.Action,
			&targetType,
			&targetID,
			&ipAddress,
			&entry.Metadata,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres_audit_repo_list_scan_failed: %w", err)
		}

		entry.ActorID = stringValue(actorID)
		entry.TargetType = stringValue(targetType)
		entry.TargetID = stringValue(targetID)
		entry.IPAddress = stringValue(ipAddress)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_audit_repo_list_rows_failed: %w", err)
	}

	return entries, nil
}

/*
Stats aggregates entry counts per action since the given instant.

Parameters:
  - context: context.Context
  - since: time.Time

Returns:
  - *Stats: Aggregate counts
  - error: Retrieval failures
*/
func (repository *PostgresRepository) Stats(context context.Context, since time.Time) (*Stats, error) {
	const query = `
		SELECT action, COUNT(*)
		FROM audit.log
		WHERE createdat >= $1
		GROUP BY action`

	rows, err := repository.pool.Query(context, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres_audit_repo_stats_failed: %w", err)
	}
	defer rows.Close()

	stats := &Stats{
		EntriesByKind: make(map[string]int64),
		Since:         since.UTC(),
	}

	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("postgres_audit_repo_stats_scan_failed: %w", err)
		}
		stats.EntriesByKind[action] = count
		stats.TotalEntries += count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_audit_repo_stats_rows_failed: %w", err)
	}

	return stats, nil
}

// nullable maps "" to NULL so optional columns stay genuinely optional.
func nullable(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

// stringValue dereferences an optional column.
func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

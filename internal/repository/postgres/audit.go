package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jash90/accounting-platform-sub001/internal/core/domain"
)

// AuditRepository implements port.AuditRepository using PostgreSQL. Rows are
// append-only; no update or delete statements exist in this file on purpose.
type AuditRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAuditRepository wires a PostgreSQL-backed audit repository.
func NewAuditRepository(exec pgExecutor) *AuditRepository {
	repo := &AuditRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// Append inserts one audit event. Value snapshots are stored as JSONB.
func (r *AuditRepository) Append(ctx context.Context, event domain.AuditEvent) error {
	oldValue, err := marshalSnapshot(event.OldValue)
	if err != nil {
		return fmt.Errorf("marshal old value: %w", err)
	}
	newValue, err := marshalSnapshot(event.NewValue)
	if err != nil {
		return fmt.Errorf("marshal new value: %w", err)
	}

	stmt, args, err := r.builder.Insert("auth.audit_events").
		Columns(
			"id",
			"actor_id",
			"category",
			"severity",
			"resource_type",
			"resource_id",
			"action",
			"result",
			"old_value",
			"new_value",
			"origin",
			"user_agent",
			"created_at",
		).
		Values(
			event.ID,
			event.ActorID,
			event.Category,
			event.Severity,
			event.ResourceType,
			event.ResourceID,
			event.Action,
			event.Result,
			oldValue,
			newValue,
			event.Origin,
			event.UserAgent,
			event.CreatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit event sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// Query returns matching events, newest first.
func (r *AuditRepository) Query(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEvent, error) {
	query := r.builder.
		Select("id", "actor_id", "category", "severity", "resource_type", "resource_id", "action", "result", "old_value", "new_value", "origin", "user_agent", "created_at").
		From("auth.audit_events").
		OrderBy("created_at DESC")

	if filter.ActorID != nil {
		query = query.Where(squirrel.Eq{"actor_id": *filter.ActorID})
	}
	if filter.Category != nil {
		query = query.Where(squirrel.Eq{"category": *filter.Category})
	}
	if filter.Severity != nil {
		query = query.Where(squirrel.Eq{"severity": *filter.Severity})
	}
	if filter.From != nil {
		query = query.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		query = query.Where(squirrel.Lt{"created_at": *filter.To})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query audit events sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []domain.AuditEvent
	for rows.Next() {
		var (
			event    domain.AuditEvent
			oldValue []byte
			newValue []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.ActorID,
			&event.Category,
			&event.Severity,
			&event.ResourceType,
			&event.ResourceID,
			&event.Action,
			&event.Result,
			&oldValue,
			&newValue,
			&event.Origin,
			&event.UserAgent,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		if event.OldValue, err = unmarshalSnapshot(oldValue); err != nil {
			return nil, fmt.Errorf("unmarshal old value: %w", err)
		}
		if event.NewValue, err = unmarshalSnapshot(newValue); err != nil {
			return nil, fmt.Errorf("unmarshal new value: %w", err)
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}

// Aggregate counts events grouped by category, severity, and result inside
// the half-open range [from, to).
func (r *AuditRepository) Aggregate(ctx context.Context, from, to time.Time) ([]domain.AuditBucket, error) {
	stmt, args, err := r.builder.
		Select("category", "severity", "result", "count(*)").
		From("auth.audit_events").
		Where(squirrel.GtOrEq{"created_at": from}).
		Where(squirrel.Lt{"created_at": to}).
		GroupBy("category", "severity", "result").
		OrderBy("category", "severity", "result").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build aggregate audit sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate audit events: %w", err)
	}
	defer rows.Close()

	var buckets []domain.AuditBucket
	for rows.Next() {
		var bucket domain.AuditBucket
		if err := rows.Scan(&bucket.Category, &bucket.Severity, &bucket.Result, &bucket.Count); err != nil {
			return nil, fmt.Errorf("scan audit bucket: %w", err)
		}
		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit buckets: %w", err)
	}

	return buckets, nil
}

func marshalSnapshot(value map[string]any) ([]byte, error) {
	if value == nil {
		return nil, nil
	}
	return json.Marshal(value)
}

func unmarshalSnapshot(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil, err
	}
	return value, nil
}

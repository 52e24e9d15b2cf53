package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relaywire-systems/relaywire-stack/common/database"
	"github.com/relaywire-systems/relaywire-stack/common/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// NewWithPool wraps an existing pool, used by tests and by callers that
// share one pool across components.
func NewWithPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// InsertEvent durably records a new event
func (r *PostgresRepository) InsertEvent(ctx context.Context, event *models.Event) error {
	attempts, err := json.Marshal(event.DeliveryAttempts)
	if err != nil {
		return fmt.Errorf("failed to encode delivery attempts: %w", err)
	}
	if event.DeliveryAttempts == nil {
		attempts = []byte("[]")
	}

	query := `
		INSERT INTO events (customer_id, event_id, payload, status, delivery_attempts, received_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	_, err = r.pool.Exec(ctx, query,
		event.CustomerID, event.ID, event.Payload, event.Status,
		attempts, event.ReceivedAt, event.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	return nil
}

// GetEvent retrieves one event scoped to its owning customer
func (r *PostgresRepository) GetEvent(ctx context.Context, customerID, eventID string) (*models.Event, error) {
	query := `
		SELECT customer_id, event_id, payload, status, delivery_attempts,
			received_at, last_attempt_at, last_error, expires_at
		FROM events
		WHERE customer_id = $1 AND event_id = $2
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	event, err := scanEvent(r.pool.QueryRow(ctx, query, customerID, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	return event, nil
}

// ListEvents retrieves a filtered page of the customer's inbox
func (r *PostgresRepository) ListEvents(ctx context.Context, customerID string, filter ListFilter) ([]*models.Event, int, error) {
	whereClause := "WHERE customer_id = $1"
	args := []interface{}{customerID}
	argPos := 2

	if filter.Status != "" {
		whereClause += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}
	if filter.EventType != "" {
		whereClause += fmt.Sprintf(" AND payload->>'event_type' = $%d", argPos)
		args = append(args, filter.EventType)
		argPos++
	}
	if !filter.StartTime.IsZero() {
		whereClause += fmt.Sprintf(" AND received_at >= $%d", argPos)
		args = append(args, filter.StartTime)
		argPos++
	}
	if !filter.EndTime.IsZero() {
		whereClause += fmt.Sprintf(" AND received_at <= $%d", argPos)
		args = append(args, filter.EndTime)
		argPos++
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM events %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT customer_id, event_id, payload, status, delivery_attempts,
			received_at, last_attempt_at, last_error, expires_at
		FROM events
		%s
		ORDER BY received_at DESC, event_id DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []*models.Event{}
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, total, nil
}

// DeleteEvent removes an event owned by the customer
func (r *PostgresRepository) DeleteEvent(ctx context.Context, customerID, eventID string) error {
	query := `DELETE FROM events WHERE customer_id = $1 AND event_id = $2`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, query, customerID, eventID)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}

	return nil
}

// PurgeExpired deletes events whose retention window has elapsed
func (r *PostgresRepository) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM events WHERE expires_at <= $1`

	ctx, cancel := database.BulkContext(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired events: %w", err)
	}

	return tag.RowsAffected(), nil
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanEvent(row pgx.Row) (*models.Event, error) {
	event := &models.Event{}
	var attempts []byte

	err := row.Scan(
		&event.CustomerID, &event.ID, &event.Payload, &event.Status,
		&attempts, &event.ReceivedAt, &event.LastAttemptAt,
		&event.LastError, &event.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &event.DeliveryAttempts); err != nil {
			return nil, fmt.Errorf("failed to decode delivery attempts: %w", err)
		}
	}

	return event, nil
}

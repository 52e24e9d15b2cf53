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

// Ping verifies database connectivity for readiness checks
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetEvent fetches one event, including its attempt history
func (r *PostgresRepository) GetEvent(ctx context.Context, customerID, eventID string) (*models.Event, error) {
	query := `
		SELECT customer_id, event_id, payload, status, delivery_attempts,
			received_at, last_attempt_at, last_error, expires_at
		FROM events
		WHERE customer_id = $1 AND event_id = $2
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	event := &models.Event{}
	var attempts []byte
	err := r.pool.QueryRow(ctx, query, customerID, eventID).Scan(
		&event.CustomerID, &event.ID, &event.Payload, &event.Status,
		&attempts, &event.ReceivedAt, &event.LastAttemptAt,
		&event.LastError, &event.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	if len(attempts) > 0 {
		if err := json.Unmarshal(attempts, &event.DeliveryAttempts); err != nil {
			return nil, fmt.Errorf("failed to decode delivery attempts: %w", err)
		}
	}

	return event, nil
}

// AppendAttempt appends one attempt record to a pending event
func (r *PostgresRepository) AppendAttempt(ctx context.Context, customerID, eventID string, attempt models.DeliveryAttempt) error {
	record, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}

	var lastError string
	if attempt.Error != "" {
		lastError = attempt.Error
	} else if attempt.Outcome != models.OutcomeSuccess {
		lastError = fmt.Sprintf("webhook returned HTTP %d", attempt.HTTPStatus)
	}

	// The status guard keeps terminal events immutable under redelivery.
	query := `
		UPDATE events
		SET delivery_attempts = delivery_attempts || $3::jsonb,
			last_attempt_at = $4,
			last_error = $5
		WHERE customer_id = $1 AND event_id = $2 AND status = 'pending'
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	_, err = r.pool.Exec(ctx, query, customerID, eventID,
		record, attempt.Timestamp, lastError)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", err)
	}

	return nil
}

// FinalizeEvent moves a pending event to a terminal status
func (r *PostgresRepository) FinalizeEvent(ctx context.Context, customerID, eventID string, status models.EventStatus, lastError string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("status %q is not terminal", status)
	}

	query := `
		UPDATE events
		SET status = $3, last_error = COALESCE(NULLIF($4, ''), last_error)
		WHERE customer_id = $1 AND event_id = $2 AND status = 'pending'
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, query, customerID, eventID, status, lastError)
	if err != nil {
		return false, fmt.Errorf("failed to finalize event: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// ActiveSubscriptions returns the customer's active subscriptions
func (r *PostgresRepository) ActiveSubscriptions(ctx context.Context, customerID string) ([]*models.Subscription, error) {
	query := `
		SELECT workflow_id, customer_id, match_rule, webhook_url, status, created_at, updated_at
		FROM subscriptions
		WHERE customer_id = $1 AND status = 'active'
		ORDER BY created_at
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	rows, err := r.pool.Query(ctx, query, customerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*models.Subscription{}
	for rows.Next() {
		sub := &models.Subscription{}
		var rawRule []byte
		err := rows.Scan(&sub.WorkflowID, &sub.CustomerID, &rawRule,
			&sub.WebhookURL, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}

		// A rule that fails to parse leaves Rule nil; the matcher treats
		// that as a non-match and warns, rather than wedging the customer's
		// whole delivery path.
		if rule, err := models.ParseRule(rawRule); err == nil {
			sub.Rule = rule
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// DisableSubscription soft-disables a subscription
func (r *PostgresRepository) DisableSubscription(ctx context.Context, workflowID string) error {
	query := `
		UPDATE subscriptions
		SET status = 'disabled', updated_at = NOW()
		WHERE workflow_id = $1 AND status = 'active'
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	if _, err := r.pool.Exec(ctx, query, workflowID); err != nil {
		return fmt.Errorf("failed to disable subscription: %w", err)
	}

	return nil
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

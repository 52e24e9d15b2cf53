package repository

import (
	"context"
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

	config.MaxConns = 10
	config.MinConns = 2
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

// NewWithPool wraps an existing pool, used by tests.
func NewWithPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Ping verifies database connectivity for readiness checks
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Create stores a new subscription
func (r *PostgresRepository) Create(ctx context.Context, sub *models.Subscription) error {
	rule, err := models.EncodeRule(sub.Rule)
	if err != nil {
		return fmt.Errorf("failed to encode match rule: %w", err)
	}

	query := `
		INSERT INTO subscriptions (workflow_id, customer_id, match_rule, webhook_url, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	_, err = r.pool.Exec(ctx, query,
		sub.WorkflowID, sub.CustomerID, rule, sub.WebhookURL,
		sub.Status, sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// Get fetches one subscription owned by the customer
func (r *PostgresRepository) Get(ctx context.Context, customerID, workflowID string) (*models.Subscription, error) {
	query := `
		SELECT workflow_id, customer_id, match_rule, webhook_url, status, created_at, updated_at
		FROM subscriptions
		WHERE customer_id = $1 AND workflow_id = $2
	`

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()
	sub, err := scanSubscription(r.pool.QueryRow(ctx, query, customerID, workflowID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return sub, nil
}

// List returns the customer's subscriptions plus the total matching count
func (r *PostgresRepository) List(ctx context.Context, customerID string, filter ListFilter) ([]*models.Subscription, int, error) {
	where := "WHERE customer_id = $1"
	if !filter.IncludeDisabled {
		where += " AND status = 'active'"
	}

	ctx, cancel := database.QueryContext(ctx)
	defer cancel()

	var total int
	countQuery := "SELECT COUNT(*) FROM subscriptions " + where
	if err := r.pool.QueryRow(ctx, countQuery, customerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count subscriptions: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT workflow_id, customer_id, match_rule, webhook_url, status, created_at, updated_at
		FROM subscriptions
		%s
		ORDER BY created_at, workflow_id
		LIMIT $2 OFFSET $3
	`, where)

	rows, err := r.pool.Query(ctx, query, customerID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	subs := []*models.Subscription{}
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, total, nil
}

// SetStatus flips a subscription's status
func (r *PostgresRepository) SetStatus(ctx context.Context, customerID, workflowID string, status models.SubscriptionStatus) error {
	query := `
		UPDATE subscriptions
		SET status = $3, updated_at = NOW()
		WHERE customer_id = $1 AND workflow_id = $2
	`

	ctx, cancel := database.WriteContext(ctx)
	defer cancel()
	tag, err := r.pool.Exec(ctx, query, customerID, workflowID, status)
	if err != nil {
		return fmt.Errorf("failed to update subscription status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// Close releases the connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

func scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	var rawRule []byte
	err := row.Scan(&sub.WorkflowID, &sub.CustomerID, &rawRule,
		&sub.WebhookURL, &sub.Status, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule, err := models.ParseRule(rawRule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse stored match rule: %w", err)
	}
	sub.Rule = rule
	return sub, nil
}

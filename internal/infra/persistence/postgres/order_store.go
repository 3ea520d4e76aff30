package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coachpo/orderbroker/internal/domain/order"
	"github.com/coachpo/orderbroker/internal/domain/orderstore"
)

// OrderStore persists submission receipts and fill snapshots.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ orderstore.Store = (*OrderStore)(nil)

// NewOrderStore constructs an OrderStore backed by the provided pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const (
	submissionInsertSQL = `
INSERT INTO submissions (
    client_order_id,
    venue,
    symbol,
    side,
    order_type,
    quantity,
    price,
    http_status,
    accepted,
    error,
    submitted_at,
    metadata,
    created_at
)
VALUES (
    @client_order_id,
    @venue,
    @symbol,
    @side,
    @order_type,
    @quantity,
    @price,
    @http_status,
    @accepted,
    @error,
    @submitted_at,
    @metadata::jsonb,
    NOW()
);
`

	// Older observations never overwrite newer ones; checked_at only moves forward.
	fillUpsertSQL = `
INSERT INTO fill_records (
    order_id,
    status,
    terminal,
    observed_at,
    checked_at,
    created_at,
    updated_at
)
VALUES (
    @order_id,
    @status,
    @terminal,
    @observed_at,
    @checked_at,
    NOW(),
    NOW()
)
ON CONFLICT (order_id) DO UPDATE SET
    status = EXCLUDED.status,
    terminal = EXCLUDED.terminal,
    observed_at = EXCLUDED.observed_at,
    checked_at = GREATEST(fill_records.checked_at, EXCLUDED.checked_at),
    updated_at = NOW()
WHERE fill_records.observed_at <= EXCLUDED.observed_at;
`

	fillCheckedSQL = `
UPDATE fill_records
SET checked_at = $2,
    updated_at = NOW()
WHERE order_id = ANY($1) AND checked_at < $2;
`

	fillSelectBase = `
SELECT
    f.order_id,
    f.status,
    f.observed_at,
    f.checked_at
FROM fill_records f
`

	defaultFillLimit = 500
	maxFillLimit     = 5000
)

func (s *OrderStore) ensurePool() (*pgxpool.Pool, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("order store: nil pool")
	}
	return s.pool, nil
}

// RecordSubmission appends a submission receipt. Resends of the same client order id are kept
// as separate rows.
func (s *OrderStore) RecordSubmission(ctx context.Context, submission orderstore.Submission) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	if strings.TrimSpace(submission.ClientOrderID) == "" {
		return fmt.Errorf("order store: client order id required")
	}
	quantity, err := numericFromString(submission.Quantity)
	if err != nil {
		return fmt.Errorf("order store: quantity: %w", err)
	}
	price, err := numericFromOptional(submission.Price)
	if err != nil {
		return fmt.Errorf("order store: price: %w", err)
	}
	metadata, err := encodeMetadata(submission.Metadata)
	if err != nil {
		return err
	}
	args := pgx.NamedArgs{
		"client_order_id": strings.TrimSpace(submission.ClientOrderID),
		"venue":           strings.TrimSpace(submission.Venue),
		"symbol":          submission.Symbol,
		"side":            strings.TrimSpace(submission.Side),
		"order_type":      strings.TrimSpace(submission.Type),
		"quantity":        quantity,
		"price":           price,
		"http_status":     submission.HTTPStatus,
		"accepted":        submission.Accepted,
		"error":           nullableString(submission.Error),
		"submitted_at":    time.UnixMilli(submission.SubmittedAt).UTC(),
		"metadata":        metadata,
	}
	if _, err := pool.Exec(ctx, submissionInsertSQL, args); err != nil {
		return fmt.Errorf("order store: insert submission: %w", err)
	}
	return nil
}

// UpsertFill creates or overwrites the fill snapshot for record.OrderID.
func (s *OrderStore) UpsertFill(ctx context.Context, record order.FillRecord) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	if strings.TrimSpace(record.OrderID) == "" {
		return fmt.Errorf("order store: order id required")
	}
	if !record.Status.Valid() {
		return fmt.Errorf("order store: invalid status %q", record.Status)
	}
	observedAt := record.ObservedAt
	if observedAt.IsZero() {
		observedAt = time.Now()
	}
	checkedAt := record.CheckedAt
	if checkedAt.Before(observedAt) {
		checkedAt = observedAt
	}
	args := pgx.NamedArgs{
		"order_id":    strings.TrimSpace(record.OrderID),
		"status":      string(record.Status),
		"terminal":    record.Terminal(),
		"observed_at": observedAt.UTC(),
		"checked_at":  checkedAt.UTC(),
	}
	if _, err := pool.Exec(ctx, fillUpsertSQL, args); err != nil {
		return fmt.Errorf("order store: upsert fill: %w", err)
	}
	return nil
}

// MarkChecked advances checked_at for the tracked ids in orderIDs.
func (s *OrderStore) MarkChecked(ctx context.Context, orderIDs []string, at time.Time) error {
	pool, err := s.ensurePool()
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(orderIDs))
	for _, id := range orderIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := pool.Exec(ctx, fillCheckedSQL, ids, at.UTC()); err != nil {
		return fmt.Errorf("order store: mark fills checked: %w", err)
	}
	return nil
}

// Fill returns the snapshot for orderID or orderstore.ErrNotFound.
func (s *OrderStore) Fill(ctx context.Context, orderID string) (order.FillRecord, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return order.FillRecord{}, err
	}
	row := pool.QueryRow(ctx, fillSelectBase+" WHERE f.order_id = $1", strings.TrimSpace(orderID))
	record, err := scanFill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.FillRecord{}, orderstore.ErrNotFound
		}
		return order.FillRecord{}, err
	}
	return record, nil
}

// ListFills returns snapshots ordered by least recently checked first.
func (s *OrderStore) ListFills(ctx context.Context, query orderstore.FillQuery) ([]order.FillRecord, error) {
	pool, err := s.ensurePool()
	if err != nil {
		return nil, err
	}
	limit := clampLimit(query.Limit, defaultFillLimit, maxFillLimit)

	builder := strings.Builder{}
	builder.WriteString(fillSelectBase)
	if query.TransientOnly {
		builder.WriteString(" WHERE NOT f.terminal")
	}
	builder.WriteString(" ORDER BY f.checked_at ASC, f.order_id ASC LIMIT $1")

	rows, err := pool.Query(ctx, builder.String(), limit)
	if err != nil {
		return nil, fmt.Errorf("order store: list fills: %w", err)
	}
	defer rows.Close()

	records := make([]order.FillRecord, 0)
	for rows.Next() {
		record, err := scanFill(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("order store: iterate fills: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFill(row rowScanner) (order.FillRecord, error) {
	var (
		orderID    string
		status     string
		observedAt time.Time
		checkedAt  time.Time
	)
	if err := row.Scan(&orderID, &status, &observedAt, &checkedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return order.FillRecord{}, err
		}
		return order.FillRecord{}, fmt.Errorf("order store: scan fill: %w", err)
	}
	return order.FillRecord{
		OrderID:    orderID,
		Status:     order.Status(status),
		ObservedAt: observedAt.UTC(),
		CheckedAt:  checkedAt.UTC(),
	}, nil
}

func encodeMetadata(meta map[string]any) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("order store: encode metadata: %w", err)
	}
	return data, nil
}

func nullableString(value string) any {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func clampLimit(value, fallback, maximum int) int {
	if value <= 0 {
		return fallback
	}
	if value > maximum {
		return maximum
	}
	return value
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/curvelab/monbot/internal/domain"
)

// OrderStore persists client order records in the client_orders table.
// The engine's in-memory tables are never pruned; retention and
// archival run against this store instead.
type OrderStore struct {
	client *Client
}

// NewOrderStore creates an OrderStore backed by the given Client.
func NewOrderStore(c *Client) *OrderStore {
	return &OrderStore{client: c}
}

var _ domain.OrderStore = (*OrderStore)(nil)

const orderColumns = `cloid, market, side, price, size, remaining, order_id, state, tx_hash, created_at, updated_at`

// Upsert inserts or refreshes one order record, keyed by cloid.
func (s *OrderStore) Upsert(ctx context.Context, order domain.ClientOrder) error {
	const q = `
		INSERT INTO client_orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cloid) DO UPDATE SET
			remaining = EXCLUDED.remaining,
			order_id = EXCLUDED.order_id,
			state = EXCLUDED.state,
			tx_hash = EXCLUDED.tx_hash,
			updated_at = EXCLUDED.updated_at`

	_, err := s.client.Pool().Exec(ctx, q,
		order.Cloid, order.Market, string(order.Side),
		order.Price, order.Size, order.Remaining,
		int64(order.OrderID), string(order.State), order.TxHash,
		order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert order %s: %w", order.Cloid, err)
	}
	return nil
}

// GetByCloid fetches one order record.
func (s *OrderStore) GetByCloid(ctx context.Context, cloid string) (domain.ClientOrder, error) {
	const q = `SELECT ` + orderColumns + ` FROM client_orders WHERE cloid = $1`

	order, err := scanOrder(s.client.Pool().QueryRow(ctx, q, cloid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ClientOrder{}, fmt.Errorf("postgres: order %s: %w", cloid, domain.ErrNotFound)
		}
		return domain.ClientOrder{}, fmt.Errorf("postgres: get order %s: %w", cloid, err)
	}
	return order, nil
}

// ListByMarket returns a market's records, most recently updated first.
func (s *OrderStore) ListByMarket(ctx context.Context, market string, limit int) ([]domain.ClientOrder, error) {
	const q = `
		SELECT ` + orderColumns + ` FROM client_orders
		WHERE market = $1
		ORDER BY updated_at DESC
		LIMIT $2`

	rows, err := s.client.Pool().Query(ctx, q, market, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders %s: %w", market, err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// ListTerminalBefore returns terminal orders last updated before the
// cutoff, oldest first, for archival export.
func (s *OrderStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ClientOrder, error) {
	const q = `
		SELECT ` + orderColumns + ` FROM client_orders
		WHERE state IN ('filled', 'cancelled', 'failed') AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`

	rows, err := s.client.Pool().Query(ctx, q, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list terminal orders: %w", err)
	}
	defer rows.Close()
	return scanOrders(rows)
}

// DeleteByCloids removes archived records, returning the count removed.
func (s *OrderStore) DeleteByCloids(ctx context.Context, cloids []string) (int64, error) {
	if len(cloids) == 0 {
		return 0, nil
	}
	tag, err := s.client.Pool().Exec(ctx,
		`DELETE FROM client_orders WHERE cloid = ANY($1)`, cloids)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (domain.ClientOrder, error) {
	var (
		order       domain.ClientOrder
		side, state string
		orderID     int64
	)
	err := row.Scan(
		&order.Cloid, &order.Market, &side,
		&order.Price, &order.Size, &order.Remaining,
		&orderID, &state, &order.TxHash,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return domain.ClientOrder{}, err
	}
	order.OrderID = uint64(orderID)
	order.Side = domain.Side(side)
	order.State = domain.OrderState(state)
	return order, nil
}

func scanOrders(rows pgx.Rows) ([]domain.ClientOrder, error) {
	var out []domain.ClientOrder
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		out = append(out, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate orders: %w", err)
	}
	return out, nil
}

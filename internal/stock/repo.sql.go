package stock

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository folds lots and allocations straight from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetStock computes the snapshot for one product, optionally scoped to a
// warehouse. Quantity excludes reservations; reservations only reduce
// availability.
func (r *Repository) GetStock(ctx context.Context, productID int64, warehouseID *int64) (Snapshot, error) {
	if r == nil {
		return Snapshot{}, errors.New("stock repository not initialised")
	}
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM products WHERE id=$1)`, productID).Scan(&exists); err != nil {
		return Snapshot{}, err
	}
	if !exists {
		return Snapshot{}, shared.ErrProductNotFound
	}

	var lotQty, overflowQty, reservedQty pgtype.Numeric
	err := r.pool.QueryRow(ctx, `SELECT
  COALESCE((SELECT SUM(remaining_qty) FROM lots WHERE product_id=$1 AND ($2::bigint IS NULL OR warehouse_id=$2)), 0),
  COALESCE((SELECT SUM(qty) FROM allocations WHERE product_id=$1 AND ($2::bigint IS NULL OR warehouse_id=$2) AND is_negative_overflow AND NOT is_reservation), 0),
  COALESCE((SELECT SUM(qty) FROM allocations WHERE product_id=$1 AND ($2::bigint IS NULL OR warehouse_id=$2) AND is_reservation), 0)`,
		productID, warehouseID).Scan(&lotQty, &overflowQty, &reservedQty)
	if err != nil {
		return Snapshot{}, err
	}

	quantity := numericToDecimal(lotQty).Sub(numericToDecimal(overflowQty))
	reserved := numericToDecimal(reservedQty)
	return Snapshot{
		Quantity:  quantity,
		Reserved:  reserved,
		Available: quantity.Sub(reserved),
	}, nil
}

// GetStockBulk computes per-product snapshots for every product, joined
// with the product name, ordered by name.
func (r *Repository) GetStockBulk(ctx context.Context, warehouseID *int64) ([]ProductStock, error) {
	if r == nil {
		return nil, errors.New("stock repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.name,
  COALESCE(l.qty, 0) - COALESCE(o.overflow, 0) AS quantity,
  COALESCE(rv.reserved, 0) AS reserved
FROM products p
LEFT JOIN (SELECT product_id, SUM(remaining_qty) AS qty FROM lots
           WHERE $1::bigint IS NULL OR warehouse_id=$1 GROUP BY product_id) l ON l.product_id = p.id
LEFT JOIN (SELECT product_id, SUM(qty) AS overflow FROM allocations
           WHERE is_negative_overflow AND NOT is_reservation AND ($1::bigint IS NULL OR warehouse_id=$1)
           GROUP BY product_id) o ON o.product_id = p.id
LEFT JOIN (SELECT product_id, SUM(qty) AS reserved FROM allocations
           WHERE is_reservation AND ($1::bigint IS NULL OR warehouse_id=$1)
           GROUP BY product_id) rv ON rv.product_id = p.id
ORDER BY p.name ASC, p.id ASC`, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []ProductStock{}
	for rows.Next() {
		var row ProductStock
		var qty, reserved pgtype.Numeric
		if err := rows.Scan(&row.ID, &row.Name, &qty, &reserved); err != nil {
			return nil, err
		}
		row.Quantity = numericToDecimal(qty)
		row.Reserved = numericToDecimal(reserved)
		row.Available = row.Quantity.Sub(row.Reserved)
		result = append(result, row)
	}
	return result, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// TxRepository exposes lot and allocation persistence inside one database
// transaction. Documents and ledger effects always commit together.
type TxRepository interface {
	CreateLot(ctx context.Context, lot Lot) (Lot, error)
	GetOpenLotsForUpdate(ctx context.Context, productID, warehouseID int64) ([]Lot, error)
	AdjustRemaining(ctx context.Context, lotID int64, delta decimal.Decimal) (Lot, error)
	DeleteLotsForDocument(ctx context.Context, documentID int64) (int64, error)
	InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error)
	ListAllocationsForDocument(ctx context.Context, documentID int64) ([]Allocation, error)
	DeleteAllocationsForDocument(ctx context.Context, documentID int64) (int64, error)
	DeleteAllocation(ctx context.Context, id int64) error
	UpdateAllocationQty(ctx context.Context, id int64, qty decimal.Decimal) error
	CountForeignAllocations(ctx context.Context, documentID int64) (int64, error)
	ListReservationAllocations(ctx context.Context, orderID, productID int64) ([]Allocation, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a pgx transaction into a TxRepository.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const lotColumns = `id, product_id, warehouse_id, source_document_id, original_qty, remaining_qty, unit_cost, created_at`

const allocationColumns = `id, lot_id, product_id, warehouse_id, consuming_document_id, consuming_line_id, qty, is_negative_overflow, is_reservation, created_at`

func (r *txRepository) CreateLot(ctx context.Context, lot Lot) (Lot, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO lots (product_id, warehouse_id, source_document_id, original_qty, remaining_qty, unit_cost, created_at)
VALUES ($1,$2,$3,$4,$4,$5,NOW()) RETURNING `+lotColumns,
		lot.ProductID, lot.WarehouseID, lot.SourceDocumentID, decimalToNumeric(lot.OriginalQty), decimalToNumeric(lot.UnitCost))
	return scanLot(row)
}

func (r *txRepository) GetOpenLotsForUpdate(ctx context.Context, productID, warehouseID int64) ([]Lot, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+lotColumns+` FROM lots
WHERE product_id=$1 AND warehouse_id=$2 AND remaining_qty > 0
ORDER BY created_at ASC, id ASC
FOR UPDATE`, productID, warehouseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lots []Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func (r *txRepository) AdjustRemaining(ctx context.Context, lotID int64, delta decimal.Decimal) (Lot, error) {
	row := r.tx.QueryRow(ctx, `UPDATE lots SET remaining_qty = remaining_qty + $2 WHERE id=$1 RETURNING `+lotColumns,
		lotID, decimalToNumeric(delta))
	lot, err := scanLot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	if lot.RemainingQty.IsNegative() || lot.RemainingQty.GreaterThan(lot.OriginalQty) {
		return Lot{}, shared.ErrInvariantViolation
	}
	return lot, nil
}

func (r *txRepository) DeleteLotsForDocument(ctx context.Context, documentID int64) (int64, error) {
	var refs int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM allocations a JOIN lots l ON a.lot_id = l.id
WHERE l.source_document_id=$1`, documentID).Scan(&refs)
	if err != nil {
		return 0, err
	}
	if refs > 0 {
		return 0, shared.ErrInvariantViolation
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM lots WHERE source_document_id=$1`, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) InsertAllocation(ctx context.Context, alloc Allocation) (Allocation, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO allocations (lot_id, product_id, warehouse_id, consuming_document_id, consuming_line_id, qty, is_negative_overflow, is_reservation, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW()) RETURNING `+allocationColumns,
		alloc.LotID, alloc.ProductID, alloc.WarehouseID, alloc.ConsumingDocumentID, alloc.ConsumingLineID,
		decimalToNumeric(alloc.Qty), alloc.NegativeOverflow, alloc.Reservation)
	return scanAllocation(row)
}

func (r *txRepository) ListAllocationsForDocument(ctx context.Context, documentID int64) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+allocationColumns+` FROM allocations
WHERE consuming_document_id=$1 ORDER BY created_at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAllocations(rows)
}

func (r *txRepository) DeleteAllocationsForDocument(ctx context.Context, documentID int64) (int64, error) {
	tag, err := r.tx.Exec(ctx, `DELETE FROM allocations WHERE consuming_document_id=$1`, documentID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *txRepository) DeleteAllocation(ctx context.Context, id int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM allocations WHERE id=$1`, id)
	return err
}

func (r *txRepository) UpdateAllocationQty(ctx context.Context, id int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx, `UPDATE allocations SET qty=$2 WHERE id=$1`, id, decimalToNumeric(qty))
	return err
}

func (r *txRepository) CountForeignAllocations(ctx context.Context, documentID int64) (int64, error) {
	var count int64
	err := r.tx.QueryRow(ctx, `SELECT COUNT(*) FROM allocations a JOIN lots l ON a.lot_id = l.id
WHERE l.source_document_id=$1 AND a.consuming_document_id <> $1`, documentID).Scan(&count)
	return count, err
}

func (r *txRepository) ListReservationAllocations(ctx context.Context, orderID, productID int64) ([]Allocation, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+allocationColumns+` FROM allocations
WHERE consuming_document_id=$1 AND product_id=$2 AND is_reservation
ORDER BY created_at ASC, id ASC`, orderID, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAllocations(rows)
}

func scanLot(row pgx.Row) (Lot, error) {
	var lot Lot
	var original, remaining, cost pgtype.Numeric
	if err := row.Scan(&lot.ID, &lot.ProductID, &lot.WarehouseID, &lot.SourceDocumentID, &original, &remaining, &cost, &lot.CreatedAt); err != nil {
		return Lot{}, err
	}
	lot.OriginalQty = numericToDecimal(original)
	lot.RemainingQty = numericToDecimal(remaining)
	lot.UnitCost = numericToDecimal(cost)
	return lot, nil
}

func scanAllocation(row pgx.Row) (Allocation, error) {
	var alloc Allocation
	var qty pgtype.Numeric
	if err := row.Scan(&alloc.ID, &alloc.LotID, &alloc.ProductID, &alloc.WarehouseID, &alloc.ConsumingDocumentID,
		&alloc.ConsumingLineID, &qty, &alloc.NegativeOverflow, &alloc.Reservation, &alloc.CreatedAt); err != nil {
		return Allocation{}, err
	}
	alloc.Qty = numericToDecimal(qty)
	return alloc, nil
}

func collectAllocations(rows pgx.Rows) ([]Allocation, error) {
	var allocs []Allocation
	for rows.Next() {
		alloc, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		allocs = append(allocs, alloc)
	}
	return allocs, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.String())
	return n
}

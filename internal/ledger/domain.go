// Package ledger implements the append-only lot ledger and the FIFO
// allocator that consumes it. A posted receipt line creates one lot; posted
// write-offs, shipments and reserved orders draw lots down oldest-first.
package ledger

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one FIFO-orderable unit of stock, created by a posted receipt line.
// FIFO order is scoped per (product, warehouse) and keyed by (created_at, id).
type Lot struct {
	ID               int64
	ProductID        int64
	WarehouseID      int64
	SourceDocumentID int64
	OriginalQty      decimal.Decimal
	RemainingQty     decimal.Decimal
	UnitCost         decimal.Decimal
	CreatedAt        time.Time
}

// Allocation records a consuming document line drawing down a specific lot.
// LotID is nil for negative-overflow allocations, which represent stock
// written off before it was received. Reservation allocations earmark lots
// for reserved orders without reducing their remaining quantity.
type Allocation struct {
	ID                  int64
	LotID               *int64
	ProductID           int64
	WarehouseID         int64
	ConsumingDocumentID int64
	ConsumingLineID     int64
	Qty                 decimal.Decimal
	NegativeOverflow    bool
	Reservation         bool
	CreatedAt           time.Time
}

// AllocationRequest asks the allocator to consume or reserve a quantity of a
// product in a warehouse on behalf of a document line.
type AllocationRequest struct {
	ProductID           int64
	WarehouseID         int64
	Qty                 decimal.Decimal
	ConsumingDocumentID int64
	ConsumingLineID     int64
	Reservation         bool
}

// AllocationPlan is the result of one FIFO walk.
type AllocationPlan struct {
	Allocations []Allocation
	OverflowQty decimal.Decimal
}

// Consumed returns the total quantity covered by the plan.
func (p AllocationPlan) Consumed() decimal.Decimal {
	total := decimal.Zero
	for _, a := range p.Allocations {
		total = total.Add(a.Qty)
	}
	return total
}

// ErrInvalidQuantity indicates a non-positive allocation quantity.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrLotNotFound indicates a missing lot row.
var ErrLotNotFound = errors.New("ledger: lot not found")

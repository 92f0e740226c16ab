package ledger

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/observability"
)

// Allocator walks open lots oldest-first and produces allocation plans.
// It operates on a TxRepository so every plan lands in the same transaction
// as the document status flip that triggered it.
type Allocator struct {
	logger  *slog.Logger
	metrics *observability.LedgerMetrics
}

// NewAllocator builds an Allocator. Metrics may be nil.
func NewAllocator(logger *slog.Logger, metrics *observability.LedgerMetrics) *Allocator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Allocator{logger: logger, metrics: metrics}
}

// Allocate consumes (or, for reservations, earmarks) req.Qty against open
// lots in FIFO order. When lots run out the remainder becomes one
// negative-overflow allocation with no backing lot; selling stock that has
// not been received yet is permitted and trued up by a later receipt.
func (a *Allocator) Allocate(ctx context.Context, tx TxRepository, req AllocationRequest) (AllocationPlan, error) {
	plan := AllocationPlan{}
	if req.Qty.Sign() <= 0 {
		return plan, ErrInvalidQuantity
	}

	lots, err := tx.GetOpenLotsForUpdate(ctx, req.ProductID, req.WarehouseID)
	if err != nil {
		return plan, err
	}

	remaining := req.Qty
	for _, lot := range lots {
		if remaining.Sign() == 0 {
			break
		}
		take := decimal.Min(lot.RemainingQty, remaining)
		if take.Sign() <= 0 {
			continue
		}
		if !req.Reservation {
			updated, err := tx.AdjustRemaining(ctx, lot.ID, take.Neg())
			if err != nil {
				return AllocationPlan{}, err
			}
			a.logger.Debug("lot consumed",
				slog.Int64("lot_id", lot.ID),
				slog.String("before", lot.RemainingQty.String()),
				slog.String("after", updated.RemainingQty.String()),
				slog.Int64("document_id", req.ConsumingDocumentID))
		}
		lotID := lot.ID
		alloc, err := tx.InsertAllocation(ctx, Allocation{
			LotID:               &lotID,
			ProductID:           req.ProductID,
			WarehouseID:         req.WarehouseID,
			ConsumingDocumentID: req.ConsumingDocumentID,
			ConsumingLineID:     req.ConsumingLineID,
			Qty:                 take,
			Reservation:         req.Reservation,
		})
		if err != nil {
			return AllocationPlan{}, err
		}
		plan.Allocations = append(plan.Allocations, alloc)
		remaining = remaining.Sub(take)
		a.metrics.ObserveAllocation(false)
	}

	if remaining.Sign() > 0 {
		alloc, err := tx.InsertAllocation(ctx, Allocation{
			ProductID:           req.ProductID,
			WarehouseID:         req.WarehouseID,
			ConsumingDocumentID: req.ConsumingDocumentID,
			ConsumingLineID:     req.ConsumingLineID,
			Qty:                 remaining,
			NegativeOverflow:    true,
			Reservation:         req.Reservation,
		})
		if err != nil {
			return AllocationPlan{}, err
		}
		plan.Allocations = append(plan.Allocations, alloc)
		plan.OverflowQty = remaining
		a.metrics.ObserveAllocation(true)
		a.logger.Warn("stock going negative",
			slog.Int64("product_id", req.ProductID),
			slog.Int64("warehouse_id", req.WarehouseID),
			slog.String("shortfall", remaining.String()),
			slog.Int64("document_id", req.ConsumingDocumentID))
	}

	return plan, nil
}

// ReverseForDocument undoes every allocation the given document holds.
// Real-lot consuming allocations credit their lot back; reservations and
// overflow rows are simply deleted. Runs inside the unposting transaction.
func (a *Allocator) ReverseForDocument(ctx context.Context, tx TxRepository, documentID int64) (int64, error) {
	allocs, err := tx.ListAllocationsForDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	for _, alloc := range allocs {
		if alloc.LotID == nil || alloc.Reservation {
			continue
		}
		updated, err := tx.AdjustRemaining(ctx, *alloc.LotID, alloc.Qty)
		if err != nil {
			return 0, err
		}
		a.logger.Debug("lot credited",
			slog.Int64("lot_id", *alloc.LotID),
			slog.String("after", updated.RemainingQty.String()),
			slog.Int64("document_id", documentID))
	}
	return tx.DeleteAllocationsForDocument(ctx, documentID)
}

// ReleaseReservation shrinks an order's reservation for a product by up to
// qty, oldest allocation first. Returns the quantity actually released,
// which may be less than requested when the reservation is smaller.
func (a *Allocator) ReleaseReservation(ctx context.Context, tx TxRepository, orderID, productID int64, qty decimal.Decimal) (decimal.Decimal, error) {
	if qty.Sign() <= 0 {
		return decimal.Zero, ErrInvalidQuantity
	}
	allocs, err := tx.ListReservationAllocations(ctx, orderID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	released := decimal.Zero
	remaining := qty
	for _, alloc := range allocs {
		if remaining.Sign() == 0 {
			break
		}
		take := decimal.Min(alloc.Qty, remaining)
		if take.Equal(alloc.Qty) {
			if err := tx.DeleteAllocation(ctx, alloc.ID); err != nil {
				return decimal.Zero, err
			}
		} else {
			if err := tx.UpdateAllocationQty(ctx, alloc.ID, alloc.Qty.Sub(take)); err != nil {
				return decimal.Zero, err
			}
		}
		released = released.Add(take)
		remaining = remaining.Sub(take)
	}
	if released.Sign() > 0 {
		a.logger.Info("reservation released",
			slog.Int64("order_id", orderID),
			slog.Int64("product_id", productID),
			slog.String("qty", released.String()))
	}
	return released, nil
}

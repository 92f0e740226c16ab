package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	CreateDocument(ctx context.Context, doc Document) (Document, error)
	GetDocument(ctx context.Context, id int64) (Document, error)
	StatusStats(ctx context.Context) (StatusStats, error)
}

// ProductLookup resolves product references (master-data collaborator).
type ProductLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// WarehouseLookup resolves warehouse references (master-data collaborator).
type WarehouseLookup interface {
	Exists(ctx context.Context, id int64) (bool, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// StockInvalidator drops derived stock caches after ledger mutations.
type StockInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Validation errors surfaced to the API layer.
var (
	ErrNoLineItems     = errors.New("documents: document has no line items")
	ErrNotAnOrder      = errors.New("documents: reservation applies to order documents only")
	ErrItemQuantity    = errors.New("documents: line quantity must be positive")
	ErrWarehouseForDoc = errors.New("documents: warehouse required")
)

// Service coordinates the document state machine.
type Service struct {
	repo        RepositoryPort
	allocator   *ledger.Allocator
	products    ProductLookup
	warehouses  WarehouseLookup
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	invalidator StockInvalidator
	metrics     *observability.LedgerMetrics
	logger      *slog.Logger
}

// ServiceConfig groups the service dependencies.
type ServiceConfig struct {
	Repo        RepositoryPort
	Allocator   *ledger.Allocator
	Products    ProductLookup
	Warehouses  WarehouseLookup
	Audit       AuditPort
	Idempotency *shared.IdempotencyStore
	Invalidator StockInvalidator
	Metrics     *observability.LedgerMetrics
	Logger      *slog.Logger
}

// NewService builds Service. Audit, idempotency, invalidator and metrics may
// be nil; the core transitions do not depend on them.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	allocator := cfg.Allocator
	if allocator == nil {
		allocator = ledger.NewAllocator(logger, cfg.Metrics)
	}
	return &Service{
		repo:        cfg.Repo,
		allocator:   allocator,
		products:    cfg.Products,
		warehouses:  cfg.Warehouses,
		audit:       cfg.Audit,
		idempotency: cfg.Idempotency,
		invalidator: cfg.Invalidator,
		metrics:     cfg.Metrics,
		logger:      logger,
	}
}

// CreateLineInput is one line of a new document.
type CreateLineInput struct {
	ProductID int64
	Quantity  decimal.Decimal
	Price     decimal.Decimal
}

// CreateInput describes a new draft document.
type CreateInput struct {
	Type           string
	WarehouseID    int64
	OrderID        *int64
	IsReserved     bool
	Note           string
	IdempotencyKey string
	Items          []CreateLineInput
}

// Create validates the input and stores a draft document. Drafts have zero
// ledger footprint until posted.
func (s *Service) Create(ctx context.Context, input CreateInput) (Document, error) {
	docType, err := ParseType(input.Type)
	if err != nil {
		return Document{}, err
	}
	if input.WarehouseID == 0 {
		return Document{}, ErrWarehouseForDoc
	}
	if len(input.Items) == 0 {
		return Document{}, ErrNoLineItems
	}
	ok, err := s.warehouses.Exists(ctx, input.WarehouseID)
	if err != nil {
		return Document{}, err
	}
	if !ok {
		return Document{}, shared.ErrWarehouseNotFound
	}
	items := make([]LineItem, 0, len(input.Items))
	for _, line := range input.Items {
		if line.Quantity.Sign() <= 0 {
			return Document{}, ErrItemQuantity
		}
		ok, err := s.products.Exists(ctx, line.ProductID)
		if err != nil {
			return Document{}, err
		}
		if !ok {
			return Document{}, shared.ErrProductNotFound
		}
		items = append(items, LineItem{ProductID: line.ProductID, Quantity: line.Quantity, Price: line.Price})
	}

	insertedKey := false
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "documents"); err != nil {
			return Document{}, err
		}
		insertedKey = true
	}

	doc, err := s.repo.CreateDocument(ctx, Document{
		Type:        docType,
		WarehouseID: input.WarehouseID,
		OrderID:     input.OrderID,
		IsReserved:  docType == TypeOrder && input.IsReserved,
		Note:        input.Note,
		Items:       items,
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return Document{}, err
	}
	s.logger.Info("document created",
		slog.Int64("document_id", doc.ID),
		slog.String("type", string(doc.Type)),
		slog.Int("items", len(doc.Items)))
	return doc, nil
}

// Get loads a document with items.
func (s *Service) Get(ctx context.Context, id int64) (Document, error) {
	return s.repo.GetDocument(ctx, id)
}

// StatusStats summarises documents per status.
func (s *Service) StatusStats(ctx context.Context) (StatusStats, error) {
	return s.repo.StatusStats(ctx)
}

// Post transitions a draft document to posted, materialising its ledger
// effect. Posting an already posted document is a no-op.
func (s *Service) Post(ctx context.Context, id int64) (Document, error) {
	var doc Document
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		doc, changed, err = s.postLocked(ctx, tx, current)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	if changed {
		s.afterTransition(ctx, doc, true)
	}
	return doc, nil
}

// Unpost transitions a posted document back to draft, removing exactly the
// ledger effect posting created. Unposting a draft is a no-op.
func (s *Service) Unpost(ctx context.Context, id int64) (Document, error) {
	var doc Document
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		doc, changed, err = s.unpostLocked(ctx, tx, current)
		return err
	})
	if err != nil {
		return Document{}, err
	}
	if changed {
		s.afterTransition(ctx, doc, false)
	}
	return doc, nil
}

// Toggle posts a draft or unposts a posted document in one transaction, so
// two concurrent toggles cannot both post. The version CAS inside SetStatus
// rejects the loser with ErrConcurrentModification.
func (s *Service) Toggle(ctx context.Context, id int64) (Document, error) {
	var doc Document
	var posted, changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if current.Status == StatusDraft {
			posted = true
			doc, changed, err = s.postLocked(ctx, tx, current)
		} else {
			doc, changed, err = s.unpostLocked(ctx, tx, current)
		}
		return err
	})
	if err != nil {
		return Document{}, err
	}
	if changed {
		s.afterTransition(ctx, doc, posted)
	}
	return doc, nil
}

// SetReservation flips the reservation flag on an order. For posted orders
// the reservation allocations are created or released in the same
// transaction as the flag change.
func (s *Service) SetReservation(ctx context.Context, orderID int64, reserved bool) (Document, error) {
	var doc Document
	var changed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetDocumentForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if current.Type != TypeOrder {
			return ErrNotAnOrder
		}
		if current.IsReserved == reserved {
			doc = current
			return nil
		}
		if current.Status == StatusPosted {
			lg := tx.Ledger()
			if reserved {
				items, err := tx.GetLineItems(ctx, current.ID)
				if err != nil {
					return err
				}
				for _, item := range items {
					_, err := s.allocator.Allocate(ctx, lg, ledger.AllocationRequest{
						ProductID:           item.ProductID,
						WarehouseID:         current.WarehouseID,
						Qty:                 item.Quantity,
						ConsumingDocumentID: current.ID,
						ConsumingLineID:     item.ID,
						Reservation:         true,
					})
					if err != nil {
						return err
					}
				}
			} else {
				if _, err := s.allocator.ReverseForDocument(ctx, lg, current.ID); err != nil {
					return err
				}
			}
		}
		doc, err = tx.SetReservation(ctx, current.ID, reserved, current.Version)
		if err == nil {
			changed = true
		}
		return err
	})
	if err != nil {
		return Document{}, err
	}
	if !changed {
		return doc, nil
	}
	if s.invalidator != nil {
		_ = s.invalidator.Invalidate(ctx)
	}
	s.logger.Info("order reservation changed",
		slog.Int64("order_id", orderID),
		slog.Bool("reserved", reserved))
	return doc, nil
}

func (s *Service) postLocked(ctx context.Context, tx TxRepository, doc Document) (Document, bool, error) {
	if doc.Status == StatusPosted {
		s.logger.Info("document already posted", slog.Int64("document_id", doc.ID))
		return doc, false, nil
	}
	items, err := tx.GetLineItems(ctx, doc.ID)
	if err != nil {
		return Document{}, false, err
	}
	if len(items) == 0 {
		return Document{}, false, ErrNoLineItems
	}

	lg := tx.Ledger()
	switch {
	case doc.Type == TypeReceipt:
		for _, item := range items {
			lot, err := lg.CreateLot(ctx, ledger.Lot{
				ProductID:        item.ProductID,
				WarehouseID:      doc.WarehouseID,
				SourceDocumentID: doc.ID,
				OriginalQty:      item.Quantity,
				UnitCost:         item.Price,
			})
			if err != nil {
				return Document{}, false, err
			}
			s.logger.Debug("lot created",
				slog.Int64("lot_id", lot.ID),
				slog.Int64("product_id", lot.ProductID),
				slog.String("qty", lot.OriginalQty.String()))
		}
	case doc.ConsumesOnPost():
		reservation := doc.Type == TypeOrder
		for _, item := range items {
			_, err := s.allocator.Allocate(ctx, lg, ledger.AllocationRequest{
				ProductID:           item.ProductID,
				WarehouseID:         doc.WarehouseID,
				Qty:                 item.Quantity,
				ConsumingDocumentID: doc.ID,
				ConsumingLineID:     item.ID,
				Reservation:         reservation,
			})
			if err != nil {
				return Document{}, false, err
			}
		}
		if doc.Type == TypeShipment && doc.OrderID != nil {
			if err := s.releaseOrderReservation(ctx, tx, *doc.OrderID, items); err != nil {
				return Document{}, false, err
			}
		}
	}

	now := time.Now().UTC()
	updated, err := tx.SetStatus(ctx, doc.ID, StatusPosted, &now, doc.Version)
	if err != nil {
		return Document{}, false, err
	}
	updated.Items = items
	return updated, true, nil
}

func (s *Service) unpostLocked(ctx context.Context, tx TxRepository, doc Document) (Document, bool, error) {
	if doc.Status == StatusDraft {
		s.logger.Info("document already in draft", slog.Int64("document_id", doc.ID))
		return doc, false, nil
	}
	items, err := tx.GetLineItems(ctx, doc.ID)
	if err != nil {
		return Document{}, false, err
	}

	lg := tx.Ledger()
	switch {
	case doc.Type == TypeReceipt:
		// Rejected-unless-safe: a receipt whose lots were drawn down by
		// other documents keeps its posted status until those documents
		// are unposted first.
		foreign, err := lg.CountForeignAllocations(ctx, doc.ID)
		if err != nil {
			return Document{}, false, err
		}
		if foreign > 0 {
			return Document{}, false, fmt.Errorf("%w: document %d", shared.ErrCannotUnpost, doc.ID)
		}
		deleted, err := lg.DeleteLotsForDocument(ctx, doc.ID)
		if err != nil {
			return Document{}, false, err
		}
		s.logger.Info("receipt lots removed",
			slog.Int64("document_id", doc.ID),
			slog.Int64("lots", deleted))
	case doc.Type == TypeWriteoff || doc.Type == TypeOrder:
		if _, err := s.allocator.ReverseForDocument(ctx, lg, doc.ID); err != nil {
			return Document{}, false, err
		}
	case doc.Type == TypeShipment:
		if _, err := s.allocator.ReverseForDocument(ctx, lg, doc.ID); err != nil {
			return Document{}, false, err
		}
		if doc.OrderID != nil {
			if err := s.restoreOrderReservation(ctx, tx, *doc.OrderID, items); err != nil {
				return Document{}, false, err
			}
		}
	}

	updated, err := tx.SetStatus(ctx, doc.ID, StatusDraft, nil, doc.Version)
	if err != nil {
		return Document{}, false, err
	}
	updated.Items = items
	return updated, true, nil
}

// releaseOrderReservation shrinks a posted reserved order's reservation by
// the quantities a shipment just consumed, so the same stock is not counted
// as reserved and shipped at once.
func (s *Service) releaseOrderReservation(ctx context.Context, tx TxRepository, orderID int64, shipped []LineItem) error {
	order, err := tx.GetDocumentForUpdate(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Type != TypeOrder || order.Status != StatusPosted || !order.IsReserved {
		return nil
	}
	lg := tx.Ledger()
	for _, line := range shipped {
		if _, err := s.allocator.ReleaseReservation(ctx, lg, orderID, line.ProductID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// restoreOrderReservation re-reserves what the shipment's posting released.
// The release was clamped to the reservation that existed then, so the
// restore clamps too: never past the order's own quantity, and never on top
// of a reservation rebuilt since. The FIFO walk may pick different lots than
// the original reservation; the reserved total is what matters.
func (s *Service) restoreOrderReservation(ctx context.Context, tx TxRepository, orderID int64, shipped []LineItem) error {
	order, err := tx.GetDocumentForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, shared.ErrDocumentNotFound) {
			return nil
		}
		return err
	}
	if order.Type != TypeOrder || order.Status != StatusPosted || !order.IsReserved {
		return nil
	}
	orderItems, err := tx.GetLineItems(ctx, orderID)
	if err != nil {
		return err
	}
	lineByProduct := make(map[int64]LineItem, len(orderItems))
	orderedQty := make(map[int64]decimal.Decimal, len(orderItems))
	for _, item := range orderItems {
		if _, ok := lineByProduct[item.ProductID]; !ok {
			lineByProduct[item.ProductID] = item
		}
		orderedQty[item.ProductID] = orderedQty[item.ProductID].Add(item.Quantity)
	}
	lg := tx.Ledger()
	for _, line := range shipped {
		orderLine, ok := lineByProduct[line.ProductID]
		if !ok {
			continue
		}
		current, err := reservedForProduct(ctx, lg, orderID, line.ProductID)
		if err != nil {
			return err
		}
		qty := decimal.Min(line.Quantity, orderedQty[line.ProductID].Sub(current))
		if qty.Sign() <= 0 {
			continue
		}
		_, err = s.allocator.Allocate(ctx, lg, ledger.AllocationRequest{
			ProductID:           line.ProductID,
			WarehouseID:         order.WarehouseID,
			Qty:                 qty,
			ConsumingDocumentID: orderID,
			ConsumingLineID:     orderLine.ID,
			Reservation:         true,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func reservedForProduct(ctx context.Context, lg ledger.TxRepository, orderID, productID int64) (decimal.Decimal, error) {
	allocs, err := lg.ListReservationAllocations(ctx, orderID, productID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, alloc := range allocs {
		total = total.Add(alloc.Qty)
	}
	return total, nil
}

func (s *Service) afterTransition(ctx context.Context, doc Document, posted bool) {
	action := "documents:unpost"
	if posted {
		action = "documents:post"
		s.metrics.ObservePosted(string(doc.Type))
	} else {
		s.metrics.ObserveUnposted(string(doc.Type))
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx); err != nil {
			s.logger.Warn("stock cache invalidation failed", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Action:   action,
			Entity:   "document",
			EntityID: fmt.Sprintf("%d", doc.ID),
			Meta: map[string]any{
				"type":         string(doc.Type),
				"status":       string(doc.Status),
				"warehouse_id": doc.WarehouseID,
				"items":        len(doc.Items),
			},
		})
	}
	s.logger.Info("document status changed",
		slog.Int64("document_id", doc.ID),
		slog.String("type", string(doc.Type)),
		slog.String("status", string(doc.Status)))
}

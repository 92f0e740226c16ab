package documents

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// memoryStore backs the service with maps instead of PostgreSQL. The
// embedded memoryLedgerRepo mirrors the SQL ledger repository semantics,
// including the consumption guard on lot deletion.
type memoryStore struct {
	docs       map[int64]*Document
	items      map[int64][]LineItem
	nextDocID  int64
	nextItemID int64
	ledger     *memoryLedgerRepo
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		docs:   make(map[int64]*Document),
		items:  make(map[int64][]LineItem),
		ledger: newMemoryLedgerRepo(),
	}
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{store: s})
}

func (s *memoryStore) CreateDocument(ctx context.Context, doc Document) (Document, error) {
	s.nextDocID++
	doc.ID = s.nextDocID
	doc.Status = StatusDraft
	doc.Version = 1
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	items := make([]LineItem, len(doc.Items))
	for i, item := range doc.Items {
		s.nextItemID++
		item.ID = s.nextItemID
		item.DocumentID = doc.ID
		items[i] = item
	}
	doc.Items = items
	stored := doc
	s.docs[doc.ID] = &stored
	s.items[doc.ID] = items
	return doc, nil
}

func (s *memoryStore) GetDocument(ctx context.Context, id int64) (Document, error) {
	doc, ok := s.docs[id]
	if !ok {
		return Document{}, shared.ErrDocumentNotFound
	}
	out := *doc
	out.Items = append([]LineItem(nil), s.items[id]...)
	return out, nil
}

func (s *memoryStore) StatusStats(ctx context.Context) (StatusStats, error) {
	var stats StatusStats
	for _, doc := range s.docs {
		if doc.Status == StatusPosted {
			stats.Posted++
		} else {
			stats.Draft++
		}
		stats.Total++
	}
	return stats, nil
}

type memoryTx struct {
	store *memoryStore
}

func (t *memoryTx) GetDocumentForUpdate(ctx context.Context, id int64) (Document, error) {
	doc, ok := t.store.docs[id]
	if !ok {
		return Document{}, shared.ErrDocumentNotFound
	}
	return *doc, nil
}

func (t *memoryTx) GetLineItems(ctx context.Context, documentID int64) ([]LineItem, error) {
	return append([]LineItem(nil), t.store.items[documentID]...), nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status, postedAt *time.Time, expectedVersion int64) (Document, error) {
	doc, ok := t.store.docs[id]
	if !ok {
		return Document{}, shared.ErrDocumentNotFound
	}
	if doc.Version != expectedVersion {
		return Document{}, shared.ErrConcurrentModification
	}
	doc.Status = status
	doc.PostedAt = postedAt
	doc.Version++
	doc.UpdatedAt = time.Now()
	return *doc, nil
}

func (t *memoryTx) SetReservation(ctx context.Context, id int64, reserved bool, expectedVersion int64) (Document, error) {
	doc, ok := t.store.docs[id]
	if !ok {
		return Document{}, shared.ErrDocumentNotFound
	}
	if doc.Version != expectedVersion {
		return Document{}, shared.ErrConcurrentModification
	}
	doc.IsReserved = reserved
	doc.Version++
	doc.UpdatedAt = time.Now()
	return *doc, nil
}

func (t *memoryTx) Ledger() ledger.TxRepository {
	return t.store.ledger
}

// memoryLedgerRepo implements ledger.TxRepository in memory.
type memoryLedgerRepo struct {
	lots        []ledger.Lot
	allocations []ledger.Allocation
	nextLotID   int64
	nextAllocID int64
	clock       time.Time
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (m *memoryLedgerRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Minute)
	return m.clock
}

func (m *memoryLedgerRepo) CreateLot(ctx context.Context, lot ledger.Lot) (ledger.Lot, error) {
	m.nextLotID++
	lot.ID = m.nextLotID
	lot.RemainingQty = lot.OriginalQty
	lot.CreatedAt = m.tick()
	m.lots = append(m.lots, lot)
	return lot, nil
}

func (m *memoryLedgerRepo) GetOpenLotsForUpdate(ctx context.Context, productID, warehouseID int64) ([]ledger.Lot, error) {
	var open []ledger.Lot
	for _, lot := range m.lots {
		if lot.ProductID == productID && lot.WarehouseID == warehouseID && lot.RemainingQty.Sign() > 0 {
			open = append(open, lot)
		}
	}
	return open, nil
}

func (m *memoryLedgerRepo) AdjustRemaining(ctx context.Context, lotID int64, delta decimal.Decimal) (ledger.Lot, error) {
	for i := range m.lots {
		if m.lots[i].ID != lotID {
			continue
		}
		next := m.lots[i].RemainingQty.Add(delta)
		if next.IsNegative() || next.GreaterThan(m.lots[i].OriginalQty) {
			return ledger.Lot{}, shared.ErrInvariantViolation
		}
		m.lots[i].RemainingQty = next
		return m.lots[i], nil
	}
	return ledger.Lot{}, ledger.ErrLotNotFound
}

func (m *memoryLedgerRepo) DeleteLotsForDocument(ctx context.Context, documentID int64) (int64, error) {
	owned := map[int64]bool{}
	for _, lot := range m.lots {
		if lot.SourceDocumentID == documentID {
			owned[lot.ID] = true
		}
	}
	for _, alloc := range m.allocations {
		if alloc.LotID != nil && owned[*alloc.LotID] {
			return 0, shared.ErrInvariantViolation
		}
	}
	var kept []ledger.Lot
	var deleted int64
	for _, lot := range m.lots {
		if lot.SourceDocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, lot)
	}
	m.lots = kept
	return deleted, nil
}

func (m *memoryLedgerRepo) InsertAllocation(ctx context.Context, alloc ledger.Allocation) (ledger.Allocation, error) {
	m.nextAllocID++
	alloc.ID = m.nextAllocID
	alloc.CreatedAt = m.tick()
	m.allocations = append(m.allocations, alloc)
	return alloc, nil
}

func (m *memoryLedgerRepo) ListAllocationsForDocument(ctx context.Context, documentID int64) ([]ledger.Allocation, error) {
	var out []ledger.Allocation
	for _, alloc := range m.allocations {
		if alloc.ConsumingDocumentID == documentID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (m *memoryLedgerRepo) DeleteAllocationsForDocument(ctx context.Context, documentID int64) (int64, error) {
	var kept []ledger.Allocation
	var deleted int64
	for _, alloc := range m.allocations {
		if alloc.ConsumingDocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, alloc)
	}
	m.allocations = kept
	return deleted, nil
}

func (m *memoryLedgerRepo) DeleteAllocation(ctx context.Context, id int64) error {
	for i, alloc := range m.allocations {
		if alloc.ID == id {
			m.allocations = append(m.allocations[:i], m.allocations[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *memoryLedgerRepo) UpdateAllocationQty(ctx context.Context, id int64, qty decimal.Decimal) error {
	for i := range m.allocations {
		if m.allocations[i].ID == id {
			m.allocations[i].Qty = qty
			return nil
		}
	}
	return nil
}

func (m *memoryLedgerRepo) CountForeignAllocations(ctx context.Context, documentID int64) (int64, error) {
	owned := map[int64]bool{}
	for _, lot := range m.lots {
		if lot.SourceDocumentID == documentID {
			owned[lot.ID] = true
		}
	}
	var count int64
	for _, alloc := range m.allocations {
		if alloc.LotID != nil && owned[*alloc.LotID] && alloc.ConsumingDocumentID != documentID {
			count++
		}
	}
	return count, nil
}

func (m *memoryLedgerRepo) ListReservationAllocations(ctx context.Context, orderID, productID int64) ([]ledger.Allocation, error) {
	var out []ledger.Allocation
	for _, alloc := range m.allocations {
		if alloc.Reservation && alloc.ConsumingDocumentID == orderID && alloc.ProductID == productID {
			out = append(out, alloc)
		}
	}
	return out, nil
}

func (m *memoryLedgerRepo) quantity(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, lot := range m.lots {
		if lot.ProductID == productID {
			total = total.Add(lot.RemainingQty)
		}
	}
	for _, alloc := range m.allocations {
		if alloc.ProductID == productID && alloc.NegativeOverflow && !alloc.Reservation {
			total = total.Sub(alloc.Qty)
		}
	}
	return total
}

func (m *memoryLedgerRepo) reserved(productID int64) decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range m.allocations {
		if alloc.ProductID == productID && alloc.Reservation {
			total = total.Add(alloc.Qty)
		}
	}
	return total
}

type okLookup struct{}

func (okLookup) Exists(ctx context.Context, id int64) (bool, error) { return true, nil }

type mapLookup map[int64]bool

func (l mapLookup) Exists(ctx context.Context, id int64) (bool, error) { return l[id], nil }

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(store *memoryStore) *Service {
	return NewService(ServiceConfig{
		Repo:       store,
		Products:   okLookup{},
		Warehouses: okLookup{},
	})
}

func createDoc(t *testing.T, svc *Service, input CreateInput) Document {
	t.Helper()
	doc, err := svc.Create(context.Background(), input)
	require.NoError(t, err)
	return doc
}

func receiptInput(qty string) CreateInput {
	return CreateInput{
		Type:        "receipt",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec(qty), Price: dec("10")}},
	}
}

func TestCreateValidation(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Type: "mystery", WarehouseID: 1,
		Items: []CreateLineInput{{ProductID: 1, Quantity: dec("1")}}})
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = svc.Create(ctx, CreateInput{Type: "receipt", WarehouseID: 1})
	require.ErrorIs(t, err, ErrNoLineItems)

	_, err = svc.Create(ctx, CreateInput{Type: "receipt",
		Items: []CreateLineInput{{ProductID: 1, Quantity: dec("1")}}})
	require.ErrorIs(t, err, ErrWarehouseForDoc)

	_, err = svc.Create(ctx, CreateInput{Type: "receipt", WarehouseID: 1,
		Items: []CreateLineInput{{ProductID: 1, Quantity: dec("-2")}}})
	require.ErrorIs(t, err, ErrItemQuantity)
}

func TestCreateRejectsUnknownProduct(t *testing.T) {
	store := newMemoryStore()
	svc := NewService(ServiceConfig{
		Repo:       store,
		Products:   mapLookup{1: true},
		Warehouses: okLookup{},
	})

	_, err := svc.Create(context.Background(), CreateInput{Type: "receipt", WarehouseID: 1,
		Items: []CreateLineInput{{ProductID: 99, Quantity: dec("1")}}})
	require.ErrorIs(t, err, shared.ErrProductNotFound)
}

func TestPostReceiptCreatesLotsIdempotently(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	doc := createDoc(t, svc, receiptInput("10"))
	require.Equal(t, StatusDraft, doc.Status)
	require.True(t, store.ledger.quantity(1).IsZero())

	posted, err := svc.Post(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedAt)
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))

	// Posting again changes nothing.
	again, err := svc.Post(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, posted.Version, again.Version)
	require.Len(t, store.ledger.lots, 1)
}

func TestPostWriteoffConsumesFIFO(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	first := createDoc(t, svc, receiptInput("10"))
	second := createDoc(t, svc, receiptInput("5"))
	_, err := svc.Post(ctx, first.ID)
	require.NoError(t, err)
	_, err = svc.Post(ctx, second.ID)
	require.NoError(t, err)

	writeoff := createDoc(t, svc, CreateInput{
		Type:        "writeoff",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("12")}},
	})
	_, err = svc.Post(ctx, writeoff.ID)
	require.NoError(t, err)

	require.True(t, store.ledger.lots[0].RemainingQty.IsZero())
	require.True(t, store.ledger.lots[1].RemainingQty.Equal(dec("3")))
	require.True(t, store.ledger.quantity(1).Equal(dec("3")))
}

func TestWriteoffBeyondStockGoesNegative(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	writeoff := createDoc(t, svc, CreateInput{
		Type:        "writeoff",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("20")}},
	})
	_, err = svc.Post(ctx, writeoff.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("-10")))

	// Unposting brings the full amount back.
	_, err = svc.Unpost(ctx, writeoff.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
}

func TestUnpostReceiptRejectedWhileConsumed(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	writeoff := createDoc(t, svc, CreateInput{
		Type:        "writeoff",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("4")}},
	})
	_, err = svc.Post(ctx, writeoff.ID)
	require.NoError(t, err)

	_, err = svc.Unpost(ctx, receipt.ID)
	require.ErrorIs(t, err, shared.ErrCannotUnpost)

	// The receipt stays posted and the ledger stays intact.
	current, err := svc.Get(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, current.Status)
	require.True(t, store.ledger.quantity(1).Equal(dec("6")))

	// Once the consumer is unposted, the receipt unposts cleanly.
	_, err = svc.Unpost(ctx, writeoff.ID)
	require.NoError(t, err)
	unposted, err := svc.Unpost(ctx, receipt.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, unposted.Status)
	require.Nil(t, unposted.PostedAt)
	require.True(t, store.ledger.quantity(1).IsZero())
	require.Empty(t, store.ledger.lots)
}

func TestToggleFlipsBothWays(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	doc := createDoc(t, svc, receiptInput("7"))

	toggled, err := svc.Toggle(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, toggled.Status)
	require.True(t, store.ledger.quantity(1).Equal(dec("7")))

	toggled, err = svc.Toggle(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, toggled.Status)
	require.True(t, store.ledger.quantity(1).IsZero())
}

func TestStaleVersionIsRejected(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	doc := createDoc(t, svc, receiptInput("7"))

	now := time.Now()
	err := store.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		_, err := tx.SetStatus(ctx, doc.ID, StatusPosted, &now, doc.Version+5)
		return err
	})
	require.ErrorIs(t, err, shared.ErrConcurrentModification)

	// The regular path still works with the true version.
	_, err = svc.Post(ctx, doc.ID)
	require.NoError(t, err)
}

func TestReservedOrderEarmarksWithoutConsuming(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		IsReserved:  true,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("4")}},
	})
	_, err = svc.Post(ctx, order.ID)
	require.NoError(t, err)

	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
	require.True(t, store.ledger.reserved(1).Equal(dec("4")))

	_, err = svc.Unpost(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).IsZero())
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
}

func TestUnreservedOrderHasNoLedgerFootprint(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("4")}},
	})
	posted, err := svc.Post(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.Empty(t, store.ledger.allocations)
}

func TestSetReservationOnPostedOrder(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("6")}},
	})
	_, err = svc.Post(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).IsZero())

	doc, err := svc.SetReservation(ctx, order.ID, true)
	require.NoError(t, err)
	require.True(t, doc.IsReserved)
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))

	// Setting the same flag again is a no-op.
	doc, err = svc.SetReservation(ctx, order.ID, true)
	require.NoError(t, err)
	require.True(t, doc.IsReserved)
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))

	doc, err = svc.SetReservation(ctx, order.ID, false)
	require.NoError(t, err)
	require.False(t, doc.IsReserved)
	require.True(t, store.ledger.reserved(1).IsZero())
}

func TestSetReservationRejectsNonOrders(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.SetReservation(context.Background(), receipt.ID, true)
	require.ErrorIs(t, err, ErrNotAnOrder)
}

func TestShipmentReleasesAndRestoresOrderReservation(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		IsReserved:  true,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("6")}},
	})
	_, err = svc.Post(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))

	shipment := createDoc(t, svc, CreateInput{
		Type:        "shipment",
		WarehouseID: 1,
		OrderID:     &order.ID,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("4")}},
	})
	_, err = svc.Post(ctx, shipment.ID)
	require.NoError(t, err)

	// 4 shipped for real, reservation shrinks by the shipped amount.
	require.True(t, store.ledger.quantity(1).Equal(dec("6")))
	require.True(t, store.ledger.reserved(1).Equal(dec("2")))

	_, err = svc.Unpost(ctx, shipment.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))
}

func TestOverShipmentRoundTripKeepsReservation(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		IsReserved:  true,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("6")}},
	})
	_, err = svc.Post(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))

	// Ship more than the order reserved; the release bottoms out at zero.
	shipment := createDoc(t, svc, CreateInput{
		Type:        "shipment",
		WarehouseID: 1,
		OrderID:     &order.ID,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("8")}},
	})
	_, err = svc.Post(ctx, shipment.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("2")))
	require.True(t, store.ledger.reserved(1).IsZero())

	// Unposting restores the reservation to exactly its pre-posting value,
	// not the full shipped quantity.
	_, err = svc.Unpost(ctx, shipment.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))
}

func TestShipmentUnpostAfterReservationRebuilt(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	receipt := createDoc(t, svc, receiptInput("10"))
	_, err := svc.Post(ctx, receipt.ID)
	require.NoError(t, err)

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		IsReserved:  true,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("6")}},
	})
	_, err = svc.Post(ctx, order.ID)
	require.NoError(t, err)

	shipment := createDoc(t, svc, CreateInput{
		Type:        "shipment",
		WarehouseID: 1,
		OrderID:     &order.ID,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("4")}},
	})
	_, err = svc.Post(ctx, shipment.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).Equal(dec("2")))

	// Operator rebuilds the reservation in full while the shipment is out.
	_, err = svc.SetReservation(ctx, order.ID, false)
	require.NoError(t, err)
	_, err = svc.SetReservation(ctx, order.ID, true)
	require.NoError(t, err)
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))

	// Unposting must not stack a second reservation on top of the rebuilt one.
	_, err = svc.Unpost(ctx, shipment.ID)
	require.NoError(t, err)
	require.True(t, store.ledger.quantity(1).Equal(dec("10")))
	require.True(t, store.ledger.reserved(1).Equal(dec("6")))
}

type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate(ctx context.Context) error {
	c.calls++
	return nil
}

func TestSetReservationNoOpLeavesCacheAlone(t *testing.T) {
	store := newMemoryStore()
	invalidator := &countingInvalidator{}
	svc := NewService(ServiceConfig{
		Repo:        store,
		Products:    okLookup{},
		Warehouses:  okLookup{},
		Invalidator: invalidator,
	})
	ctx := context.Background()

	order := createDoc(t, svc, CreateInput{
		Type:        "order",
		WarehouseID: 1,
		Items:       []CreateLineInput{{ProductID: 1, Quantity: dec("3")}},
	})

	doc, err := svc.SetReservation(ctx, order.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, invalidator.calls)
	flippedVersion := doc.Version

	// Same flag again: no version bump, no cache invalidation.
	doc, err = svc.SetReservation(ctx, order.ID, true)
	require.NoError(t, err)
	require.Equal(t, 1, invalidator.calls)
	require.Equal(t, flippedVersion, doc.Version)
}

func TestPostMissingDocument(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)

	_, err := svc.Post(context.Background(), 404)
	require.ErrorIs(t, err, shared.ErrDocumentNotFound)
}

func TestStatusStats(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(store)
	ctx := context.Background()

	a := createDoc(t, svc, receiptInput("1"))
	createDoc(t, svc, receiptInput("2"))
	_, err := svc.Post(ctx, a.ID)
	require.NoError(t, err)

	stats, err := svc.StatusStats(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), stats.Posted)
	require.Equal(t, int64(1), stats.Draft)
	require.Equal(t, int64(2), stats.Total)
}

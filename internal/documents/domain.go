// Package documents implements the document lifecycle: draft documents are
// created freely, posting materialises their ledger effect, unposting
// reverses it exactly.
package documents

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Type is the closed set of document kinds. Legacy data used free-form
// strings for this across layers; ParseType is the single place that maps
// them onto the canonical enum.
type Type string

const (
	// TypeReceipt brings stock in; posting creates one lot per line.
	TypeReceipt Type = "receipt"
	// TypeWriteoff removes stock; posting consumes lots FIFO.
	TypeWriteoff Type = "writeoff"
	// TypeShipment removes stock against a customer order.
	TypeShipment Type = "shipment"
	// TypeOrder reserves stock when flagged, without reducing raw quantity.
	TypeOrder Type = "order"
)

// ErrUnknownType indicates a document type outside the closed enum.
var ErrUnknownType = errors.New("documents: unknown document type")

// ParseType maps canonical and legacy labels onto the enum.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receipt", "income", "оприходование":
		return TypeReceipt, nil
	case "writeoff", "write-off", "outcome", "списание":
		return TypeWriteoff, nil
	case "shipment", "отгрузка":
		return TypeShipment, nil
	case "order", "заказ":
		return TypeOrder, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// Label returns the display label for the type.
func (t Type) Label() string {
	switch t {
	case TypeReceipt:
		return "Receipt"
	case TypeWriteoff:
		return "Write-off"
	case TypeShipment:
		return "Shipment"
	case TypeOrder:
		return "Order"
	default:
		return string(t)
	}
}

// Valid reports whether the type belongs to the enum.
func (t Type) Valid() bool {
	switch t {
	case TypeReceipt, TypeWriteoff, TypeShipment, TypeOrder:
		return true
	}
	return false
}

// Status is the two-state document lifecycle. There is no partial posting.
type Status string

const (
	// StatusDraft documents have zero ledger footprint.
	StatusDraft Status = "draft"
	// StatusPosted documents own exactly the lots or allocations their
	// lines produced.
	StatusPosted Status = "posted"
)

// LineItem is one product movement line of a document.
type LineItem struct {
	ID         int64
	DocumentID int64
	ProductID  int64
	Quantity   decimal.Decimal
	Price      decimal.Decimal
}

// Document is the header entity for receipts, write-offs, shipments and
// orders. Version implements the optimistic-concurrency guard on status
// transitions.
type Document struct {
	ID          int64
	Type        Type
	Status      Status
	WarehouseID int64
	OrderID     *int64
	IsReserved  bool
	Note        string
	Version     int64
	PostedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Items       []LineItem
}

// ConsumesOnPost reports whether posting this document draws down lots.
func (d Document) ConsumesOnPost() bool {
	switch d.Type {
	case TypeWriteoff, TypeShipment:
		return true
	case TypeOrder:
		return d.IsReserved
	default:
		return false
	}
}

// StatusStats summarises documents per lifecycle state.
type StatusStats struct {
	Draft  int64 `json:"draft"`
	Posted int64 `json:"posted"`
	Total  int64 `json:"total"`
}

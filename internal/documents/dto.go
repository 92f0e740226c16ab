package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/stock"
)

type createDocumentItem struct {
	ProductID int64           `json:"productId" validate:"required,gt=0"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type createDocumentRequest struct {
	Type           string               `json:"type" validate:"required"`
	WarehouseID    int64                `json:"warehouseId" validate:"required,gt=0"`
	OrderID        *int64               `json:"orderId,omitempty"`
	IsReserved     bool                 `json:"isReserved"`
	Note           string               `json:"note"`
	IdempotencyKey string               `json:"idempotencyKey"`
	Items          []createDocumentItem `json:"items" validate:"required,min=1,dive"`
}

type reservationRequest struct {
	Reserved bool `json:"reserved"`
}

type documentItemResponse struct {
	ID        int64           `json:"id"`
	ProductID int64           `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type documentResponse struct {
	ID          int64                  `json:"id"`
	Type        string                 `json:"type"`
	Label       string                 `json:"label"`
	Status      string                 `json:"status"`
	WarehouseID int64                  `json:"warehouseId"`
	OrderID     *int64                 `json:"orderId,omitempty"`
	IsReserved  bool                   `json:"isReserved"`
	Note        string                 `json:"note,omitempty"`
	Version     int64                  `json:"version"`
	PostedAt    *time.Time             `json:"postedAt,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
	Items       []documentItemResponse `json:"items"`
}

type transitionResponse struct {
	Document documentResponse  `json:"document"`
	Stock    []stockDeltaEntry `json:"stock"`
}

type stockDeltaEntry struct {
	ProductID int64           `json:"productId"`
	Quantity  decimal.Decimal `json:"quantity"`
	Reserved  decimal.Decimal `json:"reserved"`
	Available decimal.Decimal `json:"available"`
}

func toDocumentResponse(doc Document) documentResponse {
	items := make([]documentItemResponse, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, documentItemResponse{
			ID:        item.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return documentResponse{
		ID:          doc.ID,
		Type:        string(doc.Type),
		Label:       doc.Type.Label(),
		Status:      string(doc.Status),
		WarehouseID: doc.WarehouseID,
		OrderID:     doc.OrderID,
		IsReserved:  doc.IsReserved,
		Note:        doc.Note,
		Version:     doc.Version,
		PostedAt:    doc.PostedAt,
		CreatedAt:   doc.CreatedAt,
		Items:       items,
	}
}

func toStockDelta(productID int64, snap stock.Snapshot) stockDeltaEntry {
	return stockDeltaEntry{
		ProductID: productID,
		Quantity:  snap.Quantity,
		Reserved:  snap.Reserved,
		Available: snap.Available,
	}
}

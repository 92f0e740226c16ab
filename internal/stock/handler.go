package stock

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler wires the stock query endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/availability", h.handleAvailability)
	r.Get("/{productID}", h.handleProduct)
}

type stockListEntry struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
}

// handleList returns the simple per-product quantity view.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := parseWarehouseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	rows, err := h.service.GetStockBulk(r.Context(), warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]stockListEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, stockListEntry{ID: row.ID, Name: row.Name, Quantity: row.Quantity.String()})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type availabilityEntry struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Reserved  string `json:"reserved"`
	Available string `json:"available"`
}

// handleAvailability returns quantity, reserved and available per product.
func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	warehouseID, err := parseWarehouseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	rows, err := h.service.GetStockBulk(r.Context(), warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]availabilityEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, availabilityEntry{
			ID:        row.ID,
			Name:      row.Name,
			Quantity:  row.Quantity.String(),
			Reserved:  row.Reserved.String(),
			Available: row.Available.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, out)
}

type productStockResponse struct {
	ProductID int64  `json:"product_id"`
	Quantity  string `json:"quantity"`
	Reserved  string `json:"reserved"`
	Available string `json:"available"`
}

// handleProduct returns the snapshot for a single product.
func (h *Handler) handleProduct(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "productID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "product id must be an integer")
		return
	}
	warehouseID, err := parseWarehouseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", err.Error())
		return
	}
	snap, err := h.service.GetStock(r.Context(), productID, warehouseID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, productStockResponse{
		ProductID: productID,
		Quantity:  snap.Quantity.String(),
		Reserved:  snap.Reserved.String(),
		Available: snap.Available.String(),
	})
}

func parseWarehouseFilter(r *http.Request) (*int64, error) {
	raw := r.URL.Query().Get("warehouse_id")
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

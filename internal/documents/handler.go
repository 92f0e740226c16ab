package documents

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/stock"
)

// StockReader lets transition responses include fresh stock figures for the
// affected products.
type StockReader interface {
	GetStock(ctx context.Context, productID int64, warehouseID *int64) (stock.Snapshot, error)
}

// Handler wires the document endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	stocks   StockReader
	validate *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service, stocks StockReader) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		stocks:   stocks,
		validate: validator.New(),
	}
}

// MountRoutes registers document routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/status-stats", h.handleStatusStats)
	r.Get("/{id}", h.handleGet)
	r.Post("/{id}/post", h.transitionHandler(h.service.Post))
	r.Post("/{id}/unpost", h.transitionHandler(h.service.Unpost))
	r.Post("/{id}/toggle-status", h.transitionHandler(h.service.Toggle))
	r.Post("/{id}/reservation", h.handleReservation)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createDocumentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	if req.IdempotencyKey == "" {
		// Server-issued key, echoed back so clients can retry safely.
		req.IdempotencyKey = shared.NewIdempotencyKey()
	}
	w.Header().Set("Idempotency-Key", req.IdempotencyKey)
	items := make([]CreateLineInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, CreateLineInput{ProductID: item.ProductID, Quantity: item.Quantity, Price: item.Price})
	}
	doc, err := h.service.Create(r.Context(), CreateInput{
		Type:           req.Type,
		WarehouseID:    req.WarehouseID,
		OrderID:        req.OrderID,
		IsReserved:     req.IsReserved,
		Note:           req.Note,
		IdempotencyKey: req.IdempotencyKey,
		Items:          items,
	})
	if err != nil {
		h.respondError(w, r, "create document", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	doc, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, "get document", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) handleStatusStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.StatusStats(r.Context())
	if err != nil {
		h.respondError(w, r, "status stats", err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) transitionHandler(transition func(context.Context, int64) (Document, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r)
		if !ok {
			return
		}
		doc, err := transition(r.Context(), id)
		if err != nil {
			h.respondError(w, r, "document transition", err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.transitionResponse(r.Context(), doc))
	}
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	doc, err := h.service.SetReservation(r.Context(), id, req.Reserved)
	if err != nil {
		h.respondError(w, r, "set reservation", err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.transitionResponse(r.Context(), doc))
}

func (h *Handler) transitionResponse(ctx context.Context, doc Document) transitionResponse {
	resp := transitionResponse{Document: toDocumentResponse(doc), Stock: []stockDeltaEntry{}}
	if h.stocks == nil {
		return resp
	}
	seen := make(map[int64]bool, len(doc.Items))
	warehouseID := doc.WarehouseID
	for _, item := range doc.Items {
		if seen[item.ProductID] {
			continue
		}
		seen[item.ProductID] = true
		snap, err := h.stocks.GetStock(ctx, item.ProductID, &warehouseID)
		if err != nil {
			h.logger.Warn("stock delta lookup failed",
				slog.Int64("product_id", item.ProductID),
				slog.Any("error", err))
			continue
		}
		resp.Stock = append(resp.Stock, toStockDelta(item.ProductID, snap))
	}
	return resp
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "document id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.Error(op+" failed", slog.Any("error", err), slog.String("path", r.URL.Path))
	switch {
	case errors.Is(err, ErrUnknownType),
		errors.Is(err, ErrNoLineItems),
		errors.Is(err, ErrItemQuantity),
		errors.Is(err, ErrNotAnOrder),
		errors.Is(err, ErrWarehouseForDoc),
		errors.Is(err, ledger.ErrInvalidQuantity):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		httpx.RespondError(w, h.logger, err)
	}
}

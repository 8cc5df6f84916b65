package stock

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/warewise/warewise/internal/platform/httpx"
	"github.com/warewise/warewise/internal/shared"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	aggregator *Aggregator
	validate   *validator.Validate
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, aggregator *Aggregator) *Handler {
	return &Handler{
		logger:     logger,
		service:    service,
		aggregator: aggregator,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/summary", h.handleSummary)
	r.Get("/stats", h.handleStats)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handlePatch)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/adjust", h.handleAdjust)
	r.Post("/{id}/quick-adjust", h.handleQuickAdjust)
	r.Get("/{id}/movements", h.handleMovements)
}

type createBalanceRequest struct {
	ProductID    int64  `json:"product_id" validate:"required,gt=0"`
	VariantName  string `json:"variant_name" validate:"max=120"`
	WarehouseID  int64  `json:"warehouse_id" validate:"required,gt=0"`
	Quantity     int64  `json:"quantity" validate:"gte=0"`
	ReorderPoint int64  `json:"reorder_point" validate:"gte=0"`
}

type patchBalanceRequest struct {
	Quantity     *int64 `json:"quantity" validate:"omitempty,gte=0"`
	ReorderPoint *int64 `json:"reorder_point" validate:"omitempty,gte=0"`
}

type adjustRequest struct {
	Quantity int64  `json:"quantity" validate:"required,gt=0"`
	Reason   string `json:"reason" validate:"max=500"`
}

type quickAdjustRequest struct {
	Operation string `json:"operation" validate:"required,oneof=add deduct"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	Notes     string `json:"notes" validate:"max=500"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.CreateBalance(r.Context(), CreateBalanceInput{
		ProductID:    req.ProductID,
		VariantName:  req.VariantName,
		WarehouseID:  req.WarehouseID,
		Quantity:     req.Quantity,
		ReorderPoint: req.ReorderPoint,
		ActorID:      actorID(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		ProductID:   parseInt(q.Get("product_id")),
		WarehouseID: parseInt(q.Get("warehouse_id")),
		Page:        int(parseInt(q.Get("page"))),
		Limit:       int(parseInt(q.Get("limit"))),
	}
	records, pagination, err := h.service.ListBalances(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"data":       records,
		"pagination": pagination,
	})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	rec, err := h.service.GetBalance(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handlePatch(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req patchBalanceRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.PatchBalance(r.Context(), id, PatchInput{
		Quantity:     req.Quantity,
		ReorderPoint: req.ReorderPoint,
		ActorID:      actorID(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.SoftDelete(r.Context(), id, actorID(r)); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req adjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, err := h.service.Adjust(r.Context(), AdjustInput{
		BalanceID:      id,
		Quantity:       req.Quantity,
		Reason:         req.Reason,
		ActorID:        actorID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) handleQuickAdjust(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req quickAdjustRequest
	if !h.decode(w, r, &req) {
		return
	}
	rec, movement, err := h.service.QuickAdjust(r.Context(), QuickAdjustInput{
		BalanceID:      id,
		Op:             QuickAdjustOp(req.Operation),
		Quantity:       req.Quantity,
		Notes:          req.Notes,
		ActorID:        actorID(r),
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"balance":  rec,
		"movement": movement,
	})
}

func (h *Handler) handleMovements(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	limit := int(parseInt(r.URL.Query().Get("limit")))
	movements, err := h.service.ListMovements(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": movements})
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.aggregator.Summarize(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": summaries})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.aggregator.Stats(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "balance id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBalanceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrBalanceExists):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidInput):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, shared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		h.logger.Error("stock request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func actorID(r *http.Request) int64 {
	return parseInt(r.Header.Get("X-Actor-ID"))
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

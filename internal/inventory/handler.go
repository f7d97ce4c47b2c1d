package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-garment/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stock/balances", h.handleBalances)
	r.Get("/orders/{id}/stock", h.handleOrderMovements)
}

func (h *Handler) handleBalances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := BalanceFilter{Warehouse: q.Get("warehouse")}
	if raw := q.Get("product_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, httpx.ErrValidation)
			return
		}
		filter.ProductID = id
	}
	balances, err := h.service.Balances(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if balances == nil {
		balances = []Balance{}
	}
	httpx.JSON(w, http.StatusOK, balances)
}

func (h *Handler) handleOrderMovements(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	movements, err := h.service.Movements(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if movements == nil {
		movements = []Movement{}
	}
	httpx.JSON(w, http.StatusOK, movements)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrInvalidEntry) {
		httpx.RespondError(w, errors.Join(httpx.ErrValidation, err))
		return
	}
	h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	httpx.RespondError(w, err)
}

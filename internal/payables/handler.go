package payables

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-garment/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-garment/internal/production"
)

// Handler exposes payables over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs the handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers payables routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payables", h.handleList)
	r.Get("/payables/summary", h.handleSummary)
	r.Post("/payments", h.handleRecordPayment)
}

type paymentRequest struct {
	ShipmentID int64           `json:"shipment_id" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	PaidAt     *time.Time      `json:"paid_at"`
	Note       string          `json:"note" validate:"max=500"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	overdue, _ := strconv.ParseBool(q.Get("overdue"))
	items, err := h.service.List(r.Context(), Filter{
		Partner:     q.Get("partner"),
		Status:      PaymentStatus(q.Get("status")),
		OverdueOnly: overdue,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	record, err := h.service.RecordPayment(r.Context(), PaymentInput{
		ShipmentID: req.ShipmentID,
		Amount:     req.Amount,
		PaidAt:     req.PaidAt,
		Note:       req.Note,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, record)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if status, _, ok := statusForError(err); !ok || status >= http.StatusInternalServerError {
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("payables request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
	}
	httpx.RespondError(w, err, statusForError)
}

func statusForError(err error) (int, string, bool) {
	switch {
	case errors.Is(err, ErrInvalidStatus):
		return http.StatusBadRequest, "Validation Failed", true
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrExceedsBalance):
		return http.StatusUnprocessableEntity, "Validation Error", true
	case errors.Is(err, ErrNotPayable):
		return http.StatusConflict, "Not Payable", true
	default:
		return production.StatusForError(err)
	}
}

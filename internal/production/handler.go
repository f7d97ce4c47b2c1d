package production

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-garment/internal/drafts"
	"github.com/odyssey-erp/odyssey-garment/internal/grid"
	"github.com/odyssey-erp/odyssey-garment/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// Handler wires the production pipeline JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs the handler. Mutating routes share a per-client
// budget of writesPerMinute requests (60 when zero).
func NewHandler(logger *slog.Logger, service *Service, writesPerMinute int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if writesPerMinute <= 0 {
		writesPerMinute = 60
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		rateLimit: httprate.Limit(writesPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, operatorKey)),
	}
}

func operatorKey(r *http.Request) (string, error) {
	return shared.ActorFromContext(r.Context()), nil
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/orders", h.handleListOrders)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Get("/orders/{id}/progress", h.handleProgress)
	r.Get("/orders/{id}/shipments", h.handleOrderShipments)
	r.Get("/orders/{id}/drafts/{stage}", h.handleGetDraft)
	r.Get("/shipments", h.handleListShipments)
	r.Get("/shipments/{id}/chain", h.handleChain)

	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Post("/orders", h.handleCreateOrder)
		r.Post("/orders/{id}/ship", h.handleShip)
		r.Post("/orders/{id}/revision/open", h.handleOpenRevision)
		r.Post("/orders/{id}/revision/finalize", h.handleFinalizeRevision)
		r.Post("/orders/{id}/revision/revert", h.handleRevertRevision)
		r.Post("/orders/{id}/packing/finalize", h.handleFinalizePacking)
		r.Post("/orders/{id}/packing/revert", h.handleRevertPacking)
		r.Put("/orders/{id}/drafts/{stage}", h.handlePutDraftCell)
		r.Post("/shipments/{id}/returns", h.handleRegisterReturn)
		r.Delete("/shipments/{id}", h.handleCancelShipment)
	})
}

type listOrdersResponse struct {
	Orders     []Order           `json:"orders"`
	Pagination shared.Pagination `json:"pagination"`
}

type shipRequest struct {
	Partner   string          `json:"partner" validate:"omitempty,max=200"`
	Internal  bool            `json:"internal"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	SentDate  *time.Time      `json:"sent_date"`
}

type openRevisionRequest struct {
	InspectorName string `json:"inspector_name" validate:"max=200"`
}

type returnRequest struct {
	Items      grid.Grid `json:"items" validate:"required"`
	Conferente string    `json:"conferente" validate:"max=200"`
}

type draftCellRequest struct {
	Color    string `json:"color" validate:"required,max=64"`
	Size     string `json:"size" validate:"required,max=32"`
	Quantity int    `json:"quantity"`
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	orders, pagination, err := h.service.ListOrders(r.Context(), OrderFilter{
		Status:  OrderStatus(q.Get("status")),
		Page:    page,
		PerPage: perPage,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []Order{}
	}
	httpx.JSON(w, http.StatusOK, listOrdersResponse{Orders: orders, Pagination: pagination})
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.GetOrder(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	progress, err := h.service.OrderProgress(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, progress)
}

func (h *Handler) handleOrderShipments(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.service.GetOrder(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondShipments(w, r, ShipmentFilter{OrderID: id})
}

func (h *Handler) handleListShipments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.respondShipments(w, r, ShipmentFilter{
		Partner: q.Get("partner"),
		Status:  ShipmentStatus(q.Get("status")),
	})
}

func (h *Handler) respondShipments(w http.ResponseWriter, r *http.Request, filter ShipmentFilter) {
	shipments, err := h.service.ListShipments(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if shipments == nil {
		shipments = []Shipment{}
	}
	httpx.JSON(w, http.StatusOK, shipments)
}

func (h *Handler) handleChain(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	chain, err := h.service.ShipmentChain(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, chain)
}

func (h *Handler) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.CreateOrder(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleShip(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req shipRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in := ShipInput{Partner: req.Partner, Internal: req.Internal, UnitPrice: req.UnitPrice}
	if req.SentDate != nil {
		in.SentDate = req.SentDate.UTC()
	}
	shipment, err := h.service.Ship(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, shipment)
}

func (h *Handler) handleOpenRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req openRevisionRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.OpenRevision(r.Context(), id, req.InspectorName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleFinalizeRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req RevisionInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.FinalizeRevision(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleRevertRevision(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.RevertRevisionToSubcontracting(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleFinalizePacking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req PackingInput
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.FinalizePacking(r.Context(), id, req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleRevertPacking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.RevertPackingToRevision(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	id, stage, err := draftTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	g, err := h.service.Draft(r.Context(), stage, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) handlePutDraftCell(w http.ResponseWriter, r *http.Request) {
	id, stage, err := draftTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req draftCellRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	g, err := h.service.EditDraftCell(r.Context(), stage, id, req.Color, req.Size, req.Quantity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, g)
}

func (h *Handler) handleRegisterReturn(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req returnRequest
	if err := h.decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.service.RegisterReturn(r.Context(), id, req.Items, req.Conferente)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) handleCancelShipment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	order, err := h.service.CancelShipment(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return err
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if Classify(err) == ClassInternal && !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error("production request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err, StatusForError)
}

// StatusForError maps pipeline error classes onto HTTP statuses.
func StatusForError(err error) (int, string, bool) {
	switch Classify(err) {
	case ClassValidation:
		return http.StatusUnprocessableEntity, "Validation Error", true
	case ClassRequiredField:
		return http.StatusBadRequest, "Required Field Missing", true
	case ClassIllegalTransition:
		return http.StatusConflict, "Illegal Transition", true
	case ClassNotFound:
		return http.StatusNotFound, "Not Found", true
	default:
		return 0, "", false
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", httpx.ErrValidation, name, raw)
	}
	return id, nil
}

func draftTarget(r *http.Request) (int64, drafts.Stage, error) {
	id, err := pathID(r, "id")
	if err != nil {
		return 0, "", err
	}
	stage, err := drafts.ParseStage(chi.URLParam(r, "stage"))
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return id, stage, nil
}

package production

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-garment/internal/drafts"
	"github.com/odyssey-erp/odyssey-garment/internal/grid"
	"github.com/odyssey-erp/odyssey-garment/internal/shared"
)

// Transition names used for metrics, audit actions and bus events.
const (
	TransitionCreateOrder      = "create_order"
	TransitionShip             = "ship"
	TransitionCancelShipment   = "cancel_shipment"
	TransitionRegisterReturn   = "register_return"
	TransitionOpenRevision     = "open_revision"
	TransitionFinalizeRevision = "finalize_revision"
	TransitionRevertRevision   = "revert_revision"
	TransitionFinalizePacking  = "finalize_packing"
	TransitionRevertPacking    = "revert_packing"
	TransitionEditDraft        = "edit_draft"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the production pipeline. Every transition loads the
// current state, computes the next one with a pure reducer and persists it
// in a single transaction; nothing is written when validation fails.
type Service struct {
	repo     RepositoryPort
	drafts   drafts.Store
	stock    StockSink
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
	observer Observer
	notifier ChangeNotifier
	events   Publisher
}

// NewService builds Service. drafts, stock and audit may be nil.
func NewService(repo RepositoryPort, store drafts.Store, stock StockSink, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if store == nil {
		store = drafts.NewMemoryStore()
	}
	return &Service{
		repo:   repo,
		drafts: store,
		stock:  stock,
		audit:  audit,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetObserver wires transition metrics.
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// SetChangeNotifier wires invalidation of projections derived from shipments.
func (s *Service) SetChangeNotifier(n ChangeNotifier) {
	s.notifier = n
}

// SetEventPublisher wires publication of TransitionEvents.
func (s *Service) SetEventPublisher(p Publisher) {
	s.events = p
}

// ============================================================================
// ORDERS
// ============================================================================

// CreateOrder registers a new order in CUTTING.
func (s *Service) CreateOrder(ctx context.Context, in CreateOrderInput) (order Order, err error) {
	defer s.observe(TransitionCreateOrder, &err)
	order, err = NewOrder(in, s.now())
	if err != nil {
		return Order{}, err
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.CreateOrder(ctx, order)
		if err != nil {
			return err
		}
		order = created
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("create order: %w", err)
	}
	s.committed(ctx, TransitionCreateOrder, order, 0, map[string]any{
		"lot_number":     order.LotNumber,
		"quantity_total": order.QuantityTotal,
	})
	return order, nil
}

// GetOrder loads an order.
func (s *Service) GetOrder(ctx context.Context, id int64) (Order, error) {
	return s.repo.GetOrder(ctx, id)
}

// ListOrders lists a page of orders.
func (s *Service) ListOrders(ctx context.Context, filter OrderFilter) ([]Order, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: status %q", ErrIllegalTransition, filter.Status)
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// ListShipments lists shipments matching filter.
func (s *Service) ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error) {
	filter.Partner = shared.NormalizeName(filter.Partner)
	return s.repo.ListShipments(ctx, filter)
}

// OrderProgress summarises how much of an order came back from partners.
func (s *Service) OrderProgress(ctx context.Context, orderID int64) (Progress, error) {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return Progress{}, err
	}
	shipments, err := s.repo.ListShipments(ctx, ShipmentFilter{OrderID: orderID})
	if err != nil {
		return Progress{}, err
	}
	progress := Progress{
		OrderID:       order.ID,
		Status:        order.Status,
		QuantityTotal: order.QuantityTotal,
		Shipments:     len(shipments),
	}
	for i := range shipments {
		progress.Received += shipments[i].ReceivedQuantity
		if shipments[i].Status == ShipmentSent {
			open := shipments[i]
			progress.OpenShipment = &open
		}
	}
	if len(shipments) > 0 {
		progress.Outstanding = order.QuantityTotal - progress.Received
		if progress.Outstanding < 0 {
			progress.Outstanding = 0
		}
	}
	return progress, nil
}

// ============================================================================
// SUBCONTRACTING
// ============================================================================

// Ship sends the planned grid of a cut order to a partner.
func (s *Service) Ship(ctx context.Context, orderID int64, in ShipInput) (shipment Shipment, err error) {
	defer s.observe(TransitionShip, &err)
	var order Order
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		existing, err := tx.ListOrderShipments(ctx, orderID)
		if err != nil {
			return err
		}
		next, planned, err := ApplyShip(current, existing, in, s.now())
		if err != nil {
			return err
		}
		if order, err = tx.UpdateOrder(ctx, orderID, diffOrder(current, next)); err != nil {
			return err
		}
		shipment, err = tx.CreateShipment(ctx, planned)
		return err
	})
	if err != nil {
		return Shipment{}, fmt.Errorf("ship order %d: %w", orderID, err)
	}
	s.shipmentsChanged(ctx)
	s.committed(ctx, TransitionShip, order, shipment.ID, map[string]any{
		"partner":  shipment.SubcontractorName,
		"internal": shipment.Internal,
		"quantity": shipment.SentQuantity,
	})
	return shipment, nil
}

// CancelShipment deletes a shipment nothing was returned against.
func (s *Service) CancelShipment(ctx context.Context, shipmentID int64) (order Order, err error) {
	defer s.observe(TransitionCancelShipment, &err)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetShipmentForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		current, err := tx.GetOrderForUpdate(ctx, target.OrderID)
		if err != nil {
			return err
		}
		all, err := tx.ListOrderShipments(ctx, target.OrderID)
		if err != nil {
			return err
		}
		others := make([]Shipment, 0, len(all))
		for _, sh := range all {
			if sh.ID != target.ID {
				others = append(others, sh)
			}
		}
		next, err := ApplyCancelShipment(current, target, others, s.now())
		if err != nil {
			return err
		}
		if err := tx.DeleteShipment(ctx, shipmentID); err != nil {
			return err
		}
		order, err = tx.UpdateOrder(ctx, current.ID, diffOrder(current, next))
		return err
	})
	if err != nil {
		return Order{}, fmt.Errorf("cancel shipment %d: %w", shipmentID, err)
	}
	s.clearDraft(ctx, drafts.StageReturn, order.ID)
	s.shipmentsChanged(ctx)
	s.committed(ctx, TransitionCancelShipment, order, shipmentID, nil)
	return order, nil
}

// RegisterReturn records a return wave against an open shipment.
func (s *Service) RegisterReturn(ctx context.Context, shipmentID int64, returned grid.Grid, conferente string) (result ReturnResult, err error) {
	defer s.observe(TransitionRegisterReturn, &err)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetShipmentForUpdate(ctx, shipmentID)
		if err != nil {
			return err
		}
		current, err := tx.GetOrderForUpdate(ctx, target.OrderID)
		if err != nil {
			return err
		}
		all, err := tx.ListOrderShipments(ctx, target.OrderID)
		if err != nil {
			return err
		}
		plan, err := ApplyReturn(current, all, target, returned, conferente, s.now())
		if err != nil {
			return err
		}
		if result.Parent, err = tx.UpdateShipment(ctx, shipmentID, plan.Patch); err != nil {
			return err
		}
		if plan.Child != nil {
			child, err := tx.CreateShipment(ctx, *plan.Child)
			if err != nil {
				return err
			}
			result.Child = &child
		}
		result.Order = current
		if plan.OrderChanged {
			if result.Order, err = tx.UpdateOrder(ctx, current.ID, diffOrder(current, plan.Order)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ReturnResult{}, fmt.Errorf("register return on shipment %d: %w", shipmentID, err)
	}
	s.clearDraft(ctx, drafts.StageReturn, result.Order.ID)
	s.shipmentsChanged(ctx)
	meta := map[string]any{
		"received":   result.Parent.ReceivedQuantity,
		"status":     result.Parent.Status,
		"conferente": result.Parent.Conferente,
	}
	if result.Child != nil {
		meta["child_id"] = result.Child.ID
		meta["child_quantity"] = result.Child.SentQuantity
	}
	s.committed(ctx, TransitionRegisterReturn, result.Order, shipmentID, meta)
	return result, nil
}

// ShipmentChain returns the split chain a shipment belongs to.
func (s *Service) ShipmentChain(ctx context.Context, shipmentID int64) ([]Shipment, error) {
	target, err := s.repo.GetShipment(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	all, err := s.repo.ListShipments(ctx, ShipmentFilter{OrderID: target.OrderID})
	if err != nil {
		return nil, err
	}
	return ShipmentChain(all, shipmentID)
}

// ============================================================================
// REVISION & PACKING
// ============================================================================

// OpenRevision opens the revision stage of an order.
func (s *Service) OpenRevision(ctx context.Context, orderID int64, inspector string) (Order, error) {
	return s.transition(ctx, TransitionOpenRevision, orderID, func(ctx context.Context, tx TxRepository, current Order) (Order, error) {
		shipments, err := tx.ListOrderShipments(ctx, orderID)
		if err != nil {
			return Order{}, err
		}
		return ApplyOpenRevision(current, shipments, inspector, s.now())
	})
}

// FinalizeRevision records the approved grid and moves the order to packing.
func (s *Service) FinalizeRevision(ctx context.Context, orderID int64, in RevisionInput) (Order, error) {
	order, err := s.transition(ctx, TransitionFinalizeRevision, orderID, func(_ context.Context, _ TxRepository, current Order) (Order, error) {
		return ApplyRevision(current, in, s.now())
	})
	if err != nil {
		return Order{}, err
	}
	s.clearDraft(ctx, drafts.StageRevision, orderID)
	return order, nil
}

// RevertRevisionToSubcontracting discards the revision of an order.
func (s *Service) RevertRevisionToSubcontracting(ctx context.Context, orderID int64) (Order, error) {
	order, err := s.transition(ctx, TransitionRevertRevision, orderID, func(_ context.Context, _ TxRepository, current Order) (Order, error) {
		next, _, err := ApplyRevertRevision(current, s.now())
		return next, err
	})
	if err != nil {
		return Order{}, err
	}
	s.clearDraft(ctx, drafts.StageRevision, orderID)
	return order, nil
}

// FinalizePacking completes the order and emits its stock entry.
func (s *Service) FinalizePacking(ctx context.Context, orderID int64, in PackingInput) (PackingResult, error) {
	var entry StockEntry
	order, err := s.transition(ctx, TransitionFinalizePacking, orderID, func(_ context.Context, _ TxRepository, current Order) (Order, error) {
		next, e, err := ApplyPacking(current, in, s.now())
		entry = e
		return next, err
	})
	if err != nil {
		return PackingResult{}, err
	}
	s.clearDraft(ctx, drafts.StagePacking, orderID)
	s.emitStock(ctx, entry)
	result := PackingResult{Order: order, StockEntry: entry, ZeroTotal: order.Packing.TotalPackedQty == 0}
	if result.ZeroTotal {
		s.logger.Warn("packing finalized with zero pieces", slog.Int64("order_id", orderID))
	}
	return result, nil
}

// RevertPackingToRevision sends the order back to quality control. Reverting
// a completed order emits the reversing stock entry.
func (s *Service) RevertPackingToRevision(ctx context.Context, orderID int64) (Order, error) {
	var reversal *StockEntry
	order, err := s.transition(ctx, TransitionRevertPacking, orderID, func(_ context.Context, _ TxRepository, current Order) (Order, error) {
		next, rev, err := ApplyRevertPacking(current, s.now())
		reversal = rev
		return next, err
	})
	if err != nil {
		return Order{}, err
	}
	s.clearDraft(ctx, drafts.StagePacking, orderID)
	if reversal != nil {
		s.emitStock(ctx, *reversal)
	}
	return order, nil
}

type reducer func(ctx context.Context, tx TxRepository, current Order) (Order, error)

// transition runs an order-only reducer inside a transaction and persists
// the difference.
func (s *Service) transition(ctx context.Context, name string, orderID int64, apply reducer) (order Order, err error) {
	defer s.observe(name, &err)
	var changed bool
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := apply(ctx, tx, current)
		if err != nil {
			return err
		}
		patch := diffOrder(current, next)
		if patch == (OrderPatch{}) {
			order = current
			return nil
		}
		changed = true
		order, err = tx.UpdateOrder(ctx, orderID, patch)
		return err
	})
	if err != nil {
		return Order{}, fmt.Errorf("%s order %d: %w", name, orderID, err)
	}
	if changed {
		s.committed(ctx, name, order, 0, map[string]any{"status": order.Status})
	}
	return order, nil
}

// ============================================================================
// DRAFTS
// ============================================================================

// EditDraftCell stores one cell of an in-progress grid. The cell is bounded
// by the stage's source grid right away; stage totals are only checked when
// the stage is finalized.
func (s *Service) EditDraftCell(ctx context.Context, stage drafts.Stage, orderID int64, color, size string, qty int) (g grid.Grid, err error) {
	defer s.observe(TransitionEditDraft, &err)
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	source, err := s.stageSource(ctx, stage, order)
	if err != nil {
		return nil, err
	}
	color, size = shared.NormalizeName(color), shared.NormalizeName(size)
	cell := grid.Cell{Color: color, Size: size}
	if err := checkCells(order, grid.Grid{cell: qty}, source); err != nil {
		return nil, err
	}
	current, _, err := s.drafts.Get(ctx, stage, orderID)
	if err != nil {
		return nil, err
	}
	next := grid.Set(current, color, size, qty)
	if err := s.drafts.Put(ctx, stage, orderID, next); err != nil {
		return nil, err
	}
	return next, nil
}

// Draft returns the in-progress grid of a stage, empty when none is stored.
func (s *Service) Draft(ctx context.Context, stage drafts.Stage, orderID int64) (grid.Grid, error) {
	if _, err := drafts.ParseStage(string(stage)); err != nil {
		return nil, err
	}
	g, ok, err := s.drafts.Get(ctx, stage, orderID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return grid.Grid{}, nil
	}
	return g, nil
}

// stageSource returns the grid a stage's cells are bounded by, refusing
// drafts for stages the order is not in.
func (s *Service) stageSource(ctx context.Context, stage drafts.Stage, order Order) (grid.Grid, error) {
	switch stage {
	case drafts.StageReturn:
		if order.Status != StatusSubcontracting {
			break
		}
		shipments, err := s.repo.ListShipments(ctx, ShipmentFilter{OrderID: order.ID, Status: ShipmentSent})
		if err != nil {
			return nil, err
		}
		if len(shipments) == 0 {
			return nil, fmt.Errorf("%w: no open shipment", ErrIllegalTransition)
		}
		return shipments[len(shipments)-1].Outstanding(), nil
	case drafts.StageRevision:
		if order.Status == StatusQualityControl {
			return order.Planned(), nil
		}
	case drafts.StagePacking:
		if order.Status == StatusPacking {
			return order.PackingSource(), nil
		}
	default:
		return nil, fmt.Errorf("%w: %w", ErrIllegalTransition, drafts.ErrUnknownStage)
	}
	return nil, fmt.Errorf("%w: no %s draft in %s", ErrIllegalTransition, stage, order.Status)
}

// ============================================================================
// SIDE EFFECTS
// ============================================================================

func (s *Service) observe(transition string, err *error) {
	if s.observer == nil {
		return
	}
	if *err == nil {
		s.observer.TransitionSucceeded(transition)
		return
	}
	s.observer.TransitionRejected(transition, string(Classify(*err)))
}

// committed audits, logs and publishes a transition that reached storage.
func (s *Service) committed(ctx context.Context, transition string, order Order, shipmentID int64, meta map[string]any) {
	actor := shared.ActorFromContext(ctx)
	s.logger.Info("production transition",
		slog.String("transition", transition),
		slog.Int64("order_id", order.ID),
		slog.Int64("shipment_id", shipmentID),
		slog.String("status", string(order.Status)),
		slog.String("actor", actor),
	)
	if s.audit != nil {
		if meta == nil {
			meta = map[string]any{}
		}
		if shipmentID != 0 {
			meta["shipment_id"] = shipmentID
		}
		if err := s.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "production:" + transition,
			Entity:   "production_order",
			EntityID: strconv.FormatInt(order.ID, 10),
			Meta:     meta,
			At:       s.now(),
		}); err != nil {
			s.logger.Warn("audit record failed", slog.String("transition", transition), slog.Any("error", err))
		}
	}
	if s.events != nil {
		body, err := json.Marshal(TransitionEvent{
			Transition: transition,
			OrderID:    order.ID,
			ShipmentID: shipmentID,
			Status:     order.Status,
			Actor:      actor,
			At:         s.now(),
		})
		if err == nil {
			err = s.events.Publish(ctx, SubjectTransitions, body)
		}
		if err != nil {
			s.logger.Warn("publish transition failed", slog.String("transition", transition), slog.Any("error", err))
		}
	}
}

// clearDraft drops a stage draft. Failures only cost the user a re-entry.
func (s *Service) clearDraft(ctx context.Context, stage drafts.Stage, orderID int64) {
	if err := s.drafts.Clear(ctx, stage, orderID); err != nil {
		s.logger.Warn("clear draft failed", slog.String("stage", string(stage)), slog.Int64("order_id", orderID), slog.Any("error", err))
	}
}

func (s *Service) shipmentsChanged(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.ShipmentsChanged(ctx); err != nil {
		s.logger.Warn("notify shipment change failed", slog.Any("error", err))
	}
}

// emitStock hands a committed stock entry to the sink. The order is already
// persisted, so a failure is logged for replay instead of being returned.
func (s *Service) emitStock(ctx context.Context, entry StockEntry) {
	if s.stock == nil {
		return
	}
	if err := s.stock.PublishStockEntry(ctx, entry); err != nil {
		s.logger.Error("stock entry not delivered",
			slog.String("ref_id", entry.RefID),
			slog.Int64("order_id", entry.OrderID),
			slog.Bool("reversal", entry.Reversal),
			slog.Any("error", err),
		)
	}
}

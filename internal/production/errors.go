package production

import "errors"

// Domain errors for the production pipeline, grouped by class.
var (
	// Not found.
	ErrOrderNotFound    = errors.New("production order not found")
	ErrShipmentNotFound = errors.New("shipment not found")

	// Validation errors. Wrapped together with the grid error carrying the
	// offending cell or amounts.
	ErrGridExceedsSource = errors.New("grid exceeds source")
	ErrTotalExceeded     = errors.New("stage total exceeds order quantity")
	ErrInvalidQuantity   = errors.New("quantity must be zero or positive")
	ErrUnknownCell       = errors.New("color/size not part of the order")
	ErrEmptyGrid         = errors.New("planned grid must have at least one piece")
	ErrDuplicateCell     = errors.New("planned grid repeats a color/size")
	ErrDuplicateLot      = errors.New("lot number already in use")

	// Required field errors.
	ErrInvalidPartner    = errors.New("partner name is required")
	ErrEmptyConferente   = errors.New("conferente name is required")
	ErrInspectorRequired = errors.New("inspector name is required")
	ErrWarehouseRequired = errors.New("warehouse is required")
	ErrPackerRequired    = errors.New("packer name is required")
	ErrLotNumberRequired = errors.New("lot number is required")

	// Illegal transitions.
	ErrIllegalTransition        = errors.New("illegal transition for current status")
	ErrReturnsAlreadyRegistered = errors.New("shipment already has returns registered")
	ErrShipmentClosed           = errors.New("shipment does not accept returns")
	ErrAlreadyShipped           = errors.New("order already has shipments")
)

// ErrorClass groups pipeline errors for callers that only need to know how to
// react (fix input, fill a field, refuse, report missing).
type ErrorClass string

const (
	ClassValidation        ErrorClass = "validation"
	ClassRequiredField     ErrorClass = "required_field"
	ClassIllegalTransition ErrorClass = "illegal_transition"
	ClassNotFound          ErrorClass = "not_found"
	ClassInternal          ErrorClass = "internal"
)

var errorClasses = []struct {
	class ErrorClass
	errs  []error
}{
	{ClassNotFound, []error{ErrOrderNotFound, ErrShipmentNotFound}},
	{ClassValidation, []error{ErrGridExceedsSource, ErrTotalExceeded, ErrInvalidQuantity, ErrUnknownCell, ErrEmptyGrid, ErrDuplicateCell, ErrDuplicateLot}},
	{ClassRequiredField, []error{ErrInvalidPartner, ErrEmptyConferente, ErrInspectorRequired, ErrWarehouseRequired, ErrPackerRequired, ErrLotNumberRequired}},
	{ClassIllegalTransition, []error{ErrIllegalTransition, ErrReturnsAlreadyRegistered, ErrShipmentClosed, ErrAlreadyShipped}},
}

// Classify maps an error onto its class. Unknown errors are internal.
func Classify(err error) ErrorClass {
	if err == nil {
		return ""
	}
	for _, group := range errorClasses {
		for _, target := range group.errs {
			if errors.Is(err, target) {
				return group.class
			}
		}
	}
	return ClassInternal
}

package shared

import "errors"

var (
	// ErrInvariantViolation indicates an internal ledger consistency check failed.
	// The surrounding transaction must be rolled back, never patched over.
	ErrInvariantViolation = errors.New("ledger invariant violated")
	// ErrDocumentNotFound indicates the referenced document does not exist.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrProductNotFound indicates the referenced product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrWarehouseNotFound indicates the referenced warehouse does not exist.
	ErrWarehouseNotFound = errors.New("warehouse not found")
	// ErrCannotUnpost indicates a receipt cannot be unposted because its lots
	// were already consumed by other posted documents.
	ErrCannotUnpost = errors.New("cannot unpost: lot already consumed downstream")
	// ErrConcurrentModification indicates the document version changed between
	// read and write; the caller should retry.
	ErrConcurrentModification = errors.New("document modified concurrently")
)

// UserSafeMessage maps internal errors to messages safe to show callers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrDocumentNotFound),
		errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrWarehouseNotFound):
		return err.Error()
	case errors.Is(err, ErrCannotUnpost):
		return "document cannot be unposted while its stock is consumed by other documents"
	case errors.Is(err, ErrConcurrentModification):
		return "document was changed by another request, please retry"
	case errors.Is(err, ErrIdempotencyConflict):
		return "request was already processed"
	default:
		return "internal error"
	}
}

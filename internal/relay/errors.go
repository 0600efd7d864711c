package relay

import "errors"

// Event-processing error taxonomy. Everything here is handled at the
// router boundary; nothing escapes to crash the event loop.
var (
	// ErrTicketClosed: staff replied to a ticket that is no longer open.
	// User-visible notice, no retry.
	ErrTicketClosed = errors.New("ticket is closed or missing")

	// ErrDeliveryFailed: a transport send failed. The originating actor
	// gets one best-effort notice; nobody else.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrStoreUnavailable: a ticket-store call failed. The event is
	// aborted before any partial ticket state is written.
	ErrStoreUnavailable = errors.New("ticket store unavailable")
)

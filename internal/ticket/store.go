package ticket

import (
	"context"
	"errors"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
)

// ErrNotFound is returned by lookups that miss. Callers decide whether a
// miss is an error or an expected branch.
var ErrNotFound = errors.New("ticket not found")

// Store is the ticket persistence contract consumed by the router.
// CreateOrOpen must be atomic with respect to concurrent calls for the
// same address: duplicate inbound events for a brand-new address yield
// exactly one ticket.
type Store interface {
	CreateOrOpen(ctx context.Context, addr address.Address, category string) (*Ticket, error)
	FindOpen(ctx context.Context, addr address.Address, category string) (*Ticket, error)
	FindByID(ctx context.Context, id int64) (*Ticket, error)
	SetStatus(ctx context.Context, id int64, status Status) error
	SetStatusByAddress(ctx context.Context, addr address.Address, status Status) error
	ListOpen(ctx context.Context, categories []string) ([]Ticket, error)
	CloseIdle(ctx context.Context, olderThan time.Time) ([]int64, error)
	IsBanned(ctx context.Context, addr address.Address) (bool, error)
	AppendMessage(ctx context.Context, record MessageRecord) error
	Replay(ctx context.Context, ticketID int64) ([]MessageRecord, error)
	BindNativeMessage(ctx context.Context, nativeID string, ticketID int64) error
	ResolveNativeMessage(ctx context.Context, nativeID string) (int64, error)
}

package janitor

import (
	"context"
	"testing"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/session"
	"github.com/quailyquaily/relaydesk/internal/spam"
	"github.com/quailyquaily/relaydesk/internal/ticket"
)

// sweepStore only supports CloseIdle; the janitor touches nothing else.
type sweepStore struct {
	olderThan time.Time
	closed    []int64
}

func (s *sweepStore) CloseIdle(ctx context.Context, olderThan time.Time) ([]int64, error) {
	s.olderThan = olderThan
	return s.closed, nil
}

func (s *sweepStore) CreateOrOpen(context.Context, address.Address, string) (*ticket.Ticket, error) {
	return nil, ticket.ErrNotFound
}
func (s *sweepStore) FindOpen(context.Context, address.Address, string) (*ticket.Ticket, error) {
	return nil, ticket.ErrNotFound
}
func (s *sweepStore) FindByID(context.Context, int64) (*ticket.Ticket, error) {
	return nil, ticket.ErrNotFound
}
func (s *sweepStore) SetStatus(context.Context, int64, ticket.Status) error           { return nil }
func (s *sweepStore) SetStatusByAddress(context.Context, address.Address, ticket.Status) error {
	return nil
}
func (s *sweepStore) ListOpen(context.Context, []string) ([]ticket.Ticket, error) { return nil, nil }
func (s *sweepStore) IsBanned(context.Context, address.Address) (bool, error)     { return false, nil }
func (s *sweepStore) AppendMessage(context.Context, ticket.MessageRecord) error   { return nil }
func (s *sweepStore) Replay(context.Context, int64) ([]ticket.MessageRecord, error) {
	return nil, nil
}
func (s *sweepStore) BindNativeMessage(context.Context, string, int64) error { return nil }
func (s *sweepStore) ResolveNativeMessage(context.Context, string) (int64, error) {
	return 0, ticket.ErrNotFound
}

func TestSweepClosesIdleAndReleasesCounters(t *testing.T) {
	store := &sweepStore{closed: []int64{3, 9}}
	limiter := spam.NewLimiter(1, time.Hour)
	limiter.Observe(3)
	limiter.Observe(9)

	j, err := New(Options{
		Store:         store,
		Limiter:       limiter,
		Sessions:      session.NewManager(),
		TicketMaxIdle: 2 * time.Hour,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	fixed := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return fixed }

	j.Sweep()

	if want := fixed.Add(-2 * time.Hour); !store.olderThan.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", store.olderThan, want)
	}
	// Counters for closed tickets are gone, so the next message forwards.
	if got := limiter.Observe(3); got != spam.Forward {
		t.Fatalf("verdict after sweep = %v, want Forward", got)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	if _, err := New(Options{Store: &sweepStore{}, Schedule: "not a cron spec"}); err == nil {
		t.Fatalf("New() expected error for invalid schedule")
	}
}

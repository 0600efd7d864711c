// Package janitor runs the periodic housekeeping sweep: idle tickets are
// auto-closed, their spam counters released, and stale sessions dropped.
package janitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/quailyquaily/relaydesk/internal/session"
	"github.com/quailyquaily/relaydesk/internal/spam"
	"github.com/quailyquaily/relaydesk/internal/ticket"
)

type Options struct {
	// Schedule is a cron spec; descriptors like "@every 10m" work too.
	Schedule       string
	TicketMaxIdle  time.Duration
	SessionMaxIdle time.Duration

	Store    ticket.Store
	Limiter  *spam.Limiter
	Sessions *session.Manager
	Logger   *slog.Logger
}

type Janitor struct {
	cron *cron.Cron

	ticketMaxIdle  time.Duration
	sessionMaxIdle time.Duration

	store    ticket.Store
	limiter  *spam.Limiter
	sessions *session.Manager
	logger   *slog.Logger

	now func() time.Time
}

func New(opts Options) (*Janitor, error) {
	j := &Janitor{
		cron:           cron.New(),
		ticketMaxIdle:  opts.TicketMaxIdle,
		sessionMaxIdle: opts.SessionMaxIdle,
		store:          opts.Store,
		limiter:        opts.Limiter,
		sessions:       opts.Sessions,
		logger:         opts.Logger,
		now:            time.Now,
	}
	if j.ticketMaxIdle <= 0 {
		j.ticketMaxIdle = 72 * time.Hour
	}
	if j.sessionMaxIdle <= 0 {
		j.sessionMaxIdle = 24 * time.Hour
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	schedule := opts.Schedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	if _, err := j.cron.AddFunc(schedule, j.Sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start begins the schedule in the cron's own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and returns when a running sweep has finished.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep runs one housekeeping pass. Safe to call directly.
func (j *Janitor) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	closed, err := j.store.CloseIdle(ctx, j.now().Add(-j.ticketMaxIdle))
	if err != nil {
		j.logger.Error("janitor_close_idle_failed", "error", err.Error())
	}
	if j.limiter != nil {
		for _, id := range closed {
			j.limiter.Forget(id)
		}
	}

	removed := 0
	if j.sessions != nil {
		removed = j.sessions.Sweep(j.sessionMaxIdle)
	}
	if len(closed) > 0 || removed > 0 {
		j.logger.Info("janitor_sweep", "tickets_closed", len(closed), "sessions_removed", removed)
	}
}

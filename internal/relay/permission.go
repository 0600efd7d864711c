package relay

import (
	"context"

	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/session"
	"github.com/quailyquaily/relaydesk/internal/transport"
)

// resolve runs the per-event session/permission pipeline: session key,
// fresh admin computation, ban short-circuit. It returns the session
// and whether routing should proceed.
func (r *Router) resolve(ctx context.Context, ev transport.Event) (*session.Session, bool) {
	key := session.KeyFor(ev.Actor, ev.Chat, ev.Kind == transport.EventCallback)
	sess := r.sessions.Get(key)

	// Admin is recomputed from scratch on every event; administrator
	// status in a destination chat can change at any time.
	sess.Admin = r.isAdmin(ctx, ev)

	banned, err := r.store.IsBanned(ctx, ev.Actor)
	if err != nil {
		r.logger.Error("ban_lookup_failed", "actor", ev.Actor.String(), "error", err.Error())
		r.notify(ctx, ev.Actor, r.pack.GenericError)
		return nil, false
	}
	if banned {
		// No further processing, no reply.
		return nil, false
	}
	return sess, true
}

// isAdmin reports whether the event's chat is a staff destination and
// the actor is among its administrators. A failing administrator
// lookup fails closed to non-admin and lets the pipeline continue.
func (r *Router) isAdmin(ctx context.Context, ev transport.Event) bool {
	if !r.isStaffChat(ev.Chat) {
		return false
	}
	tr, ok := r.transports[string(ev.Chat.Channel)]
	if !ok {
		return false
	}
	admins, err := tr.ListAdministrators(ctx, ev.Chat)
	if err != nil {
		r.logger.Warn("admin_lookup_failed", "chat", ev.Chat.String(), "error", err.Error())
		return false
	}
	for _, admin := range admins {
		if admin == ev.Actor {
			return true
		}
	}
	return false
}

// isStaffChat reports whether addr is the global staff chat or any
// configured category destination.
func (r *Router) isStaffChat(addr address.Address) bool {
	if addr == r.cfg.StaffChat {
		return true
	}
	for _, dest := range r.routes.Destinations() {
		if groupAddr, err := address.NewTelegram(dest.GroupID); err == nil && groupAddr == addr {
			return true
		}
	}
	return false
}

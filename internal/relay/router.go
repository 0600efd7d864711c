// Package relay is the orchestrator: it classifies every normalized
// inbound event into exactly one case and drives the ticket store,
// rate limiter, category router and transports accordingly. The router
// holds no per-event state of its own; everything it needs is injected,
// and a failed event never affects the next one.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/category"
	"github.com/quailyquaily/relaydesk/internal/lang"
	"github.com/quailyquaily/relaydesk/internal/session"
	"github.com/quailyquaily/relaydesk/internal/spam"
	"github.com/quailyquaily/relaydesk/internal/tag"
	"github.com/quailyquaily/relaydesk/internal/ticket"
	"github.com/quailyquaily/relaydesk/internal/transport"
)

type Config struct {
	// StaffChat is the global staff destination.
	StaffChat address.Address
	// Anonymize hides the user's display name from staff copies.
	Anonymize bool
	// AutoClose closes a ticket after the first staff reply.
	AutoClose bool
	// EventTimeout bounds all store and transport calls for one event.
	EventTimeout time.Duration
}

type Options struct {
	Config     Config
	Store      ticket.Store
	Transports []transport.Transport
	Routes     *category.Routes
	Limiter    *spam.Limiter
	Sessions   *session.Manager
	Pack       *lang.Pack
	Logger     *slog.Logger
}

type Router struct {
	cfg        Config
	store      ticket.Store
	transports map[string]transport.Transport
	routes     *category.Routes
	limiter    *spam.Limiter
	sessions   *session.Manager
	pack       *lang.Pack
	logger     *slog.Logger

	sessMu    sync.Mutex
	sessLocks map[session.Key]*sync.Mutex
}

func NewRouter(opts Options) (*Router, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("ticket store is required")
	}
	if opts.Config.StaffChat.IsZero() {
		return nil, fmt.Errorf("staff chat address is required")
	}
	if len(opts.Transports) == 0 {
		return nil, fmt.Errorf("at least one transport is required")
	}
	transports := make(map[string]transport.Transport, len(opts.Transports))
	for _, tr := range opts.Transports {
		transports[tr.Name()] = tr
	}
	routes := opts.Routes
	if routes == nil {
		routes = category.NewRoutes(nil, "")
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = spam.NewLimiter(0, 0)
	}
	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewManager()
	}
	pack := opts.Pack
	if pack == nil {
		pack = lang.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = 30 * time.Second
	}
	return &Router{
		cfg:        cfg,
		store:      opts.Store,
		transports: transports,
		routes:     routes,
		limiter:    limiter,
		sessions:   sessions,
		pack:       pack,
		logger:     logger,
		sessLocks:  make(map[session.Key]*sync.Mutex),
	}, nil
}

// sessionLock serializes event handling per session key. Transports fan
// events out concurrently; session fields are only touched under this
// lock.
func (r *Router) sessionLock(key session.Key) *sync.Mutex {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	mu, ok := r.sessLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		r.sessLocks[key] = mu
	}
	return mu
}

// Handle processes one inbound event end to end. It is the transports'
// sink and must never panic or propagate an error: one bad event must
// not affect the others.
func (r *Router) Handle(ctx context.Context, ev transport.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("event_panic", "transport", ev.Transport, "panic", fmt.Sprint(rec))
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, r.cfg.EventTimeout)
	defer cancel()

	lock := r.sessionLock(session.KeyFor(ev.Actor, ev.Chat, ev.Kind == transport.EventCallback))
	lock.Lock()
	defer lock.Unlock()

	sess, proceed := r.resolve(ctx, ev)
	if !proceed {
		return
	}
	if err := r.route(ctx, ev, sess); err != nil {
		if errors.Is(err, ErrTicketClosed) {
			r.replyToStaff(ctx, ev, r.pack.TicketClosed)
			return
		}
		r.logger.Error("event_failed",
			"transport", ev.Transport,
			"actor", ev.Actor.String(),
			"error", err.Error(),
		)
		notice := r.pack.GenericError
		if errors.Is(err, ErrDeliveryFailed) {
			notice = r.pack.DeliveryFailed
		}
		r.notify(ctx, ev.Actor, notice)
	}
}

// route classifies the event into exactly one case, in precedence
// order: private relay, staff command, staff reply, category trigger,
// end-user message, no-op.
func (r *Router) route(ctx context.Context, ev transport.Event, sess *session.Session) error {
	switch {
	case ev.Kind == transport.EventCallback:
		return r.handleCallback(ctx, ev, sess)
	case sess.Mode == session.ModePrivateReply && ev.ChatType == "private":
		return r.handlePrivateRelay(ctx, ev, sess)
	case sess.Admin && r.isStaffChat(ev.Chat) && strings.HasPrefix(ev.Text, "/"):
		return r.handleStaffCommand(ctx, ev)
	case sess.Admin && r.isStaffChat(ev.Chat) && ev.ReplyTo != nil:
		return r.handleStaffReply(ctx, ev)
	case ev.Kind == transport.EventStart:
		return r.handleCategoryTrigger(ctx, ev, sess, ev.StartParam)
	case ev.ChatType == "private" && r.matchesRoute(ev):
		return r.handleCategoryTrigger(ctx, ev, sess, ev.Text)
	case ev.ChatType == "private" && (ev.Kind == transport.EventText || ev.Kind == transport.EventMedia):
		return r.handleUserMessage(ctx, ev, sess)
	default:
		return nil
	}
}

func (r *Router) matchesRoute(ev transport.Event) bool {
	if ev.Kind != transport.EventText || r.routes.Empty() {
		return false
	}
	_, ok := r.routes.Match(ev.Text)
	return ok
}

// handleCallback starts or ends a private relay. Unknown tokens are
// ignored: a stale button press is not an error worth surfacing.
func (r *Router) handleCallback(ctx context.Context, ev transport.Event, sess *session.Session) error {
	if ev.Callback == tag.EndRelay {
		sess.EndPrivateRelay()
		r.notify(ctx, ev.Actor, r.pack.RelayEnded)
		return nil
	}
	cb, err := tag.DecodeCallback(ev.Callback)
	if err != nil {
		r.logger.Debug("callback_ignored", "error", err.Error())
		return nil
	}
	sess.Mode = session.ModePrivateReply
	sess.Data = session.ModeData{
		TicketID:        cb.TicketID,
		Counterpart:     cb.Address,
		CounterpartName: cb.Name,
		Category:        cb.Category,
	}
	notice := fmt.Sprintf(r.pack.RelayStarted, counterpartLabel(cb.Name, r.pack))
	endButton := &transport.SendOptions{
		Buttons: []transport.Button{{Label: r.pack.EndRelay, Data: tag.EndRelay}},
	}
	_, err = r.send(ctx, ev.Actor, func(tr transport.Transport) (string, error) {
		return tr.SendText(ctx, ev.Actor, notice, endButton)
	})
	if err != nil {
		r.logger.Warn("notify_failed", "to", ev.Actor.String(), "error", err.Error())
	}
	return nil
}

// handlePrivateRelay forwards a staff member's private message verbatim
// to the bound counterpart. The ticket store is only consulted to log
// the message record, never for routing.
func (r *Router) handlePrivateRelay(ctx context.Context, ev transport.Event, sess *session.Session) error {
	// A bare end-relay literal is the stop signal, never relayed content.
	if ev.Kind == transport.EventText && strings.TrimSpace(ev.Text) == tag.EndRelay {
		sess.EndPrivateRelay()
		r.notify(ctx, ev.Actor, r.pack.RelayEnded)
		return nil
	}
	data := sess.Data
	header := fmt.Sprintf("%s %s:", tag.Encode(data.TicketID), staffLabel(ev.ActorName, r.pack))
	var nativeID string
	var err error
	if ev.Kind == transport.EventMedia && ev.Media != nil {
		media := *ev.Media
		media.Caption = header + "\n" + ev.Text
		nativeID, err = r.send(ctx, data.Counterpart, func(tr transport.Transport) (string, error) {
			return tr.SendMedia(ctx, data.Counterpart, media, nil)
		})
	} else {
		nativeID, err = r.send(ctx, data.Counterpart, func(tr transport.Transport) (string, error) {
			return tr.SendText(ctx, data.Counterpart, header+"\n"+ev.Text, nil)
		})
	}
	if err != nil {
		return fmt.Errorf("%w: private relay to %s: %v", ErrDeliveryFailed, data.Counterpart, err)
	}
	r.appendRecord(ctx, ticket.MessageRecord{
		TicketID:  data.TicketID,
		Address:   data.Counterpart.String(),
		NativeID:  nativeID,
		Messenger: string(data.Counterpart.Channel),
		Text:      ev.Text,
		Direction: ticket.DirectionStaff,
		SentAt:    ev.SentAt,
	})
	return nil
}

// handleStaffReply correlates a staff reply back to its ticket and
// relays the content to the originating user.
func (r *Router) handleStaffReply(ctx context.Context, ev transport.Event) error {
	tk, err := r.resolveRepliedTicket(ctx, ev)
	if err != nil {
		return err
	}
	if tk == nil {
		// Not a ticket reply at all; staff chatter.
		return nil
	}
	if tk.Status != ticket.StatusOpen {
		return ErrTicketClosed
	}
	userAddr, err := address.Parse(tk.Address)
	if err != nil {
		return fmt.Errorf("ticket %d has invalid address %q: %w", tk.ID, tk.Address, err)
	}

	body := staffLabel(ev.ActorName, r.pack) + ":\n" + ev.Text
	var nativeID string
	if ev.Kind == transport.EventMedia && ev.Media != nil {
		media := *ev.Media
		media.Caption = body
		nativeID, err = r.send(ctx, userAddr, func(tr transport.Transport) (string, error) {
			return tr.SendMedia(ctx, userAddr, media, nil)
		})
	} else {
		nativeID, err = r.send(ctx, userAddr, func(tr transport.Transport) (string, error) {
			return tr.SendText(ctx, userAddr, body, nil)
		})
	}
	if err != nil {
		return fmt.Errorf("%w: staff reply for ticket %d: %v", ErrDeliveryFailed, tk.ID, err)
	}

	r.appendRecord(ctx, ticket.MessageRecord{
		TicketID:  tk.ID,
		Address:   tk.Address,
		NativeID:  nativeID,
		Messenger: string(userAddr.Channel),
		Text:      ev.Text,
		Direction: ticket.DirectionStaff,
		SentAt:    ev.SentAt,
	})
	r.replyToStaff(ctx, ev, r.pack.Sent)

	if r.cfg.AutoClose {
		if err := r.store.SetStatus(ctx, tk.ID, ticket.StatusClosed); err != nil {
			r.logger.Warn("autoclose_failed", "ticket", tk.ID, "error", err.Error())
		} else {
			r.limiter.Forget(tk.ID)
		}
	}
	return nil
}

// resolveRepliedTicket resolves the replied-to message to a ticket:
// the persisted native-id binding first, visible tag parsing as the
// fallback. (nil, nil) means the reply does not concern a ticket.
func (r *Router) resolveRepliedTicket(ctx context.Context, ev transport.Event) (*ticket.Ticket, error) {
	if ev.ReplyTo == nil {
		return nil, nil
	}
	id, err := r.store.ResolveNativeMessage(ctx, ev.ReplyTo.MessageID)
	if err != nil {
		if !errors.Is(err, ticket.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		parsed, ok := tag.Decode(ev.ReplyTo.Text, r.pack.From)
		if !ok {
			return nil, nil
		}
		id = parsed
	}
	tk, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ticket.ErrNotFound) {
			return nil, ErrTicketClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return tk, nil
}

// handleCategoryTrigger applies a category selection or deep-link
// trigger. No ticket side effects.
func (r *Router) handleCategoryTrigger(ctx context.Context, ev transport.Event, sess *session.Session, input string) error {
	if r.routes.Empty() {
		// No category routing configured; greet and move on.
		r.notify(ctx, ev.Actor, r.pack.Confirmation)
		return nil
	}
	m, ok := r.routes.Match(input)
	if !ok {
		r.sendMenu(ctx, ev.Actor, r.pack.ChooseCategory, r.routes.TopLabels(), false)
		return nil
	}
	switch m.Kind {
	case category.MatchBack:
		r.sendMenu(ctx, ev.Actor, r.pack.ChooseCategory, r.routes.TopLabels(), false)
	case category.MatchShowSubcategories:
		r.sendMenu(ctx, ev.Actor, r.pack.ChooseSubcategory, m.Subcategories, true)
	case category.MatchSelect:
		sess.Group = m.Destination.GroupID
		sess.GroupCategory = m.Destination.Category
		sess.GroupTag = m.Destination.Tag
		sess.EndPrivateRelay()
		greeting := m.Destination.Msg
		if greeting == "" {
			greeting = r.pack.Confirmation
		}
		r.notify(ctx, ev.Actor, greeting)
	}
	return nil
}

// handleUserMessage is case 4: the end-user ticket flow.
func (r *Router) handleUserMessage(ctx context.Context, ev transport.Event, sess *session.Session) error {
	categoryName := sess.GroupCategory

	tk, err := r.store.FindOpen(ctx, ev.Actor, categoryName)
	isNew := false
	if err != nil {
		if !errors.Is(err, ticket.ErrNotFound) {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		tk, err = r.store.CreateOrOpen(ctx, ev.Actor, categoryName)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		isNew = true
	}

	switch r.limiter.Observe(tk.ID) {
	case spam.Warn:
		r.notify(ctx, ev.Actor, r.pack.Blocked)
		return nil
	case spam.Drop:
		return nil
	}

	if isNew {
		r.notify(ctx, ev.Actor, r.pack.Confirmation)
	}

	senderName := r.senderLabel(ev.ActorName)
	body := r.formatStaffCopy(tk.ID, senderName, sess.GroupTag, ev.Text)
	opts := &transport.SendOptions{}
	token, err := tag.EncodeCallback(ev.Actor, senderName, categoryName, tk.ID)
	if err != nil {
		// Staff replies still correlate through the native-id binding;
		// losing the button must not lose the message.
		r.logger.Warn("callback_button_skipped", "ticket", tk.ID, "error", err.Error())
	} else {
		opts.Buttons = []transport.Button{{Label: r.pack.PrivateReply, Data: token}}
	}

	var delivered bool
	for _, dest := range r.staffDestinations(sess) {
		var nativeID string
		var sendErr error
		if ev.Kind == transport.EventMedia && ev.Media != nil {
			media := *ev.Media
			media.Caption = body
			nativeID, sendErr = r.send(ctx, dest, func(tr transport.Transport) (string, error) {
				return tr.SendMedia(ctx, dest, media, opts)
			})
		} else {
			nativeID, sendErr = r.send(ctx, dest, func(tr transport.Transport) (string, error) {
				return tr.SendText(ctx, dest, body, opts)
			})
		}
		if sendErr != nil {
			r.logger.Error("staff_copy_failed", "ticket", tk.ID, "dest", dest.String(), "error", sendErr.Error())
			continue
		}
		delivered = true
		if err := r.store.BindNativeMessage(ctx, nativeID, tk.ID); err != nil {
			r.logger.Warn("native_binding_failed", "ticket", tk.ID, "error", err.Error())
		}
	}
	if !delivered {
		return fmt.Errorf("%w: no staff destination reachable for ticket %d", ErrDeliveryFailed, tk.ID)
	}

	r.appendRecord(ctx, ticket.MessageRecord{
		TicketID:  tk.ID,
		Address:   ev.Actor.String(),
		NativeID:  ev.MessageID,
		Messenger: ev.Transport,
		Text:      eventText(ev),
		Direction: ticket.DirectionUser,
		SentAt:    ev.SentAt,
	})
	return nil
}

// handleStaffCommand serves the staff chat's slash commands: /open,
// /close, /ban, /unban.
func (r *Router) handleStaffCommand(ctx context.Context, ev transport.Event) error {
	command, _, _ := strings.Cut(ev.Text, " ")
	switch command {
	case "/open":
		return r.commandOpen(ctx, ev)
	case "/close":
		return r.commandSetStatus(ctx, ev, ticket.StatusClosed, false, r.pack.Closed)
	case "/ban":
		return r.commandSetStatus(ctx, ev, ticket.StatusBanned, true, r.pack.Banned)
	case "/unban":
		return r.commandSetStatus(ctx, ev, ticket.StatusClosed, true, r.pack.Unbanned)
	default:
		return nil
	}
}

// commandOpen lists open tickets, or reopens the replied-to ticket.
func (r *Router) commandOpen(ctx context.Context, ev transport.Event) error {
	if ev.ReplyTo != nil {
		return r.commandSetStatus(ctx, ev, ticket.StatusOpen, false, r.pack.Reopened)
	}
	open, err := r.store.ListOpen(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(open) == 0 {
		r.replyToStaff(ctx, ev, r.pack.NoOpenTickets)
		return nil
	}
	lines := make([]string, 0, len(open)+1)
	lines = append(lines, r.pack.OpenTickets)
	for _, tk := range open {
		line := tag.Encode(tk.ID) + " " + tk.Address
		if tk.Category != "" {
			line += " (" + tk.Category + ")"
		}
		lines = append(lines, line)
	}
	r.replyToStaff(ctx, ev, strings.Join(lines, "\n"))
	return nil
}

// commandSetStatus acts on the ticket the command message replies to.
// A bare command with no reply target is ignored. byAddress applies the
// status to every ticket bound to the address, not just the replied-to
// one; ban and unban work that way.
func (r *Router) commandSetStatus(ctx context.Context, ev transport.Event, status ticket.Status, byAddress bool, notice string) error {
	tk, err := r.resolveRepliedTicket(ctx, ev)
	if err != nil {
		return err
	}
	if tk == nil {
		return nil
	}
	userAddr, err := address.Parse(tk.Address)
	if err != nil {
		return fmt.Errorf("ticket %d has invalid address %q: %w", tk.ID, tk.Address, err)
	}
	if byAddress {
		if err := r.store.SetStatusByAddress(ctx, userAddr, status); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	} else {
		if err := r.store.SetStatus(ctx, tk.ID, status); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	if status != ticket.StatusOpen {
		r.limiter.Forget(tk.ID)
	}
	r.replyToStaff(ctx, ev, notice)
	return nil
}

// helpers

// staffDestinations yields the global staff chat plus the session's
// resolved group when distinct.
func (r *Router) staffDestinations(sess *session.Session) []address.Address {
	dests := []address.Address{r.cfg.StaffChat}
	if sess.Group == "" {
		return dests
	}
	groupAddr, err := address.NewTelegram(sess.Group)
	if err != nil || groupAddr == r.cfg.StaffChat {
		return dests
	}
	return append(dests, groupAddr)
}

// formatStaffCopy renders the staff-facing ticket message: tag, sender,
// optional routing hashtag, free text.
func (r *Router) formatStaffCopy(ticketID int64, sender, groupTag, text string) string {
	header := tag.Encode(ticketID) + " " + r.pack.From + " " + sender
	if groupTag != "" {
		header += " #" + groupTag
	}
	return header + ":\n" + text
}

func (r *Router) senderLabel(actorName string) string {
	if r.cfg.Anonymize || strings.TrimSpace(actorName) == "" {
		return r.pack.Anonymous
	}
	return actorName
}

func staffLabel(actorName string, pack *lang.Pack) string {
	if strings.TrimSpace(actorName) == "" {
		return pack.Anonymous
	}
	return actorName
}

func counterpartLabel(name string, pack *lang.Pack) string {
	if strings.TrimSpace(name) == "" {
		return pack.Anonymous
	}
	return name
}

// send routes an outbound call to the transport owning the address.
func (r *Router) send(ctx context.Context, to address.Address, call func(transport.Transport) (string, error)) (string, error) {
	tr, ok := r.transports[string(to.Channel)]
	if !ok {
		return "", fmt.Errorf("no transport for channel %s", to.Channel)
	}
	return call(tr)
}

// notify is the best-effort single notice to an actor. Failures are
// logged and swallowed; a notice about a failure must not itself fail
// the event.
func (r *Router) notify(ctx context.Context, to address.Address, text string) {
	_, err := r.send(ctx, to, func(tr transport.Transport) (string, error) {
		return tr.SendText(ctx, to, text, nil)
	})
	if err != nil {
		r.logger.Warn("notify_failed", "to", to.String(), "error", err.Error())
	}
}

// replyToStaff echoes a notice into the staff chat the event came from,
// attached as a reply where the platform supports it.
func (r *Router) replyToStaff(ctx context.Context, ev transport.Event, text string) {
	opts := &transport.SendOptions{ReplyTo: ev.MessageID}
	_, err := r.send(ctx, ev.Chat, func(tr transport.Transport) (string, error) {
		return tr.SendText(ctx, ev.Chat, text, opts)
	})
	if err != nil {
		r.logger.Warn("staff_echo_failed", "chat", ev.Chat.String(), "error", err.Error())
	}
}

// sendMenu presents category labels as keyboard buttons.
func (r *Router) sendMenu(ctx context.Context, to address.Address, prompt string, labels []string, withBack bool) {
	buttons := make([]transport.Button, 0, len(labels)+1)
	for _, label := range labels {
		buttons = append(buttons, transport.Button{Label: label})
	}
	if withBack {
		buttons = append(buttons, transport.Button{Label: r.pack.Back})
	}
	_, err := r.send(ctx, to, func(tr transport.Transport) (string, error) {
		return tr.SendText(ctx, to, prompt, &transport.SendOptions{Buttons: buttons})
	})
	if err != nil {
		r.logger.Warn("menu_failed", "to", to.String(), "error", err.Error())
	}
}

// appendRecord logs a relayed message. The relay itself keeps working
// if the append fails; the message already reached its destination.
func (r *Router) appendRecord(ctx context.Context, record ticket.MessageRecord) {
	if err := r.store.AppendMessage(ctx, record); err != nil {
		r.logger.Warn("append_record_failed", "ticket", record.TicketID, "error", err.Error())
	}
}

func eventText(ev transport.Event) string {
	if ev.Text != "" {
		return ev.Text
	}
	if ev.Media != nil {
		return ev.Media.Caption
	}
	return ""
}

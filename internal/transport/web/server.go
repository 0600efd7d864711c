// Package web serves the browser chat widget: one websocket per
// anonymous visitor, normalized into the same event stream as the other
// transports. The widget has no native reply semantics at all, which is
// exactly why correlation lives in the ticket tag rather than in any
// transport feature.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/transport"
)

type Options struct {
	Listen string
	Logger *slog.Logger
}

type Transport struct {
	listen   string
	logger   *slog.Logger
	hub      *hub
	upgrader websocket.Upgrader
	seq      atomic.Int64
}

func New(opts Options) (*Transport, error) {
	listen := strings.TrimSpace(opts.Listen)
	if listen == "" {
		return nil, fmt.Errorf("web listen address is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		listen: listen,
		logger: logger,
		hub:    newHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The widget is embedded on arbitrary customer pages.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}, nil
}

func (t *Transport) Name() string {
	return string(address.ChannelWeb)
}

// wire frames

type inboundFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

type outboundFrame struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	From     string `json:"from,omitempty"`
	Media    string `json:"media,omitempty"`
	Filename string `json:"filename,omitempty"`
	SentAt   string `json:"sent_at,omitempty"`
}

func (t *Transport) SendText(ctx context.Context, to address.Address, text string, _ *transport.SendOptions) (string, error) {
	if to.Channel != address.ChannelWeb {
		return "", fmt.Errorf("address %s is not a web address", to)
	}
	frame := outboundFrame{
		Type:   "message",
		Text:   text,
		SentAt: time.Now().UTC().Format(time.RFC3339),
	}
	if err := t.hub.push(to.ID, frame); err != nil {
		return "", err
	}
	return t.nextMessageID(to.ID), nil
}

func (t *Transport) SendMedia(ctx context.Context, to address.Address, media transport.Media, _ *transport.SendOptions) (string, error) {
	if to.Channel != address.ChannelWeb {
		return "", fmt.Errorf("address %s is not a web address", to)
	}
	if !strings.HasPrefix(media.Ref, "http://") && !strings.HasPrefix(media.Ref, "https://") {
		// File-id refs belong to another transport and cannot be fetched
		// by a browser.
		return "", fmt.Errorf("media ref %q is not resolvable on the web widget", media.Ref)
	}
	frame := outboundFrame{
		Type:     "media",
		Text:     media.Caption,
		Media:    media.Ref,
		Filename: media.Filename,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	}
	if err := t.hub.push(to.ID, frame); err != nil {
		return "", err
	}
	return t.nextMessageID(to.ID), nil
}

// ListAdministrators: the widget has no administered chats; staff never
// act through it.
func (t *Transport) ListAdministrators(context.Context, address.Address) ([]address.Address, error) {
	return nil, nil
}

// Run serves the widget endpoints until ctx is done.
func (t *Transport) Run(ctx context.Context, sink transport.Sink) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/widget/ws", func(w http.ResponseWriter, r *http.Request) {
		t.handleSocket(ctx, w, r, sink)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              t.listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	t.logger.Info("web_start", "listen", t.listen)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web listen: %w", err)
	}
}

// handleSocket owns one visitor connection: assign (or resume) the
// visitor id, register with the hub, then pump inbound frames into the
// sink as normalized events.
func (t *Transport) handleSocket(ctx context.Context, w http.ResponseWriter, r *http.Request, sink transport.Sink) {
	visitorID := strings.TrimSpace(r.URL.Query().Get("visitor"))
	if visitorID == "" || uuid.Validate(visitorID) != nil {
		visitorID = uuid.NewString()
	}
	addr, err := address.NewWeb(visitorID)
	if err != nil {
		http.Error(w, "invalid visitor id", http.StatusBadRequest)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		t.logger.Warn("web_upgrade_failed", "error", err.Error())
		return
	}
	t.hub.register(visitorID, conn)
	defer func() {
		t.hub.unregister(visitorID, conn)
		_ = conn.Close()
	}()

	// Tell the widget its id so reconnects resume the conversation.
	if err := conn.WriteJSON(outboundFrame{Type: "hello", Text: visitorID}); err != nil {
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Debug("web_read_error", "visitor", visitorID, "error", err.Error())
			}
			return
		}
		ev, ok := t.normalize(addr, frame)
		if !ok {
			continue
		}
		sink(ctx, ev)
	}
}

// normalize maps one widget frame onto the router's event model. The
// widget is always a private 1:1 conversation.
func (t *Transport) normalize(addr address.Address, frame inboundFrame) (transport.Event, bool) {
	ev := transport.Event{
		Transport: t.Name(),
		Actor:     addr,
		ActorName: strings.TrimSpace(frame.Name),
		Chat:      addr,
		ChatType:  "private",
		MessageID: t.nextMessageID(addr.ID),
		SentAt:    time.Now().UTC(),
	}
	switch frame.Type {
	case "message":
		text := strings.TrimSpace(frame.Text)
		if text == "" {
			return transport.Event{}, false
		}
		ev.Kind = transport.EventText
		ev.Text = text
		return ev, true
	case "category":
		category := strings.TrimSpace(frame.Category)
		if category == "" {
			return transport.Event{}, false
		}
		ev.Kind = transport.EventStart
		ev.StartParam = category
		return ev, true
	default:
		return transport.Event{}, false
	}
}

func (t *Transport) nextMessageID(visitorID string) string {
	return fmt.Sprintf("web:%s:%d", visitorID, t.seq.Add(1))
}

// Package transport defines the capability interface every messenger
// adapter implements, and the normalized inbound event the router
// consumes. The router never branches on a messenger name; it talks to
// whichever Transport owns the event's origin address.
package transport

import (
	"context"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
)

type EventKind int

const (
	EventText EventKind = iota
	EventMedia
	EventCallback
	EventStart
)

type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaPhoto    MediaKind = "photo"
	MediaVideo    MediaKind = "video"
)

// Media references an attachment by a transport-native ref (file id or
// URL). Refs are only guaranteed resolvable on the transport that
// produced them; cross-transport delivery falls back to the URL form
// when one exists.
type Media struct {
	Kind     MediaKind
	Ref      string
	Filename string
	Caption  string
}

// ReplyRef carries the replied-to message for correlation: its native
// id and its visible text or caption.
type ReplyRef struct {
	MessageID string
	Text      string
}

// Event is one normalized inbound occurrence on a transport.
type Event struct {
	Kind      EventKind
	Transport string

	Actor     address.Address
	ActorName string
	Chat      address.Address
	ChatType  string // private|group|supergroup|channel

	MessageID string
	Text      string
	Media     *Media
	ReplyTo   *ReplyRef

	// Callback carries the opaque token of an inline action press.
	Callback string
	// StartParam carries a deep-link start parameter.
	StartParam string

	SentAt time.Time
}

// Button is an inline action attached to an outgoing message.
type Button struct {
	Label string
	Data  string
}

// SendOptions are per-send extras a transport may honor or ignore.
type SendOptions struct {
	Buttons []Button
	// ReplyTo asks the transport to attach the message as a reply to a
	// native message id, where the platform supports it.
	ReplyTo string
}

// Sink receives normalized events from a running transport.
type Sink func(ctx context.Context, ev Event)

// Transport is the single capability interface over all messengers.
type Transport interface {
	Name() string
	// SendText delivers text to a canonical address and returns the
	// native message id of the sent message.
	SendText(ctx context.Context, to address.Address, text string, opts *SendOptions) (string, error)
	SendMedia(ctx context.Context, to address.Address, media Media, opts *SendOptions) (string, error)
	// ListAdministrators reports the administrator addresses of a chat.
	// Transports without administered chats return an empty list.
	ListAdministrators(ctx context.Context, chat address.Address) ([]address.Address, error)
	// Run blocks pumping inbound events into sink until ctx is done.
	Run(ctx context.Context, sink Sink) error
}

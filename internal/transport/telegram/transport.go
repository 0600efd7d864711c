// Package telegram adapts the Telegram Bot API to the transport
// capability interface: long-poll inbound normalization plus the send
// and administrator-list calls the router needs.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/transport"
	"github.com/quailyquaily/relaydesk/internal/worker"
)

type Options struct {
	Token          string
	BaseURL        string
	HTTPClient     *http.Client
	PollTimeout    time.Duration
	MaxConcurrency int
	Logger         *slog.Logger
}

type Transport struct {
	api         *api
	pollTimeout time.Duration
	maxConc     int
	logger      *slog.Logger
}

func New(opts Options) (*Transport, error) {
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	pollTimeout := opts.PollTimeout
	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}
	maxConc := opts.MaxConcurrency
	if maxConc <= 0 {
		maxConc = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		api:         newAPI(opts.HTTPClient, opts.BaseURL, token),
		pollTimeout: pollTimeout,
		maxConc:     maxConc,
		logger:      logger,
	}, nil
}

func (t *Transport) Name() string {
	return string(address.ChannelTelegram)
}

func (t *Transport) SendText(ctx context.Context, to address.Address, text string, opts *transport.SendOptions) (string, error) {
	chatID, err := chatIDFromAddress(to)
	if err != nil {
		return "", err
	}
	replyTo := replyToID(opts)
	messageID, err := t.api.sendMessage(ctx, chatID, text, replyTo, markupFromOptions(opts))
	if err != nil {
		return "", err
	}
	return nativeMessageID(chatID, messageID), nil
}

func (t *Transport) SendMedia(ctx context.Context, to address.Address, media transport.Media, opts *transport.SendOptions) (string, error) {
	chatID, err := chatIDFromAddress(to)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(media.Ref) == "" {
		return "", fmt.Errorf("media ref is required")
	}
	reqBody := sendMediaRequest{
		ChatID:           chatID,
		Caption:          media.Caption,
		ReplyToMessageID: replyToID(opts),
		ReplyMarkup:      markupFromOptions(opts),
	}
	switch media.Kind {
	case transport.MediaPhoto:
		reqBody.Photo = media.Ref
	case transport.MediaVideo:
		reqBody.Video = media.Ref
	default:
		reqBody.Document = media.Ref
	}
	messageID, err := t.api.sendMedia(ctx, reqBody)
	if err != nil {
		return "", err
	}
	return nativeMessageID(chatID, messageID), nil
}

func (t *Transport) ListAdministrators(ctx context.Context, chatAddr address.Address) ([]address.Address, error) {
	chatID, err := chatIDFromAddress(chatAddr)
	if err != nil {
		return nil, err
	}
	members, err := t.api.getChatAdministrators(ctx, chatID)
	if err != nil {
		return nil, err
	}
	admins := make([]address.Address, 0, len(members))
	for _, m := range members {
		if m.User == nil || m.User.IsBot {
			continue
		}
		addr, err := address.NewTelegram(strconv.FormatInt(m.User.ID, 10))
		if err != nil {
			continue
		}
		admins = append(admins, addr)
	}
	return admins, nil
}

// Run long-polls getUpdates and fans normalized events out to sink via
// a bounded worker pool. Returns when ctx is done.
func (t *Transport) Run(ctx context.Context, sink transport.Sink) error {
	me, err := t.api.getMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	t.logger.Info("telegram_start", "bot", me.Username, "bot_id", me.ID)

	jobs := make(chan transport.Event, 64)
	sem := make(chan struct{}, t.maxConc)
	worker.Start(worker.StartOptions[transport.Event]{
		Ctx:  ctx,
		Sem:  sem,
		Jobs: jobs,
		Handle: func(ctx context.Context, ev transport.Event) {
			sink(ctx, ev)
		},
	})

	var offset int64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		updates, next, err := t.api.getUpdates(ctx, offset, t.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !isPollTimeoutError(err) {
				t.logger.Warn("telegram_poll_error", "error", err.Error())
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(2 * time.Second):
				}
			}
			continue
		}
		offset = next
		for _, u := range updates {
			ev, ok := t.normalize(u, me.ID)
			if !ok {
				continue
			}
			if err := worker.Enqueue(ctx, ctx, jobs, ev); err != nil {
				return err
			}
		}
	}
}

// normalize maps one Telegram update onto the router's event model.
// Updates the relay cannot act on (bot echoes, empty payloads) are
// dropped here.
func (t *Transport) normalize(u update, botID int64) (transport.Event, bool) {
	if u.CallbackQuery != nil {
		return t.normalizeCallback(u.CallbackQuery)
	}
	msg := u.Message
	if msg == nil {
		msg = u.EditedMessage
	}
	if msg == nil || msg.Chat == nil {
		return transport.Event{}, false
	}
	if msg.From != nil && (msg.From.IsBot || msg.From.ID == botID) {
		return transport.Event{}, false
	}
	actor, chatAddr, ok := t.eventAddresses(msg)
	if !ok {
		return transport.Event{}, false
	}

	ev := transport.Event{
		Transport: t.Name(),
		Actor:     actor,
		ActorName: displayName(msg.From),
		Chat:      chatAddr,
		ChatType:  msg.Chat.Type,
		MessageID: nativeMessageID(msg.Chat.ID, msg.MessageID),
		SentAt:    sentAt(msg.Date),
	}
	if msg.ReplyTo != nil {
		replyText := msg.ReplyTo.Text
		if replyText == "" {
			replyText = msg.ReplyTo.Caption
		}
		ev.ReplyTo = &transport.ReplyRef{
			MessageID: nativeMessageID(msg.Chat.ID, msg.ReplyTo.MessageID),
			Text:      replyText,
		}
	}

	if media, ok := mediaFromMessage(msg); ok {
		ev.Kind = transport.EventMedia
		ev.Media = media
		ev.Text = msg.Caption
		return ev, true
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return transport.Event{}, false
	}
	if param, ok := strings.CutPrefix(text, "/start "); ok {
		ev.Kind = transport.EventStart
		ev.StartParam = strings.TrimSpace(param)
		return ev, true
	}
	if text == "/start" {
		ev.Kind = transport.EventStart
		return ev, true
	}
	ev.Kind = transport.EventText
	ev.Text = text
	return ev, true
}

func (t *Transport) normalizeCallback(cq *callbackQuery) (transport.Event, bool) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		return transport.Event{}, false
	}
	actor, err := address.NewTelegram(strconv.FormatInt(cq.From.ID, 10))
	if err != nil {
		return transport.Event{}, false
	}
	chatAddr, err := address.NewTelegram(strconv.FormatInt(cq.Message.Chat.ID, 10))
	if err != nil {
		return transport.Event{}, false
	}
	// Best effort: stop the client spinner; the real reply follows.
	ackCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := t.api.answerCallbackQuery(ackCtx, cq.ID, ""); err != nil {
		t.logger.Debug("telegram_callback_ack_failed", "error", err.Error())
	}
	return transport.Event{
		Kind:      transport.EventCallback,
		Transport: t.Name(),
		Actor:     actor,
		ActorName: displayName(cq.From),
		Chat:      chatAddr,
		ChatType:  cq.Message.Chat.Type,
		MessageID: nativeMessageID(cq.Message.Chat.ID, cq.Message.MessageID),
		Callback:  cq.Data,
		SentAt:    time.Now().UTC(),
	}, true
}

func (t *Transport) eventAddresses(msg *message) (actor, chatAddr address.Address, ok bool) {
	if msg.From == nil {
		return actor, chatAddr, false
	}
	actor, err := address.NewTelegram(strconv.FormatInt(msg.From.ID, 10))
	if err != nil {
		return actor, chatAddr, false
	}
	chatAddr, err = address.NewTelegram(strconv.FormatInt(msg.Chat.ID, 10))
	if err != nil {
		return actor, chatAddr, false
	}
	return actor, chatAddr, true
}

func mediaFromMessage(msg *message) (*transport.Media, bool) {
	switch {
	case msg.Document != nil:
		return &transport.Media{
			Kind:     transport.MediaDocument,
			Ref:      msg.Document.FileID,
			Filename: msg.Document.FileName,
			Caption:  msg.Caption,
		}, true
	case len(msg.Photo) > 0:
		// Telegram sends multiple sizes; the last is the largest.
		return &transport.Media{
			Kind:    transport.MediaPhoto,
			Ref:     msg.Photo[len(msg.Photo)-1].FileID,
			Caption: msg.Caption,
		}, true
	case msg.Video != nil:
		return &transport.Media{
			Kind:     transport.MediaVideo,
			Ref:      msg.Video.FileID,
			Filename: msg.Video.FileName,
			Caption:  msg.Caption,
		}, true
	default:
		return nil, false
	}
}

func chatIDFromAddress(addr address.Address) (int64, error) {
	if addr.Channel != address.ChannelTelegram {
		return 0, fmt.Errorf("address %s is not a telegram address", addr)
	}
	chatID, err := strconv.ParseInt(addr.ID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram chat id is invalid: %w", err)
	}
	return chatID, nil
}

func nativeMessageID(chatID, messageID int64) string {
	return fmt.Sprintf("%d:%d", chatID, messageID)
}

func replyToID(opts *transport.SendOptions) int64 {
	if opts == nil || opts.ReplyTo == "" {
		return 0
	}
	raw := opts.ReplyTo
	if _, msgPart, ok := strings.Cut(raw, ":"); ok {
		raw = msgPart
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// markupFromOptions picks the keyboard form: buttons carrying callback
// data become an inline keyboard, plain labels a one-time reply
// keyboard.
func markupFromOptions(opts *transport.SendOptions) any {
	if opts == nil || len(opts.Buttons) == 0 {
		return nil
	}
	inline := false
	for _, b := range opts.Buttons {
		if b.Data != "" {
			inline = true
			break
		}
	}
	if inline {
		rows := make([][]inlineKeyboardButton, 0, len(opts.Buttons))
		for _, b := range opts.Buttons {
			rows = append(rows, []inlineKeyboardButton{{Text: b.Label, CallbackData: b.Data}})
		}
		return inlineKeyboardMarkup{InlineKeyboard: rows}
	}
	rows := make([][]replyKeyboardButton, 0, len(opts.Buttons))
	for _, b := range opts.Buttons {
		rows = append(rows, []replyKeyboardButton{{Text: b.Label}})
	}
	return replyKeyboardMarkup{Keyboard: rows, ResizeKeyboard: true, OneTimeKeyboard: true}
}

func sentAt(unix int64) time.Time {
	if unix <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(unix, 0).UTC()
}

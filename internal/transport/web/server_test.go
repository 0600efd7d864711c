package web

import (
	"context"
	"testing"

	"github.com/quailyquaily/relaydesk/internal/address"
	"github.com/quailyquaily/relaydesk/internal/transport"
)

func testWebTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New(Options{Listen: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return tr
}

func TestNormalizeMessageFrame(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewWeb("visitor-1")
	ev, ok := tr.normalize(addr, inboundFrame{Type: "message", Text: " Hello ", Name: "Ada"})
	if !ok {
		t.Fatalf("normalize() dropped frame")
	}
	if ev.Kind != transport.EventText || ev.Text != "Hello" || ev.ActorName != "Ada" {
		t.Fatalf("event mismatch: %+v", ev)
	}
	if ev.Chat != addr || ev.ChatType != "private" {
		t.Fatalf("widget events must be private 1:1: %+v", ev)
	}
}

func TestNormalizeCategoryFrame(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewWeb("visitor-2")
	ev, ok := tr.normalize(addr, inboundFrame{Type: "category", Category: "Billing"})
	if !ok || ev.Kind != transport.EventStart || ev.StartParam != "Billing" {
		t.Fatalf("category event mismatch: ok=%v %+v", ok, ev)
	}
}

func TestNormalizeDropsEmptyAndUnknownFrames(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewWeb("visitor-3")
	cases := []inboundFrame{
		{Type: "message", Text: "   "},
		{Type: "category"},
		{Type: "typing"},
		{},
	}
	for _, frame := range cases {
		if _, ok := tr.normalize(addr, frame); ok {
			t.Fatalf("frame %+v should be dropped", frame)
		}
	}
}

func TestSendTextWithoutLiveSocketFails(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewWeb("gone")
	if _, err := tr.SendText(context.Background(), addr, "hi", nil); err == nil {
		t.Fatalf("SendText() expected error for dead visitor")
	}
}

func TestSendTextRejectsForeignAddress(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewTelegram("1")
	if _, err := tr.SendText(context.Background(), addr, "hi", nil); err == nil {
		t.Fatalf("SendText() expected error for non-web address")
	}
}

func TestSendMediaRequiresURLRef(t *testing.T) {
	tr := testWebTransport(t)
	addr, _ := address.NewWeb("visitor-4")
	_, err := tr.SendMedia(context.Background(), addr, transport.Media{Ref: "telegram-file-id"}, nil)
	if err == nil {
		t.Fatalf("SendMedia() expected error for non-URL ref")
	}
}

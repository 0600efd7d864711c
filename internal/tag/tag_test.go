package tag

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quailyquaily/relaydesk/internal/address"
)

const fromWord = "from"

func TestEncodeZeroPads(t *testing.T) {
	cases := []struct {
		id   int64
		want string
	}{
		{id: 1, want: "#T000001"},
		{id: 42, want: "#T000042"},
		{id: 999999, want: "#T999999"},
		{id: 1234567, want: "#T1234567"},
	}
	for _, tc := range cases {
		if got := Encode(tc.id); got != tc.want {
			t.Fatalf("Encode(%d) = %q, want %q", tc.id, got, tc.want)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	for _, n := range []int64{1, 7, 99, 1000, 123456, 999999} {
		text := Encode(n) + " " + fromWord + " Alice:\nhello"
		got, ok := Decode(text, fromWord)
		if !ok {
			t.Fatalf("Decode(%q) not found", text)
		}
		if got != n {
			t.Fatalf("Decode(%q) = %d, want %d", text, got, n)
		}
	}
}

func TestDecodeRoundTripExhaustiveSample(t *testing.T) {
	// Every id width from 1 to 999999 in coarse steps; the codec has no
	// width-dependent branches beyond the digit run itself.
	for n := int64(1); n <= 999999; n += 4999 {
		text := Encode(n) + " " + fromWord
		got, ok := Decode(text, fromWord)
		if !ok || got != n {
			t.Fatalf("Decode(Encode(%d)) = (%d, %v)", n, got, ok)
		}
	}
}

func TestDecodeTerminators(t *testing.T) {
	cases := []struct {
		name string
		text string
		want int64
		ok   bool
	}{
		{name: "newline", text: "re: #T000007\nthanks", want: 7, ok: true},
		{name: "end of text", text: "see #T000012", want: 12, ok: true},
		{name: "from word", text: "#T000003 from Bob: hi", want: 3, ok: true},
		{name: "last occurrence wins", text: "#T000001 from A\n#T000002 from B", want: 2, ok: true},
		{name: "skips unterminated trailing tag", text: "#T000004 from A said #T9 beers", want: 4, ok: true},
		{name: "no tag", text: "plain reply text", ok: false},
		{name: "prefix without digits", text: "#T from nobody", ok: false},
		{name: "digits followed by word", text: "#T12x from A", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Decode(tc.text, fromWord)
			if ok != tc.ok {
				t.Fatalf("Decode(%q) ok = %v, want %v", tc.text, ok, tc.ok)
			}
			if ok && got != tc.want {
				t.Fatalf("Decode(%q) = %d, want %d", tc.text, got, tc.want)
			}
		})
	}
}

func TestCallbackRoundTrip(t *testing.T) {
	addr, err := address.NewTelegram("12345")
	if err != nil {
		t.Fatalf("NewTelegram() error = %v", err)
	}
	token, err := EncodeCallback(addr, "Alice", "billing", 42)
	if err != nil {
		t.Fatalf("EncodeCallback() error = %v", err)
	}
	cb, err := DecodeCallback(token)
	if err != nil {
		t.Fatalf("DecodeCallback() error = %v", err)
	}
	if cb.Address != addr || cb.Name != "Alice" || cb.Category != "billing" || cb.TicketID != 42 {
		t.Fatalf("callback mismatch: got %+v", cb)
	}
}

func TestCallbackRoundTripEmptyFields(t *testing.T) {
	addr, _ := address.NewWeb("visitor-1")
	token, err := EncodeCallback(addr, "", "", 1)
	if err != nil {
		t.Fatalf("EncodeCallback() error = %v", err)
	}
	cb, err := DecodeCallback(token)
	if err != nil {
		t.Fatalf("DecodeCallback() error = %v", err)
	}
	if cb.Name != "" || cb.Category != "" || cb.TicketID != 1 {
		t.Fatalf("callback mismatch: got %+v", cb)
	}
}

func TestEncodeCallbackRejectsSeparatorInFields(t *testing.T) {
	addr, _ := address.NewTelegram("1")
	if _, err := EncodeCallback(addr, "A---B", "c", 1); err == nil {
		t.Fatalf("EncodeCallback() expected error for separator in name")
	}
	if _, err := EncodeCallback(addr, "A", "x---y", 1); err == nil {
		t.Fatalf("EncodeCallback() expected error for separator in category")
	}
	if _, err := EncodeCallback(addr, "A", "c", 0); err == nil {
		t.Fatalf("EncodeCallback() expected error for zero ticket id")
	}
}

func TestEncodeCallbackStaysWithinByteCap(t *testing.T) {
	addr, _ := address.NewTelegram("-1001234567890")
	token, err := EncodeCallback(addr, strings.Repeat("N", 200), "billing", 123456)
	if err != nil {
		t.Fatalf("EncodeCallback() error = %v", err)
	}
	if len(token) > maxCallbackBytes {
		t.Fatalf("token is %d bytes, cap is %d", len(token), maxCallbackBytes)
	}
	cb, err := DecodeCallback(token)
	if err != nil {
		t.Fatalf("DecodeCallback() error = %v", err)
	}
	if cb.Address != addr || cb.Category != "billing" || cb.TicketID != 123456 {
		t.Fatalf("identity fields must survive truncation: %+v", cb)
	}
	if cb.Name == "" || !strings.HasPrefix(strings.Repeat("N", 200), cb.Name) {
		t.Fatalf("name must be a prefix of the original: %q", cb.Name)
	}
}

func TestEncodeCallbackTruncatesOnRuneBoundary(t *testing.T) {
	addr, _ := address.NewTelegram("42")
	token, err := EncodeCallback(addr, strings.Repeat("ü", 100), "", 7)
	if err != nil {
		t.Fatalf("EncodeCallback() error = %v", err)
	}
	if len(token) > maxCallbackBytes {
		t.Fatalf("token is %d bytes, cap is %d", len(token), maxCallbackBytes)
	}
	if !utf8.ValidString(token) {
		t.Fatalf("truncation split a rune: %q", token)
	}
}

func TestEncodeCallbackFailsWhenIdentityFieldsOverflow(t *testing.T) {
	addr, _ := address.NewTelegram("1")
	if _, err := EncodeCallback(addr, "A", strings.Repeat("c", 80), 1); err == nil {
		t.Fatalf("EncodeCallback() expected error for oversized category")
	}
}

func TestDecodeCallbackRejectsMalformedTokens(t *testing.T) {
	cases := []string{
		EndRelay,
		"",
		"just-a-string",
		"tg:1---Alice---billing",       // three fields only
		"irc:1---Alice---billing---42", // unknown channel
		fmt.Sprintf("tg:1---A---c---%s", strings.Repeat("9", 30)),
	}
	for _, token := range cases {
		if _, err := DecodeCallback(token); err == nil {
			t.Fatalf("DecodeCallback(%q) expected error", token)
		}
	}
}

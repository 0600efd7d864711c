// Package tag implements the ticket identity codec: the visible "#T000042"
// tag embedded in relayed message text, and the opaque callback token
// carried by inline actions. The tag is the only channel-independent
// correlation mechanism between a staff reply and the ticket it concerns,
// so both directions validate strictly and decoding failures are an
// expected outcome, not an error to surface.
package tag

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/quailyquaily/relaydesk/internal/address"
)

const (
	prefix = "#T"

	// Separator joins callback token fields. No field may contain it.
	Separator = "---"

	// EndRelay is a reserved callback literal that ends a private relay.
	// It is not a callback payload and must be checked before DecodeCallback.
	EndRelay = "R"

	// maxCallbackBytes is the Telegram callback_data size cap. A token
	// over the cap makes the platform reject the whole message, so the
	// encoder never produces one.
	maxCallbackBytes = 64
)

// Encode renders the canonical visible tag for a ticket id.
func Encode(ticketID int64) string {
	return fmt.Sprintf("%s%06d", prefix, ticketID)
}

// Decode scans text for the last "#T<digits>" occurrence whose digit run
// is terminated by delim (the language pack's "from" word), a newline, or
// the end of the text. ok=false means "not a reply to a ticket".
func Decode(text, delim string) (int64, bool) {
	rest := text
	for {
		idx := strings.LastIndex(rest, prefix)
		if idx < 0 {
			return 0, false
		}
		if id, ok := decodeAt(text, idx); ok && terminated(text, idx, delim) {
			return id, true
		}
		rest = text[:idx]
	}
}

func decodeAt(text string, idx int) (int64, bool) {
	digits := digitRun(text[idx+len(prefix):])
	if digits == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func terminated(text string, idx int, delim string) bool {
	after := text[idx+len(prefix):]
	after = after[len(digitRun(after)):]
	if after == "" || strings.HasPrefix(after, "\n") {
		return true
	}
	after = strings.TrimLeft(after, " ")
	if after == "" || strings.HasPrefix(after, "\n") {
		return true
	}
	return delim != "" && strings.HasPrefix(after, delim)
}

func digitRun(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// Callback is the decoded form of an inline-action token. It carries
// enough identity to start a private relay without a second ticket-store
// round trip.
type Callback struct {
	Address  address.Address
	Name     string
	Category string
	TicketID int64
}

// EncodeCallback joins the four identity fields into an opaque token.
// Fields containing the separator are rejected rather than escaped; the
// token must split unambiguously on the other end. The name field is
// display-only and is truncated (rune-safe) to keep the token within
// the platform's callback-data cap; the identity fields are never cut,
// so an address or category that cannot fit is an error.
func EncodeCallback(addr address.Address, name, category string, ticketID int64) (string, error) {
	if ticketID <= 0 {
		return "", fmt.Errorf("ticket id is required")
	}
	fields := []string{addr.String(), name, category}
	for _, f := range fields {
		if strings.Contains(f, Separator) {
			return "", fmt.Errorf("callback field %q contains reserved separator", f)
		}
	}
	id := strconv.FormatInt(ticketID, 10)
	budget := maxCallbackBytes - len(addr.String()) - len(category) - len(id) - 3*len(Separator)
	if budget < 0 {
		return "", fmt.Errorf("callback token cannot fit in %d bytes", maxCallbackBytes)
	}
	return strings.Join([]string{addr.String(), truncateBytes(name, budget), category, id}, Separator), nil
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// DecodeCallback splits a token produced by EncodeCallback. Callers must
// check for the EndRelay literal first.
func DecodeCallback(token string) (Callback, error) {
	if token == EndRelay {
		return Callback{}, fmt.Errorf("token is the end-relay sentinel, not a callback payload")
	}
	parts := strings.SplitN(token, Separator, 4)
	if len(parts) != 4 {
		return Callback{}, fmt.Errorf("callback token is malformed")
	}
	addr, err := address.Parse(parts[0])
	if err != nil {
		return Callback{}, fmt.Errorf("callback address: %w", err)
	}
	ticketID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || ticketID <= 0 {
		return Callback{}, fmt.Errorf("callback ticket id is invalid")
	}
	return Callback{
		Address:  addr,
		Name:     parts[1],
		Category: parts[2],
		TicketID: ticketID,
	}, nil
}

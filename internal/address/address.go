// Package address defines the canonical address space shared by every
// transport. A canonical address is a channel tag plus the transport's
// native identifier, e.g. "tg:-1001234" or "web:4f6b...". Replies are
// routed back to their origin by canonical address alone, so every
// inbound event is normalized into this space before any other
// processing.
package address

import (
	"fmt"
	"strings"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelWeb      Channel = "web"
)

// Address names one user or chat across all supported transports.
type Address struct {
	Channel Channel
	ID      string
}

func New(channel Channel, id string) (Address, error) {
	if !isValidChannel(channel) {
		return Address{}, fmt.Errorf("channel is invalid")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Address{}, fmt.Errorf("native id is required")
	}
	if strings.Contains(id, " ") {
		return Address{}, fmt.Errorf("native id must not contain spaces")
	}
	return Address{Channel: channel, ID: id}, nil
}

func NewTelegram(id string) (Address, error) {
	return New(ChannelTelegram, id)
}

func NewWeb(id string) (Address, error) {
	return New(ChannelWeb, id)
}

// String renders the canonical form "<prefix>:<id>".
func (a Address) String() string {
	return channelPrefix(a.Channel) + ":" + a.ID
}

func (a Address) IsZero() bool {
	return a.Channel == "" && a.ID == ""
}

// Parse is the inverse of String. It rejects unknown channel prefixes
// and empty native ids.
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	prefix, id, ok := strings.Cut(s, ":")
	if !ok {
		return Address{}, fmt.Errorf("address %q is not canonical", s)
	}
	channel, ok := channelFromPrefix(prefix)
	if !ok {
		return Address{}, fmt.Errorf("address %q has unknown channel prefix", s)
	}
	return New(channel, id)
}

func isValidChannel(channel Channel) bool {
	switch channel {
	case ChannelTelegram, ChannelWeb:
		return true
	default:
		return false
	}
}

func channelPrefix(channel Channel) string {
	switch channel {
	case ChannelTelegram:
		return "tg"
	case ChannelWeb:
		return "web"
	default:
		return ""
	}
}

func channelFromPrefix(prefix string) (Channel, bool) {
	switch strings.TrimSpace(prefix) {
	case "tg":
		return ChannelTelegram, true
	case "web":
		return ChannelWeb, true
	default:
		return "", false
	}
}

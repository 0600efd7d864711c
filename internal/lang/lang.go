// Package lang holds the language pack: every user-visible string the
// relay produces. Deployments override individual strings via a yaml
// file; anything absent falls back to the English default. The From word
// doubles as the tag delimiter, so changing it invalidates tag parsing
// for messages already sitting in the staff chat.
package lang

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Pack struct {
	From              string `yaml:"from"`
	Confirmation      string `yaml:"confirmation"`
	Blocked           string `yaml:"blocked"`
	TicketClosed      string `yaml:"ticket_closed"`
	Sent              string `yaml:"sent"`
	DeliveryFailed    string `yaml:"delivery_failed"`
	GenericError      string `yaml:"generic_error"`
	Back              string `yaml:"back"`
	ChooseCategory    string `yaml:"choose_category"`
	ChooseSubcategory string `yaml:"choose_subcategory"`
	PrivateReply      string `yaml:"private_reply"`
	RelayStarted      string `yaml:"relay_started"`
	RelayEnded        string `yaml:"relay_ended"`
	EndRelay          string `yaml:"end_relay"`
	OpenTickets       string `yaml:"open_tickets"`
	NoOpenTickets     string `yaml:"no_open_tickets"`
	Closed            string `yaml:"closed"`
	Reopened          string `yaml:"reopened"`
	Banned            string `yaml:"banned"`
	Unbanned          string `yaml:"unbanned"`
	Anonymous         string `yaml:"anonymous"`
}

// Default is the built-in English pack.
func Default() *Pack {
	return &Pack{
		From:              "from",
		Confirmation:      "Thank you for contacting us. We will reply as soon as possible.",
		Blocked:           "You are sending too many messages. Please wait a few minutes and try again.",
		TicketClosed:      "This ticket is already closed.",
		Sent:              "Message sent.",
		DeliveryFailed:    "Your message could not be delivered. Please try again.",
		GenericError:      "Something went wrong. Please try again.",
		Back:              "Back",
		ChooseCategory:    "Please choose a category:",
		ChooseSubcategory: "Please choose a topic:",
		PrivateReply:      "Reply privately",
		RelayStarted:      "Private relay started with %s. Send R to end it.",
		RelayEnded:        "Private relay ended.",
		EndRelay:          "End relay",
		OpenTickets:       "Open tickets:",
		NoOpenTickets:     "No open tickets.",
		Closed:            "Ticket closed.",
		Reopened:          "Ticket reopened.",
		Banned:            "User banned.",
		Unbanned:          "User unbanned.",
		Anonymous:         "anonymous",
	}
}

// Load reads a yaml pack and overlays it on the defaults. An empty path
// yields the defaults unchanged.
func Load(path string) (*Pack, error) {
	pack := Default()
	if path == "" {
		return pack, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read language pack %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, pack); err != nil {
		return nil, fmt.Errorf("parse language pack %s: %w", path, err)
	}
	if pack.From == "" {
		pack.From = Default().From
	}
	return pack, nil
}

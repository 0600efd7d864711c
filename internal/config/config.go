// Package config maps viper keys onto the typed runtime configuration.
// All keys can come from the config file, environment (RELAYDESK_*), or
// flags; this package only reads the merged result.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/quailyquaily/relaydesk/internal/address"
)

type Spam struct {
	Limit  int
	Window time.Duration
}

type Store struct {
	Driver string
	DSN    string
}

type Telegram struct {
	Token          string
	BaseURL        string
	PollTimeout    time.Duration
	MaxConcurrency int
}

type Web struct {
	Enabled bool
	Listen  string
}

type Janitor struct {
	Schedule       string
	TicketMaxIdle  time.Duration
	SessionMaxIdle time.Duration
}

type Config struct {
	// StaffChat is the catch-all staff destination; category routing may
	// direct tickets to other groups on top of it.
	StaffChat address.Address
	Anonymize bool
	AutoClose bool

	CategoriesFile string
	LanguageFile   string

	Spam     Spam
	Store    Store
	Telegram Telegram
	Web      Web
	Janitor  Janitor
}

// FromViper assembles and validates the runtime configuration.
func FromViper() (*Config, error) {
	cfg := &Config{
		Anonymize:      viper.GetBool("anonymize"),
		AutoClose:      viper.GetBool("autoclose"),
		CategoriesFile: viper.GetString("categories_file"),
		LanguageFile:   viper.GetString("language_file"),
		Spam: Spam{
			Limit:  viper.GetInt("spam.limit"),
			Window: viper.GetDuration("spam.window"),
		},
		Store: Store{
			Driver: viper.GetString("store.driver"),
			DSN:    viper.GetString("store.dsn"),
		},
		Telegram: Telegram{
			Token:          viper.GetString("telegram.token"),
			BaseURL:        viper.GetString("telegram.base_url"),
			PollTimeout:    viper.GetDuration("telegram.poll_timeout"),
			MaxConcurrency: viper.GetInt("telegram.max_concurrency"),
		},
		Web: Web{
			Enabled: viper.GetBool("web.enabled"),
			Listen:  viper.GetString("web.listen"),
		},
		Janitor: Janitor{
			Schedule:       viper.GetString("janitor.schedule"),
			TicketMaxIdle:  viper.GetDuration("janitor.ticket_max_idle"),
			SessionMaxIdle: viper.GetDuration("janitor.session_max_idle"),
		},
	}

	staffChat := viper.GetString("staff_chat")
	if staffChat == "" {
		return nil, fmt.Errorf("staff_chat is required")
	}
	addr, err := address.NewTelegram(staffChat)
	if err != nil {
		return nil, fmt.Errorf("staff_chat: %w", err)
	}
	cfg.StaffChat = addr

	if cfg.Telegram.Token == "" {
		return nil, fmt.Errorf("telegram.token is required")
	}
	if cfg.Web.Enabled && cfg.Web.Listen == "" {
		return nil, fmt.Errorf("web.listen is required when the web widget is enabled")
	}
	switch cfg.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return nil, fmt.Errorf("store.driver must be sqlite or postgres, got %q", cfg.Store.Driver)
	}
	return cfg, nil
}

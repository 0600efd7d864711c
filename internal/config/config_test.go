package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
)

func setBase(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("staff_chat", "-1001234")
	viper.Set("telegram.token", "123:abc")
}

func TestFromViper(t *testing.T) {
	setBase(t)
	viper.Set("anonymize", true)
	viper.Set("spam.limit", 3)
	viper.Set("spam.window", "2m")
	viper.Set("store.driver", "sqlite")
	viper.Set("web.enabled", true)
	viper.Set("web.listen", ":8080")

	cfg, err := FromViper()
	if err != nil {
		t.Fatalf("FromViper() error = %v", err)
	}
	if cfg.StaffChat.String() != "tg:-1001234" {
		t.Fatalf("staff chat = %s", cfg.StaffChat)
	}
	if !cfg.Anonymize || cfg.Spam.Limit != 3 || cfg.Spam.Window != 2*time.Minute {
		t.Fatalf("config mismatch: %+v", cfg)
	}
}

func TestFromViperRequiresStaffChat(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("telegram.token", "123:abc")
	if _, err := FromViper(); err == nil {
		t.Fatalf("FromViper() expected error without staff_chat")
	}
}

func TestFromViperRequiresToken(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("staff_chat", "-1001234")
	if _, err := FromViper(); err == nil {
		t.Fatalf("FromViper() expected error without telegram token")
	}
}

func TestFromViperRejectsUnknownDriver(t *testing.T) {
	setBase(t)
	viper.Set("store.driver", "oracle")
	if _, err := FromViper(); err == nil {
		t.Fatalf("FromViper() expected error for unknown driver")
	}
}

func TestFromViperRequiresListenWhenWebEnabled(t *testing.T) {
	setBase(t)
	viper.Set("web.enabled", true)
	if _, err := FromViper(); err == nil {
		t.Fatalf("FromViper() expected error for enabled web without listen")
	}
}

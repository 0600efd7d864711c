package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	viper.SetDefault("anonymize", false)
	viper.SetDefault("autoclose", false)

	viper.SetDefault("spam.limit", 5)
	viper.SetDefault("spam.window", 5*time.Minute)

	viper.SetDefault("store.driver", "sqlite")
	viper.SetDefault("store.dsn", "relaydesk.db")

	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.max_concurrency", 3)

	viper.SetDefault("web.enabled", false)
	viper.SetDefault("web.listen", "127.0.0.1:8070")

	viper.SetDefault("janitor.schedule", "@every 10m")
	viper.SetDefault("janitor.ticket_max_idle", 72*time.Hour)
	viper.SetDefault("janitor.session_max_idle", 24*time.Hour)
}

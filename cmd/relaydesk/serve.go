package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/relaydesk/internal/category"
	"github.com/quailyquaily/relaydesk/internal/config"
	"github.com/quailyquaily/relaydesk/internal/janitor"
	"github.com/quailyquaily/relaydesk/internal/lang"
	"github.com/quailyquaily/relaydesk/internal/logutil"
	"github.com/quailyquaily/relaydesk/internal/relay"
	"github.com/quailyquaily/relaydesk/internal/session"
	"github.com/quailyquaily/relaydesk/internal/spam"
	"github.com/quailyquaily/relaydesk/internal/ticket"
	"github.com/quailyquaily/relaydesk/internal/transport"
	"github.com/quailyquaily/relaydesk/internal/transport/telegram"
	"github.com/quailyquaily/relaydesk/internal/transport/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay against all configured transports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	cmd.Flags().String("staff-chat", "", "Telegram chat id of the staff chat (required).")
	cmd.Flags().String("telegram-token", "", "Telegram bot token (required).")
	cmd.Flags().String("store-driver", "", "Ticket store driver: sqlite|postgres.")
	cmd.Flags().String("store-dsn", "", "Ticket store DSN.")
	cmd.Flags().String("categories", "", "Category tree yaml file (optional).")
	cmd.Flags().String("language", "", "Language pack yaml file (optional).")
	cmd.Flags().Bool("anonymize", false, "Hide user names from staff copies.")
	cmd.Flags().Bool("autoclose", false, "Close a ticket after the first staff reply.")
	cmd.Flags().Bool("web", false, "Serve the web chat widget.")
	cmd.Flags().String("web-listen", "", "Listen address for the web widget.")

	_ = viper.BindPFlag("staff_chat", cmd.Flags().Lookup("staff-chat"))
	_ = viper.BindPFlag("telegram.token", cmd.Flags().Lookup("telegram-token"))
	_ = viper.BindPFlag("store.driver", cmd.Flags().Lookup("store-driver"))
	_ = viper.BindPFlag("store.dsn", cmd.Flags().Lookup("store-dsn"))
	_ = viper.BindPFlag("categories_file", cmd.Flags().Lookup("categories"))
	_ = viper.BindPFlag("language_file", cmd.Flags().Lookup("language"))
	_ = viper.BindPFlag("anonymize", cmd.Flags().Lookup("anonymize"))
	_ = viper.BindPFlag("autoclose", cmd.Flags().Lookup("autoclose"))
	_ = viper.BindPFlag("web.enabled", cmd.Flags().Lookup("web"))
	_ = viper.BindPFlag("web.listen", cmd.Flags().Lookup("web-listen"))

	return cmd
}

func runServe(parent context.Context) error {
	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := config.FromViper()
	if err != nil {
		return err
	}

	pack, err := lang.Load(cfg.LanguageFile)
	if err != nil {
		return err
	}

	var tree *category.Tree
	if cfg.CategoriesFile != "" {
		tree, err = category.Load(cfg.CategoriesFile)
		if err != nil {
			return err
		}
	}
	routes := category.NewRoutes(tree, pack.Back)

	db, err := ticket.Open(cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	store := ticket.NewGormStore(db)

	limiter := spam.NewLimiter(cfg.Spam.Limit, cfg.Spam.Window)
	sessions := session.NewManager()

	tg, err := telegram.New(telegram.Options{
		Token:          cfg.Telegram.Token,
		BaseURL:        cfg.Telegram.BaseURL,
		PollTimeout:    cfg.Telegram.PollTimeout,
		MaxConcurrency: cfg.Telegram.MaxConcurrency,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	transports := []transport.Transport{tg}

	if cfg.Web.Enabled {
		widget, err := web.New(web.Options{
			Listen: cfg.Web.Listen,
			Logger: logger,
		})
		if err != nil {
			return err
		}
		transports = append(transports, widget)
	}

	router, err := relay.NewRouter(relay.Options{
		Config: relay.Config{
			StaffChat: cfg.StaffChat,
			Anonymize: cfg.Anonymize,
			AutoClose: cfg.AutoClose,
		},
		Store:      store,
		Transports: transports,
		Routes:     routes,
		Limiter:    limiter,
		Sessions:   sessions,
		Pack:       pack,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	jan, err := janitor.New(janitor.Options{
		Schedule:       cfg.Janitor.Schedule,
		TicketMaxIdle:  cfg.Janitor.TicketMaxIdle,
		SessionMaxIdle: cfg.Janitor.SessionMaxIdle,
		Store:          store,
		Limiter:        limiter,
		Sessions:       sessions,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	jan.Start()
	defer jan.Stop()

	errCh := make(chan error, len(transports))
	for _, tr := range transports {
		go func(tr transport.Transport) {
			err := tr.Run(ctx, router.Handle)
			if err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s transport: %w", tr.Name(), err)
				return
			}
			errCh <- nil
		}(tr)
	}

	logger.Info("relay_started",
		"staff_chat", cfg.StaffChat.String(),
		"transports", len(transports),
		"categories", !routes.Empty(),
	)

	for range transports {
		select {
		case <-ctx.Done():
			logger.Info("relay_stopping")
			return nil
		case err := <-errCh:
			if err != nil {
				return err
			}
		}
	}
	return nil
}

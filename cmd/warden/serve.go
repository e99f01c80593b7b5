package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pario-ai/warden/pkg/ban"
	"github.com/pario-ai/warden/pkg/config"
	"github.com/pario-ai/warden/pkg/conversation"
	"github.com/pario-ai/warden/pkg/logwriter"
	"github.com/pario-ai/warden/pkg/moderation"
	"github.com/pario-ai/warden/pkg/notify"
	"github.com/pario-ai/warden/pkg/proxy"
	"github.com/pario-ai/warden/pkg/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the governance gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Provider.URL == "" {
				return fmt.Errorf("provider.url is required")
			}
			if cfg.Classifier.URL == "" {
				return fmt.Errorf("classifier.url is required")
			}

			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			classifier := moderation.NewHTTPClassifier(cfg.Classifier.URL, cfg.Classifier.Token, cfg.Classifier.Timeout)
			gate := moderation.New(classifier, st, moderation.Config{
				CacheSize:     cfg.Moderation.CacheSize,
				CacheTTL:      cfg.Moderation.CacheTTL,
				MaxContentLen: cfg.Moderation.MaxContentLen,
			})
			defer gate.Destroy()

			writer := logwriter.New(st, logwriter.Config{
				FlushInterval: cfg.LogWriter.FlushInterval,
				MaxBatchSize:  cfg.LogWriter.MaxBatchSize,
			})

			senders := make([]notify.Sender, 0, len(cfg.Notify.Webhooks))
			for _, url := range cfg.Notify.Webhooks {
				senders = append(senders, notify.NewWebhookSender(url, cfg.Notify.Timeout))
			}

			srv := proxy.New(cfg,
				gate,
				ban.New(st, cfg),
				conversation.New(st, cfg.Session.Timeout),
				writer,
				notify.New(senders...),
			)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Printf("starting warden gateway with config: %s", configPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "warden.yaml", "path to config file")
	return cmd
}

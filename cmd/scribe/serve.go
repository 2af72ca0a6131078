package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/MikeSquared-Agency/scribe/internal/anthropic"
	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/continuity"
	"github.com/MikeSquared-Agency/scribe/internal/copilot"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/retrieval"
	"github.com/MikeSquared-Agency/scribe/internal/session"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
)

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and event consumers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg config.Config) error {
	slog.Info("scribe starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := newPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer p.Close()

	domains := copilot.DefaultDomains
	if cfg.DomainsFile != "" {
		domains, err = config.LoadDomains(cfg.DomainsFile)
		if err != nil {
			return err
		}
		slog.Info("writing domains loaded", "file", cfg.DomainsFile, "count", len(domains))
	}

	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.GenerationTimeout)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// NATS/Hermes (optional)
	var (
		hermesClient *hermes.Client
		publisher    processor.Publisher
		svcPublisher copilot.Publisher
	)
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			return err
		}
		defer hermesClient.Close()
		publisher, svcPublisher = hermesClient, hermesClient
		slog.Info("NATS connected", "url", cfg.NatsURL)
	} else {
		slog.Warn("NATS not configured, running without events")
	}

	// Slack poster (optional)
	var alerter copilot.Alerter
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		alerter = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		slog.Warn("slack not configured, continuity alerts disabled")
	}

	proc := p.processor(cfg, publisher)
	if hermesClient != nil {
		if err := hermesClient.Subscribe(processor.SubjectDocumentChanged, proc.HandleDocumentChanged); err != nil {
			return err
		}
	}

	sessions := session.NewMemory(cfg.SessionTTL)
	go sessions.Run(ctx, time.Minute)

	svc := copilot.New(copilot.Deps{
		Users:      p.db,
		Documents:  p.db,
		Ingester:   proc,
		Context:    retrieval.New(p.embedder, p.vectors, slog.Default()),
		Sessions:   sessions,
		LLM:        llm,
		Continuity: continuity.New(llm, p.db, cfg.GenerationTimeout, slog.Default()),
		Publisher:  svcPublisher,
		Alerter:    alerter,
	}, domains, cfg.GenerationTimeout, slog.Default())

	srv := api.NewServer(cfg.Port, cfg.APIToken, svc, p.db, slog.Default())
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"backend":   cfg.VectorBackend,
		}); err != nil {
			slog.Warn("failed to publish registration", "error", err)
		}
	}

	slog.Info("scribe ready", "port", cfg.Port, "vector_backend", cfg.VectorBackend)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	slog.Info("scribe stopped")
	return nil
}

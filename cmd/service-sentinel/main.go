package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/nholik/service-sentinel/internal/config"
	"github.com/nholik/service-sentinel/internal/healthcheck"
	"github.com/nholik/service-sentinel/internal/logging"
	"github.com/nholik/service-sentinel/internal/notify"
	"github.com/nholik/service-sentinel/internal/registry"
	"github.com/nholik/service-sentinel/internal/server"
	"github.com/nholik/service-sentinel/internal/service"
	"github.com/nholik/service-sentinel/internal/supervisor"
	"github.com/nholik/service-sentinel/internal/telemetry"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New()
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger := logging.NewWithLevel(cfg.LogLevel)
	logger.Info().Msg("service-sentinel starting")

	manifest, err := config.LoadManifest(cfg.ManifestPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load manifest")
	}

	reg := registry.New()
	if err := registerProbes(reg, cfg, manifest); err != nil {
		logger.Fatal().Err(err).Msg("failed to register probe services")
	}
	if reg.Len() == 0 {
		logger.Fatal().Msg("no services to supervise; declare probes in the manifest")
	}

	notifier := buildNotifier(logger, cfg)
	telem := telemetry.New()
	tracker := healthcheck.NewTracker()

	sup := supervisor.New(logger, cfg, reg, notifier, telem, tracker)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server.Start(ctx, logger, sup, tracker, telem, cfg.PollInterval, cfg.HTTPPort, cfg.MetricsPort)

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("supervisor exited with error")
		os.Exit(1)
	}
}

func registerProbes(reg *registry.Registry, cfg config.Config, manifest config.Manifest) error {
	overrides := make(map[string]config.ServiceOverride, len(manifest.Services))
	for _, override := range manifest.Services {
		overrides[override.Name] = override
	}

	for _, probe := range manifest.Probes {
		desc := service.Descriptor{
			Name:        probe.Name,
			DependsOn:   probe.DependsOn,
			Criticality: service.Criticality(probe.Criticality),
		}
		if override, ok := overrides[probe.Name]; ok {
			if override.Disabled {
				continue
			}
			if override.Criticality != "" {
				desc.Criticality = service.Criticality(override.Criticality)
			}
			if override.DependsOn != nil {
				desc.DependsOn = override.DependsOn
			}
		}
		if desc.Criticality == "" {
			desc.Criticality = service.Optional
		}

		svc, err := service.NewHTTPProbe(probe.Name, probe.URL, cfg.HealthCheckTimeout)
		if err != nil {
			return err
		}
		if err := reg.Register(desc, svc); err != nil {
			return err
		}
	}
	return nil
}

func buildNotifier(logger zerolog.Logger, cfg config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	notifiers = append(notifiers, notify.NewSlackNotifier(logger, cfg.SlackWebhookURL))
	if webhook := notify.NewWebhookNotifier(logger, cfg.WebhookURL); webhook != nil {
		notifiers = append(notifiers, webhook)
	}

	var notifier notify.Notifier = notify.NewMultiNotifier(notifiers...)
	if cfg.DryRun {
		notifier = notify.NewDryRunNotifier(logger, notifier)
	}
	return notifier
}

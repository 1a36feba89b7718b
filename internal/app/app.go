// Package app wires configuration into providers, storage and the sync service.
package app

import (
	"fmt"

	"github.com/bcnelson/ipsync/internal/config"
	"github.com/bcnelson/ipsync/internal/converge"
	"github.com/bcnelson/ipsync/internal/metrics"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/provider/cloudflare"
	"github.com/bcnelson/ipsync/internal/provider/file"
	"github.com/bcnelson/ipsync/internal/provider/insightcloudsec"
	"github.com/bcnelson/ipsync/internal/provider/insightvm"
	"github.com/bcnelson/ipsync/internal/provider/memory"
	"github.com/bcnelson/ipsync/internal/provider/shodan"
	"github.com/bcnelson/ipsync/internal/provider/sqlstore"
	"github.com/bcnelson/ipsync/internal/provider/tailscale"
	"github.com/bcnelson/ipsync/internal/ratelimit"
	"github.com/bcnelson/ipsync/internal/service"
	"github.com/bcnelson/ipsync/internal/storage"
	storagememory "github.com/bcnelson/ipsync/internal/storage/memory"
	"github.com/bcnelson/ipsync/internal/storage/sql"
	"github.com/rs/zerolog"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Metrics  *metrics.Metrics
	Registry *provider.Registry
	Storage  storage.Storage
	Sync     *service.SyncService
}

// New validates cfg and builds every component it references.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
	}

	if cfg.Database.Enabled() {
		store, err := sql.New(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("initializing storage: %w", err)
		}
		a.Storage = store
	} else {
		logger.Debug().Msg("No database configured; sqlstore address sets are kept in memory")
		a.Storage = storagememory.New()
	}

	pairings, registry, err := a.buildProviders()
	if err != nil {
		_ = a.Storage.Close()
		return nil, err
	}
	a.Registry = registry

	client := ratelimit.New(
		ratelimit.WithPolicy(ratelimit.Policy{
			Base:       cfg.Retry.Base,
			Cap:        cfg.Retry.Cap,
			MaxRetries: cfg.Retry.MaxRetries,
		}),
		ratelimit.WithLogger(logger),
		ratelimit.WithMetrics(a.Metrics),
	)

	a.Sync = service.NewSyncService(service.Options{
		Registry:           registry,
		Pairings:           pairings,
		Client:             client,
		Concurrency:        cfg.Sync.Concurrency,
		PairingConcurrency: cfg.Sync.PairingConcurrency,
		Debounce:           cfg.Sync.Debounce,
		DryRun:             cfg.Sync.DryRun,
		MaxAddresses:       cfg.Sync.MaxAddresses,
		Metrics:            a.Metrics,
		Logger:             logger,
	})

	return a, nil
}

// Close releases the storage connection.
func (a *App) Close() error {
	a.Sync.Stop()
	return a.Storage.Close()
}

// buildProviders registers one provider per kind in use and resolves the
// configured pairings against them. Inline addresses are seeded into the
// static provider under a collection named after the pairing and source index.
func (a *App) buildProviders() ([]service.Pairing, *provider.Registry, error) {
	cfg := a.Config
	registry := provider.NewRegistry()
	static := memory.New(config.KindStatic)

	pairings := make([]service.Pairing, 0, len(cfg.Pairings))
	for _, p := range cfg.Pairings {
		mode, err := converge.ParseMode(p.Mode)
		if err != nil {
			return nil, nil, fmt.Errorf("pairing %s: %w", p.Name, err)
		}
		resolved := service.Pairing{
			Name:   p.Name,
			Target: service.Endpoint{Provider: p.Target.Provider, Collection: p.Target.Collection},
			Mode:   mode,
		}

		for i, src := range p.Sources {
			ep := service.Endpoint{Provider: src.Provider, Collection: src.Collection}
			if src.Provider == config.KindStatic {
				ep.Collection = fmt.Sprintf("%s/%d", p.Name, i)
				static.Seed(ep.Collection, src.Addresses...)
			}
			resolved.Sources = append(resolved.Sources, ep)
			if err := a.register(registry, src.Provider, static); err != nil {
				return nil, nil, err
			}
		}
		if err := a.register(registry, p.Target.Provider, static); err != nil {
			return nil, nil, err
		}
		pairings = append(pairings, resolved)
	}
	return pairings, registry, nil
}

func (a *App) register(registry *provider.Registry, kind string, static *memory.Provider) error {
	if _, err := registry.Get(kind); err == nil {
		return nil
	}

	cfg := a.Config
	var p provider.Lister
	switch kind {
	case config.KindInsightVM:
		p = insightvm.New(kind, insightvm.Config{
			BaseURL:  cfg.InsightVM.BaseURL,
			Username: cfg.InsightVM.Username,
			Password: cfg.InsightVM.Password,
			Insecure: cfg.InsightVM.Insecure,
		})
	case config.KindInsightCloudSec:
		p = insightcloudsec.New(kind, insightcloudsec.Config{
			BaseURL: cfg.InsightCloudSec.BaseURL,
			APIKey:  cfg.InsightCloudSec.APIKey,
		})
	case config.KindCloudflare:
		p = cloudflare.New(kind, cloudflare.Config{
			BaseURL:  cfg.Cloudflare.BaseURL,
			APIToken: cfg.Cloudflare.APIKey,
		})
	case config.KindShodan:
		p = shodan.New(kind, shodan.Config{
			BaseURL: cfg.Shodan.BaseURL,
			APIKey:  cfg.Shodan.APIKey,
		})
	case config.KindTailscale:
		ts, err := tailscale.New(kind, tailscale.Config{
			Tailnet:           cfg.Tailscale.Tailnet,
			APIKey:            cfg.Tailscale.APIKey,
			OAuthClientID:     cfg.Tailscale.OAuthClientID,
			OAuthClientSecret: cfg.Tailscale.OAuthClientSecret,
		})
		if err != nil {
			return fmt.Errorf("initializing tailscale provider: %w", err)
		}
		p = ts
	case config.KindSQLStore:
		p = sqlstore.New(kind, a.Storage, sqlstore.DefaultPageSize)
	case config.KindFile:
		p = file.New(kind, cfg.Sync.FilePath, a.Logger)
	case config.KindStatic:
		p = static
	default:
		return fmt.Errorf("unknown provider %q", kind)
	}
	return registry.Register(p)
}

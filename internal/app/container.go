package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"go.uber.org/dig"
	"gorm.io/gorm"

	"notify-mail-relay-go/internal/config"
	"notify-mail-relay-go/internal/db"
	"notify-mail-relay-go/internal/events"
	"notify-mail-relay-go/internal/filter"
	"notify-mail-relay-go/internal/handler"
	"notify-mail-relay-go/internal/metrics"
	"notify-mail-relay-go/internal/repository"
	"notify-mail-relay-go/internal/router"
	"notify-mail-relay-go/internal/service"
	"notify-mail-relay-go/internal/service/supervisor"
	"notify-mail-relay-go/internal/store"
)

// BuildContainer registers every component of the relay. Each one is built
// at most once, on first use. Deliveries run on ctx.
func BuildContainer(ctx context.Context, cfg *config.Config) (*dig.Container, error) {
	container := dig.New()

	providers := []interface{}{
		func() *config.Config { return cfg },
		func() context.Context { return ctx },
		func(cfg *config.Config) (*gorm.DB, error) {
			return db.Init(cfg.Database)
		},
		repository.New,
		func(cfg *config.Config) store.Cipher {
			cipher, err := store.NewFileCipher(cfg.Storage.KeyFile)
			if err != nil {
				logrus.Warnf("At-rest encryption unavailable, storing email config in plain form: %v", err)
				return store.PlainCipher()
			}
			return cipher
		},
		func(repo *repository.Repository, cipher store.Cipher) (*store.ConfigStore, error) {
			return store.NewConfigStore(repo, cipher)
		},
		func(repo *repository.Repository, cfg *config.Config) (*store.HistoryStore, error) {
			return store.NewHistoryStore(repo, cfg.Storage.HistoryCapacity)
		},
		func() *prometheus.Registry {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			return reg
		},
		func(reg *prometheus.Registry) *metrics.Metrics {
			return metrics.NewMetrics(reg)
		},
		events.NewBus,
		func(cfg *config.Config) *filter.Filter {
			return filter.New(cfg.Filter.SelfIdentity, cfg.Filter.IgnoredSources, cfg.Filter.MinPriority)
		},
		func(cfg *config.Config) service.Transport {
			return service.NewSMTPTransport(cfg.Delivery.AttemptTimeout, cfg.Delivery.LocalName)
		},
		func(
			configs *store.ConfigStore,
			history *store.HistoryStore,
			transport service.Transport,
			bus events.Bus,
			m *metrics.Metrics,
			cfg *config.Config,
		) *service.Deliverer {
			return service.NewDeliverer(configs, history, transport, bus, m, cfg.Delivery)
		},
		func(
			ctx context.Context,
			configs *store.ConfigStore,
			history *store.HistoryStore,
			f *filter.Filter,
			deliverer *service.Deliverer,
			bus events.Bus,
			m *metrics.Metrics,
		) *service.Pipeline {
			return service.NewPipeline(ctx, configs, history, f, deliverer, bus, m)
		},
		func(cfg *config.Config, p *service.Pipeline, configs *store.ConfigStore, m *metrics.Metrics) *supervisor.Supervisor {
			return supervisor.New(cfg.Supervisor, p, configs, m)
		},
		func(
			repo *repository.Repository,
			configs *store.ConfigStore,
			history *store.HistoryStore,
			p *service.Pipeline,
			sup *supervisor.Supervisor,
			bus events.Bus,
			reg *prometheus.Registry,
		) *handler.Handlers {
			return handler.NewHandlers(repo, configs, history, p, sup, bus, reg)
		},
		func(h *handler.Handlers) *gin.Engine {
			return router.SetupRouter(h)
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}
	return container, nil
}

package router

import (
	"context"

	accountapp "github.com/oksasatya/account-management/internal/application"
	"github.com/oksasatya/account-management/internal/container"
	repo "github.com/oksasatya/account-management/internal/domain/repository"
	"github.com/oksasatya/account-management/internal/infrastructure/cache"
	"github.com/oksasatya/account-management/internal/infrastructure/events"
	"github.com/oksasatya/account-management/internal/infrastructure/search"
	handlers "github.com/oksasatya/account-management/internal/interface/http"
	"github.com/oksasatya/account-management/internal/router/modules"
	"github.com/oksasatya/account-management/pkg/helpers"
)

type AccountModuleDeps struct {
	Repo    repo.AccountRepository
	Service *accountapp.Service
	Handler *handlers.AccountHandler
}

// BuildAccountService wires the account service from the container. Optional
// backends are attached only when they were configured.
func BuildAccountService() *accountapp.Service {
	var opts []accountapp.Option
	if rdb := container.GetRedis(); rdb != nil {
		opts = append(opts, accountapp.WithCache(cache.NewAccountCache(rdb, container.GetConfig().CacheTTL)))
	}
	if es := container.GetES(); es != nil {
		opts = append(opts, accountapp.WithIndex(search.NewAccountIndex(es, container.GetConfig().ESAccountsIndex)))
	}
	if pub := container.GetRabbitPub(); pub != nil {
		opts = append(opts, accountapp.WithEvents(events.NewPublisher(pub)))
	}
	return accountapp.NewService(container.GetAccountRepo(), container.GetLogger(), opts...)
}

func buildAccountDeps() AccountModuleDeps {
	service := BuildAccountService()
	return AccountModuleDeps{
		Repo:    service.Repo,
		Service: service,
		Handler: handlers.NewAccountHandler(service, container.GetLogger()),
	}
}

func healthChecks() map[string]modules.Pinger {
	checks := map[string]modules.Pinger{}
	if pool := container.GetPGPool(); pool != nil {
		checks["postgres"] = pool.Ping
	}
	if rdb := container.GetRedis(); rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	if es := container.GetES(); es != nil {
		checks["elasticsearch"] = func(ctx context.Context) error { return helpers.PingES(ctx, es) }
	}
	return checks
}

// InitModules adds the health, account and (optionally) debug modules. Call it
// once, after the container is populated.
func InitModules(r *Registry) {
	accountDeps := buildAccountDeps()
	r.Add(modules.NewHealthModule(healthChecks()))
	r.Add(modules.NewAccountModule(accountDeps.Handler))
	if cfg := container.GetConfig(); cfg != nil && cfg.DebugMetricsEnabled {
		r.Add(modules.NewDebugModule())
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-management/config"
	accountapp "github.com/oksasatya/account-management/internal/application"
	"github.com/oksasatya/account-management/internal/domain/entity"
	pginfra "github.com/oksasatya/account-management/internal/infrastructure/postgres"
	"github.com/oksasatya/account-management/internal/infrastructure/search"
	"github.com/oksasatya/account-management/pkg/helpers"
)

var demoAccounts = []entity.Account{
	{Username: "demoUser", Password: "password123", Email: "demo@example.com"},
	{Username: "JohnSmith", Password: "pw123", Email: "john@example.com"},
	{Username: "JaneDoe", Password: "pw456", Email: "jane@example.com"},
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-seed", cfg.Env)
	ctx := context.Background()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{MaxConns: 2, MinConns: 1, MaxConnLife: cfg.DBMaxConnLife})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to postgres")
	}
	defer pool.Close()
	if err := pginfra.RunMigrations(cfg.PostgresDSN(), cfg.MigrationsDir, logger); err != nil {
		logger.WithError(err).Fatal("migration failed")
	}

	var opts []accountapp.Option
	if addrs := cfg.ESAddrs(); len(addrs) > 0 {
		es, err := helpers.NewESClient(helpers.ESOptions{Addrs: addrs, Username: cfg.ElasticsearchUser, Password: cfg.ElasticsearchPass})
		if err != nil {
			logger.WithError(err).Warn("elasticsearch unavailable; seeded accounts will not be searchable")
		} else {
			opts = append(opts, accountapp.WithIndex(search.NewAccountIndex(es, cfg.ESAccountsIndex)))
		}
	}
	svc := accountapp.NewService(pginfra.NewAccountRepository(pool), logger, opts...)

	created, skipped, err := seed(ctx, svc, demoAccounts, logger)
	if err != nil {
		logger.WithError(err).Error("seeding failed")
		os.Exit(1)
	}
	fmt.Printf("seeded accounts: created=%d skipped=%d\n", created, skipped)
}

// seed registers each account through the service so the uniqueness rules
// apply. Accounts that collide with existing ones are skipped.
func seed(ctx context.Context, svc *accountapp.Service, accounts []entity.Account, logger *logrus.Logger) (created, skipped int, err error) {
	for _, a := range accounts {
		stored, err := svc.Register(ctx, a)
		switch {
		case errors.Is(err, accountapp.ErrAlreadyExists):
			skipped++
			logger.WithField("username", a.Username).Info("account exists, skipping")
		case err != nil:
			return created, skipped, fmt.Errorf("seed %s: %w", a.Username, err)
		default:
			created++
			logger.WithFields(logrus.Fields{"id": stored.ID, "username": stored.Username}).Info("account seeded")
		}
	}
	return created, skipped, nil
}

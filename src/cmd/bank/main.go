package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/api-sage/bank-ledger/src/internal/adapter/cli"
	"github.com/api-sage/bank-ledger/src/internal/adapter/events/kafka"
	"github.com/api-sage/bank-ledger/src/internal/adapter/repository/postgres"
	"github.com/api-sage/bank-ledger/src/internal/config"
	"github.com/api-sage/bank-ledger/src/internal/domain"
	"github.com/api-sage/bank-ledger/src/internal/logger"
	"github.com/api-sage/bank-ledger/src/internal/usecase/services"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("load config: %v", err)
		return 1
	}

	if err := logger.Init(cfg.Environment, cfg.LogLevel); err != nil {
		log.Printf("init logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseDSN, postgres.PoolSettings{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.Error("open database failed", err, nil)
		return 1
	}
	defer db.Close()

	var publisher domain.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := kafka.NewPublisher(cfg.KafkaBrokers)
		defer func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Error("close event publisher failed", err, nil)
			}
		}()
		publisher = kafkaPublisher
	}

	app := newApp(db, cfg, publisher)
	return app.Run(ctx, os.Args[1:])
}

func newApp(db *sql.DB, cfg config.Config, publisher domain.EventPublisher) *cli.App {
	transactionRepo := postgres.NewTransactionRepository(db)
	accountRepo := postgres.NewAccountRepository(db, transactionRepo)
	ownerRepo := postgres.NewOwnerRepository(db)

	ownerService := services.NewOwnerService(ownerRepo)
	ledgerService := services.NewLedgerService(
		accountRepo,
		transactionRepo,
		ownerService,
		services.NewAccountNumberGenerator(accountRepo),
		publisher,
		cfg.EventsTopic,
		cfg.DefaultAccountType,
	)

	migrate := func(ctx context.Context) error {
		return postgres.RunMigrations(ctx, db, cfg.MigrationsDir)
	}

	return cli.NewApp(ledgerService, ownerService, migrate, os.Stdout)
}

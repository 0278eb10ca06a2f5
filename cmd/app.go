package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/config"
	"recurring-donations/internal/observability/logging"
	pledges "recurring-donations/internal/pledges/domain"
	pledgememory "recurring-donations/internal/pledges/infrastructure/memory"
	pledgepostgres "recurring-donations/internal/pledges/infrastructure/postgres"
	receipts "recurring-donations/internal/receipts/domain"
	receiptmemory "recurring-donations/internal/receipts/infrastructure/memory"
	receiptpostgres "recurring-donations/internal/receipts/infrastructure/postgres"
)

// app holds the storage and ambient dependencies shared by commands.
type app struct {
	cfg       config.Config
	logger    *logrus.Logger
	db        *sql.DB
	pledges   pledges.Repository
	donations receipts.Repository
	audit     audit.Store
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Log.Level, cfg.Environment, os.Stdout)
	a := &app{cfg: cfg, logger: logger}

	if cfg.Database.Storage == config.StorageMemory {
		logger.Warn("using in-memory storage; data is lost on exit")
		a.pledges = pledgememory.NewPledgeRepository()
		a.donations = receiptmemory.NewDonationRepository()
		a.audit = audit.NewMemoryStore()
		return a, nil
	}

	db, err := openDB(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.pledges = pledgepostgres.NewPledgeRepository(db)
	a.donations = receiptpostgres.NewDonationRepository(db)
	a.audit = audit.NewRepository(db)
	return a, nil
}

func openDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

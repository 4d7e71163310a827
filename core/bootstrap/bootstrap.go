package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/qnabot/core/config"
	coredatabase "github.com/m3rciful/qnabot/core/database"
	"github.com/m3rciful/qnabot/core/logger"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config
	Seeders  []Seeder
	// NoDatabase stops the pipeline after the logger, for bots that keep
	// their data elsewhere.
	NoDatabase bool

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, applies migrations, connects to the database
// and runs the seeders in order.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}
	if opts.NoDatabase {
		return &Result{}, nil
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, opts.Database); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	for _, s := range opts.Seeders {
		start := time.Now()
		err := s.Seed(ctx, db)
		logger.SEED.Info("seed finished",
			slog.String("event", "db.seed"),
			slog.String("status", logger.Status(err)),
			slog.String("seeder", s.Name()),
			slog.Duration("duration", logger.Took(start)),
		)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("bootstrap: seeder %s failed: %w", s.Name(), err)
		}
	}

	return &Result{DB: db}, nil
}

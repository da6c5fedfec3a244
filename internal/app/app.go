package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avstrong/roomshare/internal/config"
	"github.com/avstrong/roomshare/internal/idgen/simple"
	"github.com/avstrong/roomshare/internal/logger"
	"github.com/avstrong/roomshare/internal/migration"
	"github.com/avstrong/roomshare/internal/roomshare"
	"github.com/avstrong/roomshare/internal/storage/cache"
	"github.com/avstrong/roomshare/internal/storage/journal"
	"github.com/avstrong/roomshare/internal/storage/memory"
	"github.com/avstrong/roomshare/internal/telemetry"
	"github.com/avstrong/roomshare/internal/transport/web"
)

//nolint:funlen,cyclop // startup wiring
func Run(l *logger.Logger, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)
	defer cancel()

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}

	//nolint:contextcheck
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := shutdownTelemetry(ctx); err != nil {
			l.LogErrorf("Failed to flush telemetry: %v", err.Error())
		}
	}()

	storage := memory.New(memory.Config{L: l})

	accounts := make([]migration.Account, 0, len(cfg.Accounts))
	for _, acc := range cfg.Accounts {
		accounts = append(accounts, migration.Account{Identity: roomshare.Identity(acc.Identity), Balance: acc.Balance})
	}

	if err := migration.Up(ctx, l, storage, accounts); err != nil {
		return fmt.Errorf("seed accounts: %w", err)
	}

	l.LogInfo("Account balances have been seeded")

	engineConf := roomshare.Config{
		HorizonDays:  cfg.Engine.HorizonDays,
		RefundExcess: cfg.RefundExcess(),
		RoomIDs:      simple.New(),
		BookingIDs:   simple.New(),
		Accounts:     storage,
		Idempotency:  cache.NewIdempotency(cfg.Engine.IdempotencyTTL),
	}

	var opLog *journal.Store

	if cfg.Journal.Enabled {
		db, err := journal.Open(journal.Config{
			Driver:                 cfg.Journal.Driver,
			DSN:                    cfg.Journal.DSN,
			MaxOpenConns:           cfg.Journal.MaxOpenConns,
			MaxIdleConns:           cfg.Journal.MaxIdleConns,
			ConnMaxLifetimeMinutes: cfg.Journal.ConnMaxLifetimeMinutes,
		})
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}

		if opLog, err = journal.New(db); err != nil {
			return fmt.Errorf("init journal: %w", err)
		}

		defer func() {
			if err := opLog.Close(); err != nil {
				l.LogErrorf("Failed to close journal: %v", err.Error())
			}
		}()

		engineConf.Journal = opLog
	}

	engine, err := roomshare.New(l, engineConf)
	if err != nil {
		return fmt.Errorf("init engine: %w", err)
	}

	if opLog != nil {
		ops, err := opLog.Load(ctx)
		if err != nil {
			return fmt.Errorf("load journal: %w", err)
		}

		if err := engine.Replay(ctx, ops); err != nil {
			return fmt.Errorf("replay journal: %w", err)
		}

		l.LogInfo("Journal has been replayed, %d operations applied", len(ops))
	}

	webConf := web.Conf{
		L:                  l,
		ServerLogger:       zap.NewStdLog(l.Zap()),
		Host:               cfg.Server.Host,
		Port:               cfg.Server.Port,
		ReadHeaderTimeout:  cfg.Server.ReadHeaderTimeout,
		LivenessEndpoint:   cfg.Server.LivenessEndpoint,
		RateLimitPerSec:    cfg.Server.RateLimitPerSec,
		RateBurst:          cfg.Server.RateBurst,
		RateLimiterIdleTTL: cfg.Server.RateLimiterIdleTTL,
		CORSAllowedOrigins: cfg.Server.CORSAllowedOrigins,
	}

	srv, err := web.New(ctx, webConf, engine)
	if err != nil {
		return fmt.Errorf("init http server: %w", err)
	}

	//nolint:contextcheck
	go func() {
		<-ctx.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Srv().Shutdown(ctx); err != nil {
			l.LogErrorf("Failed to stop http server: %v", err.Error())
		}
	}()

	l.LogInfo("Application is running on %v:%v...", webConf.Host, webConf.Port)

	if err := srv.Srv().ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		l.LogErrorf("Failed to run http server: %v", err.Error())

		cancel()
	}

	l.LogInfo("Application stopped gracefully")

	return nil
}

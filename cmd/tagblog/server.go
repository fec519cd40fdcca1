package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/alphabot-ai/tagblog/internal/auth"
	"github.com/alphabot-ai/tagblog/internal/config"
	httpapp "github.com/alphabot-ai/tagblog/internal/http"
	"github.com/alphabot-ai/tagblog/internal/logging"
	"github.com/alphabot-ai/tagblog/internal/rate"
	"github.com/alphabot-ai/tagblog/internal/store"
	"github.com/alphabot-ai/tagblog/internal/store/postgres"
	"github.com/alphabot-ai/tagblog/internal/store/sqlite"
)

const sweepInterval = time.Minute

func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logger, nil
}

// openStore opens the configured backend. Both backends bring the schema up
// to date on open.
func openStore(cfg config.Config) (store.Store, error) {
	if cfg.DBDriver == config.DriverPostgres {
		st, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func runServer(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	limiter := rate.NewMemory()
	authSvc := auth.NewService(st, cfg.BcryptCost)
	server := httpapp.NewServer(st, authSvc, limiter, cfg, logger)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sweep(ctx, limiter, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("driver", cfg.DBDriver).Msg("tagblog listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// sweep drops expired rate-limit windows until ctx is done.
func sweep(ctx context.Context, limiter *rate.MemoryLimiter, logger zerolog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := limiter.Sweep(); n > 0 {
				logger.Debug().Int("removed", n).Int("live", limiter.Len()).Msg("rate windows swept")
			}
		}
	}
}

func runMigrate(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer st.Close()
	if err := st.Ping(c.Context); err != nil {
		return err
	}
	logger.Info().Str("driver", cfg.DBDriver).Msg("schema up to date")
	return nil
}

func runCreateUser(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	reg, err := auth.NewService(st, cfg.BcryptCost).Register(c.Context, auth.RegisterInput{
		Username: c.String("username"),
		Email:    c.String("email"),
		Password: c.String("password"),
	})
	if err != nil {
		return err
	}
	logger.Info().Int64("user_id", reg.User.ID).Str("username", reg.User.Username).Msg("user created")
	fmt.Println(reg.Token)
	return nil
}

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

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/tally/internal/backup"
	"github.com/dukerupert/tally/internal/database"
	"github.com/dukerupert/tally/internal/logging"
	"github.com/dukerupert/tally/internal/server"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("TALLY_LOG_LEVEL"), os.Getenv("TALLY_LOG_FORMAT"))

	port := envOr("TALLY_PORT", "8080")
	dbPath := envOr("TALLY_DB_PATH", "tally.db")

	gatewayKey := os.Getenv("TALLY_GATEWAY_KEY")
	if gatewayKey == "" {
		logger.Error("TALLY_GATEWAY_KEY is required")
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		GatewayKey: gatewayKey,
		Backup: backup.Config{
			S3: backup.S3Config{
				Endpoint:  os.Getenv("TALLY_S3_ENDPOINT"),
				Bucket:    os.Getenv("TALLY_S3_BUCKET"),
				Region:    envOr("TALLY_S3_REGION", "auto"),
				AccessKey: os.Getenv("TALLY_S3_ACCESS_KEY"),
				SecretKey: os.Getenv("TALLY_S3_SECRET_KEY"),
			},
			DBPath:     dbPath,
			Passphrase: os.Getenv("TALLY_BACKUP_PASSPHRASE"),
			Interval:   envDuration("TALLY_BACKUP_INTERVAL", 24*time.Hour),
			Retention:  envDuration("TALLY_BACKUP_RETENTION", 30*24*time.Hour),
		},
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", fmt.Sprintf("http://localhost:%s", port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return srv.BackupManager().Run(gctx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("exit", "error", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/channel"
	"github.com/example/ride-client/internal/config"
	"github.com/example/ride-client/internal/httpapi"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
	"github.com/example/ride-client/internal/payments"
	"github.com/example/ride-client/internal/rider"
	"github.com/example/ride-client/internal/routing"
	"github.com/example/ride-client/internal/storage"
)

func main() {
	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := api.NewClient(cfg.BackendURL, cfg.SessionCookie, cfg.HTTPTimeout, logger)
	profile, err := gw.RiderProfile(ctx)
	if err != nil {
		logger.Error("profile fetch failed", "err", err)
		os.Exit(1)
	}

	ch := channel.New(cfg.WSURL, cfg.ReconnectDelay, logger)
	ch.SetCookie(cfg.SessionCookie)
	if err := ch.Activate(); err != nil {
		logger.Error("push channel activation failed", "err", err)
		os.Exit(1)
	}
	defer ch.Deactivate()

	resolver := routing.NewResolver(cfg.OSRMEndpoint, cfg.RouteCacheTTL, logger)

	var rideLog storage.RideLog = storage.NewMemoryLog()
	if cfg.PGDSN != "" {
		if cfg.RunMigrations {
			migrate(cfg.PGDSN)
		}
		if pg, err := storage.NewPostgresLog(cfg.PGDSN); err == nil {
			rideLog = pg
		} else {
			logger.Warn("postgres ride log unavailable, using memory", "err", err)
		}
	}

	ctrl := rider.NewController(gw, ch, resolver, rideLog, profile.User.ID, logger)
	if cfg.StripeKey != "" {
		ctrl.SetWallet(payments.NewWalletClient(cfg.StripeKey))
	}

	if cfg.RedisAddr != "" {
		cache := storage.NewRideCache(cfg.RedisAddr, cfg.RedisPassword, 24*time.Hour)
		defer cache.Close()
		ctrl.OnSnapshot = func(r *models.Ride) {
			cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := cache.Save(cctx, "rider", profile.User.ID, r); err != nil {
				logger.Warn("snapshot cache write failed", "err", err)
			}
		}
		if cached, err := cache.Load(ctx, "rider", profile.User.ID); err == nil && cached != nil {
			ctrl.Resume(cached)
			logger.Info("resumed cached ride", "ride_id", cached.ID, "status", cached.RideStatus)
		}
	}

	ctrl.Start()
	defer ctrl.Close()

	status := httpapi.NewServer(logger, func() any { return ctrl.View() }, gw.RiderRides, ctrl.EstimateFare)
	go func() {
		logger.Info("status server listening", "addr", cfg.StatusAddr)
		if err := http.ListenAndServe(cfg.StatusAddr, status); err != nil {
			logger.Warn("status server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
}

func migrate(dsn string) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Printf("migration db open error: %v", err)
		return
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_rides.sql"))
	if err != nil {
		log.Printf("migration read error: %v", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		log.Printf("migration exec error: %v", err)
		return
	}
	log.Printf("migration applied: 001_create_rides.sql")
}

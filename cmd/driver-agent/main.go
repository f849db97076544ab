package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-client/internal/api"
	"github.com/example/ride-client/internal/channel"
	"github.com/example/ride-client/internal/config"
	"github.com/example/ride-client/internal/driver"
	"github.com/example/ride-client/internal/httpapi"
	"github.com/example/ride-client/internal/ingest"
	"github.com/example/ride-client/internal/location"
	"github.com/example/ride-client/internal/logging"
	"github.com/example/ride-client/internal/models"
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
	profile, err := gw.DriverProfile(ctx)
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

	follower := location.NewRouteFollower(startPosition())

	var pub location.Publisher = ch
	if len(cfg.KafkaBrokers) > 0 {
		mirror := ingest.NewKafkaMirror(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer mirror.Close()
		pub = &mirroredPublisher{primary: ch, mirror: mirror}
	}
	reporter := location.NewReporter(follower, pub, profile.User.ID, cfg.LocationInterval, logger)

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

	ctrl := driver.NewController(gw, ch, resolver, reporter, rideLog, profile.ID, cfg.CompletedResetDelay, logger)
	ctrl.RouteChanged = follower.SetRoute
	defer ctrl.Close()

	status := httpapi.NewServer(logger, func() any { return ctrl.View() }, gw.DriverRides, nil)
	go func() {
		logger.Info("status server listening", "addr", cfg.StatusAddr)
		if err := http.ListenAndServe(cfg.StatusAddr, status); err != nil {
			logger.Warn("status server stopped", "err", err)
		}
	}()

	if err := ctrl.GoOnline(ctx); err != nil {
		logger.Error("go online failed", "err", err)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	if err := ctrl.GoOffline(context.Background()); err != nil {
		logger.Warn("go offline failed during shutdown", "err", err)
	}
}

// mirroredPublisher tees location updates onto the telemetry topic
// while the channel stays the primary path.
type mirroredPublisher struct {
	primary location.Publisher
	mirror  *ingest.KafkaMirror
}

func (m *mirroredPublisher) Publish(destination string, v any) error {
	if u, ok := v.(models.LocationUpdate); ok {
		if err := m.mirror.PublishLocation(u); err != nil {
			log.Printf("kafka mirror publish failed: %v", err)
		}
	}
	return m.primary.Publish(destination, v)
}

// startPosition reads an optional "lon,lat" starting fix from the
// environment.
func startPosition() models.Coord {
	v := os.Getenv("DRIVER_START")
	parts := strings.Split(v, ",")
	if len(parts) != 2 {
		return models.Coord{}
	}
	lon, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lat, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return models.Coord{}
	}
	return models.Coord{lon, lat}
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

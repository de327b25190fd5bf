// NearClip Core daemon.
//
// nearclipd owns the device catalog and the connection lifecycle of nearby
// NearClip peers. It talks to the native transport and pairing engine over
// MQTT, persists devices in SQLite, and serves the REST and WebSocket API
// used by the desktop and mobile front ends.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	_ "github.com/nearclip/nearclip-core/migrations"

	"github.com/nearclip/nearclip-core/internal/api"
	"github.com/nearclip/nearclip-core/internal/audit"
	"github.com/nearclip/nearclip-core/internal/device"
	"github.com/nearclip/nearclip-core/internal/engine"
	"github.com/nearclip/nearclip-core/internal/infrastructure/config"
	"github.com/nearclip/nearclip-core/internal/infrastructure/database"
	"github.com/nearclip/nearclip-core/internal/infrastructure/influxdb"
	"github.com/nearclip/nearclip-core/internal/infrastructure/logging"
	"github.com/nearclip/nearclip-core/internal/infrastructure/mqtt"
	"github.com/nearclip/nearclip-core/internal/lifecycle"
	"github.com/nearclip/nearclip-core/internal/nativecore"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Startup sequence: linear wiring of every component
	log := logging.Default()
	log.Info("starting NearClip Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version).With("site_device_id", cfg.Site.DeviceID)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Device catalog
	store := device.NewSQLiteStore(db.DB)
	store.SetLogger(log.With("component", "device_store"))
	defer store.Close()

	devices := device.NewRepository(store)
	devices.SetLogger(log.With("component", "device_repository"))

	count, err := devices.Count(ctx)
	if err != nil {
		return fmt.Errorf("loading device catalog: %w", err)
	}
	log.Info("device catalog initialised", "devices", count)

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log.With("component", "mqtt"))
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Native core bridge
	qos := byte(cfg.MQTT.QoS) //nolint:gosec // Validated to 0..2
	bridge := nativecore.NewBridge(mqttClient, nativecore.Config{
		QoS:            qos,
		CommandTimeout: cfg.Lifecycle.CommandTimeout,
	})
	bridge.SetLogger(log.With("component", "nativecore"))
	if startErr := bridge.Start(); startErr != nil {
		return fmt.Errorf("starting native core bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping native core bridge")
		bridge.Stop()
	}()

	// Connection lifecycle
	manager := lifecycle.NewManager(devices, bridge, lifecycle.Config{
		ConnectTimeout: cfg.Lifecycle.ConnectTimeout,
		PairTimeout:    cfg.Lifecycle.PairTimeout,
	})
	manager.SetLogger(log.With("component", "lifecycle"))
	defer func() {
		log.Info("stopping connection lifecycle")
		if closeErr := manager.Close(); closeErr != nil {
			log.Error("error stopping discovery", "error", closeErr)
		}
	}()

	// Native engine process (optional)
	var supervisor *engine.Supervisor
	if cfg.NativeCore.Managed {
		supervisor = newEngineSupervisor(cfg.NativeCore, manager, log.With("component", "engine"))
		if startErr := supervisor.Start(ctx); startErr != nil {
			return fmt.Errorf("starting native engine: %w", startErr)
		}
		defer func() {
			log.Info("stopping native engine")
			if stopErr := supervisor.Stop(); stopErr != nil {
				log.Error("error stopping native engine", "error", stopErr)
			}
		}()
	} else {
		log.Info("native engine not managed, expecting an external process")
	}

	status := nativecore.NewStatusPublisher(mqttClient, qos)
	status.SetLogger(log.With("component", "status_publisher"))
	manager.AddListener(status.Handle)

	if influxClient != nil {
		manager.AddListener(newTransitionRecorder(influxClient).Record)
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// API server
	if cfg.API.Enabled {
		checks := map[string]api.HealthChecker{
			"database": db,
			"mqtt":     mqttClient,
		}
		if influxClient != nil {
			checks["influxdb"] = influxClient
		}
		if supervisor != nil {
			checks["engine"] = supervisor
		}

		apiServer, apiErr := api.New(api.Deps{
			Config:   cfg.API,
			WS:       cfg.WebSocket,
			Security: cfg.Security,
			Logger:   log.With("component", "api"),
			Devices:  devices,
			Manager:  manager,
			Audit:    audit.NewSQLiteRepository(db.DB),
			Health:   checks,
			Version:  version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		manager.AddListener(apiServer.HandleTransition)

		if startErr := apiServer.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	mon := &monitor{
		stats:      manager,
		devices:    devices,
		staleAfter: cfg.Lifecycle.StaleAfter,
		interval:   defaultMonitorInterval,
		log:        log.With("component", "monitor"),
		now:        time.Now,
	}
	if influxClient != nil {
		mon.telemetry = influxClient
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	if supervisor != nil {
		g.Go(func() error { return watchEngine(gctx, supervisor) })
	}

	log.Info("initialisation complete, waiting for shutdown signal")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("background task failed: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API server, engine, lifecycle,
	// bridge, InfluxDB, MQTT, device store, database.

	log.Info("NearClip Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses NEARCLIP_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("NEARCLIP_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

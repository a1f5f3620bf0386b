// TapGate - Shared Resource Access Control
//
// This is the main entry point for the TapGate service. TapGate sits
// between NFC reader devices on the workshop floor and the membership
// database, deciding in real time whether a presented card may power
// up the machine a reader guards:
//   - WebSocket gateway for reader devices (tap lifecycle, enrolment)
//   - REST API for operators and members
//   - Per-card key diversification for offline reader provisioning
//   - Optional MQTT announcements and InfluxDB usage telemetry
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/tapgate-io/tapgate/migrations"

	"github.com/tapgate-io/tapgate/internal/api"
	"github.com/tapgate-io/tapgate/internal/audit"
	"github.com/tapgate-io/tapgate/internal/auth"
	"github.com/tapgate-io/tapgate/internal/card"
	"github.com/tapgate-io/tapgate/internal/gateway"
	"github.com/tapgate-io/tapgate/internal/infrastructure/config"
	"github.com/tapgate-io/tapgate/internal/infrastructure/database"
	"github.com/tapgate-io/tapgate/internal/infrastructure/influxdb"
	"github.com/tapgate-io/tapgate/internal/infrastructure/logging"
	"github.com/tapgate-io/tapgate/internal/infrastructure/mqtt"
	"github.com/tapgate-io/tapgate/internal/keys"
	"github.com/tapgate-io/tapgate/internal/reader"
	"github.com/tapgate-io/tapgate/internal/resource"
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
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting TapGate",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Key derivation service. A malformed master secret is fatal here,
	// before any reader can connect.
	keySvc, err := keys.New(cfg.MasterSecretBytes())
	if err != nil {
		return fmt.Errorf("initialising key derivation: %w", err)
	}
	log.Info("key derivation initialised")

	// Open database
	db, err := database.Open(database.Config{
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

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	userRepo := auth.NewUserRepository(db.DB)
	cardRepo := card.NewSQLiteRepository(db.DB)
	readerRepo := reader.NewSQLiteRepository(db.DB)
	resourceRepo := resource.NewSQLiteRepository(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	cardDir := card.NewDirectory(cardRepo, log)

	// Seed the initial owner account on first boot. SeedOwner logs the
	// generated password at warn level; it must be changed immediately.
	if _, seedErr := auth.SeedOwner(ctx, userRepo, log.Logger); seedErr != nil {
		return fmt.Errorf("seeding owner account: %w", seedErr)
	}

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
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
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
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

	// Assign optional clients through typed nil checks so disabled
	// integrations stay nil interfaces downstream.
	var publisher resource.Publisher
	var announcer gateway.Announcer
	if mqttClient != nil {
		publisher = mqttClient
		announcer = mqttClient
	}
	var sessionTelemetry resource.Telemetry
	var readerTelemetry gateway.Telemetry
	if influxClient != nil {
		sessionTelemetry = influxClient
		readerTelemetry = influxClient
	}

	// Resource usage tracking
	resourceSvc := resource.NewService(resourceRepo, publisher, sessionTelemetry, log)

	// Reader gateway
	gw := gateway.New(cfg.Gateway, readerRepo, cardDir, resourceSvc, keySvc, announcer, readerTelemetry, log)
	go gw.Run(ctx)
	log.Info("reader gateway started")

	// Backend stop commands arrive over MQTT when the broker is enabled.
	if mqttClient != nil {
		if err := gw.SubscribeCommands(mqttClient); err != nil {
			return fmt.Errorf("failed to subscribe to reader commands: %w", err)
		}
	}

	// REST API server
	apiServer, err := api.New(api.Deps{
		Config:    cfg.API,
		Security:  cfg.Security,
		Logger:    log,
		Users:     userRepo,
		Cards:     cardDir,
		Keys:      keySvc,
		Readers:   readerRepo,
		Resources: resourceRepo,
		Audit:     auditRepo,
		Gateway:   gw,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"host", cfg.API.Host,
		"port", cfg.API.Port,
	)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. API server
	// 2. InfluxDB (if enabled)
	// 3. MQTT (if enabled)
	// 4. Database

	log.Info("TapGate stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses TAPGATE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("TAPGATE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// The MQTT and InfluxDB clients may be nil when disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// Fleet Relay - chat bot webhook relay for a fleet of remote devices.
//
// This is the main entry point. It wires the registries, the file access
// layer, the command dispatcher and the HTTP boundary, plus the optional
// audit database, MQTT bus and InfluxDB metrics, then blocks until SIGINT
// or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nerrad567/fleet-relay/internal/api"
	"github.com/nerrad567/fleet-relay/internal/audit"
	"github.com/nerrad567/fleet-relay/internal/auth"
	"github.com/nerrad567/fleet-relay/internal/bridges/fleetbus"
	"github.com/nerrad567/fleet-relay/internal/device"
	"github.com/nerrad567/fleet-relay/internal/dispatch"
	"github.com/nerrad567/fleet-relay/internal/files"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/config"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/database"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/influxdb"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/jsonstore"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/logging"
	"github.com/nerrad567/fleet-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/fleet-relay/internal/relay"
	"github.com/nerrad567/fleet-relay/internal/telegram"
	"github.com/nerrad567/fleet-relay/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	defaultConfigPath = "configs/config.yaml"
	usersFile         = "users.json"
	devicesFile       = "devices.json"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application proper, separated from main for testability. It
// returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting Fleet Relay",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"bot_token_set", cfg.Bot.Token != "",
		"bot_token_sha256", cfg.BotTokenHash(),
	)

	if err := os.MkdirAll(cfg.Storage.Path, 0o750); err != nil {
		return fmt.Errorf("creating storage directory: %w", err)
	}

	// Registries
	userStore := jsonstore.New[auth.User](filepath.Join(cfg.Storage.Path, usersFile))
	userStore.SetLogger(log)
	users := auth.NewRegistry(userStore)
	users.SetLogger(log.Component("users"))
	if err := auth.SeedAdmin(users, cfg.Bot.AdminID, log.Logger); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	deviceStore := jsonstore.New[device.Device](filepath.Join(cfg.Storage.Path, devicesFile))
	deviceStore.SetLogger(log)
	devices := device.NewRegistry(deviceStore)
	devices.SetLogger(log.Component("devices"))
	log.Info("registries loaded",
		"users", len(users.GetAllUsers()),
		"devices", devices.Stats().Total,
	)

	fileSvc, err := files.NewService(cfg.Files.Root, files.Options{
		MaxResults:  cfg.Files.MaxSearchResults,
		MaxFileSize: cfg.Files.MaxFileSize,
	})
	if err != nil {
		return fmt.Errorf("initialising file service: %w", err)
	}
	log.Info("file root", "path", fileSvc.Root())

	// Audit database (optional)
	var db *database.DB
	trail := audit.NewTrail(nil)
	if cfg.Database.Enabled {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		trail = audit.NewTrail(audit.NewSQLiteRepository(db.DB))
		trail.SetLogger(log.Component("audit"))
		devices.Subscribe(trail.DeviceListener(audit.SourceSystem))
	} else {
		log.Info("audit database disabled")
	}

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
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = startFleetBus(cfg.MQTT, devices, influxClient, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
	} else {
		log.Info("MQTT disabled")
	}

	// Chat platform and companion relay
	bot, err := telegram.New(cfg.Bot.Token, cfg.Bot.APIURL)
	if err != nil {
		return fmt.Errorf("creating bot client: %w", err)
	}
	if !bot.Configured() {
		log.Warn("bot token not set, chat replies will fail")
	}

	dispatchDeps := dispatch.Deps{
		Users:     users,
		Devices:   devices,
		Files:     fileSvc,
		Messenger: bot,
		Audit:     trail,
		Logger:    log.Component("dispatch"),
		Options: dispatch.Options{
			EnableDownload: cfg.Files.EnableDownload,
			EnableDelete:   cfg.Files.EnableDelete,
			RateLimit:      cfg.Bot.RateLimit,
		},
	}
	if cfg.Relay.URL != "" {
		dispatchDeps.Relay = relay.NewClient(cfg.Relay.URL, cfg.GetRelayTimeout())
		log.Info("companion relay configured", "url", cfg.Relay.URL)
	}
	if influxClient != nil {
		dispatchDeps.Metrics = influxClient
	}
	dispatcher, err := dispatch.New(dispatchDeps)
	if err != nil {
		return fmt.Errorf("creating dispatcher: %w", err)
	}

	// HTTP boundary
	apiDeps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Bot:        cfg.Bot,
		Logger:     log.Component("api"),
		Users:      users,
		Devices:    devices,
		Files:      fileSvc,
		Dispatcher: dispatcher,
		Audit:      trail,
		Notifier:   bot,
		DB:         db,
		Version:    version,
	}
	if influxClient != nil {
		apiDeps.Metrics = influxClient
	}
	if mqttClient != nil {
		apiDeps.MQTT = mqttClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Bot.WebhookURL != "" && bot.Configured() {
		if err := bot.SetWebhook(ctx, cfg.Bot.WebhookURL, cfg.Bot.WebhookSecret); err != nil {
			log.Warn("webhook registration failed", "url", cfg.Bot.WebhookURL, "error", err)
		} else {
			log.Info("webhook registered", "url", cfg.Bot.WebhookURL)
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if bot.Configured() {
		// Non-fatal: the device API runs without the bot.
		if err := bot.HealthCheck(ctx); err != nil {
			log.Warn("bot token check failed", "error", err)
		} else {
			log.Info("bot token verified")
		}
	}
	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	// Deferred Close() calls run in reverse order: API server, MQTT,
	// InfluxDB, database.
	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns FLEETRELAY_CONFIG or the default path.
func getConfigPath() string {
	if path := os.Getenv("FLEETRELAY_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// openDatabase opens the audit database and applies embedded migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Path,
		WALMode:     cfg.WALMode,
		BusyTimeout: cfg.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return nil, errors.Join(fmt.Errorf("running migrations: %w", err), db.Close())
	}
	log.Info("database ready", "path", cfg.Path)
	return db, nil
}

// startFleetBus connects to the broker and wires the fleet bridge in both
// directions: queued commands go out, heartbeats come in.
func startFleetBus(cfg config.MQTTConfig, devices *device.Registry, influxClient *influxdb.Client, log *logging.Logger) (*mqtt.Client, error) {
	client, err := mqtt.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() { log.Info("MQTT reconnected") })
	client.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"client_id", cfg.Broker.ClientID,
	)

	bus := fleetbus.New(client, devices)
	bus.SetLogger(log.Component("fleetbus"))
	if influxClient != nil {
		bus.SetMetrics(influxClient)
	}
	if err := bus.Start(); err != nil {
		return nil, errors.Join(fmt.Errorf("starting fleet bus: %w", err), client.Close())
	}
	devices.Subscribe(bus.OnDeviceEvent)
	return client, nil
}

// healthCheck verifies every enabled backend. Nil arguments are skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if db != nil {
		if err := db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
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

// Slotline - per-slot feature provider resolver
//
// This is the main entry point for the slotline service. Slotline
// tracks installed feature provider packages, decides which package
// owns each (slot, feature) pair, and keeps one managed connection per
// live provider. Operators drive it over HTTP and MQTT; events stream
// out over WebSocket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/slotline/migrations"

	"github.com/nerrad567/slotline/internal/api"
	"github.com/nerrad567/slotline/internal/infrastructure/config"
	"github.com/nerrad567/slotline/internal/infrastructure/database"
	"github.com/nerrad567/slotline/internal/infrastructure/influxdb"
	"github.com/nerrad567/slotline/internal/infrastructure/logging"
	"github.com/nerrad567/slotline/internal/infrastructure/mqtt"
	"github.com/nerrad567/slotline/internal/provider"
	"github.com/nerrad567/slotline/internal/resolver"
	"github.com/nerrad567/slotline/internal/transport/loopback"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error lets main handle exit codes
// consistently.
func run(ctx context.Context) error { //nolint:gocognit // wiring sequence reads top to bottom
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting slotline",
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

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

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

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Provider directory and candidate catalog
	directory := provider.NewFileDirectory(cfg.Directory.Path)
	catalog := provider.NewCatalog(directory, cfg.Resolver.PermissionMarker)
	catalog.SetLogger(log)
	if cfg.Resolver.AllowMarkerMismatch {
		log.Warn("marker mismatch override enabled; candidates are admitted without marker checks")
		catalog.SetAllowMarkerMismatch(true)
	}

	store := provider.NewStore(db.DB)

	// In-process loopback transport, seeded from the directory so the
	// resolver has live providers to bind against.
	strategy := loopback.NewStrategy()
	if seedErr := seedLoopbackProviders(ctx, directory, strategy); seedErr != nil {
		return fmt.Errorf("seeding loopback providers: %w", seedErr)
	}
	strategies := provider.StrategySet{
		provider.StrategyCurrent: strategy,
		provider.StrategyLegacy:  strategy,
		provider.StrategyStatic:  strategy,
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

	// WebSocket hub, shared between the orchestrator (broadcasts) and
	// the API server (client connections).
	hub := api.NewHub(cfg.WebSocket, log)
	go hub.Run(ctx)

	// Connect to MQTT broker (optional). Connecting before the resolver
	// lets resolver events fan out to the event topics from the start;
	// command subscriptions are wired once the orchestrator exists.
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
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	broadcasters := fanoutBroadcaster{hub}
	if mqttClient != nil {
		broadcasters = append(broadcasters, mqttClient)
	}

	// Resolver orchestrator
	orchOpts := resolver.Options{
		Catalog:             catalog,
		Strategies:          strategies,
		Store:               store,
		DeviceDefault:       cfg.Resolver.DeviceDefaultPackage,
		SlotCount:           cfg.Resolver.SlotCount,
		BackoffInitialDelay: time.Duration(cfg.Resolver.Backoff.InitialDelay) * time.Second,
		BackoffMultiplier:   cfg.Resolver.Backoff.Multiplier,
		BackoffMaxDelay:     time.Duration(cfg.Resolver.Backoff.MaxDelay) * time.Second,
		QueryTimeout:        time.Duration(cfg.Query.Timeout) * time.Second,
		QueryRetryDelay:     time.Duration(cfg.Query.RetryDelay) * time.Second,
		Logger:              log,
		Broadcaster:         broadcasters,
	}
	if influxClient != nil {
		orchOpts.Metrics = influxClient
	}
	orch, err := resolver.New(orchOpts)
	if err != nil {
		return fmt.Errorf("creating resolver: %w", err)
	}
	if startErr := orch.Start(ctx); startErr != nil {
		return fmt.Errorf("starting resolver: %w", startErr)
	}
	defer func() {
		log.Info("stopping resolver")
		orch.Stop()
	}()
	log.Info("resolver started",
		"device_default", cfg.Resolver.DeviceDefaultPackage,
		"slots", cfg.Resolver.SlotCount,
	)

	if mqttClient != nil {
		if subErr := subscribeResolverTopics(mqttClient, orch, log, byte(cfg.MQTT.QoS)); subErr != nil {
			return fmt.Errorf("subscribing to resolver topics: %w", subErr)
		}
	}

	// HTTP API server
	apiServer, err := api.New(api.Deps{
		Config:      cfg.API,
		WS:          cfg.WebSocket,
		Logger:      log,
		Resolver:    orch,
		MQTT:        mqttClient,
		DB:          db,
		ExternalHub: hub,
		Version:     version,
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
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("slotline stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SLOTLINE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SLOTLINE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// MQTT and InfluxDB may be nil when disabled.
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

// seedLoopbackProviders registers one loopback provider per directory
// descriptor so statically declared features can be served in-process.
// Dynamic-query providers are registered with their declared features,
// which the loopback answers capability queries from.
func seedLoopbackProviders(ctx context.Context, directory provider.Directory, strategy *loopback.Strategy) error {
	descriptors, err := directory.Query(ctx, "")
	if err != nil {
		return err
	}

	for _, desc := range descriptors {
		features := provider.NewFeatureSet()
		for _, f := range desc.Features {
			feat, parseErr := provider.ParseFeature(f.Feature)
			if parseErr != nil {
				continue
			}
			features.Add(provider.FeaturePair{Slot: f.Slot, Feature: feat})
		}
		strategy.Register(desc.Package, features)
	}
	return nil
}

// fanoutBroadcaster forwards each resolver event to every sink: the
// WebSocket hub and, when enabled, the MQTT event topics.
type fanoutBroadcaster []resolver.Broadcaster

func (f fanoutBroadcaster) Broadcast(eventType string, payload any) {
	for _, sink := range f {
		sink.Broadcast(eventType, payload)
	}
}

// packagePayload is the JSON body of package and override messages.
type packagePayload struct {
	Package string `json:"package"`
}

// enabledPayload is the JSON body of slot enable messages.
type enabledPayload struct {
	Enabled bool `json:"enabled"`
}

// subscribeResolverTopics wires MQTT package, override and slot-enable
// messages into the orchestrator.
func subscribeResolverTopics(client *mqtt.Client, orch *resolver.Orchestrator, log *logging.Logger, qos byte) error {
	var topics mqtt.Topics

	err := client.Subscribe(topics.AllPackageEvents(), qos, func(topic string, payload []byte) error {
		kind, ok := mqtt.PackageEventKind(topic)
		if !ok {
			return fmt.Errorf("unrecognised package topic %q", topic)
		}
		var msg packagePayload
		if err := json.Unmarshal(payload, &msg); err != nil || msg.Package == "" {
			return fmt.Errorf("invalid package payload on %q", topic)
		}
		switch kind {
		case "added":
			orch.NotifyPackageAdded(msg.Package)
		case "changed":
			orch.NotifyPackageChanged(msg.Package)
		case "removed":
			orch.NotifyPackageRemoved(msg.Package)
		default:
			return fmt.Errorf("unrecognised package event kind %q", kind)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = client.Subscribe(topics.AllOverrides(), qos, func(topic string, payload []byte) error {
		slot, ok := mqtt.OverrideSlot(topic)
		if !ok {
			return fmt.Errorf("unrecognised override topic %q", topic)
		}
		var msg packagePayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid override payload on %q", topic)
		}
		// An empty package clears the override.
		if msg.Package == "" {
			if clearErr := orch.ClearOverride(slot); clearErr != nil {
				log.Warn("clearing override failed", "slot", slot, "error", clearErr)
			}
			return nil
		}
		if setErr := orch.SetOverride(slot, msg.Package); setErr != nil {
			log.Warn("setting override failed", "slot", slot, "package", msg.Package, "error", setErr)
		}
		return nil
	})
	if err != nil {
		return err
	}

	return client.Subscribe(topics.AllSlotEnabled(), qos, func(topic string, payload []byte) error {
		slot, ok := mqtt.SlotEnabledSlot(topic)
		if !ok {
			return fmt.Errorf("unrecognised slot enable topic %q", topic)
		}
		var msg enabledPayload
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("invalid slot enable payload on %q", topic)
		}
		if enableErr := orch.SetSlotEnabled(slot, msg.Enabled); enableErr != nil {
			log.Warn("setting slot enable failed", "slot", slot, "error", enableErr)
		}
		return nil
	})
}

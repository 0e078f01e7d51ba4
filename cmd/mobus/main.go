// Mobus Core - connectivity core for a battery-powered messaging device.
//
// This is the main entry point. It keeps the station link up, runs the
// broker session on top of it, drives the notification effect for incoming
// messages, and falls back to the pairing channel when no saved network can
// be reached.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	_ "github.com/mobus-dev/mobus-core/migrations"

	"github.com/mobus-dev/mobus-core/internal/api"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/config"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/database"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/influxdb"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/logging"
	"github.com/mobus-dev/mobus-core/internal/infrastructure/mqtt"
	"github.com/mobus-dev/mobus-core/internal/link"
	"github.com/mobus-dev/mobus-core/internal/messaging"
	"github.com/mobus-dev/mobus-core/internal/notify"
	"github.com/mobus-dev/mobus-core/internal/pairing"
	"github.com/mobus-dev/mobus-core/internal/store"
	"github.com/mobus-dev/mobus-core/internal/wlan"
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

	// pairingSweepInterval is how often an expired pairing code is cleared.
	pairingSweepInterval = 5 * time.Second
)

func main() {
	configFlag := pflag.StringP("config", "c", "", "path to config.yaml (overrides MOBUS_CONFIG)")
	showVersion := pflag.BoolP("version", "v", false, "print version information and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("mobus %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, resolveConfigPath(*configFlag)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Mobus Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	kv := store.NewSQLiteKV(db.DB)
	creds := store.NewSQLiteCredentials(db.DB)

	deviceID := cfg.Device.ID
	if deviceID == "" {
		if deviceID, err = store.DeviceID(ctx, kv); err != nil {
			return fmt.Errorf("resolving device id: %w", err)
		}
	}
	log = log.With("device_id", deviceID)

	// Telemetry is optional. The recorder discards points when it has no writer.
	var points influxdb.PointWriter
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		points = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}
	recorder := influxdb.NewRecorder(points, deviceID)

	dispatcher := startNotifications(cfg.Notification, recorder, log)
	defer dispatcher.Close()
	notifications := notificationService{
		Bridge:     notify.NewBridge(dispatcher),
		Dispatcher: dispatcher,
	}

	runtime, err := newMessaging(ctx, cfg, kv, deviceID, dispatcher, recorder, log)
	if err != nil {
		return err
	}
	defer runtime.Stop()

	radio := wlan.New(wlan.Options{
		Interface:     cfg.Link.Interface,
		Binary:        cfg.Link.Supplicant.Binary,
		CLIBinary:     cfg.Link.Supplicant.CLIBinary,
		ConfigPath:    cfg.Link.Supplicant.ConfigPath,
		ControlDir:    cfg.Link.Supplicant.ControlDir,
		Driver:        cfg.Link.Supplicant.Driver,
		PollInterval:  cfg.Link.Supplicant.PollInterval,
		AttemptWindow: cfg.Link.Supplicant.AttemptWindow,
	})
	radio.SetLogger(log.Component("wlan"))
	defer func() {
		if stopErr := radio.Stop(); stopErr != nil {
			log.Error("error stopping supplicant", "error", stopErr)
		}
	}()

	manager := link.NewManager(radio, creds, kv, cfg.Link.MaxRetries)
	manager.SetLogger(log.Component("link"))
	radio.SetEventSink(manager.HandleEvent)
	manager.SetOnStateChange(func(s link.State) {
		status := manager.Status()
		recorder.LinkState(s.String(), status.Retries, status.FallbackActive)
	})

	// Interfaces stay nil when pairing is disabled so consumers see "absent".
	var pairingBridge *pairing.Bridge
	var pairer link.Pairing
	var pairingAPI api.PairingService
	if cfg.Pairing.Enabled {
		pairingBridge = pairing.New(pairing.Options{
			Binary:          cfg.Pairing.Binary,
			Args:            cfg.Pairing.Args,
			GracefulTimeout: cfg.Pairing.GracefulTimeout,
		}, kv)
		pairingBridge.SetLogger(log.Component("pairing"))
		pairingBridge.SetHandoff(manager, runtime)
		pairer = pairingBridge
		pairingAPI = pairingBridge
		defer func() {
			if disableErr := pairingBridge.Disable(context.Background()); disableErr != nil {
				log.Error("error stopping pairing bridge", "error", disableErr)
			}
		}()
	} else {
		log.Info("pairing channel disabled")
	}

	fallback := link.NewFallback(manager, kv, pairer, runtime, link.FallbackOptions{
		Enabled:          cfg.Fallback.Enabled,
		RetryInterval:    cfg.Fallback.RetryInterval,
		PerTryTimeout:    cfg.Fallback.PerTryTimeout,
		CandidateTimeout: cfg.Link.CandidateTimeout,
	})
	fallback.SetLogger(log.Component("fallback"))
	defer fallback.Close()
	manager.SetPostConnect(fallback.PostConnect)
	manager.SetOnFailed(fallback.Engage)

	result := fallback.Boot(ctx)
	recorder.Boot(result.String())
	log.Info("boot complete", "result", result.String(), "link", manager.State().String())

	// Background tasks end with ctx and are joined before the deferred
	// teardown above runs.
	tasks, taskCtx := errgroup.WithContext(ctx)
	defer func() {
		if waitErr := tasks.Wait(); waitErr != nil {
			log.Error("background task failed", "error", waitErr)
		}
	}()
	if pairingBridge != nil {
		tasks.Go(func() error {
			sweepPairingSessions(taskCtx, pairingBridge)
			return nil
		})
	}

	if cfg.API.Enabled {
		server, apiErr := api.New(api.Deps{
			Config:           cfg.API,
			Logger:           log.Component("api"),
			Link:             manager,
			Credentials:      creds,
			Settings:         kv,
			Messaging:        runtime,
			Pairing:          pairingAPI,
			Notifications:    notifications,
			CandidateTimeout: cfg.Link.CandidateTimeout,
			DeviceID:         deviceID,
			Version:          version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("local API disabled")
	}

	if err := healthCheck(ctx, db, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// resolveConfigPath picks the flag value, then MOBUS_CONFIG, then the default.
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("MOBUS_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// notificationService joins the external hint with the dispatcher stats for
// the local API.
type notificationService struct {
	*notify.Bridge
	*notify.Dispatcher
}

// startNotifications builds the dispatcher around the LED pattern.
func startNotifications(cfg config.NotificationConfig, recorder *influxdb.Recorder, log *logging.Logger) *notify.Dispatcher {
	var led notify.LED = notify.LogLED{Logger: log.Component("led")}
	if cfg.LEDPath != "" {
		led = notify.SysfsLED{Dir: cfg.LEDPath}
	}

	dispatcher := notify.NewDispatcher(notify.NewPattern(led, nil), cfg.MinInterval)
	dispatcher.SetLogger(log.Component("notify"))
	dispatcher.SetOnRun(func(d time.Duration, err error) {
		recorder.Notification(d, err)
	})
	return dispatcher
}

// newMessaging builds the runtime and configures it from storage and config.
// It only opens the session at boot when mqtt.auto_start is set; otherwise
// the link post-connect action does.
func newMessaging(ctx context.Context, cfg *config.Config, kv store.KV, deviceID string,
	notifier messaging.Notifier, recorder *influxdb.Recorder, log *logging.Logger) (*messaging.Runtime, error) {
	clientID := cfg.MQTT.Broker.ClientID
	if clientID == "" {
		clientID = "mobus-" + deviceID
	}

	runtime := messaging.New(messaging.Options{
		ClientID:   clientID,
		Username:   cfg.MQTT.Auth.Username,
		Password:   cfg.MQTT.Auth.Password,
		TLS:        cfg.MQTT.Broker.TLS,
		KeepAlive:  time.Duration(cfg.MQTT.KeepAlive) * time.Second,
		QoS:        byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0..2
		QueueLimit: cfg.MQTT.QueueLimit,
	}, newTransportFactory(mqtt.Topics{}.DeviceStatus(deviceID), log.Component("mqtt")), notifier)
	runtime.SetLogger(log.Component("messaging"))

	host := cfg.MQTT.Broker.Host
	runtime.SetOnConnect(func() {
		recorder.Session(true, host, runtime.Status().Dropped)
	})
	runtime.SetOnDisconnect(func(err error) {
		log.Warn("broker connection lost", "error", err)
		recorder.Session(false, host, runtime.Status().Dropped)
	})

	if host == "" {
		log.Warn("no broker configured, messaging stays idle")
		return runtime, nil
	}

	principal, err := kv.Get(ctx, store.KeyPrincipalID)
	if err != nil {
		return nil, fmt.Errorf("loading principal: %w", err)
	}
	if principal == "" {
		principal = cfg.Device.PrincipalID
	}

	if err := runtime.Configure(host, cfg.MQTT.Broker.Port, principal); err != nil {
		return nil, fmt.Errorf("configuring messaging: %w", err)
	}
	log.Info("messaging configured",
		"broker", fmt.Sprintf("%s:%d", host, cfg.MQTT.Broker.Port),
		"client_id", clientID,
		"primary_topic", runtime.PrimaryTopic(),
	)

	if cfg.MQTT.AutoStart {
		if err := runtime.Start(); err != nil {
			log.Warn("messaging auto start failed", "error", err)
		}
	}
	return runtime, nil
}

// sweepPairingSessions clears pairing codes once they pass their expiry.
func sweepPairingSessions(ctx context.Context, bridge *pairing.Bridge) {
	ticker := time.NewTicker(pairingSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			bridge.ExpireSession(ctx)
		}
	}
}

// healthCheck verifies that the storage and telemetry backends respond.
// The broker is not checked: the session only exists while the link is up.
func healthCheck(ctx context.Context, db *database.DB, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}

// RelayBridge - game server chat relay client.
//
// RelayBridge bridges a local game server with a remote relay hub over
// a websocket connection. Player chat and game events flow out to the
// hub, hub messages flow back into local chat. The binary also exposes
// a REST API for inspection, records relayed messages to a local
// database, and publishes telemetry via MQTT.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/relaybridge-project/relaybridge/internal/api"
	"github.com/relaybridge-project/relaybridge/internal/backoff"
	"github.com/relaybridge-project/relaybridge/internal/cli"
	"github.com/relaybridge-project/relaybridge/internal/config"
	"github.com/relaybridge-project/relaybridge/internal/db"
	"github.com/relaybridge-project/relaybridge/internal/events"
	"github.com/relaybridge-project/relaybridge/internal/gameserver"
	"github.com/relaybridge-project/relaybridge/internal/relay"
	"github.com/relaybridge-project/relaybridge/internal/scheduler"
	"github.com/relaybridge-project/relaybridge/internal/telemetry"
	"github.com/relaybridge-project/relaybridge/internal/util"
)

const (
	AppName    = "RelayBridge"
	AppVersion = "1.0.0"
	Banner     = `
  _____      _             ____       _     _
 |  __ \    | |           |  _ \     (_)   | |
 | |__) |___| | __ _ _   _| |_) |_ __ _  __| | __ _  ___
 |  _  // _ \ |/ _' | | | |  _ <| '__| |/ _' |/ _' |/ _ \
 | | \ \  __/ | (_| | |_| | |_) | |  | | (_| | (_| |  __/
 |_|  \_\___|_|\__,_|\__, |____/|_|  |_|\__,_|\__, |\___|
                      __/ |                    __/ |
                     |___/  v%s              |___/
 Game Server Chat Relay
`
)

func main() {
	fmt.Printf(Banner, AppVersion)
	fmt.Println()

	// Initialize logger with defaults first (reconfigured after config load)
	if err := util.InitLogger(util.DefaultLogConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info().
		Str("version", AppVersion).
		Str("platform", runtime.GOOS).
		Str("arch", runtime.GOARCH).
		Msg("starting RelayBridge")

	// Load configuration
	cfg, err := config.Load(config.DefaultConfigDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Re-initialize logger with config-based settings
	logCfg := util.LogConfig{
		Level:      cfg.ApplicationData.Logging.Level,
		Directory:  cfg.ApplicationData.Logging.Directory,
		MaxBackups: cfg.ApplicationData.Logging.MaxBackups,
		Console:    true,
	}
	if err := util.InitLogger(logCfg); err != nil {
		log.Warn().Err(err).Msg("failed to reconfigure logger, using defaults")
	}

	// Validate configuration. Missing hub settings disable the relay
	// connection but the rest of the application still runs, so the
	// config can be fixed from the CLI or by editing the file.
	relayEnabled := true
	validation := config.Validate(cfg)
	for _, w := range validation.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}
	if !validation.IsValid() {
		for _, e := range validation.Errors {
			log.Error().Str("field", e.Field).Msg(e.Message)
		}
		log.Warn().Msg("relay hub connection disabled until the configuration is fixed")
		relayEnabled = false
	}

	sysInfo := util.GetSystemInfo()
	log.Info().
		Str("hostname", sysInfo.Hostname).
		Str("os", sysInfo.OS).
		Str("client_name", cfg.MultiChat.ClientName()).
		Msg("system information")

	// Create root context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize core components
	eventBus := events.NewEventBus()

	// Message history store. Failure disables history, not the app.
	var history *db.HistoryStore
	if cfg.ApplicationData.History.Enabled {
		history, err = db.NewHistoryStore(cfg.ApplicationData.History.Path)
		if err != nil {
			log.Warn().Err(err).Msg("failed to open history store, history disabled")
			history = nil
		}
	}

	// Game server console sink and hub connection
	console := gameserver.NewConsole(cfg.ApplicationData.GameServer)
	conn := relay.NewConn(cfg.MultiChat, relay.NewWSTransport(), console, backoff.Default())
	conn.SetEventBus(eventBus)
	if history != nil {
		conn.SetHistory(history)
	}

	// Relay event handlers bridge game events to the hub connection
	relayHandler := relay.NewRelay(cfg.MultiChat, conn, console)
	relayHandler.Register(eventBus)

	// Game server log tailer
	tailer := gameserver.NewTailer(cfg.ApplicationData.GameServer, eventBus)

	// REST API
	var apiServer *api.Server
	if cfg.ApplicationData.API.Enabled {
		apiServer = api.NewServer(cfg, conn, history)
	}

	// MQTT telemetry
	var mqttHandler *telemetry.MQTTHandler
	if cfg.ApplicationData.MQTT.Enabled {
		mqttHandler, err = telemetry.NewMQTTHandler(cfg, eventBus)
		if err != nil {
			log.Warn().Err(err).Msg("failed to initialize MQTT, telemetry disabled")
		}
	}

	// Background tasks and CLI
	sched := scheduler.NewScheduler(cfg, eventBus, conn, history)
	cliHandler := cli.NewCLI(cfg, eventBus, conn, history)

	// CLI quit and other shutdown requests land here
	shutdownCh := make(chan struct{}, 1)
	eventBus.Subscribe(events.EventShutdown, "main.shutdown", func(ctx context.Context, event events.Event) error {
		select {
		case shutdownCh <- struct{}{}:
		default:
		}
		return nil
	})

	// ---------------------------------------------------------------
	// Launch all concurrent tasks
	// ---------------------------------------------------------------
	var wg sync.WaitGroup

	// Task 1: game server log tailer
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Str("log_file", cfg.ApplicationData.GameServer.LogFile).Msg("starting game server log tailer")
		if err := tailer.Start(ctx); err != nil {
			log.Warn().Err(err).Msg("log tailer stopped (non-fatal)")
		}
	}()

	// Task 2: REST API server (with retry for port binding)
	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Int("port", cfg.ApplicationData.API.Port).Msg("starting REST API server")
			if err := startWithRetry(ctx, "API server", apiServer.Start, 5); err != nil {
				log.Warn().Err(err).Msg("API server failed after retries (non-fatal)")
			}
		}()
	}

	// Task 3: MQTT telemetry
	if mqttHandler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			log.Info().Msg("starting MQTT telemetry")
			if err := mqttHandler.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("MQTT telemetry failed")
			}
		}()
	}

	// Task 4: scheduler
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting task scheduler")
		sched.Start(ctx)
	}()

	// Task 5: interactive CLI
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info().Msg("starting interactive CLI")
		cliHandler.Start(ctx)
	}()

	// Open the hub connection last; failures feed the retry loop.
	if relayEnabled {
		log.Info().Str("url", cfg.MultiChat.URL).Msg("connecting to relay hub")
		conn.Connect()
	}

	// ---------------------------------------------------------------
	// Graceful shutdown handling
	// ---------------------------------------------------------------
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case <-shutdownCh:
		log.Info().Msg("shutdown requested")
	}

	log.Info().Msg("initiating graceful shutdown...")

	cancel()
	conn.Close()

	// Wait for all goroutines with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all tasks stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("shutdown timed out after 30 seconds, forcing exit")
	}

	// Stop the event bus last
	eventBus.Stop()

	if history != nil {
		history.Close()
	}

	log.Info().Msg("RelayBridge stopped")
}

// startWithRetry attempts to start a listener/server with retry on
// bind errors, with a fixed 3-second interval between attempts.
func startWithRetry(ctx context.Context, name string, startFn func(context.Context) error, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = startFn(ctx)
		if lastErr == nil {
			return nil
		}
		if i < maxRetries {
			log.Warn().Err(lastErr).Str("component", name).Int("retry", i+1).Int("max", maxRetries).Msg("bind failed, retrying in 3s...")
			time.Sleep(3 * time.Second)
		}
	}
	return lastErr
}

// Pulsed is the realtime update-feed daemon for agency account consoles.
//
// It serves the daily update feed with AI classification, weekly AI
// digests, client tasks, per-session notification inboxes, and an SSE
// stream of record changes backed by NATS.
//
// Configuration is loaded from an optional YAML file and environment
// variables. See internal/config for details.
//
// Usage:
//
//	# Start daemon with defaults
//	pulsed
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9180 NATS_URL=nats://localhost:4222 pulsed
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pulsed/internal/classify"
	"github.com/fyrsmithlabs/pulsed/internal/config"
	"github.com/fyrsmithlabs/pulsed/internal/digest"
	"github.com/fyrsmithlabs/pulsed/internal/httpapi"
	"github.com/fyrsmithlabs/pulsed/internal/lifecycle"
	"github.com/fyrsmithlabs/pulsed/internal/logging"
	"github.com/fyrsmithlabs/pulsed/internal/notify"
	"github.com/fyrsmithlabs/pulsed/internal/store"
	"github.com/fyrsmithlabs/pulsed/internal/stream"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  pulsed           Start the pulsed daemon\n")
			fmt.Fprintf(os.Stderr, "  pulsed version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("pulsed by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the pulsed daemon and blocks until context cancellation.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Starting pulsed",
		zap.Int("port", cfg.Server.Port),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	deps, err := initDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	logger.Info("Dependencies initialized",
		zap.Bool("nats_connected", deps.natsConn != nil),
		zap.Bool("classifier_enabled", deps.classifier != nil))

	manager, err := lifecycle.NewManager(deps.records, deps.classifier, cfg.Feed.TriggerWords, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize lifecycle manager: %w", err)
	}

	generator, err := digest.NewGenerator(deps.records, deps.classifier, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize digest generator: %w", err)
	}

	hub, err := notify.NewHub(notify.HubOptions{
		Defaults: cfg.Notify.Settings(),
		Delivery: func(sessionID string) notify.Delivery {
			return notify.NewNATSDelivery(deps.natsConn, sessionID, logger)
		},
		Prompter: func(sessionID string) notify.Prompter {
			return notify.NewNATSPrompter(deps.natsConn, sessionID, 0, logger)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize notification hub: %w", err)
	}

	subscriber := stream.NewSubscriber(deps.natsConn, logger)

	srv, err := httpapi.NewServer(deps.records, manager, generator, hub, subscriber, logger, &httpapi.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// dependencies holds all infrastructure dependencies.
type dependencies struct {
	natsConn   *nats.Conn
	natsServer *natsserver.Server
	records    *store.SQLiteStore
	classifier classify.Classifier
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	if d.natsConn != nil {
		d.natsConn.Close()
	}
	if d.natsServer != nil {
		d.natsServer.Shutdown()
	}
	if d.records != nil {
		_ = d.records.Close()
	}
}

// initDependencies connects messaging, persistence, and the classifier.
func initDependencies(cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	natsURL := cfg.NATS.URL
	if cfg.NATS.Embedded {
		srv, err := natsserver.NewServer(&natsserver.Options{
			Host: "127.0.0.1",
			Port: -1, // random port
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedded NATS server: %w", err)
		}
		go srv.Start()
		if !srv.ReadyForConnections(5 * time.Second) {
			srv.Shutdown()
			return nil, fmt.Errorf("embedded NATS server failed to start")
		}
		deps.natsServer = srv
		natsURL = srv.ClientURL()
		logger.Info("Embedded NATS server started", zap.String("url", natsURL))
	}

	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
	)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}
	deps.natsConn = nc
	logger.Info("Connected to NATS", zap.String("url", natsURL))

	publisher := stream.NewPublisher(nc, logger)
	records, err := store.NewSQLiteStore(cfg.Store.Path, publisher)
	if err != nil {
		deps.Close()
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	deps.records = records
	logger.Info("Record store opened", zap.String("path", cfg.Store.Path))

	if !cfg.Classifier.Disabled {
		classifier, err := classify.NewClient(classify.Config{
			BaseURL:     cfg.Classifier.BaseURL,
			Model:       cfg.Classifier.Model,
			APIKey:      cfg.Classifier.APIKey,
			Temperature: 0.7,
		}, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize classifier: %w", err)
		}
		deps.classifier = classifier
	}

	return deps, nil
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mdobak/go-xerrors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/himanishpuri/soundmatch/internal/config"
	"github.com/himanishpuri/soundmatch/pkg/logger"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch"
	"github.com/himanishpuri/soundmatch/pkg/soundmatch/storage"
)

var (
	port           int
	dbPath         string
	configPath     string
	memory         bool
	allowedOrigins string
	sessionIdle    time.Duration
)

func registerFlags() {
	flag.IntVar(&port, "port", 8080, "HTTP server port")
	flag.StringVar(&dbPath, "db", config.GetEnvOrDefault(storage.DBPathEnv, storage.DefaultDBFile), "Path to SQLite database")
	flag.StringVar(&configPath, "config", config.GetEnvOrDefault(config.PathEnv, ""), "YAML file with fingerprint and query settings")
	flag.BoolVar(&memory, "memory", false, "Keep the index in memory instead of SQLite")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
	flag.DurationVar(&sessionIdle, "session-idle", 5*time.Minute, "Close realtime sessions idle for this long (0 disables)")
}

func main() {
	_ = godotenv.Load()

	registerFlags()
	flag.Parse()

	log := logger.GetLogger()

	cfg, err := config.Load(configPath)
	if err != nil {
		err := xerrors.New(err)
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			log.Fatalf("Invalid log level: %v", xerrors.New(err))
		}
		log.SetLevel(level)
	}

	// Parse allowed origins
	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []soundmatch.Option{
		soundmatch.WithDBPath(dbPath),
		soundmatch.WithFingerprintConfig(cfg.Fingerprint),
		soundmatch.WithQueryConfig(cfg.Query),
		soundmatch.WithRegisterer(registry),
	}
	if memory {
		opts = append(opts, soundmatch.WithStorage(storage.NewMemoryStorage()))
	}

	service, err := soundmatch.NewService(opts...)
	if err != nil {
		err := xerrors.New(err)
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	serverConfig := &ServerConfig{
		Port:           port,
		DBPath:         dbPath,
		Memory:         memory,
		AllowedOrigins: origins,
		SessionIdle:    sessionIdle,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, serverConfig, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if err := server.Start(ctx); err != nil {
		err := xerrors.New(err)
		log.Errorf("Server failed: %v", err)
		stop()
		service.Close()
		os.Exit(1)
	}
	log.Infof("Server stopped")
}

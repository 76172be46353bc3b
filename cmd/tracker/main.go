package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/liqwatch/liqwatch/internal/infrastructure/logger"
	"github.com/liqwatch/liqwatch/internal/infrastructure/notify"
	"github.com/liqwatch/liqwatch/internal/infrastructure/pricefeed"
	"github.com/liqwatch/liqwatch/internal/infrastructure/storage"
	"github.com/liqwatch/liqwatch/internal/usecase"
	"github.com/liqwatch/liqwatch/internal/web"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Feed struct {
		BaseURL         string `yaml:"base_url"`
		WSEndpoint      string `yaml:"ws_endpoint"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"feed"`
	Refresh struct {
		IntervalSeconds     int `yaml:"interval_seconds"`
		FetchTimeoutSeconds int `yaml:"fetch_timeout_seconds"`
	} `yaml:"refresh"`
	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`
	Logging struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
}

func loadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	// .env overrides, if present
	_ = godotenv.Load()

	cfg, err := loadConfig("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if v := os.Getenv("LIQWATCH_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("LIQWATCH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	var log *zap.Logger
	if cfg.Logging.File != "" {
		log, err = logger.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logger.NewLogger(cfg.Logging.Level)
	}
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	dbPath := cfg.Storage.Path
	if dbPath == "" {
		dbPath = "positions.db"
	}
	store, err := storage.NewSQLiteStore(dbPath, log)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	cacheTTL := time.Duration(cfg.Feed.CacheTTLSeconds) * time.Second
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	feed := pricefeed.NewBybitFeed(cfg.Feed.BaseURL, cfg.Feed.WSEndpoint, cacheTTL, log)
	defer feed.Close()

	notifier := notify.NewMulti(notify.NewZapNotifier(log))

	portfolio := usecase.NewPortfolioService(store, log)
	if err := portfolio.Load(context.Background()); err != nil {
		log.Error("Failed to load portfolio", zap.Error(err))
	}

	interval := time.Duration(cfg.Refresh.IntervalSeconds) * time.Second
	if interval == 0 {
		interval = 30 * time.Second
	}
	fetchTimeout := time.Duration(cfg.Refresh.FetchTimeoutSeconds) * time.Second
	if fetchTimeout == 0 {
		fetchTimeout = 5 * time.Second
	}

	refresher := usecase.NewRefresher(feed, portfolio, notifier, log, interval, fetchTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	refresher.Start(ctx)

	// Warm the live stream for whatever was restored from storage.
	if symbols := portfolio.OpenSymbols(); len(symbols) > 0 {
		if err := feed.Subscribe(symbols); err != nil {
			log.Warn("Failed to open price stream, falling back to polling", zap.Error(err))
		}
	}

	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	server := web.NewServer(port, portfolio, refresher, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info("Shutting down...")
	refresher.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Shutdown error", zap.Error(err))
	}
}

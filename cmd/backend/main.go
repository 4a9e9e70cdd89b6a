package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/backend"
	"qanda/pkg/moderation"
	"qanda/pkg/storage"
	"qanda/pkg/storage/memdb"
	"qanda/pkg/storage/mongo"
	"qanda/pkg/storage/postgres"
)

type Config struct {
	ServiceName string `toml:"serviceName"`

	HTTPAddr string `toml:"httpAddr"`
	LogLevel string `toml:"logLevel"`

	Storage         string `toml:"storage"`
	SeedPath        string `toml:"seedPath"`
	BannedWordsPath string `toml:"bannedWordsPath"`

	// Tokens maps bearer tokens to the email of their user.
	Tokens map[string]string `toml:"tokens"`
}

func main() {
	var (
		configPath  string
		httpAddr    string
		logLevel    string
		storageKind string
		seedPath    string
	)

	flag.StringVar(&configPath, "config", "cmd/backend/config.toml", "Path to TOML config file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&storageKind, "storage", "", "Storage: memdb, mongo, postgres.")
	flag.StringVar(&seedPath, "seed", "", "Path to JSON file with comments to import on start.")
	flag.Parse()

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		log.Fatalf("[backend] failed to load config file %s: %v", configPath, err)
	}

	// Override config with flags if set
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if storageKind != "" {
		cfg.Storage = storageKind
	}
	if seedPath != "" {
		cfg.SeedPath = seedPath
	}

	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, closeDB, err := openStorage(ctx, cfg.Storage)
	cancel()
	if err != nil {
		log.Fatalf("[backend] failed to initialize %s storage: %v", cfg.Storage, err)
	}
	defer closeDB()

	if cfg.SeedPath != "" {
		if err := seed(db, cfg.SeedPath); err != nil {
			log.Errorf("[backend] failed to import %s: %v", cfg.SeedPath, err)
		}
	}

	var mod backend.Moderator
	if cfg.BannedWordsPath != "" {
		f := moderation.New()
		if err := f.LoadFromJSON(cfg.BannedWordsPath); err != nil {
			log.Fatalf("[backend] failed to load banned words %s: %v", cfg.BannedWordsPath, err)
		}
		mod = f
	}
	if len(cfg.Tokens) == 0 {
		log.Warn("[backend] no tokens configured, every POST will be rejected")
	}

	api := backend.New(db, mod, cfg.Tokens)
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[backend] starting on port %v with %s storage", cfg.HTTPAddr, cfg.Storage)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[backend] failed to start: %v", err)
			return
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[backend] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[backend] HTTP server shut down gracefully")
	}
}

func openStorage(ctx context.Context, kind string) (storage.Storage, func(), error) {
	switch kind {
	case "", "memdb":
		return memdb.New(), func() {}, nil

	case "mongo":
		conf, err := mongo.NewConfig()
		if err != nil {
			return nil, nil, err
		}
		db, err := mongo.New(ctx, conf)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
		}
		if err := db.Ping(ctx); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrDBNotResponding, err)
		}
		log.Debugf("[backend] connected to Mongo %v", conf)

		return db, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			db.Close(ctx)
			log.Info("[backend] disconnected from DB")
		}, nil

	case "postgres":
		conf := postgres.NewConfig()
		if !conf.IsValid() {
			return nil, nil, fmt.Errorf("invalid postgres config: %v", conf)
		}
		db, err := postgres.New(ctx, conf.ConString())
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrConnectDB, err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("%w: %v", storage.ErrDBNotResponding, err)
		}
		if err := db.Init(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		log.Debugf("[backend] connected to Postgres %v", conf)

		return db, func() {
			db.Close()
			log.Info("[backend] disconnected from DB")
		}, nil
	}

	return nil, nil, fmt.Errorf("unknown storage %q", kind)
}

func seed(db storage.Storage, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var comments []storage.Comment
	if err := json.Unmarshal(data, &comments); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.ImportComments(ctx, comments); err != nil {
		return err
	}
	log.Infof("[backend] imported %d comments from %s", len(comments), path)

	return nil
}

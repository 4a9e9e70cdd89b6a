package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/api"
	"qanda/pkg/client"
	"qanda/pkg/discussion"
	"qanda/pkg/events"
)

type Config struct {
	ServiceName string `toml:"serviceName"`

	HTTPAddr string `toml:"httpAddr"`
	LogLevel string `toml:"logLevel"`

	BackendURL         string        `toml:"backendURL"`
	BackendTimeout     time.Duration `toml:"backendTimeout"`
	SessionIdleTimeout time.Duration `toml:"sessionIdleTimeout"`

	KafkaAddr       string `toml:"kafkaAddr"`
	KafkaLogTopic   string `toml:"kafkaLogTopic"`
	KafkaEventTopic string `toml:"kafkaEventTopic"`
	KafkaBatch      int    `toml:"kafkaBatch"`
}

func main() {
	var (
		configPath string
		httpAddr   string
		logLevel   string
		backendURL string
		kafkaAddr  string
	)

	flag.StringVar(&configPath, "config", "cmd/shell/config.toml", "Path to TOML config file")
	flag.StringVar(&httpAddr, "http", "", "HTTP server address in the form 'host:port'.")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.StringVar(&backendURL, "backend", "", "Campaign backend base URL.")
	flag.StringVar(&kafkaAddr, "kafka", "", "Kafka server address in the form 'host:port'.")
	flag.Parse()

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		log.Fatalf("[shell] failed to load config file %s: %v", configPath, err)
	}

	// Override config with flags if set
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if backendURL != "" {
		cfg.BackendURL = backendURL
	}
	if kafkaAddr != "" {
		cfg.KafkaAddr = kafkaAddr
	}

	if !strings.Contains(cfg.HTTPAddr, ":") {
		log.Warn("[shell] use ':' before port number, e.g. ':8080'")
	}
	if cfg.BackendURL == "" {
		log.Fatal("[shell] backend URL is not configured")
	}
	if cfg.SessionIdleTimeout <= 0 {
		cfg.SessionIdleTimeout = 30 * time.Minute
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

	var (
		logWriter *kafka.Writer
		publisher events.Publisher = events.Nop{}
	)
	if cfg.KafkaAddr != "" {
		if cfg.KafkaLogTopic != "" {
			logWriter = newKafkaWriter(cfg.KafkaAddr, cfg.KafkaLogTopic, cfg.KafkaBatch)
			defer logWriter.Close()
		}
		if cfg.KafkaEventTopic != "" {
			p := events.NewKafkaPublisher(newKafkaWriter(cfg.KafkaAddr, cfg.KafkaEventTopic, cfg.KafkaBatch))
			defer p.Close()
			publisher = p
		}
	} else {
		log.Warnf("[shell] kafka was not configured, logs and events will not be sent to Kafka")
	}

	views := discussion.NewRegistry(client.New(cfg.BackendURL, cfg.BackendTimeout), publisher)
	api := api.New(cfg.ServiceName, views, logWriter)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Infof("[shell] starting on port %v, backend %s", cfg.HTTPAddr, cfg.BackendURL)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[shell] failed to start: %v", err)
			return
		}
	}()

	evictDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cfg.SessionIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := views.Evict(cfg.SessionIdleTimeout); n > 0 {
					log.Infof("[shell] unmounted %d idle discussions", n)
				}
			case <-evictDone:
				return
			}
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	close(evictDone)

	shutdownCtx, shutdownRelease := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownRelease()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("[shell] HTTP server shutdown error: %v", err)
	} else {
		log.Info("[shell] HTTP server shut down gracefully")
	}
}

func newKafkaWriter(addr, topic string, batch int) *kafka.Writer {
	w := &kafka.Writer{
		Addr:      kafka.TCP(addr),
		Topic:     topic,
		BatchSize: batch,
	}
	if err := events.CreateTopic(addr, topic); err != nil {
		log.Warnf("[shell] failed to create Kafka topic %s: %v", topic, err)
	}

	return w
}

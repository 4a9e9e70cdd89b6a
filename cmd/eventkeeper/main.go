package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"qanda/pkg/logger"
)

type Config struct {
	LogLevel     string   `toml:"logLevel"`
	KafkaBrokers []string `toml:"kafkaBrokers"`
	KafkaGroupID string   `toml:"kafkaGroupID"`

	ElasticSearchNodes []string `toml:"elasticSearchNodes"`
	// Indices maps each consumed topic to its Elasticsearch index.
	Indices map[string]string `toml:"indices"`

	NumWorkers int `toml:"numWorkers"`
}

func main() {
	var (
		configPath string
		logLevel   string
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("[eventkeeper] shutting down gracefully...")
		cancel()
	}()

	flag.StringVar(&configPath, "config", "cmd/eventkeeper/config.toml", "Path to TOML config file")
	flag.StringVar(&logLevel, "log", "", "Log level: debug, info, warn, error.")
	flag.Parse()

	var cfg Config
	if _, err := toml.DecodeFile(configPath, &cfg); err != nil {
		log.Fatalf("[eventkeeper] failed to load config file %s: %v", configPath, err)
	}

	// Override config with flags if set
	if logLevel != "" {
		cfg.LogLevel = logLevel
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

	if len(cfg.Indices) == 0 {
		log.Fatal("[eventkeeper] no topics configured")
	}
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.ElasticSearchNodes})
	if err != nil {
		log.Fatalf("[eventkeeper] error creating the client: %s", err)
	}

	topics := make([]string, 0, len(cfg.Indices))
	for topic := range cfg.Indices {
		topics = append(topics, topic)
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		GroupTopics: topics,
		GroupID:     cfg.KafkaGroupID,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
	})
	defer r.Close()

	jobs := make(chan kafka.Message, cfg.NumWorkers*5)
	var wg sync.WaitGroup
	wg.Add(cfg.NumWorkers)
	for workerID := 0; workerID < cfg.NumWorkers; workerID++ {
		go func(id int) {
			defer wg.Done()
			indexWorker(ctx, es, jobs, cfg.Indices, id)
		}(workerID)
	}

	log.Infof("[eventkeeper] accepting messages from %v...", topics)
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			log.Errorf("[eventkeeper] failed to read message from Kafka: %v", err)
			continue
		}
		log.Debugf("[eventkeeper] received message from %s: %s", msg.Topic, string(msg.Value))

		jobs <- msg
	}

	close(jobs)
	wg.Wait()
}

func indexWorker(ctx context.Context, es *elasticsearch.Client, jobs <-chan kafka.Message, indices map[string]string, workerID int) {
	for {
		select {
		case <-ctx.Done():
			log.Infof("[eventkeeper][workerID:%d] context cancelled, exiting worker", workerID)
			return

		case msg, ok := <-jobs:
			if !ok {
				log.Infof("[eventkeeper][workerID:%d] jobs channel closed, exiting worker", workerID)
				return
			}

			index, ok := indices[msg.Topic]
			if !ok {
				log.Warnf("[eventkeeper][workerID:%d] no index for topic %s", workerID, msg.Topic)
				continue
			}

			docID, err := documentID(msg.Value)
			if err != nil {
				log.Errorf("[eventkeeper][workerID:%d] failed to unmarshal message: %v", workerID, err)
				continue
			}

			res, err := es.Index(
				index,
				bytes.NewReader(msg.Value),
				es.Index.WithDocumentID(docID),
				es.Index.WithContext(ctx),
			)
			if res != nil {
				res.Body.Close()
			}
			if err != nil || (res != nil && res.IsError()) {
				log.Errorf("[eventkeeper][workerID:%d] failed to index document %s: %v", workerID, logger.Shorten(docID), err)
			} else {
				log.Debugf("[eventkeeper][workerID:%d][%s] document indexed in %s", workerID, logger.Shorten(docID), index)
			}
		}
	}
}

// document holds the fields of discussion events and access log entries that identify them.
type document struct {
	ID        string `json:"id"`
	Service   string `json:"service"`
	RequestID string `json:"request_id"`
}

// documentID keeps redelivered messages from being indexed twice. Discussion events carry
// their own ID, access log entries are identified by service and request.
func documentID(value []byte) (string, error) {
	var d document
	if err := json.Unmarshal(value, &d); err != nil {
		return "", err
	}
	if d.ID != "" {
		return d.ID, nil
	}
	if d.RequestID != "" {
		return d.Service + d.RequestID, nil
	}

	return "", errors.New("message has neither id nor request_id")
}

// Package events ships discussion activity to Kafka for indexing.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

const (
	TypeLoaded      = "discussion.loaded"
	TypeLoadFailed  = "discussion.load_failed"
	TypeSubmitted   = "comment.submitted"
	TypePlaceholder = "comment.placeholder"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	CampaignID string    `json:"campaign_id"`
	CommentID  string    `json:"comment_id,omitempty"`
	ParentID   string    `json:"parent_id,omitempty"`
	Count      int       `json:"count,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// New returns an event of the given type stamped with a fresh ID and the current time.
func New(typ, campaignID string) Event {
	e := Event{Type: typ, CampaignID: campaignID, Timestamp: time.Now().UTC()}
	if id, err := uuid.NewV4(); err == nil {
		e.ID = id.String()
	}
	return e
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Publish writes the event keyed by campaign, so events of one discussion stay ordered.
func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	err = p.w.WriteMessages(ctx, kafka.Message{Key: []byte(e.CampaignID), Value: b})
	if err != nil {
		return err
	}
	log.Debugf("[events] %s for campaign %s sent to Kafka", e.Type, e.CampaignID)

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// CreateTopic creates a single-partition topic on broker.
func CreateTopic(broker, topic string) error {
	conn, err := kafka.DialContext(context.Background(), "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
}

package mykafka

import (
	"context"
	"time"

	"github.com/Skotchmaster/bookstore/internal/logging"
)

const publishTimeout = 5 * time.Second

type Publisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any) error
}

type Event struct {
	Type string         `json:"type"`
	At   time.Time      `json:"at"`
	Data map[string]any `json:"data"`
}

func NewEvent(typ string, data map[string]any) Event {
	return Event{Type: typ, At: time.Now().UTC(), Data: data}
}

// Publish sends ev after the caller's work has already succeeded. Failures
// are logged and swallowed.
func Publish(ctx context.Context, p Publisher, topic, key string, ev Event) {
	if p == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := p.PublishEvent(pctx, topic, key, ev); err != nil {
		logging.FromContext(ctx).Error("kafka_publish_error", "topic", topic, "type", ev.Type, "error", err)
	}
}

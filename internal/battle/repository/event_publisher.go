package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"codeverse/internal/battle/model"
	"codeverse/internal/common/mq"
)

// EventPublisher announces terminal battle states on the event stream so
// downstream consumers (rating, history, notifications) can react.
type EventPublisher interface {
	PublishBattleEnded(ctx context.Context, event model.BattleEndedEvent) error
}

// MQEventPublisher implements EventPublisher over a message queue producer.
type MQEventPublisher struct {
	producer mq.Producer
	topic    string
}

// NewEventPublisher creates a publisher bound to one topic.
func NewEventPublisher(producer mq.Producer, topic string) (*MQEventPublisher, error) {
	if producer == nil {
		return nil, errors.New("producer is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &MQEventPublisher{producer: producer, topic: topic}, nil
}

// PublishBattleEnded publishes one battle-ended event.
func (p *MQEventPublisher) PublishBattleEnded(ctx context.Context, event model.BattleEndedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.producer.Publish(ctx, p.topic, &mq.Message{
		ID:        uuid.NewString(),
		Body:      body,
		Headers:   map[string]string{"event-type": "battle.ended"},
		Timestamp: time.Now(),
	})
}

// Package events publishes best-effort turn/document lifecycle events to
// RabbitMQ, adapting the teacher's publishDocumentEvent
// (go-enhanced-rag-service/main.go: amqp.Dial + channel.Publish to a fixed
// queue). The retrieval core never depends on delivery: Publisher degrades
// to a no-op when RabbitMQ is unconfigured, so this never becomes a write
// path for routing or generation.
package events

import (
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	// EventDocumentIngested fires when the offline build tool adds a document.
	EventDocumentIngested = "document.ingested"
	// EventTurnCompleted fires after the orchestrator finishes a turn.
	EventTurnCompleted = "turn.completed"
)

// Publisher is the contract consumed by the orchestrator.
type Publisher interface {
	Publish(event string, payload interface{})
}

// NoopPublisher discards every event; used when RABBITMQ_URL is unset.
type NoopPublisher struct{}

func (NoopPublisher) Publish(string, interface{}) {}

// AMQPPublisher publishes events to a fixed "legal_rag.events" queue.
type AMQPPublisher struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
}

// NewAMQPPublisher dials url and opens a channel, mirroring the teacher's
// connection setup in NewEnhancedRAGService.
func NewAMQPPublisher(url string, logger *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare("legal_rag.events", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, channel: ch, logger: logger}, nil
}

// Publish marshals (event, payload, timestamp) and fires it at the queue,
// logging (not failing) on error — matching the teacher's fire-and-forget
// publishDocumentEvent.
func (p *AMQPPublisher) Publish(event string, payload interface{}) {
	body, err := json.Marshal(map[string]interface{}{
		"event":     event,
		"payload":   payload,
		"timestamp": time.Now(),
	})
	if err != nil {
		p.logger.Warn("event marshal failed", zap.String("event", event), zap.Error(err))
		return
	}

	err = p.channel.Publish("", "legal_rag.events", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		p.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
	}
}

// Close tears down the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.channel.Close()
	return p.conn.Close()
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)

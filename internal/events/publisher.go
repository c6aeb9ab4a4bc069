package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 5 * time.Second

type channelSource interface {
	Get() (*amqp.Channel, error)
	Put(ch *amqp.Channel)
}

type AMQPPublisher struct {
	pool      channelSource
	queueName string
	log       *zap.Logger
}

func NewAMQPPublisher(pool *ChannelPool, queueName string, log *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{pool: pool, queueName: queueName, log: log}
}

// Publish sends ev as a persistent JSON message to the queue via the default
// exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ch, err := p.pool.Get()
	if err != nil {
		return fmt.Errorf("get channel: %w", err)
	}
	defer p.pool.Put(ch)

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = ch.PublishWithContext(ctx,
		"",
		p.queueName,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Type:         ev.Type,
			Timestamp:    ev.OccurredAt,
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}

	p.log.Debug("event published", zap.String("type", ev.Type), zap.String("product_id", ev.ProductID))
	return nil
}

// Instrumented counts publish outcomes per event type.
type Instrumented struct {
	next      Publisher
	published *prometheus.CounterVec
}

func NewInstrumented(next Publisher, reg prometheus.Registerer) *Instrumented {
	c := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_events_published_total",
			Help: "Catalog events handed to the broker",
		},
		[]string{"type", "result"},
	)
	reg.MustRegister(c)
	return &Instrumented{next: next, published: c}
}

func (p *Instrumented) Publish(ctx context.Context, ev Event) error {
	err := p.next.Publish(ctx, ev)
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.published.WithLabelValues(ev.Type, result).Inc()
	return err
}

// Package events publishes catalog change notifications.
package events

import (
	"context"
	"time"
)

const (
	ProductCreated = "product.created"
	ProductUpdated = "product.updated"
	ProductDeleted = "product.deleted"
)

type Event struct {
	Type       string    `json:"type"`
	ProductID  string    `json:"product_id"`
	Product    any       `json:"product,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(typ, productID string, product any) Event {
	return Event{
		Type:       typ,
		ProductID:  productID,
		Product:    product,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop drops every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

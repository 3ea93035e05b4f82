package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"order-service/internal/model"
)

const (
	// Routing keys
	OrderPlacedRoutingKey    = "order.placed"
	OrderCancelledRoutingKey = "order.cancelled"
)

// OrderEvent is the payload published on order lifecycle transitions.
type OrderEvent struct {
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	CustomerID  uint      `json:"customer_id"`
	TotalAmount string    `json:"total_amount"`
	Lines       []Line    `json:"lines,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Line is one order line in an event payload.
type Line struct {
	ProductID uint   `json:"product_id"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
}

// Publisher emits order lifecycle events. Implementations must never be called
// inside the placement transaction; events go out only after commit.
type Publisher interface {
	OrderPlaced(ctx context.Context, order *model.Order) error
	OrderCancelled(ctx context.Context, order *model.Order) error
	Close() error
}

// NopPublisher drops all events. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) OrderPlaced(context.Context, *model.Order) error { return nil }

func (NopPublisher) OrderCancelled(context.Context, *model.Order) error { return nil }

func (NopPublisher) Close() error { return nil }

// AMQPPublisher publishes order events to a RabbitMQ topic exchange.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.Logger
}

// NewAMQPPublisher connects to the broker with exponential backoff and
// declares the topic exchange.
func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		conn *amqp.Connection
		err  error
	)
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		retryTime := time.Duration(i*i)*time.Second + time.Second
		log.Warn("failed to connect to broker, retrying",
			zap.Duration("retry_in", retryTime),
			zap.Error(err))
		time.Sleep(retryTime)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to broker after retries: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = channel.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, channel: channel, exchange: exchange, log: log}, nil
}

func (p *AMQPPublisher) OrderPlaced(ctx context.Context, order *model.Order) error {
	return p.publish(ctx, OrderPlacedRoutingKey, eventFromOrder(order, true))
}

func (p *AMQPPublisher) OrderCancelled(ctx context.Context, order *model.Order) error {
	return p.publish(ctx, OrderCancelledRoutingKey, eventFromOrder(order, false))
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	return p.conn.Close()
}

func (p *AMQPPublisher) publish(ctx context.Context, routingKey string, event OrderEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.log.Debug("event published",
		zap.String("routing_key", routingKey),
		zap.Uint("order_id", event.OrderID))
	return nil
}

func eventFromOrder(order *model.Order, withLines bool) OrderEvent {
	event := OrderEvent{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		CustomerID:  order.CustomerID,
		TotalAmount: order.TotalAmount.String(),
		OccurredAt:  time.Now(),
	}
	if withLines {
		for _, d := range order.Details {
			event.Lines = append(event.Lines, Line{
				ProductID: d.ProductID,
				Quantity:  d.Quantity,
				UnitPrice: d.UnitPrice.String(),
			})
		}
	}
	return event
}

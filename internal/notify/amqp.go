package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shopspring/decimal"

	"github.com/shukshop/storefront/internal/domain/order"
)

// orderEvent is the wire form of an order-created event consumed by
// downstream fulfillment workers.
type orderEvent struct {
	OrderID        string          `json:"order_id"`
	TransactionID  string          `json:"transaction_id"`
	Items          []orderLine     `json:"items"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingMethod string          `json:"shipping_method"`
	FinalTotal     decimal.Decimal `json:"final_total"`
	CreatedAt      time.Time       `json:"created_at"`
}

type orderLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Publisher emits order-created events to a durable AMQP queue. It
// implements order.Notifier.
type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

var _ order.Notifier = (*Publisher)(nil)

// NewPublisher connects to the broker and declares the durable queue.
func NewPublisher(url, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial amqp")
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, errors.Wrap(err, "declare queue")
	}

	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// OrderCreated publishes a persistent order-created event.
func (p *Publisher) OrderCreated(ctx context.Context, o *order.Order) error {
	lines := make([]orderLine, len(o.Items))
	for i, it := range o.Items {
		lines[i] = orderLine{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	body, err := json.Marshal(orderEvent{
		OrderID:        o.ID,
		TransactionID:  o.TransactionID,
		Items:          lines,
		CouponCode:     o.CouponCode,
		DiscountAmount: o.DiscountAmount,
		ShippingMethod: string(o.ShippingMethod),
		FinalTotal:     o.FinalTotal,
		CreatedAt:      o.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal event")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return errors.Wrap(err, "publish event")
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	if err := p.ch.Close(); err != nil {
		_ = p.conn.Close()
		return errors.Wrap(err, "close channel")
	}
	return p.conn.Close()
}

// Package broker defines the durable point-to-point queue abstraction the
// stage workers consume from. Delivery is at-least-once: a message stays owned
// by the broker until it is acked, and a requeued message is delivered again.
package broker

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrClosed         = errors.New("broker closed")
	ErrAlreadySettled = errors.New("delivery already settled")
)

type Broker interface {
	Publish(ctx context.Context, queue string, body []byte) error
	// Subscribe attaches a consumer to queue. At most prefetch deliveries are
	// outstanding (unsettled) at a time.
	Subscribe(ctx context.Context, queue string, prefetch int) (Subscription, error)
	Close() error
}

type Subscription interface {
	// Next blocks until a delivery is available. A non-nil error other than a
	// ctx error means the subscription is gone and must be recreated.
	Next(ctx context.Context) (*Delivery, error)
	Close() error
}

// Acknowledger settles a delivery with the driver that produced it.
type Acknowledger interface {
	Ack() error
	Nack(requeue bool) error
}

type Delivery struct {
	Queue       string
	Body        []byte
	Redelivered bool

	acker   Acknowledger
	mu      sync.Mutex
	settled bool
}

func NewDelivery(queue string, body []byte, redelivered bool, acker Acknowledger) *Delivery {
	return &Delivery{Queue: queue, Body: body, Redelivered: redelivered, acker: acker}
}

// Ack removes the message from the queue.
func (d *Delivery) Ack() error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.acker.Ack()
}

// Nack returns the message to the queue when requeue is true, otherwise it is
// dead-lettered where the driver supports it and dropped.
func (d *Delivery) Nack(requeue bool) error {
	if err := d.settle(); err != nil {
		return err
	}
	return d.acker.Nack(requeue)
}

func (d *Delivery) settle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.settled {
		return ErrAlreadySettled
	}
	d.settled = true
	return nil
}

// Package rabbitmqtest provides an in-memory broker implementing the rabbitmq
// Connection and Channel interfaces for tests.
package rabbitmqtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-relay/internal/common/rabbitmq"
)

// Published is one recorded publish.
type Published struct {
	Exchange string
	Key      string
	Msg      amqp.Publishing
}

// Broker records topology and traffic across every connection it hands out.
type Broker struct {
	mu sync.Mutex

	dialErrs []error
	dials    int

	declared     map[string]int
	durable      map[string]bool
	published    []Published
	prefetch     []int
	consumeCalls int
	consumers    map[string]chan amqp.Delivery
	openConns    int
	nextTag      uint64

	// Injected failures.
	ChannelErr error
	PublishErr error
	ConsumeErr error

	Acks *Acknowledger
}

func NewBroker() *Broker {
	return &Broker{
		declared:  make(map[string]int),
		durable:   make(map[string]bool),
		consumers: make(map[string]chan amqp.Delivery),
		Acks:      NewAcknowledger(),
	}
}

// FailDials makes the next n dial attempts return err.
func (b *Broker) FailDials(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < n; i++ {
		b.dialErrs = append(b.dialErrs, err)
	}
}

// Dial implements rabbitmq.Dialer.
func (b *Broker) Dial(url string) (rabbitmq.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if len(b.dialErrs) > 0 {
		err := b.dialErrs[0]
		b.dialErrs = b.dialErrs[1:]
		return nil, err
	}
	b.openConns++
	return &Connection{broker: b}, nil
}

func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// OpenConnections is the number of connections not yet closed.
func (b *Broker) OpenConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openConns
}

// DeclareCount returns how many times name was declared.
func (b *Broker) DeclareCount(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.declared[name]
}

func (b *Broker) Durable(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.durable[name]
}

func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

func (b *Broker) Prefetch() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]int(nil), b.prefetch...)
}

func (b *Broker) ConsumeCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consumeCalls
}

// HasConsumer reports whether a live consumer is attached to queue.
func (b *Broker) HasConsumer(queue string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.consumers[queue]
	return ok
}

// Deliver pushes body to the live consumer of queue and returns its delivery tag.
func (b *Broker) Deliver(queue string, body []byte) (uint64, error) {
	b.mu.Lock()
	ch, ok := b.consumers[queue]
	b.nextTag++
	tag := b.nextTag
	b.mu.Unlock()

	if !ok {
		return 0, fmt.Errorf("no consumer on %s", queue)
	}

	d := amqp.Delivery{
		Acknowledger: b.Acks,
		DeliveryTag:  tag,
		ContentType:  "application/json",
		MessageId:    fmt.Sprintf("msg-%d", tag),
		RoutingKey:   queue,
		Body:         body,
	}

	select {
	case ch <- d:
		return tag, nil
	case <-time.After(2 * time.Second):
		return 0, fmt.Errorf("delivery to %s timed out", queue)
	}
}

// DropConsumer closes the delivery stream of queue, ending the consumer session.
func (b *Broker) DropConsumer(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.consumers[queue]; ok {
		close(ch)
		delete(b.consumers, queue)
	}
}

// Connection is a fake rabbitmq.Connection.
type Connection struct {
	broker    *Broker
	mu        sync.Mutex
	closed    bool
	listeners []chan *amqp.Error
}

func (c *Connection) Channel() (rabbitmq.Channel, error) {
	if err := c.broker.ChannelErr; err != nil {
		return nil, err
	}
	return &Channel{broker: c.broker}, nil
}

func (c *Connection) NotifyClose(ch chan *amqp.Error) chan *amqp.Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, ch)
	return ch
}

// Fail simulates a broker-side connection loss.
func (c *Connection) Fail(reason string) {
	c.mu.Lock()
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()
	for _, l := range listeners {
		l <- &amqp.Error{Code: amqp.ConnectionForced, Reason: reason}
	}
}

func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return amqp.ErrClosed
	}
	c.closed = true
	for _, l := range c.listeners {
		close(l)
	}
	c.listeners = nil

	c.broker.mu.Lock()
	c.broker.openConns--
	c.broker.mu.Unlock()
	return nil
}

func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Channel is a fake rabbitmq.Channel.
type Channel struct {
	broker *Broker
	queue  string
}

func (ch *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.declared[name]++
	b.durable[name] = durable && !autoDelete && !exclusive
	return amqp.Queue{Name: name}, nil
}

func (ch *Channel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, Published{Exchange: exchange, Key: key, Msg: msg})
	return nil
}

func (ch *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prefetch = append(b.prefetch, prefetchCount)
	return nil
}

func (ch *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consumeCalls++
	if b.ConsumeErr != nil {
		return nil, b.ConsumeErr
	}
	if autoAck {
		return nil, fmt.Errorf("auto-ack consumers are not supported by the fake broker")
	}
	d := make(chan amqp.Delivery)
	b.consumers[queue] = d
	ch.queue = queue
	return d, nil
}

func (ch *Channel) NotifyClose(c chan *amqp.Error) chan *amqp.Error {
	return c
}

func (ch *Channel) Close() error {
	if ch.queue == "" {
		return nil
	}
	b := ch.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.consumers[ch.queue]; ok {
		close(d)
		delete(b.consumers, ch.queue)
	}
	return nil
}

// Acknowledger records acknowledgements for deliveries made by the broker or by hand.
type Acknowledger struct {
	mu       sync.Mutex
	acked    []uint64
	nacked   []uint64
	rejected []uint64
	requeued []bool

	AckErr  error
	NackErr error
}

func NewAcknowledger() *Acknowledger {
	return &Acknowledger{}
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.AckErr != nil {
		return a.AckErr
	}
	a.acked = append(a.acked, tag)
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.NackErr != nil {
		return a.NackErr
	}
	a.nacked = append(a.nacked, tag)
	a.requeued = append(a.requeued, requeue)
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rejected = append(a.rejected, tag)
	a.requeued = append(a.requeued, requeue)
	return nil
}

func (a *Acknowledger) Acked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.acked...)
}

func (a *Acknowledger) Nacked() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint64(nil), a.nacked...)
}

// Requeued lists the requeue flag of every nack and reject, in order.
func (a *Acknowledger) Requeued() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.requeued...)
}

// Delivery builds a delivery acknowledged through a.
func (a *Acknowledger) Delivery(tag uint64, body []byte) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: a,
		DeliveryTag:  tag,
		ContentType:  "application/json",
		MessageId:    fmt.Sprintf("msg-%d", tag),
		Body:         body,
	}
}

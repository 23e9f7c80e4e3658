package rabbitmq

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/metrics"
	"notification-relay/internal/common/retry"
)

// State is a consumer supervisor state.
type State string

const (
	StateStarting      State = "STARTING"
	StateConnected     State = "CONNECTED"
	StateConsuming     State = "CONSUMING"
	StateFatalError    State = "FATAL_ERROR"
	StateUnrecoverable State = "UNRECOVERABLE"
	StateStopped       State = "STOPPED"
)

var allStates = []string{
	string(StateStarting),
	string(StateConnected),
	string(StateConsuming),
	string(StateFatalError),
	string(StateUnrecoverable),
	string(StateStopped),
}

// ErrDeliveriesClosed ends a session when the broker closes the delivery stream.
var ErrDeliveriesClosed = stderrors.New("delivery channel closed")

// Handler processes one delivery. It owns acknowledgement; a returned error ends the session.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}

type HandlerFunc func(ctx context.Context, d amqp.Delivery) error

func (f HandlerFunc) Handle(ctx context.Context, d amqp.Delivery) error {
	return f(ctx, d)
}

type ConsumerConfig struct {
	Queue       string
	ConsumerTag string
	Prefetch    int
	Backoff     *retry.Backoff
	// MaxRestarts bounds consecutive restarts; 0 means unbounded.
	MaxRestarts int
	// StableAfter resets the restart count once a session has consumed this long.
	StableAfter time.Duration
}

// Consumer runs consume sessions and restarts them with bounded backoff.
type Consumer struct {
	client  *Client
	cfg     ConsumerConfig
	handler Handler
	logger  logger.Logger
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	mu       sync.RWMutex
	state    State
	restarts int
	onState  func(State)
}

type ConsumerOption func(*Consumer)

// WithRestartSleep replaces the wait between sessions.
func WithRestartSleep(fn func(ctx context.Context, d time.Duration) error) ConsumerOption {
	return func(c *Consumer) { c.sleep = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) { c.now = now }
}

// WithStateListener is called on every state transition.
func WithStateListener(fn func(State)) ConsumerOption {
	return func(c *Consumer) { c.onState = fn }
}

func NewConsumer(client *Client, cfg ConsumerConfig, handler Handler, log logger.Logger, opts ...ConsumerOption) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.DefaultBackoff()
	}
	c := &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  log.Named("consumer").WithFields(map[string]interface{}{"queue": cfg.Queue}),
		sleep:   retry.Sleep,
		now:     time.Now,
		state:   StateStarting,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Consumer) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Restarts returns the current consecutive restart count.
func (c *Consumer) Restarts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.restarts
}

func (c *Consumer) setState(s State) {
	c.mu.Lock()
	c.state = s
	listener := c.onState
	c.mu.Unlock()

	metrics.SetConsumerState(string(s), allStates)
	if listener != nil {
		listener(s)
	}
}

// Run blocks until ctx is cancelled (returns nil) or the restart ceiling is
// exceeded (returns a CONSUMER_UNRECOVERABLE error).
func (c *Consumer) Run(ctx context.Context) error {
	for {
		c.setState(StateStarting)

		consumed, err := c.session(ctx)
		if ctx.Err() != nil {
			c.setState(StateStopped)
			c.logger.Info("Consumer stopped", nil)
			return nil
		}

		c.setState(StateFatalError)

		c.mu.Lock()
		if c.cfg.StableAfter > 0 && consumed >= c.cfg.StableAfter {
			c.restarts = 0
		}
		attempt := c.restarts
		c.mu.Unlock()

		if c.cfg.MaxRestarts > 0 && attempt >= c.cfg.MaxRestarts {
			c.setState(StateUnrecoverable)
			c.logger.WithError(err).Error("Consumer restart ceiling reached", map[string]interface{}{
				"restarts": attempt,
			})
			return errors.NewConsumerUnrecoverableError(attempt, err)
		}

		delay := c.cfg.Backoff.NextDelay(attempt)
		c.mu.Lock()
		c.restarts++
		c.mu.Unlock()
		metrics.ConsumerRestarts.Inc()

		c.logger.WithError(err).Error("Consumer session failed, restarting", map[string]interface{}{
			"restart":     attempt + 1,
			"maxRestarts": c.cfg.MaxRestarts,
			"nextRetryIn": delay.String(),
		})

		if err := c.sleep(ctx, delay); err != nil {
			c.setState(StateStopped)
			return nil
		}
	}
}

// session runs one connect-consume cycle and returns how long it spent consuming.
func (c *Consumer) session(ctx context.Context) (time.Duration, error) {
	conn, err := c.client.Connect(ctx)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return 0, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	c.setState(StateConnected)

	if err := DeclareQueue(ch, c.cfg.Queue); err != nil {
		return 0, err
	}
	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return 0, fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))

	c.setState(StateConsuming)
	c.logger.Info("Waiting for notifications", map[string]interface{}{"prefetch": c.cfg.Prefetch})

	started := c.now()
	elapsed := func() time.Duration { return c.now().Sub(started) }

	// In-flight deliveries finish even if ctx is cancelled mid-handle.
	handleCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return elapsed(), nil

		case amqpErr := <-connClosed:
			return elapsed(), fmt.Errorf("connection closed: %v", amqpErr)

		case amqpErr := <-chClosed:
			return elapsed(), fmt.Errorf("channel closed: %v", amqpErr)

		case d, ok := <-deliveries:
			if !ok {
				return elapsed(), ErrDeliveriesClosed
			}
			if err := c.handler.Handle(handleCtx, d); err != nil {
				return elapsed(), fmt.Errorf("handle delivery %d: %w", d.DeliveryTag, err)
			}
		}
	}
}

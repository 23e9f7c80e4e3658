package rabbitmq_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/rabbitmq"
	"notification-relay/internal/common/rabbitmq/rabbitmqtest"
)

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func newTestClient(t *testing.T, broker *rabbitmqtest.Broker, sleeper *sleepRecorder) *rabbitmq.Client {
	cfg := rabbitmq.DefaultConfig()
	cfg.Dialer = broker.Dial
	return rabbitmq.NewClient(cfg, logger.NewTestLogger(t), rabbitmq.WithSleep(sleeper.Sleep))
}

func TestConnect_SucceedsOnFifthAttempt(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailDials(4, fmt.Errorf("dial tcp: connection refused"))
	sleeper := &sleepRecorder{}

	conn, err := newTestClient(t, broker, sleeper).Connect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	assert.Equal(t, 5, broker.Dials())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second, 5 * time.Second}, sleeper.Delays())
	assert.NoError(t, conn.Close())
}

func TestConnect_ExhaustsRetries(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailDials(5, fmt.Errorf("dial tcp: connection refused"))
	sleeper := &sleepRecorder{}

	_, err := newTestClient(t, broker, sleeper).Connect(context.Background())
	require.Error(t, err)

	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailure))
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 5, broker.Dials())
	assert.Len(t, sleeper.Delays(), 4, "no sleep after the last attempt")
}

func TestConnectWithRetry_CustomBudget(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailDials(2, fmt.Errorf("refused"))
	sleeper := &sleepRecorder{}

	_, err := newTestClient(t, broker, sleeper).ConnectWithRetry(context.Background(), 2, 10*time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, 2, broker.Dials())
	assert.Equal(t, []time.Duration{10 * time.Millisecond}, sleeper.Delays())
}

func TestConnect_ContextCancelled(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailDials(5, fmt.Errorf("refused"))

	ctx, cancel := context.WithCancel(context.Background())
	cfg := rabbitmq.DefaultConfig()
	cfg.Dialer = broker.Dial
	client := rabbitmq.NewClient(cfg, logger.NewNoOpLogger(), rabbitmq.WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	_, err := client.Connect(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailure))
	assert.Equal(t, 1, broker.Dials())
}

func TestDeclareQueues_Idempotent(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	client := newTestClient(t, broker, &sleepRecorder{})

	require.NoError(t, client.DeclareQueues(context.Background()))
	require.NoError(t, client.DeclareQueues(context.Background()))

	for _, q := range []string{"email_notifications", "sms_notifications"} {
		assert.Equal(t, 2, broker.DeclareCount(q), q)
		assert.True(t, broker.Durable(q), q)
	}
	assert.Equal(t, 0, broker.DeclareCount("email_notifications.dead"))
	assert.Equal(t, 0, broker.OpenConnections(), "declare connections are released")
}

func TestDeclareQueues_WithDeadLetter(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	cfg := rabbitmq.DefaultConfig()
	cfg.Dialer = broker.Dial
	cfg.DeclareDeadLetter = true
	client := rabbitmq.NewClient(cfg, logger.NewTestLogger(t))

	assert.Equal(t, []string{"email_notifications", "sms_notifications", "email_notifications.dead"}, client.Queues())
	require.NoError(t, client.DeclareQueues(context.Background()))
	assert.Equal(t, 1, broker.DeclareCount("email_notifications.dead"))
}

func TestDeclareQueues_BrokerUnreachable(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.FailDials(5, fmt.Errorf("refused"))

	err := newTestClient(t, broker, &sleepRecorder{}).DeclareQueues(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConnectionFailure))
	assert.Equal(t, 0, broker.DeclareCount("email_notifications"))
}

func TestWithChannel_ReleasesOnError(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	client := newTestClient(t, broker, &sleepRecorder{})

	err := client.WithChannel(context.Background(), func(ch rabbitmq.Channel) error {
		return fmt.Errorf("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.Equal(t, 0, broker.OpenConnections())
}

func TestWithChannel_ChannelError(t *testing.T) {
	broker := rabbitmqtest.NewBroker()
	broker.ChannelErr = amqp.ErrClosed
	client := newTestClient(t, broker, &sleepRecorder{})

	called := false
	err := client.WithChannel(context.Background(), func(ch rabbitmq.Channel) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
	assert.Equal(t, 0, broker.OpenConnections())
}

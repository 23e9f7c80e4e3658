// internal/workers/notification/email-dispatch/handler_test.go
package emaildispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"notification-relay/internal/common/errors"
	"notification-relay/internal/common/logger"
	"notification-relay/internal/common/observability"
	"notification-relay/internal/common/rabbitmq/rabbitmqtest"
	emailsend "notification-relay/internal/workers/communication/email-send"
	templateregistry "notification-relay/internal/workers/infrastructure/template-registry"
)

// ==========================
// Mocks
// ==========================

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, to, subject, htmlBody string) *emailsend.SendResult {
	args := m.Called(ctx, to, subject, htmlBody)
	return args.Get(0).(*emailsend.SendResult)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, queue string, body []byte) error {
	args := m.Called(ctx, queue, body)
	return args.Error(0)
}

// ==========================
// Test Helpers
// ==========================

const bookingJob = `{"to":"a@x.com","template":"booking_confirmation","data":{"name":"Jean","date":"2024-01-01","time_slot":"9h-12h","model":"X","liaison_length":"5","total_amount":"500","deposit_amount":"100","tracking_link":"http://t"}}`

const bookingSubject = "Confirmation de votre réservation d'installation de climatiseur Airton"

type fixture struct {
	handler   *Handler
	sender    *MockSender
	publisher *MockPublisher
	acks      *rabbitmqtest.Acknowledger
	reader    *sdkmetric.ManualReader
}

func newFixture(t *testing.T, policy errors.RenderFailurePolicy) *fixture {
	t.Helper()
	log := logger.NewTestLogger(t)

	registry, err := templateregistry.New(log)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RenderFailurePolicy = policy

	f := &fixture{
		sender:    new(MockSender),
		publisher: new(MockPublisher),
		acks:      rabbitmqtest.NewAcknowledger(),
		reader:    sdkmetric.NewManualReader(),
	}

	f.handler, err = NewHandler(cfg, Dependencies{
		Registry:      registry,
		Sender:        f.sender,
		DeadLetter:    f.publisher,
		Observability: observability.NewWithReader("notification-service-test", f.reader),
		Logger:        log,
	})
	require.NoError(t, err)
	return f
}

func (f *fixture) delivery(tag uint64, body string) amqp.Delivery {
	return f.acks.Delivery(tag, []byte(body))
}

// outcomes returns the processed counter values keyed by outcome.
func (f *fixture) outcomes(t *testing.T) map[string]int64 {
	var rm metricdata.ResourceMetrics
	require.NoError(t, f.reader.Collect(context.Background(), &rm))

	out := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "notifications.processed" {
				continue
			}
			sum := m.Data.(metricdata.Sum[int64])
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				out[outcome.AsString()] += dp.Value
			}
		}
	}
	return out
}

func sent(id string) *emailsend.SendResult {
	return &emailsend.SendResult{Success: true, MessageID: id, Provider: "gmail"}
}

// ==========================
// Pipeline Tests
// ==========================

func TestHandle_BookingConfirmation(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDrop)
	f.sender.On("Send", mock.Anything, "a@x.com", bookingSubject, mock.MatchedBy(func(body string) bool {
		return containsAll(body, "Bonjour Jean,", "9h-12h", "500€", `href="http://t"`)
	})).Return(sent("gmail-1"))

	err := f.handler.Handle(context.Background(), f.delivery(1, bookingJob))
	require.NoError(t, err)

	f.sender.AssertExpectations(t)
	assert.Equal(t, []uint64{1}, f.acks.Acked())
	assert.Empty(t, f.acks.Nacked())
	assert.Equal(t, map[string]int64{"sent": 1}, f.outcomes(t))
}

func TestHandle_InvalidPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `not json`},
		{"missing to", `{"template":"booking_confirmation","data":{"name":"Jean"}}`},
		{"missing template", `{"to":"a@x.com","data":{"name":"Jean"}}`},
		{"missing data", `{"to":"a@x.com","template":"booking_confirmation"}`},
		{"empty data", `{"to":"a@x.com","template":"booking_confirmation","data":{}}`},
		{"empty recipient", `{"to":"","template":"booking_confirmation","data":{"name":"Jean"}}`},
		{"array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, errors.RenderFailureDeadLetter)

			err := f.handler.Handle(context.Background(), f.delivery(7, tt.body))
			require.NoError(t, err)

			assert.Equal(t, []uint64{7}, f.acks.Acked(), "dropped deliveries are acknowledged")
			f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
			assert.Equal(t, map[string]int64{"dropped": 1}, f.outcomes(t))
		})
	}
}

func TestHandle_UnknownTemplate(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDrop)

	err := f.handler.Handle(context.Background(), f.delivery(3, `{"to":"a@x.com","template":"welcome","data":{"name":"Jean"}}`))
	require.NoError(t, err)

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []uint64{3}, f.acks.Acked())
	assert.Equal(t, map[string]int64{"dropped": 1}, f.outcomes(t))
}

// ==========================
// Render Failure Policy Tests
// ==========================

const incompleteReminder = `{"to":"a@x.com","template":"appointment_reminder","data":{"name":"Jean"}}`

func TestHandle_RenderFailure_DropPolicy(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDrop)

	err := f.handler.Handle(context.Background(), f.delivery(4, incompleteReminder))
	require.NoError(t, err)

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []uint64{4}, f.acks.Acked())
	assert.Empty(t, f.acks.Nacked(), "never redelivered")
	assert.Equal(t, map[string]int64{"dropped": 1}, f.outcomes(t))
}

func TestHandle_RenderFailure_DeadLetterPolicy(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDeadLetter)
	f.publisher.On("Publish", mock.Anything, "email_notifications.dead", []byte(incompleteReminder)).Return(nil)

	err := f.handler.Handle(context.Background(), f.delivery(5, incompleteReminder))
	require.NoError(t, err)

	f.publisher.AssertExpectations(t)
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, []uint64{5}, f.acks.Acked())
	assert.Equal(t, map[string]int64{"dead_lettered": 1}, f.outcomes(t))
}

func TestHandle_RenderFailure_DeadLetterPublishFails(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDeadLetter)
	f.publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.NewPublishFailureError("email_notifications.dead", fmt.Errorf("channel closed")))

	err := f.handler.Handle(context.Background(), f.delivery(6, incompleteReminder))
	require.NoError(t, err)

	assert.Empty(t, f.acks.Acked())
	assert.Equal(t, []uint64{6}, f.acks.Nacked())
	assert.Equal(t, []bool{false}, f.acks.Requeued(), "rejected without requeue")
	assert.Equal(t, map[string]int64{"discarded": 1}, f.outcomes(t))
}

// ==========================
// Send and Ack Failure Tests
// ==========================

func TestHandle_SendFailureStillAcknowledges(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDeadLetter)
	f.sender.On("Send", mock.Anything, "a@x.com", bookingSubject, mock.Anything).
		Return(&emailsend.SendResult{Success: false, Error: "invalid_grant", Provider: "gmail"})

	err := f.handler.Handle(context.Background(), f.delivery(8, bookingJob))
	require.NoError(t, err)

	assert.Equal(t, []uint64{8}, f.acks.Acked())
	f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, map[string]int64{"send_failed": 1}, f.outcomes(t))
}

func TestHandle_AckFailureIsFatal(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDrop)
	f.acks.AckErr = amqp.ErrClosed
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sent("gmail-2"))

	err := f.handler.Handle(context.Background(), f.delivery(9, bookingJob))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeAckFailure))
}

func TestHandle_SequentialDeliveries(t *testing.T) {
	f := newFixture(t, errors.RenderFailureDrop)
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(sent("gmail-3"))

	bodies := []string{bookingJob, `{"bad":true}`, bookingJob}
	for i, body := range bodies {
		require.NoError(t, f.handler.Handle(context.Background(), f.delivery(uint64(i+1), body)))
	}

	assert.Equal(t, []uint64{1, 2, 3}, f.acks.Acked())
	f.sender.AssertNumberOfCalls(t, "Send", 2)
	assert.Equal(t, map[string]int64{"sent": 2, "dropped": 1}, f.outcomes(t))
}

// ==========================
// Construction Tests
// ==========================

func TestNewHandler_Validation(t *testing.T) {
	registry, err := templateregistry.New(logger.NewNoOpLogger())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RenderFailurePolicy = errors.RenderFailureDeadLetter
	_, err = NewHandler(cfg, Dependencies{Registry: registry, Sender: new(MockSender)})
	assert.Error(t, err, "dead_letter needs a publisher")

	cfg = DefaultConfig()
	cfg.RenderFailurePolicy = "retry"
	_, err = NewHandler(cfg, Dependencies{Registry: registry, Sender: new(MockSender)})
	assert.Error(t, err)

	_, err = NewHandler(DefaultConfig(), Dependencies{Registry: registry})
	assert.Error(t, err)

	_, err = NewHandler(DefaultConfig(), Dependencies{Registry: registry, Sender: new(MockSender)})
	assert.NoError(t, err)
}

func TestNewHandler_LogsConfiguration(t *testing.T) {
	registry, err := templateregistry.New(logger.NewNoOpLogger())
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := DefaultConfig()
	cfg.RenderFailurePolicy = errors.RenderFailureDeadLetter

	_, err = NewHandler(cfg, Dependencies{
		Registry:   registry,
		Sender:     new(MockSender),
		DeadLetter: new(MockPublisher),
		Logger:     logger.NewZapAdapter(zap.New(core)),
	})
	require.NoError(t, err)

	entries := logs.FilterMessage("Dispatch handler configured").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "dead_letter", fields["renderFailurePolicy"])
	assert.Equal(t, "email_notifications.dead", fields["deadLetterQueue"])
	assert.Equal(t, "email_notifications", fields["queue"])
}

func TestHandle_DeadLetterFailureLogsCause(t *testing.T) {
	registry, err := templateregistry.New(logger.NewNoOpLogger())
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	cfg := DefaultConfig()
	cfg.RenderFailurePolicy = errors.RenderFailureDeadLetter
	publisher := new(MockPublisher)
	publisher.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(fmt.Errorf("channel closed"))
	acks := rabbitmqtest.NewAcknowledger()

	handler, err := NewHandler(cfg, Dependencies{
		Registry:      registry,
		Sender:        new(MockSender),
		DeadLetter:    publisher,
		Observability: observability.NewNoop(),
		Logger:        logger.NewZapAdapter(zap.New(core)),
	})
	require.NoError(t, err)

	require.NoError(t, handler.Handle(context.Background(), acks.Delivery(1, []byte(incompleteReminder))))

	entries := logs.FilterMessage("Dead-letter publish failed, rejecting delivery").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "channel closed", entries[0].ContextMap()["error"])
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingLogger struct {
	messages []string
	fields   []map[string]interface{}
}

func (l *capturingLogger) Error(msg string, fields map[string]interface{}) {
	l.messages = append(l.messages, msg)
	l.fields = append(l.fields, fields)
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name      string
		err       *StandardError
		code      ErrorCode
		retryable bool
	}{
		{"connection", NewConnectionFailureError(5, fmt.Errorf("refused")), ErrCodeConnectionFailure, true},
		{"publish", NewPublishFailureError("email_notifications", fmt.Errorf("closed")), ErrCodePublishFailure, true},
		{"ack", NewAckFailureError(7, fmt.Errorf("channel closed")), ErrCodeAckFailure, true},
		{"validation", NewValidationError("missing to"), ErrCodeValidation, false},
		{"template", NewTemplateNotFoundError("welcome"), ErrCodeTemplateNotFound, false},
		{"render", NewRenderFailureError("booking_confirmation", []string{"tracking_link"}), ErrCodeRenderFailure, false},
		{"send", NewSendFailureError("gmail", "quota exceeded"), ErrCodeSendFailure, true},
		{"unrecoverable", NewConsumerUnrecoverableError(10, fmt.Errorf("boom")), ErrCodeConsumerUnrecoverable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
			assert.False(t, tt.err.Timestamp.IsZero())
			assert.Contains(t, tt.err.Error(), string(tt.code))
		})
	}
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("dial tcp: refused")
	err := NewConnectionFailureError(5, cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.Contains(t, err.Details, "attempts: 5")
}

func TestAsStandardError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStandardError(nil))
		assert.Equal(t, ErrorCode(""), CodeOf(nil))
	})

	t.Run("wrapped standard error", func(t *testing.T) {
		inner := NewTemplateNotFoundError("x")
		wrapped := fmt.Errorf("resolve: %w", inner)

		got := AsStandardError(wrapped)
		require.NotNil(t, got)
		assert.Same(t, inner, got)
		assert.True(t, HasCode(wrapped, ErrCodeTemplateNotFound))
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		got := AsStandardError(fmt.Errorf("boom"))
		assert.Equal(t, ErrCodeInternal, got.Code)
		assert.Equal(t, "boom", got.Details)
	})
}

func TestRenderFailureMetadata(t *testing.T) {
	err := NewRenderFailureError("payment_confirmation", []string{"amount", "transaction_id"})
	assert.Equal(t, []string{"amount", "transaction_id"}, err.Metadata["fields"])
	assert.Contains(t, err.Details, "amount,transaction_id")

	err.WithMetadata("messageId", "abc")
	assert.Equal(t, "abc", err.Metadata["messageId"])
}

func TestDispositionFor(t *testing.T) {
	tests := []struct {
		code   ErrorCode
		policy RenderFailurePolicy
		want   Disposition
	}{
		{ErrCodeValidation, RenderFailureDrop, DispositionDrop},
		{ErrCodeTemplateNotFound, RenderFailureDeadLetter, DispositionDrop},
		{ErrCodeSendFailure, RenderFailureDrop, DispositionDrop},
		{ErrCodeRenderFailure, RenderFailureDrop, DispositionDrop},
		{ErrCodeRenderFailure, RenderFailureDeadLetter, DispositionDeadLetter},
		{ErrCodeAckFailure, RenderFailureDrop, DispositionFatal},
		{ErrCodeConnectionFailure, RenderFailureDrop, DispositionFatal},
		{ErrCodeInternal, RenderFailureDrop, DispositionDrop},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.code, tt.policy), func(t *testing.T) {
			assert.Equal(t, tt.want, DispositionFor(tt.code, tt.policy))
		})
	}
}

func TestParseRenderFailurePolicy(t *testing.T) {
	p, err := ParseRenderFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, RenderFailureDrop, p)

	p, err = ParseRenderFailurePolicy(" Dead_Letter ")
	require.NoError(t, err)
	assert.Equal(t, RenderFailureDeadLetter, p)

	_, err = ParseRenderFailurePolicy("retry")
	assert.Error(t, err)
}

func TestErrorHandler_HandleDeliveryError(t *testing.T) {
	log := &capturingLogger{}
	h := NewErrorHandler(log, "")
	assert.Equal(t, RenderFailureDrop, h.Policy())

	stdErr, disposition := h.HandleDeliveryError("msg-1", 3, NewRenderFailureError("booking_confirmation", []string{"date"}))

	assert.Equal(t, ErrCodeRenderFailure, stdErr.Code)
	assert.Equal(t, DispositionDrop, disposition)
	require.Len(t, log.fields, 1)
	assert.Equal(t, "msg-1", log.fields[0]["messageId"])
	assert.Equal(t, "TEMPLATE", log.fields[0]["errorCategory"])
	assert.Equal(t, "drop", log.fields[0]["disposition"])
}

func TestGetErrorCategory(t *testing.T) {
	assert.Equal(t, "BROKER", GetErrorCategory(ErrCodeConnectionFailure))
	assert.Equal(t, "BROKER", GetErrorCategory(ErrCodeAckFailure))
	assert.Equal(t, "TEMPLATE", GetErrorCategory(ErrCodeTemplateNotFound))
	assert.Equal(t, "DELIVERY", GetErrorCategory(ErrCodeSendFailure))
	assert.Equal(t, "VALIDATION", GetErrorCategory(ErrCodeValidation))
	assert.Equal(t, "CONSUMER", GetErrorCategory(ErrCodeConsumerUnrecoverable))
	assert.Equal(t, "OTHER", GetErrorCategory(ErrCodeInternal))
}

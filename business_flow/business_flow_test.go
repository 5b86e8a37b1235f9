// Package businessflow contains the core business logic and use cases for subscription delivery workflows
package businessflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/amirphl/Hachiko/models"
	"github.com/amirphl/Hachiko/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyOutcome(t *testing.T) {
	tests := []struct {
		name   string
		sent   int
		failed int
		want   models.DeliveryOutcome
	}{
		{name: "all sent", sent: 3, failed: 0, want: models.OutcomeCompleteSuccess},
		{name: "nothing attempted", sent: 0, failed: 0, want: models.OutcomeCompleteSuccess},
		{name: "all failed", sent: 0, failed: 3, want: models.OutcomeCompleteFailure},
		{name: "mixed", sent: 2, failed: 1, want: models.OutcomePartialFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyOutcome(tt.sent, tt.failed))
		})
	}
}

func TestSweepContext(t *testing.T) {
	active := map[uint]struct{}{1: {}, 5: {}}
	sweepCtx := NewSweepContext(ExecutionContextSweep, active, utils.UTCNow())

	assert.NotEmpty(t, sweepCtx.RequestID)
	assert.Equal(t, ExecutionContextSweep, sweepCtx.ExecutionContext)
	assert.True(t, sweepCtx.TeamIsActive(1))
	assert.True(t, sweepCtx.TeamIsActive(5))
	assert.False(t, sweepCtx.TeamIsActive(2))

	// Two contexts never share a request ID
	other := NewSweepContext(ExecutionContextManual, nil, utils.UTCNow())
	assert.NotEqual(t, sweepCtx.RequestID, other.RequestID)
	assert.False(t, other.TeamIsActive(1))
}

func TestRenderResultRendered(t *testing.T) {
	result := &RenderResult{
		ResolvedCount: 3,
		Artifacts: []*models.RenderedArtifact{
			{ReportName: "ok", Content: []byte("png")},
			{ReportName: "failed"},
			{ReportName: "stored", StorageKey: utils.ToPtr("key")},
		},
	}

	rendered := result.Rendered()
	require.Len(t, rendered, 2)
	assert.Equal(t, "ok", rendered[0].ReportName)
	assert.Equal(t, "stored", rendered[1].ReportName)
}

func TestDominantErrorClass(t *testing.T) {
	userErr := RecipientOutcome{Recipient: "a@example.com", Err: errors.New("bad address"), Class: models.ErrorClassUser}
	systemErr := RecipientOutcome{Recipient: "b@example.com", Err: errors.New("smtp down"), Class: models.ErrorClassSystem}
	okOutcome := RecipientOutcome{Recipient: "c@example.com"}

	tests := []struct {
		name   string
		result *DeliveryResult
		want   models.ErrorClass
	}{
		{
			name:   "user failures only",
			result: &DeliveryResult{Recipients: []RecipientOutcome{okOutcome, userErr}},
			want:   models.ErrorClassUser,
		},
		{
			name:   "system beats user",
			result: &DeliveryResult{Recipients: []RecipientOutcome{userErr, systemErr}},
			want:   models.ErrorClassSystem,
		},
		{
			name:   "no recipient detail defaults to system",
			result: &DeliveryResult{},
			want:   models.ErrorClassSystem,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dominantErrorClass(tt.result))
		})
	}
}

func TestFirstErrorMessage(t *testing.T) {
	result := &DeliveryResult{
		Recipients: []RecipientOutcome{
			{Recipient: "a@example.com"},
			{Recipient: "b@example.com", Err: errors.New("mailbox full")},
		},
	}
	assert.Equal(t, "mailbox full", firstErrorMessage(result, nil))

	assert.Equal(t, "send blew up", firstErrorMessage(&DeliveryResult{}, errors.New("send blew up")))
	assert.Equal(t, "2 thread messages failed", firstErrorMessage(&DeliveryResult{ThreadFailed: []int{1, 3}}, nil))
	assert.Equal(t, "truncation notice failed", firstErrorMessage(&DeliveryResult{NoticeFailed: true}, nil))
	assert.Empty(t, firstErrorMessage(&DeliveryResult{}, nil))
}

func TestRetrySend(t *testing.T) {
	transient := func(err error) bool { return errors.Is(err, context.DeadlineExceeded) }

	t.Run("succeeds first try", func(t *testing.T) {
		calls := 0
		err := retrySend(context.Background(), 3, time.Millisecond, transient, func() error {
			calls++
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("permanent error stops immediately", func(t *testing.T) {
		calls := 0
		permanent := errors.New("invalid channel")
		err := retrySend(context.Background(), 3, time.Millisecond, transient, func() error {
			calls++
			return permanent
		})
		assert.ErrorIs(t, err, permanent)
		assert.Equal(t, 1, calls)
	})

	t.Run("transient error retries to the bound", func(t *testing.T) {
		calls := 0
		err := retrySend(context.Background(), 3, time.Millisecond, transient, func() error {
			calls++
			return context.DeadlineExceeded
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 3, calls)
	})

	t.Run("transient error recovers", func(t *testing.T) {
		calls := 0
		err := retrySend(context.Background(), 3, time.Millisecond, transient, func() error {
			calls++
			if calls < 3 {
				return context.DeadlineExceeded
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		err := retrySend(ctx, 5, 50*time.Millisecond, transient, func() error {
			calls++
			return context.DeadlineExceeded
		})
		assert.Error(t, err)
		assert.LessOrEqual(t, calls, 2)
	})
}

func TestBusinessError(t *testing.T) {
	inner := errors.New("boom")
	be := NewBusinessError("DELIVERY_FAILED", "delivery failed", inner)

	assert.Equal(t, "DELIVERY_FAILED", be.Code)
	assert.ErrorIs(t, be, inner)
	assert.Contains(t, be.Error(), "delivery failed")
}

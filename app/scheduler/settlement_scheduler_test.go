package scheduler

import (
	"context"
	"testing"
	"time"

	businessflow "github.com/amirphl/affiliate-engine/business_flow"
	"github.com/amirphl/affiliate-engine/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSettlementFlow struct {
	mock.Mock
}

func (m *mockSettlementFlow) Run(ctx context.Context, now time.Time, trigger string) (*businessflow.SettlementReport, error) {
	args := m.Called(ctx, now, trigger)
	report, _ := args.Get(0).(*businessflow.SettlementReport)
	return report, args.Error(1)
}

func TestSettlementScheduler(t *testing.T) {
	t.Run("RejectsInvalidRunAt", func(t *testing.T) {
		_, err := NewSettlementScheduler(&mockSettlementFlow{}, config.SettlementConfig{RunAt: "25:99"}, config.LoggingConfig{})
		require.Error(t, err)
	})

	t.Run("RunNowUsesManualTrigger", func(t *testing.T) {
		flow := &mockSettlementFlow{}
		flow.On("Run", mock.Anything, mock.Anything, businessflow.SettlementTriggerManual).
			Return(&businessflow.SettlementReport{RunID: 7, Settled: 3}, nil).Once()

		s, err := NewSettlementScheduler(flow, config.SettlementConfig{RunAt: "02:30"}, config.LoggingConfig{})
		require.NoError(t, err)

		report, err := s.RunNow(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint(7), report.RunID)
		flow.AssertExpectations(t)
	})

	t.Run("RunNowOutlivesCallerDeadline", func(t *testing.T) {
		flow := &mockSettlementFlow{}
		flow.On("Run", mock.MatchedBy(func(ctx context.Context) bool {
			_, hasDeadline := ctx.Deadline()
			return ctx.Err() == nil && !hasDeadline
		}), mock.Anything, businessflow.SettlementTriggerManual).
			Return(&businessflow.SettlementReport{RunID: 8}, nil).Once()

		s, err := NewSettlementScheduler(flow, config.SettlementConfig{RunAt: "02:30"}, config.LoggingConfig{})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
		cancel()

		report, err := s.RunNow(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint(8), report.RunID)
		flow.AssertExpectations(t)
	})

	t.Run("ScheduledRunToleratesHeldLock", func(t *testing.T) {
		flow := &mockSettlementFlow{}
		flow.On("Run", mock.Anything, mock.Anything, businessflow.SettlementTriggerSchedule).
			Return(nil, businessflow.NewBusinessError(businessflow.KindConflict, "busy", businessflow.ErrSettlementInProgress)).Once()

		s, err := NewSettlementScheduler(flow, config.SettlementConfig{RunAt: "02:30"}, config.LoggingConfig{})
		require.NoError(t, err)

		assert.NotPanics(t, func() { s.run(businessflow.SettlementTriggerSchedule) })
		flow.AssertExpectations(t)
	})

	t.Run("StartSchedulesDailyInUTC", func(t *testing.T) {
		s, err := NewSettlementScheduler(&mockSettlementFlow{}, config.SettlementConfig{RunAt: "02:30"}, config.LoggingConfig{})
		require.NoError(t, err)

		stop, err := s.Start(context.Background())
		require.NoError(t, err)
		defer stop()

		next := s.NextRun().UTC()
		assert.Equal(t, 2, next.Hour())
		assert.Equal(t, 30, next.Minute())
		assert.True(t, next.After(time.Now()))
	})
}

package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/Domenick1991/airticket/internal/service/checkout"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, n kafka.Notification) error {
	return m.Called(ctx, n).Error(0)
}

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Reconcile(ctx context.Context, before time.Time, limit int) (*checkout.ReconcileReport, error) {
	args := m.Called(ctx, before, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*checkout.ReconcileReport), args.Error(1)
}

func TestNotificationHandler(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sender := &MockSender{}
	handle := NotificationHandler(sender, logger)
	ctx := context.Background()

	n := kafka.Notification{Type: "itinerary", BookingID: "b1", Reference: "K7QX2ABC", Email: "lan@example.com", Subject: "s", Body: "b"}
	raw, err := json.Marshal(n)
	require.NoError(t, err)

	sender.On("Send", ctx, mock.MatchedBy(func(got kafka.Notification) bool {
		return got.Reference == "K7QX2ABC" && got.Email == "lan@example.com"
	})).Return(nil).Once()
	assert.NoError(t, handle(ctx, kafkaGo.Message{Value: raw}))

	sender.On("Send", ctx, mock.Anything).Return(errors.New("smtp down")).Once()
	assert.EqualError(t, handle(ctx, kafkaGo.Message{Value: raw}), "smtp down")

	assert.NoError(t, handle(ctx, kafkaGo.Message{Value: []byte("{not json")}))
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	sender.AssertExpectations(t)
}

func TestReconcile_Run(t *testing.T) {
	cfg := config.WorkerConfig{ReconcileSchedule: "@every 1m", ReconcileAfterMinutes: 15, ReconcileBatch: 25}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("uses the age cutoff and batch size", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reconciler := &MockReconciler{}
		job := NewReconcile(reconciler, cfg, logger)
		job.now = func() time.Time { return now }

		reconciler.On("Reconcile", mock.Anything, now.Add(-15*time.Minute), 25).
			Return(&checkout.ReconcileReport{Checked: 2, Completed: 1, Pending: 1}, nil)

		job.Run(context.Background())

		reconciler.AssertExpectations(t)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, 2, hook.LastEntry().Data["checked"])
	})

	t.Run("quiet when nothing is waiting", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reconciler := &MockReconciler{}
		job := NewReconcile(reconciler, cfg, logger)

		reconciler.On("Reconcile", mock.Anything, mock.Anything, 25).Return(&checkout.ReconcileReport{}, nil)

		job.Run(context.Background())
		assert.Empty(t, hook.AllEntries())
	})

	t.Run("logs failures", func(t *testing.T) {
		logger, hook := test.NewNullLogger()
		reconciler := &MockReconciler{}
		job := NewReconcile(reconciler, cfg, logger)

		reconciler.On("Reconcile", mock.Anything, mock.Anything, 25).Return(nil, errors.New("db down"))

		job.Run(context.Background())
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})
}

func TestSchedule(t *testing.T) {
	logger, _ := test.NewNullLogger()

	c, err := Schedule(context.Background(), NewReconcile(&MockReconciler{}, config.WorkerConfig{ReconcileSchedule: "@every 5m"}, logger))
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = Schedule(context.Background(), NewReconcile(&MockReconciler{}, config.WorkerConfig{ReconcileSchedule: "whenever"}, logger))
	assert.Error(t, err)
}

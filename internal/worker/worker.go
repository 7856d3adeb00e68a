package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/airticket/config"
	"github.com/Domenick1991/airticket/internal/kafka"
	"github.com/Domenick1991/airticket/internal/service/checkout"
	"github.com/robfig/cron/v3"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Sender interface {
	Send(ctx context.Context, n kafka.Notification) error
}

type Reconciler interface {
	Reconcile(ctx context.Context, before time.Time, limit int) (*checkout.ReconcileReport, error)
}

// NotificationHandler delivers queued notifications. Undecodable messages
// are dropped.
func NotificationHandler(sender Sender, logger logrus.FieldLogger) func(context.Context, kafkaGo.Message) error {
	return func(ctx context.Context, msg kafkaGo.Message) error {
		var n kafka.Notification
		if err := json.Unmarshal(msg.Value, &n); err != nil {
			logger.WithFields(logrus.Fields{"topic": msg.Topic, "offset": msg.Offset}).WithError(err).Warn("dropping undecodable notification")
			return nil
		}
		return sender.Send(ctx, n)
	}
}

type Reconcile struct {
	checkout Reconciler
	cfg      config.WorkerConfig
	log      logrus.FieldLogger
	now      func() time.Time
	timeout  time.Duration
}

func NewReconcile(checkout Reconciler, cfg config.WorkerConfig, logger logrus.FieldLogger) *Reconcile {
	return &Reconcile{checkout: checkout, cfg: cfg, log: logger, now: time.Now, timeout: 2 * time.Minute}
}

// Run asks the gateway about payments that have waited longer than the
// configured age.
func (r *Reconcile) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	before := r.now().Add(-time.Duration(r.cfg.ReconcileAfterMinutes) * time.Minute)
	report, err := r.checkout.Reconcile(ctx, before, r.cfg.ReconcileBatch)
	if err != nil {
		r.log.WithError(err).Error("payment reconciliation failed")
		return
	}
	if report.Checked > 0 {
		r.log.WithFields(logrus.Fields{
			"checked":   report.Checked,
			"completed": report.Completed,
			"failed":    report.Failed,
			"pending":   report.Pending,
			"errors":    report.Errors,
		}).Info("payment reconciliation finished")
	}
}

// Schedule registers the reconcile job on a new, not yet started, cron.
func Schedule(ctx context.Context, job *Reconcile) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(job.cfg.ReconcileSchedule, func() { job.Run(ctx) }); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", job.cfg.ReconcileSchedule, err)
	}
	return c, nil
}

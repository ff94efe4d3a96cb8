package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"notify-mail-relay-go/internal/config"
	"notify-mail-relay-go/internal/events"
	"notify-mail-relay-go/internal/metrics"
	"notify-mail-relay-go/internal/model"
)

// ConfigSource provides the current email configuration and counts
// successful forwards
type ConfigSource interface {
	GetEmailConfig() model.EmailConfig
	IncrementForwardCount() error
}

// StatusWriter records delivery outcomes
type StatusWriter interface {
	UpdateStatus(id string, status model.Status, errMsg *string) error
}

// Outcome is the result of delivering one record
type Outcome struct {
	Status   model.Status
	Attempts int
	Err      error
}

// Deliverer sends records by email with bounded retry
type Deliverer struct {
	configs     ConfigSource
	records     StatusWriter
	transport   Transport
	bus         events.Bus
	metrics     *metrics.Metrics
	maxAttempts int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
}

func NewDeliverer(
	configs ConfigSource,
	records StatusWriter,
	transport Transport,
	bus events.Bus,
	m *metrics.Metrics,
	cfg config.DeliveryConfig,
) *Deliverer {
	d := &Deliverer{
		configs:     configs,
		records:     records,
		transport:   transport,
		bus:         bus,
		metrics:     m,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		sleep:       sleepContext,
		now:         time.Now,
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = 3
	}
	if cfg.RatePerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RatePerMinute)), 1)
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Deliver sends rec and records the terminal status. The configuration is
// read again before every attempt. When ctx ends before a terminal outcome
// the record stays PENDING for a later reconciliation.
func (d *Deliverer) Deliver(ctx context.Context, rec model.ForwardRecord) Outcome {
	start := time.Now()
	defer func() {
		d.metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
	}()

	log := logrus.WithField("record_id", rec.ID)

	var lastErr error
	attempt := 0
	for attempt < d.maxAttempts {
		cfg := d.configs.GetEmailConfig()
		if !cfg.IsValid() {
			return d.fail(rec, attempt, ErrConfigInvalid)
		}

		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				return d.abandon(rec, attempt, err)
			}
		}

		msg, err := composeMessage(cfg, rec, d.now())
		if err != nil {
			return d.fail(rec, attempt, err)
		}

		attempt++
		d.metrics.DeliveryAttempts.Inc()
		err = d.transport.Send(ctx, cfg, msg)
		if err == nil {
			return d.succeed(rec, attempt)
		}

		lastErr = err
		log.Warnf("Failed to forward record (attempt %d/%d): %v", attempt, d.maxAttempts, err)

		if attempt < d.maxAttempts {
			if err := d.sleep(ctx, d.retryDelay); err != nil {
				return d.abandon(rec, attempt, err)
			}
		}
	}

	return d.fail(rec, attempt, lastErr)
}

func (d *Deliverer) succeed(rec model.ForwardRecord, attempts int) Outcome {
	if err := d.records.UpdateStatus(rec.ID, model.StatusSuccess, nil); err != nil {
		logrus.WithField("record_id", rec.ID).Errorf("Failed to store delivery success: %v", err)
	}
	if err := d.configs.IncrementForwardCount(); err != nil {
		logrus.Errorf("Failed to update forward counters: %v", err)
	}
	d.metrics.ForwardSuccesses.Inc()
	d.publish(rec.ID, model.StatusSuccess, nil)

	logrus.WithField("record_id", rec.ID).Infof("Forwarded notification from %s after %d attempt(s)", rec.SourceApp, attempts)
	return Outcome{Status: model.StatusSuccess, Attempts: attempts}
}

func (d *Deliverer) fail(rec model.ForwardRecord, attempts int, err error) Outcome {
	msg := err.Error()
	if uerr := d.records.UpdateStatus(rec.ID, model.StatusFailed, &msg); uerr != nil {
		logrus.WithField("record_id", rec.ID).Errorf("Failed to store delivery failure: %v", uerr)
	}
	d.metrics.ForwardFailures.Inc()
	d.publish(rec.ID, model.StatusFailed, &msg)

	logrus.WithField("record_id", rec.ID).Errorf("Failed to forward notification after %d attempt(s): %v", attempts, err)
	return Outcome{Status: model.StatusFailed, Attempts: attempts, Err: err}
}

func (d *Deliverer) abandon(rec model.ForwardRecord, attempts int, err error) Outcome {
	logrus.WithField("record_id", rec.ID).Warnf("Delivery interrupted, record left pending: %v", err)
	return Outcome{Status: model.StatusPending, Attempts: attempts, Err: err}
}

func (d *Deliverer) publish(id string, status model.Status, errMsg *string) {
	d.bus.Publish(events.Event{
		Type: events.TypeRecordStatusChanged,
		Data: events.StatusChange{RecordID: id, Status: string(status), Error: errMsg},
	})
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/events"
	"notify-mail-relay-go/internal/filter"
	"notify-mail-relay-go/internal/metrics"
	"notify-mail-relay-go/internal/model"
)

// Reason reported when the pipeline is not accepting events
const ReasonStopped = "stopped"

// PipelineConfig is the part of the config store the pipeline reads
type PipelineConfig interface {
	IsEnabled() bool
	GetEmailConfig() model.EmailConfig
	GetLastActive() time.Time
	TouchLastActive() error
}

// RecordLog is the part of the history the pipeline writes
type RecordLog interface {
	AddRecord(rec model.ForwardRecord) error
	Get(id string) (model.ForwardRecord, bool)
	StalePending(before time.Time) []model.ForwardRecord
	Len() int
}

// RecordDeliverer delivers one record to its terminal status
type RecordDeliverer interface {
	Deliver(ctx context.Context, rec model.ForwardRecord) Outcome
}

// IngestResult describes what happened to one incoming notification
type IngestResult struct {
	Admitted bool   `json:"admitted"`
	RecordID string `json:"record_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// PipelineStatus is a snapshot of the pipeline state
type PipelineStatus struct {
	Running           bool      `json:"running"`
	Healthy           bool      `json:"healthy"`
	Enabled           bool      `json:"enabled"`
	ListenerConnected bool      `json:"listener_connected"`
	ConfigValid       bool      `json:"config_valid"`
	InFlight          int       `json:"in_flight"`
	LastActive        time.Time `json:"last_active"`
}

// Pipeline admits notifications, records them and runs one delivery per
// admitted record
type Pipeline struct {
	mu                sync.RWMutex
	running           bool
	listenerConnected bool

	ctx       context.Context
	configs   PipelineConfig
	history   RecordLog
	filter    *filter.Filter
	deliverer RecordDeliverer
	bus       events.Bus
	metrics   *metrics.Metrics

	inFlight sync.Map
	wg       sync.WaitGroup
	now      func() time.Time
}

// NewPipeline creates a stopped pipeline. Deliveries run on ctx, so
// stopping the pipeline never cancels them.
func NewPipeline(
	ctx context.Context,
	configs PipelineConfig,
	history RecordLog,
	f *filter.Filter,
	deliverer RecordDeliverer,
	bus events.Bus,
	m *metrics.Metrics,
) *Pipeline {
	return &Pipeline{
		ctx:       ctx,
		configs:   configs,
		history:   history,
		filter:    f,
		deliverer: deliverer,
		bus:       bus,
		metrics:   m,
		now:       time.Now,
	}
}

func (p *Pipeline) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	p.metrics.PipelineUp.Set(1)
	if err := p.configs.TouchLastActive(); err != nil {
		logrus.Warnf("Failed to record last active time: %v", err)
	}
	logrus.Info("Pipeline started")
}

// Stop stops admitting notifications. In-flight deliveries continue.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	wasRunning := p.running
	p.running = false
	p.mu.Unlock()

	p.metrics.PipelineUp.Set(0)
	if wasRunning {
		logrus.Info("Pipeline stopped")
	}
}

func (p *Pipeline) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}

// EnsureRunning starts the pipeline when forwarding is enabled and it is
// not running. It reports whether a start happened.
func (p *Pipeline) EnsureRunning() bool {
	if !p.configs.IsEnabled() || p.IsRunning() {
		return false
	}
	p.Start()
	p.metrics.PipelineRestarts.Inc()
	logrus.Warn("Pipeline was not running, restarted")
	return true
}

func (p *Pipeline) SetListenerConnected(connected bool) {
	p.mu.Lock()
	changed := p.listenerConnected != connected
	p.listenerConnected = connected
	p.mu.Unlock()

	if changed {
		logrus.Infof("Notification listener connected=%t", connected)
	}
}

func (p *Pipeline) ListenerConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.listenerConnected
}

// IsHealthy reports whether notifications are observed and can be forwarded
func (p *Pipeline) IsHealthy() bool {
	return p.IsRunning() && p.ListenerConnected() && p.configs.GetEmailConfig().IsValid()
}

func (p *Pipeline) Status() PipelineStatus {
	inFlight := 0
	p.inFlight.Range(func(_, _ any) bool {
		inFlight++
		return true
	})
	status := PipelineStatus{
		Enabled:     p.configs.IsEnabled(),
		ConfigValid: p.configs.GetEmailConfig().IsValid(),
		InFlight:    inFlight,
		LastActive:  p.configs.GetLastActive(),
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	status.Running = p.running
	status.ListenerConnected = p.listenerConnected
	status.Healthy = p.running && p.listenerConnected && status.ConfigValid
	return status
}

// HandleNotification filters e and, when admitted, records it and starts
// its delivery. A panic marks the pipeline as not running so that the
// supervisor restarts it.
func (p *Pipeline) HandleNotification(e model.NotificationEvent) (result IngestResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Pipeline crashed while handling notification from %s: %v", e.SourceIdentity, r)
			p.Stop()
			result = IngestResult{}
			err = fmt.Errorf("pipeline crashed: %v", r)
		}
	}()

	if !p.IsRunning() {
		return IngestResult{Reason: ReasonStopped}, nil
	}
	p.metrics.NotificationsReceived.Inc()

	decision := p.filter.Decide(e)
	if !decision.Admit {
		p.metrics.NotificationsIgnored.WithLabelValues(decision.Reason).Inc()
		logrus.Debugf("Ignored notification from %s: %s", e.SourceIdentity, decision.Reason)
		return IngestResult{Reason: decision.Reason}, nil
	}

	id, err := uuid.NewV7()
	if err != nil {
		return IngestResult{}, fmt.Errorf("failed to generate record id: %w", err)
	}

	captured := e.PostTime
	if captured.IsZero() {
		captured = p.now()
	}
	rec := model.ForwardRecord{
		ID:          id.String(),
		SourceApp:   e.SourceIdentity,
		DisplayName: e.DisplayName,
		Title:       decision.Title,
		Content:     decision.Content,
		Timestamp:   captured,
		Status:      model.StatusPending,
	}

	if err := p.history.AddRecord(rec); err != nil {
		logrus.WithField("record_id", rec.ID).Warnf("Record kept in memory only: %v", err)
	}
	p.metrics.HistorySize.Set(float64(p.history.Len()))

	p.bus.Publish(events.Event{
		Type: events.TypeNotificationReceived,
		Data: events.NotificationReceived{RecordID: rec.ID, SourceApp: rec.SourceApp, Title: rec.Title},
	})

	p.dispatch(rec)
	return IngestResult{Admitted: true, RecordID: rec.ID}, nil
}

// dispatch starts the delivery of rec unless one is already running
func (p *Pipeline) dispatch(rec model.ForwardRecord) bool {
	if _, busy := p.inFlight.LoadOrStore(rec.ID, struct{}{}); busy {
		return false
	}
	// A delivery stores its terminal status before releasing the id, so a
	// stale snapshot of a finished record is caught here.
	if cur, ok := p.history.Get(rec.ID); ok && cur.Status.IsTerminal() {
		p.inFlight.Delete(rec.ID)
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inFlight.Delete(rec.ID)
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("record_id", rec.ID).Errorf("Delivery panicked: %v", r)
			}
		}()
		p.deliverer.Deliver(p.ctx, rec)
	}()
	return true
}

// RequeueStale starts delivery for PENDING records captured before the
// given time that have no delivery running. It returns how many were started.
func (p *Pipeline) RequeueStale(before time.Time) int {
	n := 0
	for _, rec := range p.history.StalePending(before) {
		if p.dispatch(rec) {
			n++
		}
	}
	if n > 0 {
		logrus.Infof("Requeued %d stale pending record(s)", n)
	}
	return n
}

// Wait blocks until all started deliveries finished or ctx ends
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

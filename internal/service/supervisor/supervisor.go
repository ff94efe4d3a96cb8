package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/config"
	"notify-mail-relay-go/internal/metrics"
)

// State of the supervisor timer
type State string

const (
	StateIdle     State = "IDLE"
	StateArmed    State = "ARMED"
	StateChecking State = "CHECKING"
)

// Target is the pipeline being supervised
type Target interface {
	IsRunning() bool
	ListenerConnected() bool
	EnsureRunning() bool
	RequeueStale(before time.Time) int
}

// EnabledSource reports whether forwarding is switched on
type EnabledSource interface {
	IsEnabled() bool
}

// Status is a snapshot of the supervisor
type Status struct {
	Running  bool      `json:"running"`
	State    State     `json:"state"`
	Interval string    `json:"interval"`
	NextRun  time.Time `json:"next_run"`
	LastRun  time.Time `json:"last_run"`
}

// once fires a single time at a fixed instant
type once struct {
	at time.Time
}

func (o once) Next(t time.Time) time.Time {
	if t.Before(o.at) {
		return o.at
	}
	return time.Time{}
}

// Supervisor periodically checks that the pipeline is alive and restarts
// it when it is not. The timer is one-shot and re-armed after every check.
type Supervisor struct {
	cron     *cron.Cron
	entryID  cron.EntryID
	cfg      config.SupervisorConfig
	pipeline Target
	configs  EnabledSource
	metrics  *metrics.Metrics
	notify   func(state string) (bool, error)
	now      func() time.Time

	mu        sync.RWMutex
	isRunning bool
	state     State
	nextRun   time.Time
	lastRun   time.Time
	wg        sync.WaitGroup
}

// New creates a new supervisor
func New(cfg config.SupervisorConfig, pipeline Target, configs EnabledSource, m *metrics.Metrics) *Supervisor {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Supervisor{
		cron:     cron.New(),
		cfg:      cfg,
		pipeline: pipeline,
		configs:  configs,
		metrics:  m,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		now:   time.Now,
		state: StateIdle,
	}
}

// Start arms the periodic check
func (s *Supervisor) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("supervisor is already running")
	}
	s.startLocked()
	s.armLocked(s.cfg.Interval, s.check)

	logrus.Infof("Supervisor started with interval: %s", s.cfg.Interval)
	return nil
}

func (s *Supervisor) startLocked() {
	if !s.isRunning {
		s.cron.Start()
		s.isRunning = true
	}
}

// Boot schedules recovery after the settle delay. It is used at process
// start and when the host reports a boot or package replacement.
func (s *Supervisor) Boot() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startLocked()
	s.armLocked(s.cfg.SettleDelay, s.bootRecover)
	logrus.Infof("Boot recovery scheduled in %s", s.cfg.SettleDelay)
}

// Stop disarms the timer and waits for a running check
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
		s.entryID = 0
	}
	s.state = StateIdle
	s.nextRun = time.Time{}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
		logrus.Info("Supervisor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Supervisor stop timeout, forcing shutdown")
	}
	s.wg.Wait()
	return nil
}

// armLocked replaces the pending one-shot entry with job at now+delay
func (s *Supervisor) armLocked(delay time.Duration, job func()) {
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	at := s.now().Add(delay)
	s.entryID = s.cron.Schedule(once{at: at}, cron.FuncJob(job))
	s.nextRun = at
	s.state = StateArmed
}

func (s *Supervisor) rearm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		s.state = StateIdle
		return
	}
	s.armLocked(s.cfg.Interval, s.check)
}

func (s *Supervisor) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

func (s *Supervisor) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// NextRun returns the zero time when nothing is armed
func (s *Supervisor) NextRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nextRun
}

func (s *Supervisor) LastRun() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRun
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Running:  s.isRunning,
		State:    s.state,
		Interval: s.cfg.Interval.String(),
		NextRun:  s.nextRun,
		LastRun:  s.lastRun,
	}
}

// RunOnce runs a check immediately (for manual triggering)
func (s *Supervisor) RunOnce() {
	logrus.Info("Running supervisor check once")
	s.check()
}

// Wait waits for running checks to finish
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

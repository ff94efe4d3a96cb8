package supervisor

import (
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/sirupsen/logrus"
)

// check is the periodic liveness check. It always re-arms the timer, even
// after a panic.
func (s *Supervisor) check() {
	s.wg.Add(1)
	defer s.wg.Done()

	s.mu.Lock()
	s.state = StateChecking
	s.lastRun = s.now()
	s.mu.Unlock()

	defer s.rearm()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Supervisor check panicked: %v", r)
		}
	}()

	s.metrics.SupervisorChecks.Inc()
	s.pingWatchdog()

	if !s.configs.IsEnabled() {
		logrus.Debug("Forwarding disabled, skipping supervisor check")
		return
	}

	switch {
	case !s.pipeline.ListenerConnected():
		logrus.Warn("Notification listener not connected, waiting for the host to rebind it")
	case !s.pipeline.IsRunning():
		logrus.Warn("Pipeline not running, restarting")
		s.pipeline.EnsureRunning()
	default:
		logrus.Debug("Pipeline alive")
	}

	s.requeueStale()
}

// bootRecover runs once after the settle delay following a boot
func (s *Supervisor) bootRecover() {
	s.wg.Add(1)
	defer s.wg.Done()
	defer s.rearm()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("Boot recovery panicked: %v", r)
		}
	}()

	if !s.configs.IsEnabled() {
		logrus.Info("Forwarding disabled, nothing to recover after boot")
		return
	}
	if s.pipeline.EnsureRunning() {
		logrus.Info("Pipeline restarted after boot")
	}
	s.requeueStale()
}

func (s *Supervisor) requeueStale() {
	if !s.cfg.RequeueStale {
		return
	}
	s.pipeline.RequeueStale(s.now().Add(-s.cfg.StaleAfter))
}

func (s *Supervisor) pingWatchdog() {
	if _, err := s.notify(daemon.SdNotifyWatchdog); err != nil {
		logrus.Debugf("Watchdog notification failed: %v", err)
	}
}

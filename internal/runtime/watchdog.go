package runtime

import "time"

// Watchdog tracks the configured cycle-duration ceiling and the policy to
// apply when a cycle exceeds it.
type Watchdog struct {
	enabled bool
	timeout time.Duration
	policy  WatchdogPolicy
}

func NewWatchdog() *Watchdog {
	return &Watchdog{}
}

func (w *Watchdog) Configure(enabled bool, timeout time.Duration, policy WatchdogPolicy) {
	w.enabled = enabled
	w.timeout = timeout
	w.policy = policy
}

func (w *Watchdog) SetPolicy(policy WatchdogPolicy) { w.policy = policy }
func (w *Watchdog) Policy() WatchdogPolicy          { return w.policy }

// Exceeded reports whether a cycle measuring duration overran the
// configured timeout; always false when the watchdog is disabled.
func (w *Watchdog) Exceeded(duration time.Duration) bool {
	return w.enabled && duration > w.timeout
}

func (w *Watchdog) Decision() FaultDecision {
	return watchdogDecision(w.policy)
}

// Package health implements Kubernetes-style liveness and readiness probes.
//
// Probes run on a shared background ticker. Consecutive-failure and
// consecutive-success thresholds keep a single slow database ping from
// flapping the service in and out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// Option adjusts the thresholds of a registered probe.
type Option func(*probe)

// WithFailureThreshold sets how many consecutive failures flip a probe to
// unhealthy. Default 3.
func WithFailureThreshold(n int) Option {
	return func(p *probe) { p.failAfter = n }
}

// WithSuccessThreshold sets how many consecutive successes flip a probe back
// to healthy. Default 1.
func WithSuccessThreshold(n int) Option {
	return func(p *probe) { p.recoverAfter = n }
}

// probe is one registered check plus its runtime state. The counters are
// touched only by the single runner goroutine; ok and lastErr are shared
// with HTTP handlers and use atomics.
type probe struct {
	name         string
	timeout      time.Duration
	check        CheckFunc
	failAfter    int
	recoverAfter int

	ok      atomic.Bool
	lastErr atomic.Pointer[error]

	fails     int
	successes int
}

func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.successes = 0
		if p.fails++; p.fails >= p.failAfter {
			p.ok.Store(false)
		}
		return
	}
	p.fails = 0
	if p.successes++; p.successes >= p.recoverAfter {
		p.ok.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.ok.Load() {
		return "", false
	}
	if errp := p.lastErr.Load(); errp != nil && *errp != nil {
		return (*errp).Error(), true
	}
	return "probe is unhealthy", true
}

// Service runs probes and serves the /livez and /readyz endpoints.
// The zero value is not usable; call New.
type Service struct {
	ready atomic.Bool

	mu     sync.RWMutex
	live   []*probe
	readyP []*probe
	cancel context.CancelFunc
}

// New creates a probe service. It starts not-ready; call SetReady(true)
// after initialization completes.
func New() *Service {
	return &Service{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc, opts []Option) *probe {
	p := &probe{
		name:         name,
		timeout:      timeout,
		check:        check,
		failAfter:    3,
		recoverAfter: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	// Healthy until the runner observes otherwise.
	p.ok.Store(true)
	return p
}

// AddLive registers a liveness probe: does the process itself still work.
func (s *Service) AddLive(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = append(s.live, newProbe(name, timeout, check, opts))
}

// AddReady registers a readiness probe: can the process serve traffic right
// now (database reachable, dependencies up).
func (s *Service) AddReady(name string, timeout time.Duration, check CheckFunc, opts ...Option) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyP = append(s.readyP, newProbe(name, timeout, check, opts))
}

// Start runs every registered probe once immediately and then on each tick
// of interval, until ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := make([]*probe, 0, len(s.live)+len(s.readyP))
	probes = append(probes, s.live...)
	probes = append(probes, s.readyP...)
	s.mu.Unlock()

	go func() {
		for _, p := range probes {
			p.observe(ctx)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, p := range probes {
					p.observe(ctx)
				}
			}
		}
	}()
}

// Stop cancels the probe runner. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Flip to false at the start of
// graceful shutdown so the load balancer drains the instance.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness probe
// is passing.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	s.mu.RLock()
	probes := s.readyP
	s.mu.RUnlock()
	for _, p := range probes {
		if _, failed := p.failure(); failed {
			return false
		}
	}
	return true
}

type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleLive serves the liveness endpoint: 200 while every liveness probe
// passes, 503 with per-probe errors otherwise.
func (s *Service) HandleLive(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	probes := make([]*probe, len(s.live))
	copy(probes, s.live)
	s.mu.RUnlock()

	writeReport(w, failures(probes))
}

// HandleReady serves the readiness endpoint. It fails while the manual gate
// is closed or any readiness probe is failing.
func (s *Service) HandleReady(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	probes := make([]*probe, len(s.readyP))
	copy(probes, s.readyP)
	s.mu.RUnlock()

	failed := failures(probes)
	if !s.ready.Load() {
		failed["_gate"] = "service is not ready"
	}
	writeReport(w, failed)
}

func failures(probes []*probe) map[string]string {
	failed := make(map[string]string)
	for _, p := range probes {
		if msg, bad := p.failure(); bad {
			failed[p.name] = msg
		}
	}
	return failed
}

func writeReport(w http.ResponseWriter, failed map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	report := probeReport{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		report.Status = "unhealthy"
		report.Checks = failed
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

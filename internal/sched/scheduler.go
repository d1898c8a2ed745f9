// Package sched keeps the auth token fresh while the app is backgrounded.
//
// Three overlapping triggers exist for redundancy against OS background
// restrictions: a periodic in-process timer, a self-rescheduling one-shot
// alarm, and a deferred job driven by the host scheduler. All three call
// the same entry point; the auth cycle's single-flight guard collapses
// concurrent firings into one network round trip.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/llehouerou/vibra/internal/auth"
)

// AuthRefresher is the slice of the auth cycle the scheduler drives.
type AuthRefresher interface {
	IsLoggedIn() bool
	VerifyToken(ctx context.Context) auth.Outcome
	RefreshToken(ctx context.Context) auth.Outcome
	Logout() error
}

// Gate reports connectivity before a pass attempts the network.
type Gate interface {
	Online() bool
}

// Options configure the scheduler's triggers.
type Options struct {
	// PeriodicInterval is the in-process timer interval.
	PeriodicInterval time.Duration
	// AlarmOffset is the one-shot alarm offset.
	AlarmOffset time.Duration
	// ExactAlarms reports whether the host currently grants exact wake
	// scheduling. When false the alarm runs in inexact mode at half the
	// offset: degraded punctuality beats no wake at all.
	ExactAlarms bool
	// MinPassInterval floors the time between effective passes so stacked
	// triggers cannot hammer the auth service.
	MinPassInterval time.Duration
}

// Scheduler coordinates the three refresh triggers.
type Scheduler struct {
	auth    AuthRefresher
	gate    Gate
	log     *log.Logger
	opts    Options
	limiter *rate.Limiter

	mu      sync.Mutex
	alarm   *time.Timer
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a scheduler. Call Start to activate the periodic and alarm
// triggers; RunJob is invoked by the host's job scheduler independently.
func New(a AuthRefresher, gate Gate, opts Options, logger *log.Logger) *Scheduler {
	return &Scheduler{
		auth:    a,
		gate:    gate,
		log:     logger.With("component", "sched"),
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinPassInterval), 1),
	}
}

// Start activates the periodic timer and schedules the first alarm.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.done = make(chan struct{})

	s.wg.Add(1)
	go s.periodicLoop()
	s.scheduleAlarmLocked()
}

// Stop halts all in-process triggers and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.done)
	if s.alarm != nil {
		s.alarm.Stop()
		s.alarm = nil
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// RunJob is the deferred-job entry point, called by the host scheduler on
// its own cadence.
func (s *Scheduler) RunJob(ctx context.Context) {
	s.Fire(ctx, TriggerDeferredJob)
}

// Fire runs one verify/refresh pass. This is the single entry point every
// trigger surface must call.
func (s *Scheduler) Fire(ctx context.Context, trigger Trigger) {
	if !s.limiter.Allow() {
		s.log.Debug("pass throttled", "trigger", trigger)
		return
	}
	if !s.auth.IsLoggedIn() {
		return
	}
	if !s.gate.Online() {
		// Not a failure; just deferred to the next firing.
		s.log.Debug("offline, skipping pass", "trigger", trigger)
		return
	}

	out := s.auth.VerifyToken(ctx)
	if out.Status == auth.StatusExpired {
		out = s.auth.RefreshToken(ctx)
	}

	switch {
	case out.Status == auth.StatusSuccess:
		s.log.Debug("session verified", "trigger", trigger)
	case out.Transient:
		s.log.Warn("pass hit transient failure, will retry", "trigger", trigger, "msg", out.Message)
	default:
		// Expired after refresh, or fatal failure: the session cannot be
		// repaired. Logout is idempotent, so a cascade already run inside
		// RefreshToken is harmless to repeat.
		s.log.Error("session unrecoverable, logging out", "trigger", trigger, "msg", out.Message)
		_ = s.auth.Logout()
	}
}

func (s *Scheduler) periodicLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.opts.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Fire(context.Background(), TriggerPeriodic)
		case <-s.done:
			return
		}
	}
}

// scheduleAlarmLocked arms the one-shot alarm. On firing it runs a pass and
// immediately rearms itself for the next offset.
func (s *Scheduler) scheduleAlarmLocked() {
	offset := s.opts.AlarmOffset
	if !s.opts.ExactAlarms {
		// Inexact wakes coalesce with other timers; halve the offset so
		// the effective cadence stays close to the exact one.
		offset /= 2
	}

	s.alarm = time.AfterFunc(offset, func() {
		select {
		case <-s.done:
			return
		default:
		}
		s.Fire(context.Background(), TriggerExternalAlarm)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.running {
			s.scheduleAlarmLocked()
		}
	})
}

package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	tickInterval    = 10 * time.Second
	backoffInterval = 60 * time.Second
)

// Clock abstracts the wall clock so schedule decisions are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// RunFunc synchronizes the given day. The scheduler always passes the
// current day.
type RunFunc func(ctx context.Context, day time.Time) error

// Status is a snapshot of the schedule state.
type Status struct {
	Enabled         bool      `json:"enabled"`
	IntervalMinutes int       `json:"interval_minutes"`
	Days            string    `json:"days"`
	StartTime       string    `json:"start_time"`
	EndTime         string    `json:"end_time"`
	NextRun         time.Time `json:"next_run,omitzero"`
}

// Scheduler triggers periodic runs. All fields past construction are owned
// by the loop goroutine.
type Scheduler struct {
	run   RunFunc
	clock Clock
	log   *zap.Logger

	cfg  Config
	next time.Time

	updates   chan Config
	statusReq chan chan Status
	stop      chan struct{}
	done      chan struct{}
}

// New creates a scheduler. Call Start to begin ticking.
func New(cfg Config, run RunFunc, clock Clock, log *zap.Logger) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{
		run:       run,
		clock:     clock,
		log:       log,
		cfg:       cfg,
		updates:   make(chan Config),
		statusReq: make(chan chan Status),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop ends the loop and waits for it to exit. A run already in flight
// finishes on its own.
func (s *Scheduler) Stop() {
	close(s.stop)
	<-s.done
}

// UpdateConfig replaces the schedule. Takes effect within one tick; the next
// run time is recomputed from scratch.
func (s *Scheduler) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	select {
	case s.updates <- cfg:
	case <-s.stop:
	}
	return nil
}

// Status reports the current schedule state.
func (s *Scheduler) Status() Status {
	reply := make(chan Status, 1)
	select {
	case s.statusReq <- reply:
		return <-reply
	case <-s.stop:
		return Status{}
	}
}

func (s *Scheduler) loop() {
	defer close(s.done)

	wait := tickInterval
	for {
		select {
		case <-s.stop:
			return
		case cfg := <-s.updates:
			s.cfg = cfg
			s.next = time.Time{}
			s.log.Info("schedule updated",
				zap.Bool("enabled", cfg.Enabled),
				zap.Int("interval_minutes", cfg.IntervalMinutes),
				zap.String("days", cfg.Days),
				zap.String("window", cfg.StartTime+"-"+cfg.EndTime))
		case reply := <-s.statusReq:
			reply <- Status{
				Enabled:         s.cfg.Enabled,
				IntervalMinutes: s.cfg.IntervalMinutes,
				Days:            s.cfg.Days,
				StartTime:       s.cfg.StartTime,
				EndTime:         s.cfg.EndTime,
				NextRun:         s.next,
			}
		case <-time.After(wait):
			wait = s.tick()
		}
	}
}

// tick evaluates the schedule once and returns how long to sleep next.
func (s *Scheduler) tick() time.Duration {
	if !s.cfg.Enabled {
		return tickInterval
	}
	if err := s.cfg.Validate(); err != nil {
		s.log.Warn("schedule invalid, skipping", zap.Error(err))
		return backoffInterval
	}

	now := s.clock.Now()
	due, next := Evaluate(s.cfg, now, s.next)
	s.next = next
	if !due {
		return tickInterval
	}

	s.log.Info("automatic synchronization starting", zap.Time("at", now))
	if err := s.run(context.Background(), now); err != nil {
		s.log.Error("automatic synchronization failed", zap.Error(err))
		return backoffInterval
	}

	s.next = now.Add(s.cfg.Interval())
	s.log.Info("next automatic synchronization planned", zap.Time("next", s.next))
	return tickInterval
}

// Evaluate decides whether a run is due at now, given the previously planned
// time (zero means never planned). It returns the updated plan: when due, the
// caller runs and then re-plans from the interval; when not due, the returned
// time is the earliest moment worth re-checking.
func Evaluate(cfg Config, now, planned time.Time) (due bool, next time.Time) {
	if planned.IsZero() {
		planned = now
	}
	if now.Before(planned) {
		return false, planned
	}

	eligible := nextEligible(cfg, now)
	if eligible.Equal(now) {
		return true, planned
	}
	return false, eligible
}

// nextEligible returns now when it lies inside the weekday/time window, or
// the start of the next open window otherwise.
func nextEligible(cfg Config, now time.Time) time.Time {
	days, err := cfg.Weekdays()
	if err != nil {
		return now
	}
	startMin, endMin, err := cfg.Window()
	if err != nil {
		return now
	}

	minuteOfDay := now.Hour()*60 + now.Minute()
	if days[isoWeekday(now)] {
		if minuteOfDay >= startMin && minuteOfDay <= endMin {
			return now
		}
		if minuteOfDay < startMin {
			return windowStart(now, startMin)
		}
	}

	// Past today's window or wrong weekday: first allowed day after today.
	day := now.AddDate(0, 0, 1)
	for i := 0; i < 7; i++ {
		if days[isoWeekday(day)] {
			return windowStart(day, startMin)
		}
		day = day.AddDate(0, 0, 1)
	}
	return windowStart(day, startMin)
}

func windowStart(day time.Time, startMin int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), startMin/60, startMin%60, 0, 0, day.Location())
}

// isoWeekday maps time.Weekday to 1=Monday .. 7=Sunday.
func isoWeekday(t time.Time) int {
	d := int(t.Weekday())
	if d == 0 {
		return 7
	}
	return d
}

package engine

import "time"

// TimerService tracks named countdowns. Expiry is discovered lazily by
// whoever reads the timer; nothing is scheduled.
type TimerService struct {
	s *TimerSnapshot
}

func NewTimerService(s *TimerSnapshot) *TimerService {
	if s.Timers == nil {
		s.Timers = map[string]Timer{}
	}
	return &TimerService{s: s}
}

// Start records a countdown, replacing any timer with the same name.
func (t *TimerService) Start(name string, durationSeconds int, now time.Time) {
	t.s.Timers[name] = Timer{DurationSeconds: durationSeconds, StartedAt: now.UnixMilli()}
}

func (t *TimerService) Stop(name string) {
	delete(t.s.Timers, name)
}

func (t *TimerService) Has(name string) bool {
	_, ok := t.s.Timers[name]
	return ok
}

// Remaining is zero for unknown timers.
func (t *TimerService) Remaining(name string, now time.Time) time.Duration {
	tm, ok := t.s.Timers[name]
	if !ok {
		return 0
	}
	return remaining(tm.StartedAt, tm.DurationSeconds, now)
}

// IsExpired is false for unknown timers: a countdown that never started
// cannot run out.
func (t *TimerService) IsExpired(name string, now time.Time) bool {
	if !t.Has(name) {
		return false
	}
	return t.Remaining(name, now) == 0
}

func remaining(startedAtMs int64, durationSeconds int, now time.Time) time.Duration {
	end := time.UnixMilli(startedAtMs).Add(time.Duration(durationSeconds) * time.Second)
	left := end.Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Package scheduler sequences the DAY and PAUSE phases of a running lobby.
//
// Nothing here runs on a timer. Callers compare the stored phase window against
// the wall clock whenever they read a lobby and apply the step Decide returns.
package scheduler

import (
	"time"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

// Step is the transition due for a lobby at a given instant.
type Step int

const (
	StepNone Step = iota
	StepPause
	StepNextDay
)

func (s Step) String() string {
	switch s {
	case StepPause:
		return "pause"
	case StepNextDay:
		return "next_day"
	default:
		return "none"
	}
}

// Decide returns the transition due at now. Only running lobbies with an
// expired phase window move.
func Decide(l domain.Lobby, now time.Time) Step {
	if l.Status != domain.StatusRunning || l.PhaseEndAt == nil {
		return StepNone
	}
	if now.Before(*l.PhaseEndAt) {
		return StepNone
	}
	switch l.Phase {
	case domain.PhaseDay:
		return StepPause
	case domain.PhasePause:
		return StepNextDay
	}
	return StepNone
}

// EnterPause moves a finished day into its intermission.
func EnterPause(l *domain.Lobby, now time.Time, pause time.Duration) {
	l.Phase = domain.PhasePause
	setWindow(l, now, pause)
}

// PrepareNextDay advances the day counter and shrinks the food supply, never below one.
func PrepareNextDay(l *domain.Lobby) {
	l.Day++
	l.FoodPerDay = max(1, l.FoodPerDay-1)
}

// BeginDay opens the playback window of the day that was just simulated.
func BeginDay(l *domain.Lobby, now time.Time, duration time.Duration, finished bool) {
	l.Phase = domain.PhaseDay
	l.CurrentPayloadDay++
	setWindow(l, now, duration)
	if finished {
		l.Status = domain.StatusFinished
	}
}

// Start resets a waiting lobby for its first day. The caller spawns the world,
// simulates day one and then calls BeginDay.
func Start(l *domain.Lobby, t tuning.Tuning) error {
	if l.Status != domain.StatusWaiting {
		return domain.Reject("game already started")
	}
	l.Status = domain.StatusRunning
	l.Day = 0
	l.FoodPerDay = t.Lobby.FoodPerDay
	l.Phase = domain.PhaseDay
	l.PhaseStartedAt = nil
	l.PhaseEndAt = nil
	l.CurrentPayloadDay = 0
	return nil
}

func setWindow(l *domain.Lobby, now time.Time, d time.Duration) {
	if d <= 0 {
		d = time.Millisecond
	}
	start := now
	end := now.Add(d)
	l.PhaseStartedAt = &start
	l.PhaseEndAt = &end
}

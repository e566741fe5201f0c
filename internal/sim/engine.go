// Package sim runs one lobby day: the frame loop followed by survival and
// reproduction. It knows nothing about wall-clock time or persistence.
package sim

import (
	"math/rand"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

// Engine simulates days with an injected random source. An Engine is not safe
// for concurrent use; create one per run.
type Engine struct {
	t   tuning.Tuning
	rng *rand.Rand
}

// NewEngine returns an engine drawing every random number from rng.
func NewEngine(t tuning.Tuning, rng *rand.Rand) *Engine {
	return &Engine{t: t, rng: rng}
}

// actor is the per-day transient state of a creature.
type actor struct {
	c         *domain.Creature
	base      *domain.Slot
	returning bool
}

// latch sets the returning flag once the creature should head home. It never clears.
func (a *actor) latch() {
	c := a.c
	if c.CarriedFood >= domain.MaxCarriedFood ||
		(c.CarriedFood >= 1 && c.Energy <= c.Danger*c.EnergyMax) {
		a.returning = true
	}
}

// RunDay plays the lobby's current day in place and returns the replay payload.
// Creatures and foods in w are mutated, offspring are appended to w.Creatures and
// slot coins are credited.
func (e *Engine) RunDay(w *domain.World) domain.DayPayload {
	actors := e.actors(w)
	foods := make([]*domain.Food, 0, len(w.Foods))
	for i := range w.Foods {
		if w.Foods[i].Active {
			foods = append(foods, &w.Foods[i])
		}
	}

	var frames []domain.Frame
	for len(frames) < e.t.MaxFrames {
		if allExhausted(actors) {
			break
		}
		e.move(w, actors, foods)
		e.forage(actors, foods)
		e.predate(actors)
		frames = append(frames, snapshot(actors, foods))
	}

	births, deaths := e.resolve(w, actors)
	players := credit(w)
	finished, winner := finishCheck(w)

	durationMs := len(frames) * e.t.FrameMs
	if durationMs < 1 {
		durationMs = 1
	}

	if frames == nil {
		frames = []domain.Frame{}
	}
	return domain.DayPayload{
		FrameMs:    e.t.FrameMs,
		DurationMs: durationMs,
		Frames:     frames,
		Summary: domain.DaySummary{
			DayCompleted: w.Lobby.Day + 1,
			Births:       births,
			Deaths:       deaths,
			Players:      players,
			Finished:     finished,
			WinnerSlot:   winner,
		},
	}
}

func (e *Engine) actors(w *domain.World) []*actor {
	var out []*actor
	for i := range w.Creatures {
		c := &w.Creatures[i]
		if !c.Alive {
			continue
		}
		out = append(out, &actor{c: c, base: w.Slot(c.Owner)})
	}
	return out
}

func allExhausted(actors []*actor) bool {
	for _, a := range actors {
		if !a.c.Exhausted() {
			return false
		}
	}
	return true
}

func (e *Engine) move(w *domain.World, actors []*actor, foods []*domain.Food) {
	for _, a := range actors {
		c := a.c
		if !c.Alive {
			continue
		}
		if c.Energy <= 0 {
			c.Energy = 0
			continue
		}

		a.latch()
		var tx, ty float64
		if a.returning && a.base != nil {
			tx, ty = a.base.BaseX, a.base.BaseY
		} else if f := nearestFood(c, foods); f != nil {
			tx, ty = f.X, f.Y
		} else {
			tx, ty = e.wanderTarget(w, c)
		}

		c.X, c.Y = moveTowards(c.X, c.Y, tx, ty, e.t.MoveStepBase*c.Speed)

		cost := e.t.EnergyK * (c.Size * c.Size * c.Size) * (c.Speed * c.Speed)
		c.Energy = max(0, c.Energy-cost)
	}
}

// nearestFood returns the closest active food within vision. The first one seen wins ties.
func nearestFood(c *domain.Creature, foods []*domain.Food) *domain.Food {
	var best *domain.Food
	bestD := 0.0
	for _, f := range foods {
		if !f.Active {
			continue
		}
		d := dist(c.X, c.Y, f.X, f.Y)
		if d <= c.Vision && (best == nil || d < bestD) {
			best, bestD = f, d
		}
	}
	return best
}

func (e *Engine) wanderTarget(w *domain.World, c *domain.Creature) (float64, float64) {
	r := e.t.WanderRadius
	m := e.t.WanderMargin
	x := clamp(c.X+e.uniform(-r, r), m, float64(w.Lobby.MapW)-m)
	y := clamp(c.Y+e.uniform(-r, r), m, float64(w.Lobby.MapH)-m)
	return x, y
}

func (e *Engine) forage(actors []*actor, foods []*domain.Food) {
	for _, a := range actors {
		c := a.c
		if c.Exhausted() || c.CarriedFood >= domain.MaxCarriedFood {
			continue
		}
		for _, f := range foods {
			if !f.Active {
				continue
			}
			if dist(c.X, c.Y, f.X, f.Y) <= e.t.PickupRadius {
				f.Active = false
				c.CarriedFood++
				a.latch()
				break
			}
		}
	}
}

// predate resolves every pair once, in list order. A creature eaten earlier in the
// pass takes no part in later pairs.
func (e *Engine) predate(actors []*actor) {
	for i := 0; i < len(actors); i++ {
		a := actors[i]
		for j := i + 1; j < len(actors); j++ {
			if a.c.Exhausted() {
				break
			}
			b := actors[j]
			if b.c.Exhausted() {
				continue
			}
			if dist(a.c.X, a.c.Y, b.c.X, b.c.Y) > e.t.EatRadius {
				continue
			}
			switch {
			case a.c.Size >= e.t.PredationRatio*b.c.Size:
				eat(a, b)
			case b.c.Size >= e.t.PredationRatio*a.c.Size:
				eat(b, a)
			}
		}
	}
}

func eat(hunter, prey *actor) {
	prey.c.Alive = false
	if hunter.c.CarriedFood < domain.MaxCarriedFood {
		hunter.c.CarriedFood++
		hunter.latch()
	}
}

func snapshot(actors []*actor, foods []*domain.Food) domain.Frame {
	fr := domain.Frame{
		Creatures: make([]domain.CreatureFrame, 0, len(actors)),
		Foods:     make([]domain.FoodFrame, 0, len(foods)),
	}
	for _, a := range actors {
		c := a.c
		fr.Creatures = append(fr.Creatures, domain.CreatureFrame{
			ID:          c.ID,
			X:           round(c.X, 2),
			Y:           round(c.Y, 2),
			Alive:       c.Alive,
			Owner:       c.Owner,
			CarriedFood: c.CarriedFood,
			Energy:      round(c.Energy, 1),
			EnergyMax:   round(c.EnergyMax, 1),
			Size:        round(c.Size, 3),
		})
	}
	for _, f := range foods {
		fr.Foods = append(fr.Foods, domain.FoodFrame{
			ID:     f.ID,
			X:      round(f.X, 2),
			Y:      round(f.Y, 2),
			Active: f.Active,
		})
	}
	return fr
}

func (e *Engine) uniform(lo, hi float64) float64 {
	return lo + e.rng.Float64()*(hi-lo)
}

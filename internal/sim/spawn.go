package sim

import (
	"math"

	"github.com/ashureev/evo-lobby/internal/domain"
)

// PlaceBases fixes the four faction bases near the map corners and assigns slot colors.
func PlaceBases(w *domain.World) {
	mw, mh := float64(w.Lobby.MapW), float64(w.Lobby.MapH)
	ox := math.Min(300, mw*0.35)
	oy := math.Min(300, mh*0.35)
	bases := [domain.SlotCount][2]float64{
		{ox, oy},
		{mw - ox, oy},
		{ox, mh - oy},
		{mw - ox, mh - oy},
	}
	for i := range w.Slots {
		s := &w.Slots[i]
		if s.Index < 1 || s.Index > domain.SlotCount {
			continue
		}
		s.BaseX, s.BaseY = bases[s.Index-1][0], bases[s.Index-1][1]
		s.Color = domain.SlotColors[s.Index-1]
	}
}

// SpawnInitialCreatures gives every slot its starting population around its base.
func (e *Engine) SpawnInitialCreatures(w *domain.World) {
	spread := e.t.SpawnSpread
	m := e.t.SpawnMargin
	for i := range w.Slots {
		s := w.Slots[i]
		energyMax := e.t.BaseEnergy + float64(s.EnergyBonus)
		vision := e.t.BaseVision + float64(s.VisionBonus)
		for n := 0; n < e.t.InitialPopulation; n++ {
			w.Creatures = append(w.Creatures, domain.Creature{
				ID:          w.Lobby.AllocID(),
				Owner:       s.Index,
				Alive:       true,
				Size:        1.0,
				Speed:       1.0,
				Danger:      0.5,
				EnergyMax:   energyMax,
				Energy:      energyMax,
				Vision:      vision,
				X:           clamp(s.BaseX+e.uniform(-spread, spread), m, float64(w.Lobby.MapW)-m),
				Y:           clamp(s.BaseY+e.uniform(-spread, spread), m, float64(w.Lobby.MapH)-m),
				CarriedFood: 0,
				CreatedDay:  w.Lobby.Day,
			})
		}
	}
}

// SpawnFood discards the previous day's food and scatters FoodPerDay new items.
func (e *Engine) SpawnFood(w *domain.World) {
	m := e.t.FoodMargin
	foods := make([]domain.Food, 0, w.Lobby.FoodPerDay)
	for n := 0; n < w.Lobby.FoodPerDay; n++ {
		foods = append(foods, domain.Food{
			ID:     w.Lobby.AllocID(),
			X:      e.uniform(m, float64(w.Lobby.MapW)-m),
			Y:      e.uniform(m, float64(w.Lobby.MapH)-m),
			Active: true,
		})
	}
	w.Foods = foods
}

package sim

import "github.com/ashureev/evo-lobby/internal/domain"

// resolve applies the day-end rules to every creature that started the day alive.
// Only creatures standing in their base with food survive; those holding two
// food units also leave one offspring.
func (e *Engine) resolve(w *domain.World, actors []*actor) (births, deaths int) {
	var offspring []domain.Creature
	for _, a := range actors {
		c := a.c
		if !c.Alive {
			deaths++
			continue
		}
		slot := a.base
		if slot == nil || dist(c.X, c.Y, slot.BaseX, slot.BaseY) > e.t.BaseRadius || c.CarriedFood <= 0 {
			c.Alive = false
			deaths++
			continue
		}

		energyMax := e.t.BaseEnergy + float64(slot.EnergyBonus)
		vision := e.t.BaseVision + float64(slot.VisionBonus)

		if c.CarriedFood >= domain.MaxCarriedFood {
			births++
			offspring = append(offspring, e.offspring(w, c, slot, energyMax, vision))
		}

		c.EnergyMax = energyMax
		c.Energy = energyMax
		c.Vision = vision
		c.CarriedFood = 0
	}
	// Appended last: actors point into w.Creatures.
	w.Creatures = append(w.Creatures, offspring...)
	return births, deaths
}

func (e *Engine) offspring(w *domain.World, parent *domain.Creature, slot *domain.Slot, energyMax, vision float64) domain.Creature {
	spread := e.t.OffspringSpread
	m := e.t.WanderMargin
	return domain.Creature{
		ID:          w.Lobby.AllocID(),
		Owner:       parent.Owner,
		Alive:       true,
		Size:        e.mutate(parent.Size, e.t.TraitMin, e.t.TraitMax),
		Speed:       e.mutate(parent.Speed, e.t.TraitMin, e.t.TraitMax),
		Danger:      e.mutate(parent.Danger, e.t.DangerMin, e.t.DangerMax),
		EnergyMax:   energyMax,
		Energy:      energyMax,
		Vision:      vision,
		X:           clamp(slot.BaseX+e.uniform(-spread, spread), m, float64(w.Lobby.MapW)-m),
		Y:           clamp(slot.BaseY+e.uniform(-spread, spread), m, float64(w.Lobby.MapH)-m),
		CarriedFood: 0,
		CreatedDay:  w.Lobby.Day + 1,
	}
}

// mutate perturbs v by up to ±MutationRate and clamps it into [lo, hi].
func (e *Engine) mutate(v, lo, hi float64) float64 {
	r := e.t.MutationRate
	return clamp(v*(1+e.uniform(-r, r)), lo, hi)
}

// credit pays every slot one coin per living creature and builds the summary lines.
func credit(w *domain.World) []domain.PlayerSummary {
	players := make([]domain.PlayerSummary, 0, len(w.Slots))
	for i := range w.Slots {
		s := &w.Slots[i]
		st := Stats(w, s.Index)
		s.Coins += st.Alive
		players = append(players, domain.PlayerSummary{
			Slot:      s.Index,
			Name:      s.Name,
			Coins:     s.Coins,
			Alive:     st.Alive,
			IsBot:     s.IsBot,
			AvgSize:   round(st.AvgSize, 2),
			AvgSpeed:  round(st.AvgSpeed, 2),
			AvgDanger: round(st.AvgDanger, 2),
		})
	}
	return players
}

// finishCheck ends the lobby on the last day or when at most one slot has living creatures.
func finishCheck(w *domain.World) (bool, *int) {
	living := 0
	for i := range w.Slots {
		if w.AliveCount(w.Slots[i].Index) > 0 {
			living++
		}
	}
	if w.Lobby.Day+1 < w.Lobby.MaxDays && living > 1 {
		return false, nil
	}
	slot, _ := w.Winner()
	if slot == nil {
		return true, nil
	}
	idx := slot.Index
	return true, &idx
}

// PopulationStats are the averages over a slot's living creatures.
type PopulationStats struct {
	Alive        int
	AvgSize      float64
	AvgSpeed     float64
	AvgDanger    float64
	AvgEnergyMax float64
	AvgVision    float64
}

// Stats averages the living creatures of slot. Averages are zero for an empty population.
func Stats(w *domain.World, slot int) PopulationStats {
	var st PopulationStats
	for i := range w.Creatures {
		c := &w.Creatures[i]
		if !c.Alive || c.Owner != slot {
			continue
		}
		st.Alive++
		st.AvgSize += c.Size
		st.AvgSpeed += c.Speed
		st.AvgDanger += c.Danger
		st.AvgEnergyMax += c.EnergyMax
		st.AvgVision += c.Vision
	}
	if st.Alive == 0 {
		return st
	}
	n := float64(st.Alive)
	st.AvgSize /= n
	st.AvgSpeed /= n
	st.AvgDanger /= n
	st.AvgEnergyMax /= n
	st.AvgVision /= n
	return st
}

// Round rounds v to places decimals, the precision used in payloads.
func Round(v float64, places int) float64 {
	return round(v, places)
}

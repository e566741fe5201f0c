package game

import (
	"time"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/economy"
	"github.com/ashureev/evo-lobby/internal/sim"
)

// Snapshot is the polled view of a lobby.
type Snapshot struct {
	ServerTime time.Time         `json:"serverTime"`
	Winner     *Winner           `json:"winner"`
	Shop       economy.ShopTable `json:"shop"`
	Lobby      domain.Lobby      `json:"lobby"`
	Me         Me                `json:"me"`
	Slots      []SlotView        `json:"slots"`
}

// Winner is set once the lobby is finished.
type Winner struct {
	Slot  int    `json:"slot"`
	Name  string `json:"name"`
	Alive int    `json:"aliveCount"`
}

// Me identifies the caller's slot, if any.
type Me struct {
	Slot *int `json:"slot"`
}

// SlotView is a slot with live population statistics.
type SlotView struct {
	domain.Slot
	Alive     int     `json:"alive"`
	AvgSize   float64 `json:"avgSize"`
	AvgSpeed  float64 `json:"avgSpeed"`
	AvgDanger float64 `json:"avgDanger"`
	AvgEnergy float64 `json:"avgEnergy"`
	AvgVision float64 `json:"avgVision"`
}

func (s *Service) snapshot(w *domain.World, sessionKey string) *Snapshot {
	snap := &Snapshot{
		ServerTime: s.now(),
		Shop:       economy.Shop(s.tuning),
		Lobby:      w.Lobby,
		Slots:      make([]SlotView, 0, len(w.Slots)),
	}
	if me := w.SlotBySession(sessionKey); me != nil {
		idx := me.Index
		snap.Me.Slot = &idx
	}
	for _, sl := range w.Slots {
		st := sim.Stats(w, sl.Index)
		snap.Slots = append(snap.Slots, SlotView{
			Slot:      sl,
			Alive:     st.Alive,
			AvgSize:   sim.Round(st.AvgSize, 2),
			AvgSpeed:  sim.Round(st.AvgSpeed, 2),
			AvgDanger: sim.Round(st.AvgDanger, 2),
			AvgEnergy: sim.Round(st.AvgEnergyMax, 1),
			AvgVision: sim.Round(st.AvgVision, 1),
		})
	}
	if w.Lobby.Status == domain.StatusFinished {
		if slot, alive := w.Winner(); slot != nil {
			snap.Winner = &Winner{Slot: slot.Index, Name: slot.Name, Alive: alive}
		}
	}
	return snap
}

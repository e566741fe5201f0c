package domain

// World is a lobby together with everything it owns. It is loaded, mutated and
// saved as one unit.
type World struct {
	Lobby     Lobby
	Slots     []Slot
	Creatures []Creature
	Foods     []Food
}

// Slot returns the slot with the given index, or nil.
func (w *World) Slot(index int) *Slot {
	for i := range w.Slots {
		if w.Slots[i].Index == index {
			return &w.Slots[i]
		}
	}
	return nil
}

// SlotBySession returns the slot held by sessionKey, or nil.
func (w *World) SlotBySession(sessionKey string) *Slot {
	if sessionKey == "" {
		return nil
	}
	for i := range w.Slots {
		if w.Slots[i].SessionKey == sessionKey {
			return &w.Slots[i]
		}
	}
	return nil
}

// AliveCount returns the number of living creatures owned by slot.
func (w *World) AliveCount(slot int) int {
	n := 0
	for i := range w.Creatures {
		if w.Creatures[i].Alive && w.Creatures[i].Owner == slot {
			n++
		}
	}
	return n
}

// Winner returns the slot with the most living creatures. Ties go to the lower index.
func (w *World) Winner() (slot *Slot, alive int) {
	best := -1
	for i := range w.Slots {
		n := w.AliveCount(w.Slots[i].Index)
		if n > best {
			best = n
			slot = &w.Slots[i]
		}
	}
	if slot == nil {
		return nil, 0
	}
	return slot, best
}

// Package economy implements the upgrade shop that slots spend coins in between days.
package economy

import (
	"fmt"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

// Kind names an upgrade.
type Kind string

const (
	KindEnergy Kind = "energy"
	KindVision Kind = "vision"
)

// Receipt describes an applied purchase.
type Receipt struct {
	Kind   Kind   `json:"kind"`
	Cost   int    `json:"cost"`
	Coins  int    `json:"coins"`
	Bonus  int    `json:"bonus"`
	Detail string `json:"detail"`
}

type offer struct {
	cost int
	add  int
	max  int
}

// ShopTable is the price list shown to clients.
type ShopTable struct {
	EnergyCost   int `json:"energyCost"`
	VisionCost   int `json:"visionCost"`
	EnergyAdd    int `json:"energyAdd"`
	VisionAdd    int `json:"visionAdd"`
	MaxPurchases int `json:"maxPurchases"`
}

// Shop returns the price list derived from t. Purchase charges exactly these values.
func Shop(t tuning.Tuning) ShopTable {
	u := t.Upgrades
	return ShopTable{
		EnergyCost:   u.EnergyCost,
		VisionCost:   u.VisionCost,
		EnergyAdd:    u.EnergyAdd,
		VisionAdd:    u.VisionAdd,
		MaxPurchases: u.MaxPurchase,
	}
}

func lookup(t tuning.Tuning, kind Kind) (offer, bool) {
	u := t.Upgrades
	switch kind {
	case KindEnergy:
		return offer{cost: u.EnergyCost, add: u.EnergyAdd, max: u.MaxPurchase}, true
	case KindVision:
		return offer{cost: u.VisionCost, add: u.VisionAdd, max: u.MaxPurchase}, true
	}
	return offer{}, false
}

// Purchase buys one upgrade of kind for the slot. On rejection nothing is changed
// and the error is a *domain.Rejection carrying the reason.
func Purchase(w *domain.World, slotIndex int, kind Kind, t tuning.Tuning) (Receipt, error) {
	slot := w.Slot(slotIndex)
	if slot == nil {
		return Receipt{}, domain.RejectInput("you have no slot in this lobby")
	}
	if slot.IsBot {
		return Receipt{}, domain.Reject("bots cannot buy upgrades")
	}
	if !w.Lobby.IsRunning() {
		return Receipt{}, domain.Reject("game is not running")
	}
	if w.Lobby.Phase != domain.PhasePause {
		return Receipt{}, domain.Reject("upgrades can only be bought during the pause")
	}

	o, ok := lookup(t, kind)
	if !ok {
		return Receipt{}, domain.RejectInput(fmt.Sprintf("unknown upgrade %q", kind))
	}

	bonus := &slot.EnergyBonus
	if kind == KindVision {
		bonus = &slot.VisionBonus
	}
	if *bonus >= o.add*o.max {
		return Receipt{}, domain.Reject(fmt.Sprintf("%s upgrade is maxed out", kind))
	}
	if slot.Coins < o.cost {
		return Receipt{}, domain.Reject("not enough coins")
	}

	slot.Coins -= o.cost
	*bonus += o.add
	return Receipt{
		Kind:   kind,
		Cost:   o.cost,
		Coins:  slot.Coins,
		Bonus:  *bonus,
		Detail: fmt.Sprintf("+%d %s", o.add, kind),
	}, nil
}

package domain

import "fmt"

// SlotCount is the number of faction seats in every lobby.
const SlotCount = 4

// SlotColors are the faction colors by slot index - 1.
var SlotColors = [SlotCount]string{"#3b82f6", "#ef4444", "#22c55e", "#facc15"}

// Slot is a faction seat, held by a human session or a bot.
type Slot struct {
	Index       int     `json:"slotIndex" db:"slot_index"`
	SessionKey  string  `json:"-" db:"session_key"`
	Name        string  `json:"displayName" db:"display_name"`
	IsBot       bool    `json:"isBot" db:"is_bot"`
	Color       string  `json:"colorHex" db:"color_hex"`
	Coins       int     `json:"coins" db:"coins"`
	EnergyBonus int     `json:"energyBonus" db:"energy_bonus"`
	VisionBonus int     `json:"visionBonus" db:"vision_bonus"`
	BaseX       float64 `json:"baseX" db:"base_x"`
	BaseY       float64 `json:"baseY" db:"base_y"`
}

// Taken reports whether a session (human or bot) occupies the slot.
func (s *Slot) Taken() bool {
	return s.SessionKey != ""
}

// MakeBot hands the slot to the server for lobby lobbyID.
func (s *Slot) MakeBot(lobbyID int64) {
	s.IsBot = true
	s.Name = fmt.Sprintf("Bot %d", s.Index)
	s.SessionKey = fmt.Sprintf("BOT-%d-%d", lobbyID, s.Index)
}

package domain

import "time"

// DayLog is the immutable record of one simulated day.
type DayLog struct {
	LobbyID   int64
	Day       int
	Seed      int64
	Payload   DayPayload
	CreatedAt time.Time
}

// DayPayload is what clients replay.
type DayPayload struct {
	FrameMs    int        `json:"frameMs"`
	DurationMs int        `json:"durationMs"`
	Frames     []Frame    `json:"frames"`
	Summary    DaySummary `json:"summary"`
}

// Frame is a snapshot after one simulation step.
type Frame struct {
	Creatures []CreatureFrame `json:"creatures"`
	Foods     []FoodFrame     `json:"foods"`
}

// CreatureFrame is a rounded view of a creature inside a frame.
type CreatureFrame struct {
	ID          int64   `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Alive       bool    `json:"alive"`
	Owner       int     `json:"owner"`
	CarriedFood int     `json:"carriedFood"`
	Energy      float64 `json:"energy"`
	EnergyMax   float64 `json:"energyMax"`
	Size        float64 `json:"size"`
}

// FoodFrame is a rounded view of a food item inside a frame.
type FoodFrame struct {
	ID     int64   `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Active bool    `json:"active"`
}

// DaySummary is the end-of-day resolution.
type DaySummary struct {
	DayCompleted int             `json:"dayCompleted"`
	Births       int             `json:"births"`
	Deaths       int             `json:"deaths"`
	Players      []PlayerSummary `json:"players"`
	Finished     bool            `json:"finished"`
	WinnerSlot   *int            `json:"winnerSlot"`
}

// PlayerSummary is one slot's line in a DaySummary.
type PlayerSummary struct {
	Slot      int     `json:"slot"`
	Name      string  `json:"name"`
	Coins     int     `json:"coins"`
	Alive     int     `json:"alive"`
	IsBot     bool    `json:"isBot"`
	AvgSize   float64 `json:"avgSize"`
	AvgSpeed  float64 `json:"avgSpeed"`
	AvgDanger float64 `json:"avgDanger"`
}

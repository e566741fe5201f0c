// Package domain contains the core entities of an evolution lobby.
package domain

import "time"

// LobbyStatus is the lobby-level lifecycle state.
type LobbyStatus string

const (
	StatusWaiting  LobbyStatus = "WAITING"
	StatusRunning  LobbyStatus = "RUNNING"
	StatusFinished LobbyStatus = "FINISHED"
)

// Phase is the real-time state nested inside a running lobby.
type Phase string

const (
	PhaseDay   Phase = "DAY"
	PhasePause Phase = "PAUSE"
)

// Lobby is the aggregate root. Everything else in a World is owned by it.
type Lobby struct {
	ID     int64       `json:"id" db:"id"`
	Name   string      `json:"name" db:"name"`
	Status LobbyStatus `json:"status" db:"status"`

	// Day counts completed days. It lags CurrentPayloadDay by one while a day plays back.
	Day        int `json:"day" db:"day"`
	MaxDays    int `json:"maxDays" db:"max_days"`
	MapW       int `json:"mapW" db:"map_w"`
	MapH       int `json:"mapH" db:"map_h"`
	FoodPerDay int `json:"foodPerDay" db:"food_per_day"`

	Phase             Phase      `json:"phase" db:"phase"`
	PhaseStartedAt    *time.Time `json:"phaseStartedAt" db:"-"`
	PhaseEndAt        *time.Time `json:"phaseEndAt" db:"-"`
	CurrentPayloadDay int        `json:"currentPayloadDay" db:"current_payload_day"`

	NextEntityID int64     `json:"-" db:"next_entity_id"`
	Version      int64     `json:"-" db:"version"`
	CreatedAt    time.Time `json:"-" db:"-"`
}

// IsRunning reports whether days are being played.
func (l *Lobby) IsRunning() bool {
	return l.Status == StatusRunning
}

// AllocID hands out the next creature or food id of this lobby.
func (l *Lobby) AllocID() int64 {
	if l.NextEntityID < 1 {
		l.NextEntityID = 1
	}
	id := l.NextEntityID
	l.NextEntityID++
	return id
}

// LobbySummary is a row of the lobby list.
type LobbySummary struct {
	ID      int64       `json:"id" db:"id"`
	Name    string      `json:"name" db:"name"`
	Status  LobbyStatus `json:"status" db:"status"`
	Day     int         `json:"day" db:"day"`
	MaxDays int         `json:"maxDays" db:"max_days"`
	Joined  int         `json:"joined" db:"joined"`
}

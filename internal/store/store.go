// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/evo-lobby/internal/domain"
)

// SaveOptions controls what SaveWorld writes besides the world itself.
type SaveOptions struct {
	// DayLog is inserted in the same transaction as the world. Day logs are write-once.
	DayLog *domain.DayLog

	// ResetDayLogs removes every stored day of the lobby before DayLog is inserted.
	ResetDayLogs bool
}

// Repository defines the interface for persisting lobbies and their worlds.
type Repository interface {
	// CreateLobby inserts a new lobby and sets its ID, Version and CreatedAt.
	CreateLobby(ctx context.Context, lobby *domain.Lobby) error

	// ListLobbies returns the newest lobbies first.
	ListLobbies(ctx context.Context, limit int) ([]domain.LobbySummary, error)

	// LoadWorld reads a lobby with its slots, creatures and food.
	// It returns domain.ErrLobbyNotFound for unknown ids.
	LoadWorld(ctx context.Context, lobbyID int64) (*domain.World, error)

	// SaveWorld replaces the stored world in one transaction.
	// The write only happens if the stored version still equals w.Lobby.Version
	// (optimistic locking); otherwise domain.ErrVersionConflict is returned.
	// On success w.Lobby.Version is incremented.
	SaveWorld(ctx context.Context, w *domain.World, opts SaveOptions) error

	// SaveLobby writes only the lobby row, with the same version check as SaveWorld.
	SaveLobby(ctx context.Context, lobby *domain.Lobby) error

	// GetDayLog returns a stored day, or domain.ErrDayNotFound.
	GetDayLog(ctx context.Context, lobbyID int64, day int) (*domain.DayLog, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}

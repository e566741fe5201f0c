// Package replay streams stored days to browsers over WebSocket.
package replay

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"
)

// Viewers tracks the open replay streams of every lobby. A player has at most
// one stream per lobby; opening another closes the previous one.
type Viewers struct {
	mu     sync.RWMutex
	active map[int64]map[string]*websocket.Conn
}

// NewViewers creates an empty registry.
func NewViewers() *Viewers {
	return &Viewers{
		active: make(map[int64]map[string]*websocket.Conn),
	}
}

// Count returns the number of open streams on a lobby.
func (v *Viewers) Count(lobbyID int64) int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.active[lobbyID])
}

// Register adds conn as the player's stream on a lobby.
func (v *Viewers) Register(lobbyID int64, playerKey string, conn *websocket.Conn) {
	v.mu.Lock()
	defer v.mu.Unlock()

	streams, ok := v.active[lobbyID]
	if !ok {
		streams = make(map[string]*websocket.Conn)
		v.active[lobbyID] = streams
	}
	if existing, ok := streams[playerKey]; ok && existing != conn {
		// The close handshake waits on the peer, so it must not hold the lock.
		go func() { _ = existing.Close(websocket.StatusNormalClosure, "replay replaced") }()
	}
	streams[playerKey] = conn
	slog.Debug("Replay viewer registered", "lobby_id", lobbyID, "viewers", len(streams))
}

// Unregister removes conn unless it was already replaced.
func (v *Viewers) Unregister(lobbyID int64, playerKey string, conn *websocket.Conn) {
	v.mu.Lock()
	defer v.mu.Unlock()

	streams, ok := v.active[lobbyID]
	if !ok {
		return
	}
	if current, ok := streams[playerKey]; ok && current == conn {
		delete(streams, playerKey)
		if len(streams) == 0 {
			delete(v.active, lobbyID)
		}
		slog.Debug("Replay viewer unregistered", "lobby_id", lobbyID)
	}
}

// CloseAll ends every open stream and waits for the close handshakes. It is
// used on shutdown.
func (v *Viewers) CloseAll(reason string) int {
	v.mu.Lock()
	var conns []*websocket.Conn
	for lobbyID, streams := range v.active {
		for _, conn := range streams {
			conns = append(conns, conn)
		}
		delete(v.active, lobbyID)
	}
	v.mu.Unlock()

	var g errgroup.Group
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			return conn.Close(websocket.StatusGoingAway, reason)
		})
	}
	if err := g.Wait(); err != nil {
		slog.Debug("Replay close handshake failed", "error", err)
	}
	return len(conns)
}

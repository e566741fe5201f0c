package api

import (
	"net/http"

	"github.com/ashureev/evo-lobby/internal/identity"
	"github.com/ashureev/evo-lobby/internal/replay"
)

// StreamDay handles GET /api/lobbies/{lobbyID}/days/{day}/stream. It replays
// a stored day over a WebSocket and never advances the lobby.
func (h *Handler) StreamDay(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	day, ok := dayParam(w, r)
	if !ok {
		return
	}

	req := replay.Request{
		LobbyID:   lobbyID,
		Day:       day,
		From:      replay.ParseFrom(r),
		PlayerKey: identity.PlayerKeyFromContext(r.Context()),
	}
	dl, err := h.streamer.Load(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.streamer.Serve(w, r, req, dl)
}

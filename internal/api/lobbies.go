package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/economy"
	"github.com/ashureev/evo-lobby/internal/identity"
)

type createLobbyRequest struct {
	Name string `json:"name"`
}

type joinRequest struct {
	Name string `json:"name"`
}

type joinResponse struct {
	Slot int `json:"slot"`
}

type buyRequest struct {
	Kind string `json:"kind"`
}

// RegisterRoutes registers the lobby routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/lobbies", func(r chi.Router) {
		r.Get("/", h.ListLobbies)
		r.Post("/", h.CreateLobby)
		r.Route("/{lobbyID}", func(r chi.Router) {
			r.Get("/state", h.State)
			r.Get("/days/{day}", h.DayPayload)
			r.Get("/days/{day}/stream", h.StreamDay)
			r.Post("/join", h.Join)
			r.Post("/start", h.Start)
			r.Post("/buy", h.Buy)
		})
	})
}

// ListLobbies handles GET /api/lobbies.
func (h *Handler) ListLobbies(w http.ResponseWriter, r *http.Request) {
	lobbies, err := h.svc.ListLobbies(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if lobbies == nil {
		lobbies = []domain.LobbySummary{}
	}
	JSON(w, http.StatusOK, map[string]any{"lobbies": lobbies})
}

// CreateLobby handles POST /api/lobbies.
func (h *Handler) CreateLobby(w http.ResponseWriter, r *http.Request) {
	var req createLobbyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	lobby, err := h.svc.CreateLobby(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, lobby)
}

// State handles GET /api/lobbies/{lobbyID}/state. Polling it is what moves
// the lobby from one phase to the next.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	snap, err := h.svc.State(r.Context(), lobbyID, identity.PlayerKeyFromContext(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, snap)
}

// DayPayload handles GET /api/lobbies/{lobbyID}/days/{day}.
func (h *Handler) DayPayload(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	day, ok := dayParam(w, r)
	if !ok {
		return
	}
	dl, err := h.svc.DayPayload(r.Context(), lobbyID, day)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, dl.Payload)
}

// Join handles POST /api/lobbies/{lobbyID}/join.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	slot, err := h.svc.Join(r.Context(), lobbyID, identity.PlayerKeyFromContext(r.Context()), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, joinResponse{Slot: slot})
}

// Start handles POST /api/lobbies/{lobbyID}/start.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	if err := h.svc.Start(r.Context(), lobbyID); err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Buy handles POST /api/lobbies/{lobbyID}/buy.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	lobbyID, ok := lobbyIDParam(w, r)
	if !ok {
		return
	}
	var req buyRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	receipt, err := h.svc.Buy(r.Context(), lobbyID, identity.PlayerKeyFromContext(r.Context()), economy.Kind(req.Kind))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, receipt)
}

// lobbyIDParam answers 404 for ids that cannot name a lobby.
func lobbyIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "lobbyID"), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusNotFound, domain.ErrLobbyNotFound.Error())
		return 0, false
	}
	return id, true
}

func dayParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 1 {
		Error(w, http.StatusNotFound, domain.ErrDayNotFound.Error())
		return 0, false
	}
	return day, true
}

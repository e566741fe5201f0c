package replay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/evo-lobby/internal/domain"
)

// DaySource reads immutable day logs. It must not advance lobby phases.
type DaySource interface {
	StoredDay(ctx context.Context, lobbyID int64, day int) (*domain.DayLog, error)
}

// Request identifies the day a client wants to watch.
type Request struct {
	LobbyID   int64
	Day       int
	From      int
	PlayerKey string
}

type frameMessage struct {
	Type  string       `json:"type"`
	Index int          `json:"index"`
	Frame domain.Frame `json:"frame"`
}

type summaryMessage struct {
	Type    string            `json:"type"`
	Summary domain.DaySummary `json:"summary"`
}

type clientMessage struct {
	Type string `json:"type"`
}

// Streamer plays stored days frame by frame at their recorded pace.
type Streamer struct {
	days     DaySource
	viewers  *Viewers
	patterns []string

	// interval converts a payload's frameMs into the delay between two frames.
	interval func(frameMs int) time.Duration
}

// Option configures a Streamer.
type Option func(*Streamer)

// WithInterval replaces the frame pacing. A non-positive delay sends frames
// back to back.
func WithInterval(fn func(frameMs int) time.Duration) Option {
	return func(s *Streamer) { s.interval = fn }
}

// NewStreamer creates a streamer. originPatterns are passed to the WebSocket
// handshake; an empty list only admits same-origin clients.
func NewStreamer(days DaySource, viewers *Viewers, originPatterns []string, opts ...Option) *Streamer {
	s := &Streamer{
		days:     days,
		viewers:  viewers,
		patterns: originPatterns,
		interval: func(frameMs int) time.Duration { return time.Duration(frameMs) * time.Millisecond },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches the day before the connection is upgraded so that a missing day
// can still be answered with a plain HTTP error.
func (s *Streamer) Load(ctx context.Context, req Request) (*domain.DayLog, error) {
	return s.days.StoredDay(ctx, req.LobbyID, req.Day)
}

// Serve upgrades the connection and streams dl to it.
func (s *Streamer) Serve(w http.ResponseWriter, r *http.Request, req Request, dl *domain.DayLog) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.patterns,
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "lobby_id", req.LobbyID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "replay finished"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "lobby_id", req.LobbyID)
		}
	}()

	s.viewers.Register(req.LobbyID, req.PlayerKey, ws)
	defer s.viewers.Unregister(req.LobbyID, req.PlayerKey, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		defer cancel()
		s.inputLoop(ctx, ws, req)
	}()

	if err := s.play(ctx, ws, req, dl); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("Replay interrupted", "error", err, "lobby_id", req.LobbyID, "day", req.Day)
	}
}

func (s *Streamer) play(ctx context.Context, ws *websocket.Conn, req Request, dl *domain.DayLog) error {
	frames := dl.Payload.Frames
	wait := s.interval(dl.Payload.FrameMs)
	for i := max(req.From, 0); i < len(frames); i++ {
		if err := writeJSON(ctx, ws, frameMessage{Type: "frame", Index: i, Frame: frames[i]}); err != nil {
			return err
		}
		if wait <= 0 || i == len(frames)-1 {
			continue
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return writeJSON(ctx, ws, summaryMessage{Type: "summary", Summary: dl.Payload.Summary})
}

func (s *Streamer) inputLoop(ctx context.Context, ws *websocket.Conn, req Request) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("Replay closed by client", "lobby_id", req.LobbyID)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		case "stop":
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

// ParseFrom reads the optional ?from= frame offset.
func ParseFrom(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("from"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

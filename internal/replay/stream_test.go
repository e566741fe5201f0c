package replay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/evo-lobby/internal/domain"
)

type fakeDays struct{}

func (fakeDays) StoredDay(_ context.Context, lobbyID int64, day int) (*domain.DayLog, error) {
	if lobbyID != 1 || day != 1 {
		return nil, domain.ErrDayNotFound
	}
	frames := make([]domain.Frame, 3)
	for i := range frames {
		frames[i] = domain.Frame{
			Creatures: []domain.CreatureFrame{{ID: 1, X: float64(i), Y: 10, Alive: true, Energy: 100, EnergyMax: 150, Size: 1}},
			Foods:     []domain.FoodFrame{},
		}
	}
	return &domain.DayLog{
		LobbyID: 1,
		Day:     1,
		Payload: domain.DayPayload{
			FrameMs:    50,
			DurationMs: 150,
			Frames:     frames,
			Summary:    domain.DaySummary{DayCompleted: 1, Players: []domain.PlayerSummary{}},
		},
	}, nil
}

type received struct {
	Type    string             `json:"type"`
	Index   int                `json:"index"`
	Frame   domain.Frame       `json:"frame"`
	Summary *domain.DaySummary `json:"summary"`
}

func newTestServer(t *testing.T, interval time.Duration) (*httptest.Server, *Viewers) {
	t.Helper()
	viewers := NewViewers()
	s := NewStreamer(fakeDays{}, viewers, nil, WithInterval(func(int) time.Duration { return interval }))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := Request{LobbyID: 1, Day: 1, From: ParseFrom(r), PlayerKey: r.URL.Query().Get("player")}
		if r.URL.Query().Get("day") == "2" {
			req.Day = 2
		}
		dl, err := s.Load(r.Context(), req)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		s.Serve(w, r, req, dl)
	}))
	t.Cleanup(srv.Close)
	return srv, viewers
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	var msg received
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal %s: %v", data, err)
	}
	return msg
}

func TestStreamPlaysFramesThenSummary(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	conn := dial(t, srv, "player=p1")

	for i := 0; i < 3; i++ {
		msg := read(t, conn)
		if msg.Type != "frame" || msg.Index != i {
			t.Fatalf("message %d = %+v, want frame %d", i, msg, i)
		}
		if msg.Frame.Creatures[0].X != float64(i) {
			t.Errorf("frame %d carries x=%v", i, msg.Frame.Creatures[0].X)
		}
	}
	msg := read(t, conn)
	if msg.Type != "summary" || msg.Summary == nil || msg.Summary.DayCompleted != 1 {
		t.Fatalf("Expected summary, got %+v", msg)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("Expected normal closure after summary, got %v", err)
	}
}

func TestStreamFromOffset(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	conn := dial(t, srv, "player=p1&from=2")

	if msg := read(t, conn); msg.Type != "frame" || msg.Index != 2 {
		t.Fatalf("Expected frame 2 first, got %+v", msg)
	}
	if msg := read(t, conn); msg.Type != "summary" {
		t.Fatalf("Expected summary, got %+v", msg)
	}
}

func TestStreamUnknownDay(t *testing.T) {
	srv, _ := newTestServer(t, 0)
	resp, err := http.Get(srv.URL + "/?day=2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestStreamAnswersPing(t *testing.T) {
	srv, viewers := newTestServer(t, time.Hour)
	conn := dial(t, srv, "player=p1")

	if msg := read(t, conn); msg.Index != 0 {
		t.Fatalf("Expected frame 0, got %+v", msg)
	}
	if n := viewers.Count(1); n != 1 {
		t.Errorf("Expected 1 viewer, got %d", n)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if msg := read(t, conn); msg.Type != "pong" {
		t.Fatalf("Expected pong, got %+v", msg)
	}

	if err := conn.Close(websocket.StatusNormalClosure, "bye"); err != nil {
		t.Fatalf("Close: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for viewers.Count(1) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("viewer was not unregistered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCloseAllEndsStreams(t *testing.T) {
	srv, viewers := newTestServer(t, time.Hour)
	conn := dial(t, srv, "player=p1")
	read(t, conn)

	// The client has to be reading to answer the close handshake.
	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _, err := conn.Read(ctx)
		done <- err
	}()

	if n := viewers.CloseAll("server shutting down"); n != 1 {
		t.Fatalf("CloseAll closed %d streams, want 1", n)
	}
	if err := <-done; websocket.CloseStatus(err) != websocket.StatusGoingAway {
		t.Errorf("Expected going-away closure, got %v", err)
	}
	if n := viewers.Count(1); n != 0 {
		t.Errorf("Expected no viewers, got %d", n)
	}
}

func TestSecondStreamReplacesFirst(t *testing.T) {
	srv, viewers := newTestServer(t, time.Hour)
	first := dial(t, srv, "player=p1")
	read(t, first)
	second := dial(t, srv, "player=p1")
	read(t, second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := first.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("Expected the first stream to be closed, got %v", err)
	}
	if n := viewers.Count(1); n != 1 {
		t.Errorf("Expected 1 viewer, got %d", n)
	}
}

func TestParseFrom(t *testing.T) {
	tests := map[string]int{"": 0, "from=4": 4, "from=-1": 0, "from=x": 0}
	for query, want := range tests {
		r := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		if got := ParseFrom(r); got != want {
			t.Errorf("ParseFrom(%q) = %d, want %d", query, got, want)
		}
	}
}

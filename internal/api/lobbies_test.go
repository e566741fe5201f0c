package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/economy"
	"github.com/ashureev/evo-lobby/internal/game"
	"github.com/ashureev/evo-lobby/internal/identity"
	"github.com/ashureev/evo-lobby/internal/replay"
	"github.com/ashureev/evo-lobby/internal/store"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type testAPI struct {
	srv    *httptest.Server
	client *http.Client
	clock  *testClock
	repo   *store.SQLiteStore
}

func newTestAPI(t *testing.T, tu tuning.Tuning) *testAPI {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	clock := &testClock{t: time.UnixMilli(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli())}
	svc := game.NewService(repo, tu, game.WithClock(clock.Now), game.WithSeed(7))
	streamer := replay.NewStreamer(svc, replay.NewViewers(), nil,
		replay.WithInterval(func(int) time.Duration { return 0 }))

	r := chi.NewRouter()
	r.Use(identity.Middleware(true))
	NewHandler(svc, streamer).RegisterRoutes(r)
	NewHealthHandler(repo).RegisterHealth(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &testAPI{srv: srv, client: &http.Client{Jar: jar}, clock: clock, repo: repo}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := a.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return resp.StatusCode, data
}

func (a *testAPI) state(t *testing.T, lobbyID string) game.Snapshot {
	t.Helper()
	status, body := a.do(t, http.MethodGet, "/api/lobbies/"+lobbyID+"/state", "")
	if status != http.StatusOK {
		t.Fatalf("state: %d %s", status, body)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return snap
}

func errorOf(t *testing.T, body []byte) string {
	t.Helper()
	var got map[string]string
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode error %s: %v", body, err)
	}
	return got["error"]
}

func compileDaySchema(t *testing.T) *jsonschema.Schema {
	t.Helper()
	schema, err := jsonschema.Compile(filepath.Join("..", "..", "schemas", "day_payload.schema.json"))
	if err != nil {
		t.Fatalf("compile schema: %v", err)
	}
	return schema
}

func createStartedLobby(t *testing.T, a *testAPI) string {
	t.Helper()
	status, body := a.do(t, http.MethodPost, "/api/lobbies", `{"name":"Pond"}`)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, body)
	}
	var l domain.Lobby
	if err := json.Unmarshal(body, &l); err != nil {
		t.Fatalf("decode lobby: %v", err)
	}
	id := strconv.FormatInt(l.ID, 10)
	if status, body := a.do(t, http.MethodPost, "/api/lobbies/"+id+"/join", `{"name":"Ada"}`); status != http.StatusOK {
		t.Fatalf("join: %d %s", status, body)
	}
	if status, body := a.do(t, http.MethodPost, "/api/lobbies/"+id+"/start", ""); status != http.StatusOK {
		t.Fatalf("start: %d %s", status, body)
	}
	return id
}

func TestLobbyLifecycle(t *testing.T) {
	a := newTestAPI(t, tuning.Default())

	status, body := a.do(t, http.MethodPost, "/api/lobbies", `{"name":"  Pond  "}`)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, body)
	}
	var l domain.Lobby
	if err := json.Unmarshal(body, &l); err != nil {
		t.Fatalf("decode lobby: %v", err)
	}
	if l.Name != "Pond" || l.Status != domain.StatusWaiting {
		t.Errorf("Unexpected lobby %+v", l)
	}
	id := strconv.FormatInt(l.ID, 10)

	status, body = a.do(t, http.MethodPost, "/api/lobbies/"+id+"/join", `{"name":"Ada"}`)
	if status != http.StatusOK || strings.TrimSpace(string(body)) != `{"slot":1}` {
		t.Fatalf("join: %d %s", status, body)
	}
	status, body = a.do(t, http.MethodPost, "/api/lobbies/"+id+"/join", `{"name":"Ada again"}`)
	if status != http.StatusOK || strings.TrimSpace(string(body)) != `{"slot":1}` {
		t.Fatalf("Expected rejoin to keep slot 1: %d %s", status, body)
	}

	status, body = a.do(t, http.MethodGet, "/api/lobbies", "")
	if status != http.StatusOK {
		t.Fatalf("list: %d %s", status, body)
	}
	var list struct {
		Lobbies []domain.LobbySummary `json:"lobbies"`
	}
	if err := json.Unmarshal(body, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Lobbies) != 1 || list.Lobbies[0].Joined != 1 {
		t.Errorf("Expected one lobby with one player, got %+v", list.Lobbies)
	}

	snap := a.state(t, id)
	if snap.Me.Slot == nil || *snap.Me.Slot != 1 {
		t.Errorf("Expected me.slot 1, got %v", snap.Me.Slot)
	}
	if snap.Winner != nil {
		t.Errorf("Expected no winner before start, got %+v", snap.Winner)
	}

	if status, _ := a.do(t, http.MethodGet, "/api/lobbies/"+id+"/days/1", ""); status != http.StatusNotFound {
		t.Errorf("Expected 404 for a day not generated yet, got %d", status)
	}

	if status, body := a.do(t, http.MethodPost, "/api/lobbies/"+id+"/start", ""); status != http.StatusOK {
		t.Fatalf("start: %d %s", status, body)
	}
	status, body = a.do(t, http.MethodPost, "/api/lobbies/"+id+"/start", "")
	if status != http.StatusBadRequest || errorOf(t, body) != "game already started" {
		t.Errorf("Expected repeat start to be rejected, got %d %s", status, body)
	}

	snap = a.state(t, id)
	if snap.Lobby.Status == domain.StatusWaiting || snap.Lobby.CurrentPayloadDay != 1 {
		t.Fatalf("Expected day 1 to be playing, got %+v", snap.Lobby)
	}
	if len(snap.Slots) != 4 || !snap.Slots[1].IsBot || snap.Slots[1].Name != "Bot 2" {
		t.Errorf("Expected bots in empty slots, got %+v", snap.Slots)
	}

	status, body = a.do(t, http.MethodGet, "/api/lobbies/"+id+"/days/1", "")
	if status != http.StatusOK {
		t.Fatalf("day 1: %d %s", status, body)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if err := compileDaySchema(t).Validate(payload); err != nil {
		t.Errorf("day 1 payload does not match the published schema: %v", err)
	}
	if status, _ := a.do(t, http.MethodGet, "/api/lobbies/"+id+"/days/2", ""); status != http.StatusNotFound {
		t.Errorf("Expected 404 for day 2, got %d", status)
	}
}

func TestBuyFollowsPhase(t *testing.T) {
	tu := tuning.Default()
	tu.Upgrades.EnergyCost = 0
	a := newTestAPI(t, tu)
	id := createStartedLobby(t, a)

	snap := a.state(t, id)
	if snap.Lobby.Status != domain.StatusRunning {
		t.Skipf("day one already finished the lobby: %+v", snap.Lobby)
	}

	status, body := a.do(t, http.MethodPost, "/api/lobbies/"+id+"/buy", `{"kind":"energy"}`)
	if status != http.StatusBadRequest || errorOf(t, body) != "upgrades can only be bought during the pause" {
		t.Fatalf("Expected buy during DAY to be rejected, got %d %s", status, body)
	}

	a.clock.Set(*snap.Lobby.PhaseEndAt)
	if snap = a.state(t, id); snap.Lobby.Phase != domain.PhasePause {
		t.Fatalf("Expected PAUSE, got %s", snap.Lobby.Phase)
	}

	status, body = a.do(t, http.MethodPost, "/api/lobbies/"+id+"/buy", `{"kind":"energy"}`)
	if status != http.StatusOK {
		t.Fatalf("buy: %d %s", status, body)
	}
	var receipt economy.Receipt
	if err := json.Unmarshal(body, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Kind != economy.KindEnergy || receipt.Bonus != 25 || receipt.Detail != "+25 energy" {
		t.Errorf("Unexpected receipt %+v", receipt)
	}

	status, body = a.do(t, http.MethodPost, "/api/lobbies/"+id+"/buy", `{"kind":"laser"}`)
	if status != http.StatusBadRequest {
		t.Errorf("Expected unknown kind to be rejected, got %d %s", status, body)
	}
}

func TestBuyRequiresSeat(t *testing.T) {
	a := newTestAPI(t, tuning.Default())
	status, body := a.do(t, http.MethodPost, "/api/lobbies", `{}`)
	if status != http.StatusCreated {
		t.Fatalf("create: %d %s", status, body)
	}

	status, body = a.do(t, http.MethodPost, "/api/lobbies/1/buy", `{"kind":"energy"}`)
	if status != http.StatusBadRequest || errorOf(t, body) != "join the lobby first" {
		t.Errorf("Expected seat rejection, got %d %s", status, body)
	}
}

func TestUnknownLobby(t *testing.T) {
	a := newTestAPI(t, tuning.Default())

	paths := []string{
		"/api/lobbies/999/state",
		"/api/lobbies/abc/state",
		"/api/lobbies/0/state",
		"/api/lobbies/999/days/1",
		"/api/lobbies/1/days/zero",
	}
	for _, p := range paths {
		if status, body := a.do(t, http.MethodGet, p, ""); status != http.StatusNotFound {
			t.Errorf("GET %s = %d %s, want 404", p, status, body)
		}
	}
	if status, _ := a.do(t, http.MethodPost, "/api/lobbies/999/start", ""); status != http.StatusNotFound {
		t.Errorf("Expected 404 when starting an unknown lobby, got %d", status)
	}
}

func TestMalformedBody(t *testing.T) {
	a := newTestAPI(t, tuning.Default())
	status, body := a.do(t, http.MethodPost, "/api/lobbies", `{"name":`)
	if status != http.StatusBadRequest || errorOf(t, body) != "invalid JSON body" {
		t.Errorf("Expected 400, got %d %s", status, body)
	}
}

func TestStreamDay(t *testing.T) {
	a := newTestAPI(t, tuning.Default())
	id := createStartedLobby(t, a)

	status, body := a.do(t, http.MethodGet, "/api/lobbies/"+id+"/days/1", "")
	if status != http.StatusOK {
		t.Fatalf("day 1: %d %s", status, body)
	}
	var payload domain.DayPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/api/lobbies/" + id + "/days/1/stream"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: a.client})
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer func() { _ = conn.CloseNow() }()
	conn.SetReadLimit(1 << 22)

	frames := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read after %d frames: %v", frames, err)
		}
		var msg struct {
			Type    string            `json:"type"`
			Index   int               `json:"index"`
			Summary domain.DaySummary `json:"summary"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if msg.Type == "summary" {
			if msg.Summary.DayCompleted != 1 {
				t.Errorf("Expected summary of day 1, got %+v", msg.Summary)
			}
			break
		}
		if msg.Index != frames {
			t.Fatalf("Expected frame %d, got %d", frames, msg.Index)
		}
		frames++
	}
	if frames != len(payload.Frames) {
		t.Errorf("Streamed %d frames, stored %d", frames, len(payload.Frames))
	}

	snap := a.state(t, id)
	if snap.Lobby.CurrentPayloadDay != 1 {
		t.Errorf("Streaming must not advance the lobby, got payload day %d", snap.Lobby.CurrentPayloadDay)
	}
}

func TestStreamUnknownDay(t *testing.T) {
	a := newTestAPI(t, tuning.Default())
	id := createStartedLobby(t, a)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(a.srv.URL, "http") + "/api/lobbies/" + id + "/days/9/stream"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("Expected dial to fail for a day not generated yet")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 handshake response, got %+v", resp)
	}
}

func TestHealth(t *testing.T) {
	a := newTestAPI(t, tuning.Default())

	status, body := a.do(t, http.MethodGet, "/api/health", "")
	if status != http.StatusOK || !bytes.Contains(body, []byte(`"database":"ok"`)) {
		t.Errorf("Expected healthy database, got %d %s", status, body)
	}

	_ = a.repo.Close()
	if status, _ := a.do(t, http.MethodGet, "/api/health", ""); status != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 after the database is closed, got %d", status)
	}
}

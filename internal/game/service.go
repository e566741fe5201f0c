// Package game drives lobbies: joining, starting, advancing phases on read and
// buying upgrades. Every state change of a lobby is serialized per lobby and
// persisted in a single store transaction.
package game

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/economy"
	"github.com/ashureev/evo-lobby/internal/scheduler"
	"github.com/ashureev/evo-lobby/internal/sim"
	"github.com/ashureev/evo-lobby/internal/store"
	"github.com/ashureev/evo-lobby/internal/tuning"
)

const (
	maxLobbyName  = 64
	maxPlayerName = 32
	listLimit     = 50
)

// Service is the entry point for every lobby operation.
type Service struct {
	repo   store.Repository
	tuning tuning.Tuning
	now    func() time.Time

	seedMu sync.Mutex
	seeds  *rand.Rand

	locks sync.Map // lobby id -> *sync.Mutex
	polls singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithSeed makes the sequence of day seeds reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) { s.seeds = rand.New(rand.NewSource(seed)) }
}

// NewService creates a lobby service on top of repo.
func NewService(repo store.Repository, t tuning.Tuning, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		tuning: t,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seeds == nil {
		s.seeds = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return s
}

func (s *Service) lockFor(lobbyID int64) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(lobbyID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (s *Service) nextSeed() int64 {
	s.seedMu.Lock()
	defer s.seedMu.Unlock()
	return s.seeds.Int63()
}

// CreateLobby creates a waiting lobby with four empty slots.
func (s *Service) CreateLobby(ctx context.Context, name string) (*domain.Lobby, error) {
	name = truncate(strings.TrimSpace(name), maxLobbyName)
	if name == "" {
		name = "Lobby"
	}
	d := s.tuning.Lobby
	l := &domain.Lobby{
		Name:         name,
		Status:       domain.StatusWaiting,
		MaxDays:      d.MaxDays,
		MapW:         d.MapW,
		MapH:         d.MapH,
		FoodPerDay:   d.FoodPerDay,
		Phase:        domain.PhaseDay,
		NextEntityID: 1,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateLobby(ctx, l); err != nil {
		return nil, err
	}
	slog.Info("Lobby created", "lobby_id", l.ID, "name", l.Name)
	return l, nil
}

// ListLobbies returns the newest lobbies.
func (s *Service) ListLobbies(ctx context.Context) ([]domain.LobbySummary, error) {
	return s.repo.ListLobbies(ctx, listLimit)
}

// Join seats sessionKey in the lobby. A session that already holds a slot gets
// it back; otherwise the lowest free slot is taken.
func (s *Service) Join(ctx context.Context, lobbyID int64, sessionKey, name string) (int, error) {
	if sessionKey == "" {
		return 0, domain.RejectInput("missing session")
	}
	name = truncate(strings.TrimSpace(name), maxPlayerName)
	if name == "" {
		name = "Player"
	}

	mu := s.lockFor(lobbyID)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.repo.LoadWorld(ctx, lobbyID)
	if err != nil {
		return 0, err
	}
	ensureSlots(w)

	if slot := w.SlotBySession(sessionKey); slot != nil {
		return slot.Index, nil
	}
	var free *domain.Slot
	for i := range w.Slots {
		if !w.Slots[i].Taken() {
			free = &w.Slots[i]
			break
		}
	}
	if free == nil {
		return 0, domain.Reject("lobby is full")
	}
	free.SessionKey = sessionKey
	free.Name = name
	free.IsBot = false

	if err := s.repo.SaveWorld(ctx, w, store.SaveOptions{}); err != nil {
		return 0, err
	}
	slog.Info("Player joined", "lobby_id", lobbyID, "slot", free.Index)
	return free.Index, nil
}

// Start fills empty slots with bots, spawns the world and plays day one right away.
func (s *Service) Start(ctx context.Context, lobbyID int64) error {
	mu := s.lockFor(lobbyID)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.repo.LoadWorld(ctx, lobbyID)
	if err != nil {
		return err
	}
	if err := scheduler.Start(&w.Lobby, s.tuning); err != nil {
		return err
	}

	ensureSlots(w)
	for i := range w.Slots {
		if !w.Slots[i].Taken() {
			w.Slots[i].MakeBot(lobbyID)
		}
	}
	sim.PlaceBases(w)
	w.Creatures = nil
	w.Foods = nil

	seed := s.nextSeed()
	e := sim.NewEngine(s.tuning, rand.New(rand.NewSource(seed)))
	e.SpawnInitialCreatures(w)
	e.SpawnFood(w)
	payload := e.RunDay(w)

	scheduler.BeginDay(&w.Lobby, s.now(), s.playback(payload), payload.Summary.Finished)
	dl := &domain.DayLog{LobbyID: lobbyID, Day: w.Lobby.CurrentPayloadDay, Seed: seed, Payload: payload}
	if err := s.repo.SaveWorld(ctx, w, store.SaveOptions{DayLog: dl, ResetDayLogs: true}); err != nil {
		return err
	}
	logDay(w, dl)
	return nil
}

// State advances the lobby if a phase is due and returns what the caller sees.
func (s *Service) State(ctx context.Context, lobbyID int64, sessionKey string) (*Snapshot, error) {
	w, err := s.advance(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	return s.snapshot(w, sessionKey), nil
}

// DayPayload returns a stored day. Days that were not generated yet are not found.
func (s *Service) DayPayload(ctx context.Context, lobbyID int64, day int) (*domain.DayLog, error) {
	if _, err := s.advance(ctx, lobbyID); err != nil {
		return nil, err
	}
	return s.repo.GetDayLog(ctx, lobbyID, day)
}

// StoredDay reads a day log without touching the lobby's phase.
func (s *Service) StoredDay(ctx context.Context, lobbyID int64, day int) (*domain.DayLog, error) {
	return s.repo.GetDayLog(ctx, lobbyID, day)
}

// Buy spends the caller's coins on an upgrade.
func (s *Service) Buy(ctx context.Context, lobbyID int64, sessionKey string, kind economy.Kind) (economy.Receipt, error) {
	mu := s.lockFor(lobbyID)
	mu.Lock()
	defer mu.Unlock()

	w, err := s.loadAndStep(context.WithoutCancel(ctx), lobbyID)
	if err != nil {
		return economy.Receipt{}, err
	}
	slot := w.SlotBySession(sessionKey)
	if slot == nil {
		return economy.Receipt{}, domain.Reject("join the lobby first")
	}
	receipt, err := economy.Purchase(w, slot.Index, kind, s.tuning)
	if err != nil {
		return economy.Receipt{}, err
	}
	if err := s.repo.SaveWorld(ctx, w, store.SaveOptions{}); err != nil {
		return economy.Receipt{}, err
	}
	slog.Info("Upgrade bought", "lobby_id", lobbyID, "slot", slot.Index, "kind", kind, "coins", receipt.Coins)
	return receipt, nil
}

// advance applies a due phase transition. Concurrent pollers of one lobby share
// a single load and transition. The returned world must not be modified.
//
// The shared call runs detached from ctx, so a started transition is persisted
// even if the first caller goes away.
func (s *Service) advance(ctx context.Context, lobbyID int64) (*domain.World, error) {
	stepCtx := context.WithoutCancel(ctx)
	v, err, _ := s.polls.Do(strconv.FormatInt(lobbyID, 10), func() (any, error) {
		mu := s.lockFor(lobbyID)
		mu.Lock()
		defer mu.Unlock()
		return s.loadAndStep(stepCtx, lobbyID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.World), nil
}

// loadAndStep must be called with the lobby lock held. On a version conflict
// the winner's state is reloaded and returned as is.
func (s *Service) loadAndStep(ctx context.Context, lobbyID int64) (*domain.World, error) {
	w, err := s.repo.LoadWorld(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	err = s.step(ctx, w)
	if errors.Is(err, domain.ErrVersionConflict) {
		// Another writer applied the transition first.
		slog.Warn("Phase transition lost race, reloading", "lobby_id", lobbyID)
		return s.repo.LoadWorld(ctx, lobbyID)
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) step(ctx context.Context, w *domain.World) error {
	now := s.now()
	switch scheduler.Decide(w.Lobby, now) {
	case scheduler.StepPause:
		scheduler.EnterPause(&w.Lobby, now, s.tuning.Pause())
		if err := s.repo.SaveLobby(ctx, &w.Lobby); err != nil {
			return err
		}
		slog.Debug("Lobby paused", "lobby_id", w.Lobby.ID, "day", w.Lobby.CurrentPayloadDay)
		return nil

	case scheduler.StepNextDay:
		scheduler.PrepareNextDay(&w.Lobby)
		seed := s.nextSeed()
		e := sim.NewEngine(s.tuning, rand.New(rand.NewSource(seed)))
		e.SpawnFood(w)
		payload := e.RunDay(w)

		scheduler.BeginDay(&w.Lobby, now, s.playback(payload), payload.Summary.Finished)
		dl := &domain.DayLog{LobbyID: w.Lobby.ID, Day: w.Lobby.CurrentPayloadDay, Seed: seed, Payload: payload}
		if err := s.repo.SaveWorld(ctx, w, store.SaveOptions{DayLog: dl}); err != nil {
			return err
		}
		logDay(w, dl)
	}
	return nil
}

// playback is how long clients take to play a day's frames.
func (s *Service) playback(p domain.DayPayload) time.Duration {
	return time.Duration(len(p.Frames)) * s.tuning.Frame()
}

func logDay(w *domain.World, dl *domain.DayLog) {
	sum := dl.Payload.Summary
	slog.Info("Day simulated",
		"lobby_id", w.Lobby.ID,
		"day", dl.Day,
		"frames", len(dl.Payload.Frames),
		"births", sum.Births,
		"deaths", sum.Deaths,
		"finished", sum.Finished)
}

// ensureSlots adds any missing slot index so a lobby always has exactly four.
func ensureSlots(w *domain.World) {
	for i := 1; i <= domain.SlotCount; i++ {
		if w.Slot(i) == nil {
			w.Slots = append(w.Slots, domain.Slot{Index: i})
		}
	}
	slices.SortFunc(w.Slots, func(a, b domain.Slot) int { return a.Index - b.Index })
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/ashureev/evo-lobby/internal/domain"
	"github.com/ashureev/evo-lobby/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL lets pollers read while a day is being written. Write transactions
	// take the lock up front so two writers never deadlock on upgrade.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS lobbies (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		status TEXT NOT NULL,
		day INTEGER NOT NULL DEFAULT 0,
		max_days INTEGER NOT NULL,
		map_w INTEGER NOT NULL,
		map_h INTEGER NOT NULL,
		food_per_day INTEGER NOT NULL,
		phase TEXT NOT NULL,
		phase_started_at INTEGER,
		phase_end_at INTEGER,
		current_payload_day INTEGER NOT NULL DEFAULT 0,
		next_entity_id INTEGER NOT NULL DEFAULT 1,
		version INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS slots (
		lobby_id INTEGER NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		slot_index INTEGER NOT NULL,
		session_key TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		is_bot INTEGER NOT NULL DEFAULT 0,
		color_hex TEXT NOT NULL DEFAULT '',
		coins INTEGER NOT NULL DEFAULT 0,
		energy_bonus INTEGER NOT NULL DEFAULT 0,
		vision_bonus INTEGER NOT NULL DEFAULT 0,
		base_x REAL NOT NULL DEFAULT 0,
		base_y REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (lobby_id, slot_index)
	);
	CREATE INDEX IF NOT EXISTS idx_slots_session ON slots(lobby_id, session_key);

	CREATE TABLE IF NOT EXISTS creatures (
		lobby_id INTEGER NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		id INTEGER NOT NULL,
		owner INTEGER NOT NULL,
		alive INTEGER NOT NULL,
		size REAL NOT NULL,
		speed REAL NOT NULL,
		danger REAL NOT NULL,
		energy_max REAL NOT NULL,
		energy REAL NOT NULL,
		vision REAL NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		carried_food INTEGER NOT NULL,
		created_day INTEGER NOT NULL,
		PRIMARY KEY (lobby_id, id)
	);

	CREATE TABLE IF NOT EXISTS foods (
		lobby_id INTEGER NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		id INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		active INTEGER NOT NULL,
		PRIMARY KEY (lobby_id, id)
	);

	CREATE TABLE IF NOT EXISTS day_logs (
		lobby_id INTEGER NOT NULL REFERENCES lobbies(id) ON DELETE CASCADE,
		day INTEGER NOT NULL,
		seed INTEGER NOT NULL,
		payload BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (lobby_id, day)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// lobbyRow carries the nullable millisecond timestamps of a lobby row.
type lobbyRow struct {
	domain.Lobby
	PhaseStartedAt sql.NullInt64 `db:"phase_started_at"`
	PhaseEndAt     sql.NullInt64 `db:"phase_end_at"`
	CreatedAt      int64         `db:"created_at"`
}

func (r lobbyRow) toDomain() domain.Lobby {
	l := r.Lobby
	l.PhaseStartedAt = fromMillis(r.PhaseStartedAt)
	l.PhaseEndAt = fromMillis(r.PhaseEndAt)
	l.CreatedAt = time.UnixMilli(r.CreatedAt)
	return l
}

func toMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func fromMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}

// CreateLobby inserts a new lobby with empty slots.
func (s *SQLiteStore) CreateLobby(ctx context.Context, lobby *domain.Lobby) error {
	if lobby.CreatedAt.IsZero() {
		lobby.CreatedAt = time.Now()
	}
	if lobby.NextEntityID < 1 {
		lobby.NextEntityID = 1
	}
	lobby.Version = 0

	return shared.RetryOnBusy(ctx, "create_lobby", shared.DefaultRetry, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `
			INSERT INTO lobbies (name, status, day, max_days, map_w, map_h, food_per_day, phase,
				phase_started_at, phase_end_at, current_payload_day, next_entity_id, version, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
			lobby.Name, lobby.Status, lobby.Day, lobby.MaxDays, lobby.MapW, lobby.MapH, lobby.FoodPerDay,
			lobby.Phase, toMillis(lobby.PhaseStartedAt), toMillis(lobby.PhaseEndAt),
			lobby.CurrentPayloadDay, lobby.NextEntityID, lobby.CreatedAt.UnixMilli(),
		)
		if err != nil {
			return fmt.Errorf("insert lobby: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("lobby id: %w", err)
		}
		for i := 1; i <= domain.SlotCount; i++ {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO slots (lobby_id, slot_index) VALUES (?, ?)`, id, i); err != nil {
				return fmt.Errorf("insert slot %d: %w", i, err)
			}
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		lobby.ID = id
		return nil
	})
}

// ListLobbies returns the newest lobbies first with their number of human players.
func (s *SQLiteStore) ListLobbies(ctx context.Context, limit int) ([]domain.LobbySummary, error) {
	if limit <= 0 {
		limit = 50
	}
	lobbies := []domain.LobbySummary{}
	err := s.db.SelectContext(ctx, &lobbies, `
		SELECT l.id, l.name, l.status, l.day, l.max_days,
		       (SELECT COUNT(*) FROM slots s
		         WHERE s.lobby_id = l.id AND s.session_key <> '' AND s.is_bot = 0) AS joined
		FROM lobbies l ORDER BY l.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list lobbies: %w", err)
	}
	return lobbies, nil
}

const lobbyColumns = `id, name, status, day, max_days, map_w, map_h, food_per_day, phase,
	phase_started_at, phase_end_at, current_payload_day, next_entity_id, version, created_at`

// LoadWorld reads the full aggregate of a lobby.
func (s *SQLiteStore) LoadWorld(ctx context.Context, lobbyID int64) (*domain.World, error) {
	var row lobbyRow
	err := s.db.GetContext(ctx, &row, `SELECT `+lobbyColumns+` FROM lobbies WHERE id = ?`, lobbyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLobbyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get lobby: %w", err)
	}

	w := &domain.World{Lobby: row.toDomain()}
	if err := s.db.SelectContext(ctx, &w.Slots, `
		SELECT slot_index, session_key, display_name, is_bot, color_hex, coins,
		       energy_bonus, vision_bonus, base_x, base_y
		FROM slots WHERE lobby_id = ? ORDER BY slot_index`, lobbyID); err != nil {
		return nil, fmt.Errorf("select slots: %w", err)
	}
	if err := s.db.SelectContext(ctx, &w.Creatures, `
		SELECT id, owner, alive, size, speed, danger, energy_max, energy, vision,
		       x, y, carried_food, created_day
		FROM creatures WHERE lobby_id = ? ORDER BY id`, lobbyID); err != nil {
		return nil, fmt.Errorf("select creatures: %w", err)
	}
	if err := s.db.SelectContext(ctx, &w.Foods, `
		SELECT id, x, y, active FROM foods WHERE lobby_id = ? ORDER BY id`, lobbyID); err != nil {
		return nil, fmt.Errorf("select foods: %w", err)
	}
	return w, nil
}

// SaveWorld replaces the lobby row, slots, creatures and food of w in one transaction.
func (s *SQLiteStore) SaveWorld(ctx context.Context, w *domain.World, opts SaveOptions) error {
	var blob []byte
	if opts.DayLog != nil {
		var err error
		if blob, err = encodePayload(opts.DayLog.Payload); err != nil {
			return err
		}
	}

	err := shared.RetryOnBusy(ctx, "save_world", shared.DefaultRetry, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := updateLobby(ctx, tx, &w.Lobby); err != nil {
			return err
		}
		if err := replaceSlots(ctx, tx, w); err != nil {
			return err
		}
		if err := replaceCreatures(ctx, tx, w); err != nil {
			return err
		}
		if err := replaceFoods(ctx, tx, w); err != nil {
			return err
		}
		if opts.ResetDayLogs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM day_logs WHERE lobby_id = ?`, w.Lobby.ID); err != nil {
				return fmt.Errorf("reset day logs: %w", err)
			}
		}
		if opts.DayLog != nil {
			if err := insertDayLog(ctx, tx, opts.DayLog, blob); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	w.Lobby.Version++
	return nil
}

// SaveLobby writes the lobby row alone.
func (s *SQLiteStore) SaveLobby(ctx context.Context, lobby *domain.Lobby) error {
	err := shared.RetryOnBusy(ctx, "save_lobby", shared.DefaultRetry, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := updateLobby(ctx, tx, lobby); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return err
	}
	lobby.Version++
	return nil
}

// updateLobby is the compare-and-set on lobbies.version.
func updateLobby(ctx context.Context, tx *sqlx.Tx, l *domain.Lobby) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE lobbies SET
			name = ?, status = ?, day = ?, max_days = ?, map_w = ?, map_h = ?, food_per_day = ?,
			phase = ?, phase_started_at = ?, phase_end_at = ?, current_payload_day = ?,
			next_entity_id = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		l.Name, l.Status, l.Day, l.MaxDays, l.MapW, l.MapH, l.FoodPerDay,
		l.Phase, toMillis(l.PhaseStartedAt), toMillis(l.PhaseEndAt), l.CurrentPayloadDay,
		l.NextEntityID, l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("update lobby: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists int
	if err := tx.GetContext(ctx, &exists, `SELECT COUNT(*) FROM lobbies WHERE id = ?`, l.ID); err != nil {
		return fmt.Errorf("check lobby: %w", err)
	}
	if exists == 0 {
		return domain.ErrLobbyNotFound
	}
	slog.Warn("Lobby update lost optimistic lock", "lobby_id", l.ID, "expected_version", l.Version)
	return domain.ErrVersionConflict
}

func replaceSlots(ctx context.Context, tx *sqlx.Tx, w *domain.World) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM slots WHERE lobby_id = ?`, w.Lobby.ID); err != nil {
		return fmt.Errorf("clear slots: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO slots (lobby_id, slot_index, session_key, display_name, is_bot, color_hex,
			coins, energy_bonus, vision_bonus, base_x, base_y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare slot insert: %w", err)
	}
	defer stmt.Close()

	for _, sl := range w.Slots {
		if _, err := stmt.ExecContext(ctx, w.Lobby.ID, sl.Index, sl.SessionKey, sl.Name, sl.IsBot,
			sl.Color, sl.Coins, sl.EnergyBonus, sl.VisionBonus, sl.BaseX, sl.BaseY); err != nil {
			return fmt.Errorf("insert slot %d: %w", sl.Index, err)
		}
	}
	return nil
}

func replaceCreatures(ctx context.Context, tx *sqlx.Tx, w *domain.World) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM creatures WHERE lobby_id = ?`, w.Lobby.ID); err != nil {
		return fmt.Errorf("clear creatures: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO creatures (lobby_id, id, owner, alive, size, speed, danger, energy_max, energy,
			vision, x, y, carried_food, created_day)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare creature insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range w.Creatures {
		if _, err := stmt.ExecContext(ctx, w.Lobby.ID, c.ID, c.Owner, c.Alive, c.Size, c.Speed,
			c.Danger, c.EnergyMax, c.Energy, c.Vision, c.X, c.Y, c.CarriedFood, c.CreatedDay); err != nil {
			return fmt.Errorf("insert creature %d: %w", c.ID, err)
		}
	}
	return nil
}

func replaceFoods(ctx context.Context, tx *sqlx.Tx, w *domain.World) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM foods WHERE lobby_id = ?`, w.Lobby.ID); err != nil {
		return fmt.Errorf("clear foods: %w", err)
	}
	stmt, err := tx.PreparexContext(ctx,
		`INSERT INTO foods (lobby_id, id, x, y, active) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare food insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range w.Foods {
		if _, err := stmt.ExecContext(ctx, w.Lobby.ID, f.ID, f.X, f.Y, f.Active); err != nil {
			return fmt.Errorf("insert food %d: %w", f.ID, err)
		}
	}
	return nil
}

func insertDayLog(ctx context.Context, tx *sqlx.Tx, dl *domain.DayLog, blob []byte) error {
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO day_logs (lobby_id, day, seed, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		dl.LobbyID, dl.Day, dl.Seed, blob, dl.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert day log %d: %w", dl.Day, err)
	}
	return nil
}

type dayLogRow struct {
	LobbyID   int64  `db:"lobby_id"`
	Day       int    `db:"day"`
	Seed      int64  `db:"seed"`
	Payload   []byte `db:"payload"`
	CreatedAt int64  `db:"created_at"`
}

// GetDayLog reads and decompresses one stored day.
func (s *SQLiteStore) GetDayLog(ctx context.Context, lobbyID int64, day int) (*domain.DayLog, error) {
	var row dayLogRow
	err := s.db.GetContext(ctx, &row,
		`SELECT lobby_id, day, seed, payload, created_at FROM day_logs WHERE lobby_id = ? AND day = ?`,
		lobbyID, day)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDayNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get day log: %w", err)
	}

	payload, err := decodePayload(row.Payload)
	if err != nil {
		return nil, fmt.Errorf("day %d of lobby %d: %w", day, lobbyID, err)
	}
	return &domain.DayLog{
		LobbyID:   row.LobbyID,
		Day:       row.Day,
		Seed:      row.Seed,
		Payload:   payload,
		CreatedAt: time.UnixMilli(row.CreatedAt),
	}, nil
}

package main

import (
	"database/sql"
	"errors"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// ErrLevelNotFound is returned when a named level is not stored
var ErrLevelNotFound = errors.New("level not found")

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// UserRow represents an account record in the database
type UserRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents a user's lifetime stats
type StatsRow struct {
	UserID       int64
	Waves        int
	Obstacles    int
	LevelsSaved  int
	WatchSeconds float64
}

// LevelRow is a stored obstacle layout
type LevelRow struct {
	Name      string    `json:"name"`
	Owner     string    `json:"owner"`
	Segments  int       `json:"segments"`
	Data      []byte    `json:"-"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		user_id INTEGER PRIMARY KEY REFERENCES users(id),
		waves INTEGER NOT NULL DEFAULT 0,
		obstacles INTEGER NOT NULL DEFAULT 0,
		levels_saved INTEGER NOT NULL DEFAULT 0,
		watch_seconds REAL NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS levels (
		name TEXT PRIMARY KEY,
		owner_id INTEGER REFERENCES users(id),
		segments INTEGER NOT NULL DEFAULT 0,
		data BLOB NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		user_id INTEGER,
		room_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_type_time ON analytics_events(event_type, created_at);
	CREATE INDEX IF NOT EXISTS idx_levels_owner ON levels(owner_id);
	`
	_, err := db.conn.Exec(schema)
	if err != nil {
		log.Printf("DB migration error: %v", err)
	}
	return err
}

// CreateUser creates a new account (returns user ID)
func (db *DB) CreateUser(username, passHash string) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("INSERT INTO users (username, pass_hash) VALUES (?, ?)", username, passHash)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if _, err := tx.Exec("INSERT INTO stats (user_id) VALUES (?)", id); err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

// GetUserByUsername returns a user by name, or nil if none exists
func (db *DB) GetUserByUsername(username string) (*UserRow, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, pass_hash, created_at FROM users WHERE username = ?",
		username,
	)
	u := &UserRow{}
	err := row.Scan(&u.ID, &u.Username, &u.PassHash, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM users WHERE username = ?", username).Scan(&count)
	return count > 0, err
}

// GetStats returns a user's stats, or nil if none exist
func (db *DB) GetStats(userID int64) (*StatsRow, error) {
	row := db.conn.QueryRow(
		"SELECT user_id, waves, obstacles, levels_saved, watch_seconds FROM stats WHERE user_id = ?",
		userID,
	)
	s := &StatsRow{}
	err := row.Scan(&s.UserID, &s.Waves, &s.Obstacles, &s.LevelsSaved, &s.WatchSeconds)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// AddStats increments a user's lifetime counters
func (db *DB) AddStats(userID int64, waves, obstacles, levelsSaved int, watch float64) error {
	_, err := db.conn.Exec(`
		UPDATE stats SET
			waves = waves + ?,
			obstacles = obstacles + ?,
			levels_saved = levels_saved + ?,
			watch_seconds = watch_seconds + ?
		WHERE user_id = ?`,
		waves, obstacles, levelsSaved, watch, userID,
	)
	return err
}

// SaveLevel stores a layout under name. Only the original owner may
// overwrite an existing level.
func (db *DB) SaveLevel(name string, ownerID int64, segments int, data []byte) error {
	owner := sql.NullInt64{Int64: ownerID, Valid: ownerID > 0}
	res, err := db.conn.Exec(`
		INSERT INTO levels (name, owner_id, segments, data, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET
			segments = excluded.segments,
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
		WHERE levels.owner_id IS excluded.owner_id`,
		name, owner, segments, data,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLevelOwned
	}
	return nil
}

// ErrLevelOwned is returned when saving over another user's level
var ErrLevelOwned = errors.New("level name belongs to another user")

// GetLevel returns a stored level's JSON document
func (db *DB) GetLevel(name string) ([]byte, error) {
	var data []byte
	err := db.conn.QueryRow("SELECT data FROM levels WHERE name = ?", name).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrLevelNotFound
	}
	return data, err
}

// ListLevels returns stored levels, most recently updated first
func (db *DB) ListLevels(limit int) ([]LevelRow, error) {
	rows, err := db.conn.Query(`
		SELECT l.name, COALESCE(u.username, ''), l.segments, l.updated_at
		FROM levels l LEFT JOIN users u ON u.id = l.owner_id
		ORDER BY l.updated_at DESC, l.name LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []LevelRow
	for rows.Next() {
		var l LevelRow
		if err := rows.Scan(&l.Name, &l.Owner, &l.Segments, &l.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, rows.Err()
}

// GetSetting returns a stored setting, or "" if unset
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

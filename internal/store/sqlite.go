package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/opsbridge/opsbridge/internal/domain"
	"github.com/opsbridge/opsbridge/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		login TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		prompt_part1_override TEXT,
		pending_prompt_update INTEGER DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_login TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_login);

	CREATE TABLE IF NOT EXISTS pending_actions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_login TEXT NOT NULL,
		actions_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pending_actions_user ON pending_actions(user_login);

	CREATE TABLE IF NOT EXISTS user_settings (
		user_login TEXT PRIMARY KEY,
		show_debug INTEGER DEFAULT 0,
		selected_llm_server_id TEXT,
		model_override TEXT
	);

	CREATE TABLE IF NOT EXISTS audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp TEXT NOT NULL,
		login TEXT NOT NULL,
		action TEXT NOT NULL,
		server TEXT,
		command TEXT,
		duration_ms INTEGER,
		result_snippet TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_login ON audit(login);
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

// AddMessage appends a conversation message and returns its rowid. Message
// ids are assigned by SQLite and are strictly increasing per user.
func (s *SQLiteStore) AddMessage(ctx context.Context, login, role, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (user_login, role, content, created_at) VALUES (?, ?, ?, ?)`,
		login, role, content, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message insert id: %w", err)
	}
	return id, nil
}

// LastMessages returns the most recent n messages, oldest first. Rows are
// fetched newest-first and reversed.
func (s *SQLiteStore) LastMessages(ctx context.Context, login string, n int) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE user_login = ? ORDER BY id DESC LIMIT ?`,
		login, n,
	)
	if err != nil {
		return nil, fmt.Errorf("query last messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessagesSince returns messages with id strictly greater than sinceID.
func (s *SQLiteStore) MessagesSince(ctx context.Context, login string, sinceID int64) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, role, content, created_at FROM messages
		 WHERE user_login = ? AND id > ? ORDER BY id ASC`,
		login, sinceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages since: %w", err)
	}
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]domain.Message, error) {
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []domain.Message
	for rows.Next() {
		var m domain.Message
		var createdAt int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.CreatedAt = time.Unix(createdAt, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return msgs, nil
}

// MessageCount returns the number of stored messages for the user.
func (s *SQLiteStore) MessageCount(ctx context.Context, login string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE user_login = ?`, login,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// DeleteMessages removes the user's entire conversation history.
func (s *SQLiteStore) DeleteMessages(ctx context.Context, login string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE user_login = ?`, login,
	); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}

// StagePendingActions replaces the user's staged actions document.
// Delete-then-insert inside one transaction so readers never observe two
// documents. Retries on SQLITE_BUSY with exponential backoff.
func (s *SQLiteStore) StagePendingActions(ctx context.Context, login, doc string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		err = s.stagePendingActionsOnce(ctx, login, doc)
		if err == nil {
			return nil
		}
		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("StagePendingActions hit SQLITE_BUSY, retrying",
				"login", login, "attempt", i+1, "delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}
	return fmt.Errorf("stage pending actions for %s: %w", login, err)
}

func (s *SQLiteStore) stagePendingActionsOnce(ctx context.Context, login, doc string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stage tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE user_login = ?`, login,
	); err != nil {
		return fmt.Errorf("clear prior actions: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO pending_actions (user_login, actions_json, created_at) VALUES (?, ?, ?)`,
		login, doc, time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("insert actions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stage tx: %w", err)
	}
	return nil
}

// GetPendingActions returns the most recently staged actions document.
func (s *SQLiteStore) GetPendingActions(ctx context.Context, login string) (string, error) {
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT actions_json FROM pending_actions
		 WHERE user_login = ? ORDER BY id DESC LIMIT 1`,
		login,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query pending actions: %w", err)
	}
	return doc, nil
}

// ClearPendingActions removes the user's staged actions document.
func (s *SQLiteStore) ClearPendingActions(ctx context.Context, login string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE user_login = ?`, login,
	); err != nil {
		return fmt.Errorf("clear pending actions: %w", err)
	}
	return nil
}

// UserExists reports whether a user row exists for the login.
func (s *SQLiteStore) UserExists(ctx context.Context, login string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM users WHERE login = ?`, login,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query user existence: %w", err)
	}
	return true, nil
}

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, login, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (login, password_hash) VALUES (?, ?)`,
		login, passwordHash,
	); err != nil {
		return fmt.Errorf("create user %s: %w", login, err)
	}
	return nil
}

// UpsertUser inserts or replaces the password hash for a login. The prompt
// override and pending flag survive password changes.
func (s *SQLiteStore) UpsertUser(ctx context.Context, login, passwordHash string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO users (login, password_hash) VALUES (?, ?)
		 ON CONFLICT(login) DO UPDATE SET password_hash = excluded.password_hash`,
		login, passwordHash,
	); err != nil {
		return fmt.Errorf("upsert user %s: %w", login, err)
	}
	return nil
}

// PasswordHash returns the stored hash, "" when the user is unknown.
func (s *SQLiteStore) PasswordHash(ctx context.Context, login string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash FROM users WHERE login = ?`, login,
	).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query password hash: %w", err)
	}
	return hash, nil
}

// GetPromptOverride returns the user's system prompt override.
func (s *SQLiteStore) GetPromptOverride(ctx context.Context, login string) (string, error) {
	var override sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT prompt_part1_override FROM users WHERE login = ?`, login,
	).Scan(&override)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query prompt override: %w", err)
	}
	return override.String, nil
}

// SetPromptOverride stores the user's system prompt override.
func (s *SQLiteStore) SetPromptOverride(ctx context.Context, login, override string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET prompt_part1_override = ? WHERE login = ?`,
		override, login,
	)
	if err != nil {
		return fmt.Errorf("set prompt override: %w", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		slog.Warn("SetPromptOverride affected 0 rows", "login", login)
	}
	return nil
}

// IsPendingPromptUpdate reports whether the pending-override flag is set.
func (s *SQLiteStore) IsPendingPromptUpdate(ctx context.Context, login string) (bool, error) {
	var pending int
	err := s.db.QueryRowContext(ctx,
		`SELECT pending_prompt_update FROM users WHERE login = ?`, login,
	).Scan(&pending)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query pending prompt flag: %w", err)
	}
	return pending == 1, nil
}

// SetPendingPromptUpdate sets or clears the pending-override flag.
func (s *SQLiteStore) SetPendingPromptUpdate(ctx context.Context, login string, pending bool) error {
	val := 0
	if pending {
		val = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`UPDATE users SET pending_prompt_update = ? WHERE login = ?`,
		val, login,
	); err != nil {
		return fmt.Errorf("set pending prompt flag: %w", err)
	}
	return nil
}

// GetSettings returns the user's settings, zero-valued when absent.
func (s *SQLiteStore) GetSettings(ctx context.Context, login string) (domain.Settings, error) {
	var settings domain.Settings
	var showDebug int
	var serverID, modelOverride sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT show_debug, selected_llm_server_id, model_override
		 FROM user_settings WHERE user_login = ?`,
		login,
	).Scan(&showDebug, &serverID, &modelOverride)
	if err == sql.ErrNoRows {
		return domain.Settings{}, nil
	}
	if err != nil {
		return domain.Settings{}, fmt.Errorf("query user settings: %w", err)
	}
	settings.ShowDebug = showDebug == 1
	settings.SelectedLLMServerID = serverID.String
	settings.ModelOverride = modelOverride.String
	return settings, nil
}

// SaveSettings stores the user's settings.
func (s *SQLiteStore) SaveSettings(ctx context.Context, login string, settings domain.Settings) error {
	showDebug := 0
	if settings.ShowDebug {
		showDebug = 1
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_settings (user_login, show_debug, selected_llm_server_id, model_override)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_login) DO UPDATE SET
			show_debug = excluded.show_debug,
			selected_llm_server_id = excluded.selected_llm_server_id,
			model_override = excluded.model_override`,
		login, showDebug, settings.SelectedLLMServerID, settings.ModelOverride,
	); err != nil {
		return fmt.Errorf("save user settings: %w", err)
	}
	return nil
}

// AddAuditEntry appends an audit record. The result snippet is truncated to
// 500 characters before storage.
func (s *SQLiteStore) AddAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	snippet := e.ResultSnippet
	if len(snippet) > 500 {
		snippet = snippet[:500]
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (timestamp, login, action, server, command, duration_ms, result_snippet)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ts.UTC().Format(time.RFC3339), e.Login, e.Action, e.Server, e.Command, e.DurationMs, snippet,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Package store provides storage backends for chatform.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/chatformhq/chatform/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveBotConfig(bot models.BotConfig) error {
	schemaJSON, err := json.Marshal(bot.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for bot %s: %w", bot.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO bot_configs (id, name, user_id, schema_json, business_profile, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, user_id = excluded.user_id,
			schema_json = excluded.schema_json, business_profile = excluded.business_profile,
			updated_at = excluded.updated_at`,
		bot.ID, bot.Name, bot.UserID, string(schemaJSON), bot.BusinessProfile, bot.CreatedAt, bot.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveBotConfig failed", "error", err, "botID", bot.ID)
		return fmt.Errorf("failed to save bot config %s: %w", bot.ID, err)
	}
	slog.Debug("SQLiteStore SaveBotConfig succeeded", "botID", bot.ID)
	return nil
}

func (s *SQLiteStore) GetBotConfig(id string) (*models.BotConfig, error) {
	row := s.db.QueryRow(`SELECT id, name, user_id, schema_json, business_profile, created_at, updated_at
		FROM bot_configs WHERE id = ?`, id)
	bot, err := scanBotConfig(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrBotNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetBotConfig failed", "error", err, "botID", id)
		return nil, fmt.Errorf("failed to get bot config %s: %w", id, err)
	}
	return bot, nil
}

func (s *SQLiteStore) ListBotConfigs(userID string) ([]models.BotConfig, error) {
	query := `SELECT id, name, user_id, schema_json, business_profile, created_at, updated_at FROM bot_configs`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListBotConfigs query failed", "error", err)
		return nil, fmt.Errorf("failed to query bot configs: %w", err)
	}
	defer rows.Close()

	var bots []models.BotConfig
	for rows.Next() {
		bot, err := scanBotConfigRows(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, *bot)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bot config rows: %w", err)
	}
	return bots, nil
}

func (s *SQLiteStore) SaveConversation(convo models.Conversation) error {
	body, err := convo.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %s: %w", convo.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO conversations (id, bot_id, body_json, submitted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET body_json = excluded.body_json,
			submitted = excluded.submitted, updated_at = excluded.updated_at`,
		convo.ID, convo.BotID, body, convo.Submitted, convo.CreatedAt, convo.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "conversationID", convo.ID)
		return fmt.Errorf("failed to save conversation %s: %w", convo.ID, err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "conversationID", convo.ID, "submitted", convo.Submitted)
	return nil
}

func (s *SQLiteStore) GetConversation(id string) (*models.Conversation, error) {
	var body string
	err := s.db.QueryRow(`SELECT body_json FROM conversations WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "conversationID", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	var convo models.Conversation
	if err := convo.FromJSON(body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	return &convo, nil
}

func (s *SQLiteStore) DeleteConversation(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "conversationID", id)
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) AddSubmission(sub models.Submission) error {
	gathered, transcript, files, err := marshalSubmission(sub)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO submissions (id, bot_id, gathered_json, transcript_json, files_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.BotID, gathered, transcript, files, sub.CreatedAt)
	if err != nil {
		slog.Error("SQLiteStore AddSubmission failed", "error", err, "submissionID", sub.ID)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	slog.Debug("SQLiteStore AddSubmission succeeded", "submissionID", sub.ID, "botID", sub.BotID)
	return nil
}

func (s *SQLiteStore) GetSubmissions(botID string) ([]models.Submission, error) {
	rows, err := s.db.Query(`SELECT id, bot_id, gathered_json, transcript_json, files_json, created_at
		FROM submissions WHERE bot_id = ? ORDER BY created_at`, botID)
	if err != nil {
		slog.Error("SQLiteStore GetSubmissions query failed", "error", err, "botID", botID)
		return nil, fmt.Errorf("failed to query submissions for %s: %w", botID, err)
	}
	defer rows.Close()

	var subs []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate submission rows: %w", err)
	}
	return subs, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Package store provides storage backends for chatform.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/chatformhq/chatform/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveBotConfig(bot models.BotConfig) error {
	schemaJSON, err := json.Marshal(bot.Schema)
	if err != nil {
		return fmt.Errorf("failed to marshal schema for bot %s: %w", bot.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO bot_configs (id, name, user_id, schema_json, business_profile, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, user_id = EXCLUDED.user_id,
			schema_json = EXCLUDED.schema_json, business_profile = EXCLUDED.business_profile,
			updated_at = EXCLUDED.updated_at`,
		bot.ID, bot.Name, bot.UserID, string(schemaJSON), bot.BusinessProfile, bot.CreatedAt, bot.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveBotConfig failed", "error", err, "botID", bot.ID)
		return fmt.Errorf("failed to save bot config %s: %w", bot.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetBotConfig(id string) (*models.BotConfig, error) {
	row := s.db.QueryRow(`SELECT id, name, user_id, schema_json, business_profile, created_at, updated_at
		FROM bot_configs WHERE id = $1`, id)
	bot, err := scanBotConfig(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrBotNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetBotConfig failed", "error", err, "botID", id)
		return nil, fmt.Errorf("failed to get bot config %s: %w", id, err)
	}
	return bot, nil
}

func (s *PostgresStore) ListBotConfigs(userID string) ([]models.BotConfig, error) {
	query := `SELECT id, name, user_id, schema_json, business_profile, created_at, updated_at FROM bot_configs`
	args := []interface{}{}
	if userID != "" {
		query += ` WHERE user_id = $1`
		args = append(args, userID)
	}
	query += ` ORDER BY id`
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore ListBotConfigs query failed", "error", err)
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

func (s *PostgresStore) SaveConversation(convo models.Conversation) error {
	body, err := convo.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal conversation %s: %w", convo.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO conversations (id, bot_id, body_json, submitted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET body_json = EXCLUDED.body_json,
			submitted = EXCLUDED.submitted, updated_at = EXCLUDED.updated_at`,
		convo.ID, convo.BotID, body, convo.Submitted, convo.CreatedAt, convo.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "conversationID", convo.ID)
		return fmt.Errorf("failed to save conversation %s: %w", convo.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(id string) (*models.Conversation, error) {
	var body string
	err := s.db.QueryRow(`SELECT body_json FROM conversations WHERE id = $1`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, models.ErrConversationNotFound
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "conversationID", id)
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}
	var convo models.Conversation
	if err := convo.FromJSON(body); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation %s: %w", id, err)
	}
	return &convo, nil
}

func (s *PostgresStore) DeleteConversation(id string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "conversationID", id)
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) AddSubmission(sub models.Submission) error {
	gathered, transcript, files, err := marshalSubmission(sub)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO submissions (id, bot_id, gathered_json, transcript_json, files_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sub.ID, sub.BotID, gathered, transcript, files, sub.CreatedAt)
	if err != nil {
		slog.Error("PostgresStore AddSubmission failed", "error", err, "submissionID", sub.ID)
		return fmt.Errorf("failed to insert submission %s: %w", sub.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetSubmissions(botID string) ([]models.Submission, error) {
	rows, err := s.db.Query(`SELECT id, bot_id, gathered_json, transcript_json, files_json, created_at
		FROM submissions WHERE bot_id = $1 ORDER BY created_at`, botID)
	if err != nil {
		slog.Error("PostgresStore GetSubmissions query failed", "error", err, "botID", botID)
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

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/chatformhq/chatform/internal/models"
)

// scanBotConfig scans a BotConfig from a single sql.Row.
func scanBotConfig(row *sql.Row) (*models.BotConfig, error) {
	var bot models.BotConfig
	var schemaJSON string
	err := row.Scan(&bot.ID, &bot.Name, &bot.UserID, &schemaJSON, &bot.BusinessProfile, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(schemaJSON), &bot.Schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema for bot %s failed: %w", bot.ID, err)
	}
	return &bot, nil
}

// scanBotConfigRows scans a BotConfig from sql.Rows.
func scanBotConfigRows(rows *sql.Rows) (*models.BotConfig, error) {
	var bot models.BotConfig
	var schemaJSON string
	err := rows.Scan(&bot.ID, &bot.Name, &bot.UserID, &schemaJSON, &bot.BusinessProfile, &bot.CreatedAt, &bot.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan bot config failed: %w", err)
	}
	if err := json.Unmarshal([]byte(schemaJSON), &bot.Schema); err != nil {
		return nil, fmt.Errorf("unmarshal schema for bot %s failed: %w", bot.ID, err)
	}
	return &bot, nil
}

// marshalSubmission serializes the JSON-column parts of a submission.
func marshalSubmission(sub models.Submission) (gathered, transcript, files string, err error) {
	g, err := json.Marshal(sub.GatheredInformation)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal gathered information failed: %w", err)
	}
	t, err := json.Marshal(sub.Transcript)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal transcript failed: %w", err)
	}
	f, err := json.Marshal(sub.UploadedFiles)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal uploaded files failed: %w", err)
	}
	return string(g), string(t), string(f), nil
}

// scanSubmission scans a Submission from sql.Rows.
func scanSubmission(rows *sql.Rows) (*models.Submission, error) {
	var sub models.Submission
	var gathered, transcript, files string
	err := rows.Scan(&sub.ID, &sub.BotID, &gathered, &transcript, &files, &sub.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan submission failed: %w", err)
	}
	if err := json.Unmarshal([]byte(gathered), &sub.GatheredInformation); err != nil {
		return nil, fmt.Errorf("unmarshal gathered information for %s failed: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(transcript), &sub.Transcript); err != nil {
		return nil, fmt.Errorf("unmarshal transcript for %s failed: %w", sub.ID, err)
	}
	if err := json.Unmarshal([]byte(files), &sub.UploadedFiles); err != nil {
		return nil, fmt.Errorf("unmarshal uploaded files for %s failed: %w", sub.ID, err)
	}
	return &sub, nil
}

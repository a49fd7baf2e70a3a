package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
)

type LogRepository interface {
	Append(ctx context.Context, jobID string, level models.LogLevel, message string, metadata map[string]interface{}) (models.AutomationLogEntry, error)
	ListByJob(ctx context.Context, jobID string, limit, offset int) ([]models.AutomationLogEntry, error)
}

type logRepository struct {
	db *sql.DB
}

func NewLogRepository(db *sql.DB) LogRepository {
	return &logRepository{db: db}
}

func (r *logRepository) Append(ctx context.Context, jobID string, level models.LogLevel, message string, metadata map[string]interface{}) (models.AutomationLogEntry, error) {
	var metadataArg interface{}
	if len(metadata) > 0 {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			return models.AutomationLogEntry{}, fmt.Errorf("marshal metadata: %w", err)
		}
		metadataArg = bytes
	}

	const query = `
		INSERT INTO automation_logs (job_id, level, message, metadata)
		VALUES ($1, $2, $3, $4)
		RETURNING id, job_id, level, message, metadata, created_at
	`
	row := r.db.QueryRowContext(ctx, query, jobID, level, message, metadataArg)
	return scanLogEntry(row)
}

func (r *logRepository) ListByJob(ctx context.Context, jobID string, limit, offset int) ([]models.AutomationLogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}

	const query = `
		SELECT id, job_id, level, message, metadata, created_at
		FROM automation_logs
		WHERE job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]models.AutomationLogEntry, 0, limit)
	for rows.Next() {
		var (
			entry       models.AutomationLogEntry
			metadataRaw []byte
		)
		if err := rows.Scan(&entry.ID, &entry.JobID, &entry.Level, &entry.Message, &metadataRaw, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(metadataRaw) > 0 {
			entry.Metadata = metadataRaw
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanLogEntry(scanner interface {
	Scan(dest ...interface{}) error
}) (models.AutomationLogEntry, error) {
	var (
		entry       models.AutomationLogEntry
		metadataRaw []byte
	)
	if err := scanner.Scan(&entry.ID, &entry.JobID, &entry.Level, &entry.Message, &metadataRaw, &entry.CreatedAt); err != nil {
		return models.AutomationLogEntry{}, err
	}
	if len(metadataRaw) > 0 {
		entry.Metadata = metadataRaw
	}
	return entry, nil
}

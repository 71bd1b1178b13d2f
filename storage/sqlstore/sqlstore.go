package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sandboxhq/notifier/storage"
)

const tableDeadletters = "notifier_deadletters"

// SQL queries
const (
	insertQuery = `
		INSERT INTO %s (event_id, event_type, channel, error_code, last_error, attempts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	listQuery = `
		SELECT id, event_id, event_type, channel, error_code, last_error, attempts, created_at
		FROM %s
		ORDER BY created_at DESC
		LIMIT ?`

	deleteQuery = `DELETE FROM %s WHERE id = ?`

	deleteOlderThanQuery = `DELETE FROM %s WHERE created_at < ?`

	createTableQuery = `
		CREATE TABLE IF NOT EXISTS %s (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id    VARCHAR(255)  NOT NULL,
			event_type  VARCHAR(255)  NOT NULL,
			channel     VARCHAR(32)   NOT NULL,
			error_code  VARCHAR(64)   NOT NULL,
			last_error  VARCHAR(2000) NULL,
			attempts    INT           NOT NULL DEFAULT 0,
			created_at  TIMESTAMP(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
			INDEX idx_event_channel (event_id, channel),
			INDEX idx_created_at (created_at)
		) ENGINE=InnoDB`
)

// Store is a MySQL-backed dead-letter store.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	table  string
}

// New creates a dead-letter store over db.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger,
		table:  tableDeadletters,
	}
}

// Insert implements storage.DeadLetterStore.
func (s *Store) Insert(ctx context.Context, record storage.DeadLetterRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := fmt.Sprintf(insertQuery, s.table)
	_, err := s.db.ExecContext(ctx, query,
		record.EventID,
		record.EventType,
		record.Channel,
		record.ErrorCode,
		record.LastError,
		record.Attempts,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert dead-letter record: %w", err)
	}
	return nil
}

// List implements storage.DeadLetterStore.
func (s *Store) List(ctx context.Context, limit int) ([]storage.DeadLetterRecord, error) {
	query := fmt.Sprintf(listQuery, s.table)
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead-letter records: %w", err)
	}
	defer rows.Close()

	var records []storage.DeadLetterRecord
	for rows.Next() {
		var record storage.DeadLetterRecord
		var lastError sql.NullString
		if err := rows.Scan(
			&record.ID,
			&record.EventID,
			&record.EventType,
			&record.Channel,
			&record.ErrorCode,
			&lastError,
			&record.Attempts,
			&record.CreatedAt,
		); err != nil {
			s.logger.Error("Failed to scan dead-letter record", zap.Error(err))
			continue
		}
		record.LastError = lastError.String
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate dead-letter records: %w", err)
	}
	return records, nil
}

// Delete implements storage.DeadLetterStore.
func (s *Store) Delete(ctx context.Context, id int64) error {
	query := fmt.Sprintf(deleteQuery, s.table)
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete dead-letter record: %w", err)
	}
	return nil
}

// DeleteOlderThan implements storage.DeadLetterStore.
func (s *Store) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().UTC().Add(-retention)
	query := fmt.Sprintf(deleteOlderThanQuery, s.table)
	result, err := s.db.ExecContext(ctx, query, threshold)
	if err != nil {
		return 0, fmt.Errorf("failed to purge dead-letter records: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged records: %w", err)
	}
	return deleted, nil
}

// EnsureTables implements storage.DeadLetterStore.
func (s *Store) EnsureTables(ctx context.Context) error {
	query := fmt.Sprintf(createTableQuery, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create dead-letter table: %w", err)
	}
	return nil
}

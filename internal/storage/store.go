// Package storage persists analysis history in an embedded sqlite database.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/infrapilot/infrapilot/internal/config"
	"github.com/infrapilot/infrapilot/internal/logger"
	"github.com/infrapilot/infrapilot/pkg/models"
)

// Store wraps the sqlite connection behind the history API.
type Store struct {
	conn *sql.DB
	log  logger.Logger
	mu   sync.RWMutex
}

// Open creates the database file if needed and initializes the schema.
func Open(cfg config.StorageConfig) (*Store, error) {
	dir := filepath.Dir(cfg.Path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, log: logger.New("storage")}
	if err := s.initSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analyses (
		id TEXT PRIMARY KEY,
		file_type TEXT NOT NULL,
		provider TEXT NOT NULL,
		model TEXT,
		drift_score REAL NOT NULL,
		issue_count INTEGER NOT NULL,
		issues TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_analyses_created ON analyses(created_at);
	CREATE INDEX IF NOT EXISTS idx_analyses_file_type ON analyses(file_type);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// RecordAnalysis stores one completed analysis run.
func (s *Store) RecordAnalysis(ctx context.Context, result *models.AnalyzeResult, fileType models.FileType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	issues, err := json.Marshal(result.Issues)
	if err != nil {
		return fmt.Errorf("failed to encode issues: %w", err)
	}

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO analyses (id, file_type, provider, model, drift_score, issue_count, issues, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		string(fileType),
		result.Provider,
		result.Model,
		result.DriftScore,
		len(result.Issues),
		string(issues),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record analysis: %w", err)
	}
	return nil
}

// ListAnalyses returns the most recent analysis summaries, newest first.
func (s *Store) ListAnalyses(ctx context.Context, limit int) ([]models.AnalysisRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, file_type, provider, model, drift_score, issue_count, created_at
		FROM analyses
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query analyses: %w", err)
	}
	defer rows.Close()

	records := []models.AnalysisRecord{}
	for rows.Next() {
		var r models.AnalysisRecord
		var model sql.NullString
		if err := rows.Scan(&r.ID, &r.FileType, &r.Provider, &model, &r.DriftScore, &r.IssueCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analysis row: %w", err)
		}
		r.Model = model.String
		records = append(records, r)
	}
	return records, rows.Err()
}

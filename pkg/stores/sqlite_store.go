package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoHandles indicates no provisioned handles have been saved yet.
var ErrNoHandles = errors.New("no provisioned handles stored")

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode. The parent
// directory is created if it does not exist so the default state path works
// on first run.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SaveHandles inserts or updates the single handles row.
func (s *SQLiteStore) SaveHandles(ctx context.Context, handles *Handles) error {
	query := `
		INSERT INTO handles (
			id, knowledge_base_id, data_source_id, document_bucket,
			vector_bucket_arn, vector_index_arn, role_arn, provisioned_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			knowledge_base_id = excluded.knowledge_base_id,
			data_source_id = excluded.data_source_id,
			document_bucket = excluded.document_bucket,
			vector_bucket_arn = excluded.vector_bucket_arn,
			vector_index_arn = excluded.vector_index_arn,
			role_arn = excluded.role_arn,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	provisionedAt := handles.ProvisionedAt
	if provisionedAt.IsZero() {
		provisionedAt = now
	}

	_, err := s.db.ExecContext(ctx, query,
		handles.KnowledgeBaseID,
		handles.DataSourceID,
		handles.DocumentBucket,
		handles.VectorBucketARN,
		handles.VectorIndexARN,
		handles.RoleARN,
		provisionedAt.Format("2006-01-02 15:04:05"),
		now.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to save handles: %w", err)
	}

	return nil
}

// LoadHandles retrieves the persisted handles. Returns ErrNoHandles when no
// provision has been recorded.
func (s *SQLiteStore) LoadHandles(ctx context.Context) (*Handles, error) {
	query := `
		SELECT knowledge_base_id, data_source_id, document_bucket,
			   vector_bucket_arn, vector_index_arn, role_arn, provisioned_at, updated_at
		FROM handles
		WHERE id = 1
	`

	handles := &Handles{}
	err := s.db.QueryRowContext(ctx, query).Scan(
		&handles.KnowledgeBaseID,
		&handles.DataSourceID,
		&handles.DocumentBucket,
		&handles.VectorBucketARN,
		&handles.VectorIndexARN,
		&handles.RoleARN,
		&handles.ProvisionedAt,
		&handles.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoHandles
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load handles: %w", err)
	}

	return handles, nil
}

// ClearHandles removes the persisted handles after a successful cleanup.
func (s *SQLiteStore) ClearHandles(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handles WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to clear handles: %w", err)
	}
	return nil
}

// CreateOperation creates a new operation record.
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *Operation) error {
	if err := op.Kind.Validate(); err != nil {
		return err
	}
	if err := op.Status.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO operations (id, kind, status, started_at, completed_at, error, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.Kind,
		op.Status,
		op.StartedAt,
		op.CompletedAt,
		op.Error,
		op.Details,
	)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// CompleteOperation marks an operation as finished with the given status.
func (s *SQLiteStore) CompleteOperation(ctx context.Context, id string, status OperationStatus, errMsg *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("operation completion requires a terminal status, got: %s", status)
	}

	query := `
		UPDATE operations
		SET status = ?, error = ?, completed_at = ?
		WHERE id = ?
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query, status, errMsg, now, id)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

// ListOperations lists operation records, most recent first.
func (s *SQLiteStore) ListOperations(ctx context.Context, kind *OperationKind, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, kind, status, started_at, completed_at, error, details
		FROM operations
		WHERE (? IS NULL OR kind = ?)
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, kind, kind, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*Operation{}
	for rows.Next() {
		op := &Operation{}
		err := rows.Scan(
			&op.ID,
			&op.Kind,
			&op.Status,
			&op.StartedAt,
			&op.CompletedAt,
			&op.Error,
			&op.Details,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Sentinel errors surfaced to command handlers. Expected conditions are
// reported through these rather than through raw driver errors.
var (
	ErrAlreadyLinkedSelf  = errors.New("account already linked to this user")
	ErrAlreadyLinkedOther = errors.New("account already linked to another user")
	ErrNotLinked          = errors.New("account not linked")
	ErrNoSnapshot         = errors.New("no cached snapshot")
)

// Repository handles all database operations
type Repository struct {
	db *bun.DB
}

// NewRepository creates a new repository backed by SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	sqldb, err := sql.Open(sqliteshim.ShimName, dbPath+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newRepository(sqldb)
}

var memDBSeq atomic.Int64

// NewMemoryRepository opens a throwaway in-memory database, used by tests.
// Each call gets its own database; shared cache only ties together the
// connections of one pool.
func NewMemoryRepository() (*Repository, error) {
	name := fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=busy_timeout(5000)", memDBSeq.Add(1))
	sqldb, err := sql.Open(sqliteshim.ShimName, name)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// A shared-cache memory database disappears when the last connection
	// closes; pin one open.
	sqldb.SetMaxIdleConns(1)
	return newRepository(sqldb)
}

func newRepository(sqldb *sql.DB) (*Repository, error) {
	if err := sqldb.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: bun.NewDB(sqldb, sqlitedialect.New())}

	if err := repo.migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// DB exposes the underlying bun handle for tests
func (r *Repository) DB() *bun.DB {
	return r.db
}

// migrate creates the database schema
func (r *Repository) migrate(ctx context.Context) error {
	models := []interface{}{
		(*User)(nil),
		(*NKAccount)(nil),
		(*CachedPlayer)(nil),
		(*AwardedRole)(nil),
		(*StaffUser)(nil),
		(*ContentLimits)(nil),
	}

	for _, model := range models {
		if _, err := r.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if _, err := r.db.NewCreateIndex().
		Model((*NKAccount)(nil)).
		Index("idx_nk_accounts_discord_id").
		Column("discord_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	if _, err := r.db.NewCreateIndex().
		Model((*AwardedRole)(nil)).
		Index("idx_roles_awarded_discord_id").
		Column("discord_id").
		IfNotExists().
		Exec(ctx); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

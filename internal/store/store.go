// Package store implements the fact store: a SQLite database holding
// files, definitions, symbol edges, modules, interactions, flows,
// features, and domains. Engine packages consume it through narrow
// interfaces declared on their side; this package is the one place
// that knows SQL.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"weft/internal/symbols"
)

// ErrNotFound is returned when a referenced row does not exist.
// Callers distinguish it from I/O failure with errors.Is.
var ErrNotFound = errors.New("not found")

// DirName is the per-repo state directory, DBName the database file.
const (
	DirName = ".weft"
	DBName  = "weft.db"
)

const (
	definitionCacheSize = 4096
	metadataCacheSize   = 4096
)

// Store wraps the SQLite connection with transaction helpers and a
// small LRU read cache for the hot definition/metadata lookups the
// annotation loop hammers.
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
	dbPath string

	defCache  *lru.Cache[int64, symbols.Definition]
	metaCache *lru.Cache[int64, symbols.MetadataSet]
}

// Open opens or creates the database at <repoRoot>/.weft/weft.db.
// A new database gets the full schema; an existing one is migrated.
func Open(repoRoot string, logger *slog.Logger) (*Store, error) {
	weftDir := filepath.Join(repoRoot, DirName)
	if err := os.MkdirAll(weftDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", DirName, err)
	}
	return OpenPath(filepath.Join(weftDir, DBName), logger)
}

// OpenPath opens or creates the database at an explicit path.
func OpenPath(dbPath string, logger *slog.Logger) (*Store, error) {
	dbExists := fileExists(dbPath)

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-64000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	defCache, err := lru.New[int64, symbols.Definition](definitionCacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create definition cache: %w", err)
	}
	metaCache, err := lru.New[int64, symbols.MetadataSet](metadataCacheSize)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	s := &Store{
		conn:      conn,
		logger:    logger,
		dbPath:    dbPath,
		defCache:  defCache,
		metaCache: metaCache,
	}

	if !dbExists {
		logger.Info("creating new database", "path", dbPath)
		if err := s.initializeSchema(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
	} else {
		if err := s.runMigrations(); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.dbPath
}

// WithTx executes fn inside a transaction, rolling back on error or
// panic and committing otherwise.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction",
				"error", err, "rollbackError", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) exec(query string, args ...any) (sql.Result, error) {
	return s.conn.Exec(query, args...)
}

func (s *Store) query(query string, args ...any) (*sql.Rows, error) {
	return s.conn.Query(query, args...)
}

func (s *Store) queryRow(query string, args ...any) *sql.Row {
	return s.conn.QueryRow(query, args...)
}

// Stats reports row counts per table, for the status command.
type Stats struct {
	Files        int `json:"files"`
	Definitions  int `json:"definitions"`
	Metadata     int `json:"metadata"`
	CallEdges    int `json:"callEdges"`
	ImportEdges  int `json:"importEdges"`
	Modules      int `json:"modules"`
	Members      int `json:"members"`
	Interactions int `json:"interactions"`
	Flows        int `json:"flows"`
	FlowSteps    int `json:"flowSteps"`
	Features     int `json:"features"`
	Domains      int `json:"domains"`
}

// GetStats counts rows in every table.
func (s *Store) GetStats() (*Stats, error) {
	stats := &Stats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"files", &stats.Files},
		{"definitions", &stats.Definitions},
		{"definition_metadata", &stats.Metadata},
		{"call_edges", &stats.CallEdges},
		{"import_edges", &stats.ImportEdges},
		{"modules", &stats.Modules},
		{"module_members", &stats.Members},
		{"interactions", &stats.Interactions},
		{"flows", &stats.Flows},
		{"flow_steps", &stats.FlowSteps},
		{"features", &stats.Features},
		{"domains", &stats.Domains},
	}
	for _, c := range counts {
		if err := s.queryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", c.table, err)
		}
	}
	return stats, nil
}

// deletableTables is the whitelist for DeleteRow; repairs may only
// touch derived-graph tables, never the raw facts.
var deletableTables = map[string]bool{
	"interactions":   true,
	"flow_steps":     true,
	"flows":          true,
	"module_members": true,
	"feature_flows":  true,
}

// DeleteRow removes one row by id from a derived-graph table. Used by
// the integrity repairer; the table name must be whitelisted.
func (s *Store) DeleteRow(table string, id int64) error {
	if !deletableTables[table] {
		return fmt.Errorf("table %q is not repairable", table)
	}
	res, err := s.exec("DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s row %d: %w", table, id, ErrNotFound)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

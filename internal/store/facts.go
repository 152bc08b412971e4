package store

import (
	"database/sql"
	"fmt"

	"weft/internal/symbols"
)

// InsertFile inserts a file record, returning its id. Re-inserting an
// existing path returns the existing id.
func (s *Store) InsertFile(path, language string) (int64, error) {
	var id int64
	err := s.queryRow("SELECT id FROM files WHERE path = ?", path).Scan(&id)
	if err == nil {
		if language != "" {
			if _, err := s.exec("UPDATE files SET language = ? WHERE id = ?", language, id); err != nil {
				return 0, fmt.Errorf("failed to update file language: %w", err)
			}
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up file: %w", err)
	}

	res, err := s.exec("INSERT INTO files (path, language) VALUES (?, ?)", path, language)
	if err != nil {
		return 0, fmt.Errorf("failed to insert file: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get file id: %w", err)
	}
	return id, nil
}

// GetFileByID retrieves a file by id.
func (s *Store) GetFileByID(id int64) (*symbols.File, error) {
	var f symbols.File
	err := s.queryRow(`
		SELECT id, path, language FROM files WHERE id = ?
	`, id).Scan(&f.ID, &f.Path, &f.Language)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

// GetFileByPath retrieves a file by its repo-relative path.
func (s *Store) GetFileByPath(path string) (*symbols.File, error) {
	var f symbols.File
	err := s.queryRow(`
		SELECT id, path, language FROM files WHERE path = ?
	`, path).Scan(&f.ID, &f.Path, &f.Language)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("file %q: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

// ListFiles returns all files ordered by path.
func (s *Store) ListFiles() ([]symbols.File, error) {
	rows, err := s.query("SELECT id, path, language FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []symbols.File
	for rows.Next() {
		var f symbols.File
		if err := rows.Scan(&f.ID, &f.Path, &f.Language); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating files: %w", err)
	}
	return files, nil
}

const definitionColumns = `
	d.id, d.file_id, d.name, d.kind, d.container,
	d.start_line, d.end_line, d.signature, d.exported,
	COALESCE(m.module_id, 0)
`

const definitionFrom = `
	FROM definitions d
	LEFT JOIN module_members m ON m.definition_id = d.id
`

// InsertDefinition inserts a definition record, returning its id.
func (s *Store) InsertDefinition(d *symbols.Definition) (int64, error) {
	res, err := s.exec(`
		INSERT INTO definitions (file_id, name, kind, container, start_line, end_line, signature, exported)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, d.FileID, d.Name, string(d.Kind), d.Container, d.Line, d.EndLine, d.Signature, boolToInt(d.Exported))
	if err != nil {
		return 0, fmt.Errorf("failed to insert definition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get definition id: %w", err)
	}
	d.ID = id
	return id, nil
}

// GetDefinitionByID retrieves a definition by id, including its module
// assignment. Hot path for tracing; served from the LRU when possible.
func (s *Store) GetDefinitionByID(id int64) (*symbols.Definition, error) {
	if d, ok := s.defCache.Get(id); ok {
		return &d, nil
	}

	var d symbols.Definition
	var exported int
	err := s.queryRow(`
		SELECT `+definitionColumns+definitionFrom+` WHERE d.id = ?
	`, id).Scan(&d.ID, &d.FileID, &d.Name, &d.Kind, &d.Container,
		&d.Line, &d.EndLine, &d.Signature, &exported, &d.ModuleID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("definition %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get definition: %w", err)
	}
	d.Exported = exported != 0

	s.defCache.Add(id, d)
	return &d, nil
}

// GetDefinitionsByName retrieves all definitions with the given name.
func (s *Store) GetDefinitionsByName(name string) ([]symbols.Definition, error) {
	rows, err := s.query(`
		SELECT `+definitionColumns+definitionFrom+` WHERE d.name = ? ORDER BY d.id
	`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get definitions by name: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// ListDefinitions returns every definition, ordered by id.
func (s *Store) ListDefinitions() ([]symbols.Definition, error) {
	rows, err := s.query(`SELECT ` + definitionColumns + definitionFrom + ` ORDER BY d.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// ListDefinitionsByFile returns the definitions of one file.
func (s *Store) ListDefinitionsByFile(fileID int64) ([]symbols.Definition, error) {
	rows, err := s.query(`
		SELECT `+definitionColumns+definitionFrom+` WHERE d.file_id = ? ORDER BY d.start_line
	`, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions by file: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

func scanDefinitions(rows *sql.Rows) ([]symbols.Definition, error) {
	var defs []symbols.Definition
	for rows.Next() {
		var d symbols.Definition
		var exported int
		if err := rows.Scan(&d.ID, &d.FileID, &d.Name, &d.Kind, &d.Container,
			&d.Line, &d.EndLine, &d.Signature, &exported, &d.ModuleID); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		d.Exported = exported != 0
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}
	return defs, nil
}

// SetMetadata writes one metadata key for a definition, replacing any
// previous value for the same key.
func (s *Store) SetMetadata(definitionID int64, key, value string) error {
	var exists int
	if err := s.queryRow("SELECT 1 FROM definitions WHERE id = ?", definitionID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("definition %d: %w", definitionID, ErrNotFound)
		}
		return fmt.Errorf("failed to check definition: %w", err)
	}

	_, err := s.exec(`
		INSERT INTO definition_metadata (definition_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(definition_id, key) DO UPDATE SET value = excluded.value
	`, definitionID, key, value)
	if err != nil {
		return fmt.Errorf("failed to set metadata: %w", err)
	}

	s.metaCache.Remove(definitionID)
	return nil
}

// GetMetadata returns the full metadata set of a definition. Missing
// definitions yield an empty set, not an error; the readiness loop
// treats absence as "nothing annotated yet".
func (s *Store) GetMetadata(definitionID int64) (symbols.MetadataSet, error) {
	if m, ok := s.metaCache.Get(definitionID); ok {
		return m, nil
	}

	rows, err := s.query(`
		SELECT key, value FROM definition_metadata WHERE definition_id = ?
	`, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get metadata: %w", err)
	}
	defer rows.Close()

	m := make(symbols.MetadataSet)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		m[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metadata: %w", err)
	}

	s.metaCache.Add(definitionID, m)
	return m, nil
}

// DefinitionIDsWithKey returns the ids of definitions carrying the
// given metadata key. Coverage computation scans this per aspect.
func (s *Store) DefinitionIDsWithKey(key string) (map[int64]bool, error) {
	rows, err := s.query(`
		SELECT definition_id FROM definition_metadata WHERE key = ?
	`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata key: %w", err)
	}
	defer rows.Close()

	ids := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan definition id: %w", err)
		}
		ids[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating metadata key rows: %w", err)
	}
	return ids, nil
}

// InsertCallEdge records a symbol-level call or usage edge. Duplicate
// (from, to, kind) triples are ignored.
func (s *Store) InsertCallEdge(e symbols.Edge) error {
	_, err := s.exec(`
		INSERT INTO call_edges (from_definition_id, to_definition_id, kind, line)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(from_definition_id, to_definition_id, kind) DO NOTHING
	`, e.FromID, e.ToID, string(e.Kind), e.Line)
	if err != nil {
		return fmt.Errorf("failed to insert call edge: %w", err)
	}
	return nil
}

// GetRelationshipEdges returns the outgoing call/usage edges of one
// definition, ordered by target id.
func (s *Store) GetRelationshipEdges(definitionID int64) ([]symbols.Edge, error) {
	rows, err := s.query(`
		SELECT from_definition_id, to_definition_id, kind, line
		FROM call_edges WHERE from_definition_id = ?
		ORDER BY to_definition_id
	`, definitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get relationship edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

// ListCallEdges returns every symbol-level edge.
func (s *Store) ListCallEdges() ([]symbols.Edge, error) {
	rows, err := s.query(`
		SELECT from_definition_id, to_definition_id, kind, line
		FROM call_edges ORDER BY from_definition_id, to_definition_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list call edges: %w", err)
	}
	defer rows.Close()
	return scanEdges(rows)
}

func scanEdges(rows *sql.Rows) ([]symbols.Edge, error) {
	var edges []symbols.Edge
	for rows.Next() {
		var e symbols.Edge
		if err := rows.Scan(&e.FromID, &e.ToID, &e.Kind, &e.Line); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}

// InsertImportEdge records a file-level import. Duplicates are ignored.
func (s *Store) InsertImportEdge(e symbols.ImportEdge) error {
	_, err := s.exec(`
		INSERT INTO import_edges (from_file_id, to_file_id)
		VALUES (?, ?)
		ON CONFLICT(from_file_id, to_file_id) DO NOTHING
	`, e.FromFileID, e.ToFileID)
	if err != nil {
		return fmt.Errorf("failed to insert import edge: %w", err)
	}
	return nil
}

// ListImportEdges returns every file-level import edge.
func (s *Store) ListImportEdges() ([]symbols.ImportEdge, error) {
	rows, err := s.query(`
		SELECT from_file_id, to_file_id FROM import_edges
		ORDER BY from_file_id, to_file_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list import edges: %w", err)
	}
	defer rows.Close()

	var edges []symbols.ImportEdge
	for rows.Next() {
		var e symbols.ImportEdge
		if err := rows.Scan(&e.FromFileID, &e.ToFileID); err != nil {
			return nil, fmt.Errorf("failed to scan import edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import edges: %w", err)
	}
	return edges, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

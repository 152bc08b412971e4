package store

import (
	"database/sql"
	"fmt"

	"weft/internal/modules"
	"weft/internal/symbols"
)

// InsertModule inserts a module record, returning its id. Inserting a
// path that already exists returns the existing id unchanged.
func (s *Store) InsertModule(m *modules.Module) (int64, error) {
	var id int64
	err := s.queryRow("SELECT id FROM modules WHERE path = ?", m.Path).Scan(&id)
	if err == nil {
		m.ID = id
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up module: %w", err)
	}

	name := m.Name
	if name == "" {
		name = modules.LastSegment(m.Path)
	}
	res, err := s.exec(`
		INSERT INTO modules (path, name, parent_id, description, entity)
		VALUES (?, ?, ?, ?, ?)
	`, m.Path, name, m.ParentID, m.Description, m.Entity)
	if err != nil {
		return 0, fmt.Errorf("failed to insert module: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get module id: %w", err)
	}
	m.ID = id
	m.Name = name
	return id, nil
}

// UpdateModule rewrites the mutable columns of a module row.
func (s *Store) UpdateModule(m *modules.Module) error {
	res, err := s.exec(`
		UPDATE modules SET name = ?, parent_id = ?, description = ?, entity = ?
		WHERE id = ?
	`, m.Name, m.ParentID, m.Description, m.Entity, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update module: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("module %d: %w", m.ID, ErrNotFound)
	}
	return nil
}

// GetModuleByID retrieves a module by id.
func (s *Store) GetModuleByID(id int64) (*modules.Module, error) {
	var m modules.Module
	err := s.queryRow(`
		SELECT id, path, name, parent_id, description, entity
		FROM modules WHERE id = ?
	`, id).Scan(&m.ID, &m.Path, &m.Name, &m.ParentID, &m.Description, &m.Entity)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return &m, nil
}

// GetModuleByPath retrieves a module by its dotted path.
func (s *Store) GetModuleByPath(path string) (*modules.Module, error) {
	var m modules.Module
	err := s.queryRow(`
		SELECT id, path, name, parent_id, description, entity
		FROM modules WHERE path = ?
	`, path).Scan(&m.ID, &m.Path, &m.Name, &m.ParentID, &m.Description, &m.Entity)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("module %q: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get module: %w", err)
	}
	return &m, nil
}

// ListModules returns all modules ordered by path.
func (s *Store) ListModules() ([]*modules.Module, error) {
	rows, err := s.query(`
		SELECT id, path, name, parent_id, description, entity
		FROM modules ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list modules: %w", err)
	}
	defer rows.Close()

	var mods []*modules.Module
	for rows.Next() {
		var m modules.Module
		if err := rows.Scan(&m.ID, &m.Path, &m.Name, &m.ParentID, &m.Description, &m.Entity); err != nil {
			return nil, fmt.Errorf("failed to scan module: %w", err)
		}
		mods = append(mods, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating modules: %w", err)
	}
	return mods, nil
}

// DeleteModule removes a module row. Members and interactions pointing
// at it become ghosts; the verifier finds and repairs those.
func (s *Store) DeleteModule(id int64) error {
	res, err := s.exec("DELETE FROM modules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete module: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("module %d: %w", id, ErrNotFound)
	}
	return nil
}

// AssignMember assigns a definition to a module. A definition belongs
// to at most one module; reassignment replaces the previous row.
func (s *Store) AssignMember(moduleID, definitionID int64) error {
	_, err := s.exec(`
		INSERT INTO module_members (module_id, definition_id)
		VALUES (?, ?)
		ON CONFLICT(definition_id) DO UPDATE SET module_id = excluded.module_id
	`, moduleID, definitionID)
	if err != nil {
		return fmt.Errorf("failed to assign member: %w", err)
	}
	s.defCache.Remove(definitionID)
	return nil
}

// ModuleMember is one row of the module membership table.
type ModuleMember struct {
	ID           int64 `json:"id"`
	ModuleID     int64 `json:"moduleId"`
	DefinitionID int64 `json:"definitionId"`
}

// ListMembers returns the definitions assigned to a module.
func (s *Store) ListMembers(moduleID int64) ([]symbols.Definition, error) {
	rows, err := s.query(`
		SELECT `+definitionColumns+definitionFrom+`
		WHERE m.module_id = ? ORDER BY d.id
	`, moduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()
	return scanDefinitions(rows)
}

// ListAllMembers returns every membership row.
func (s *Store) ListAllMembers() ([]ModuleMember, error) {
	rows, err := s.query(`
		SELECT id, module_id, definition_id FROM module_members ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var members []ModuleMember
	for rows.Next() {
		var m ModuleMember
		if err := rows.Scan(&m.ID, &m.ModuleID, &m.DefinitionID); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return members, nil
}

// TypeOnlyModuleIDs computes the set of modules whose members are all
// type-level definitions. Modules with zero members are excluded.
func (s *Store) TypeOnlyModuleIDs() (map[int64]bool, error) {
	rows, err := s.query(`
		SELECT m.module_id, d.kind
		FROM module_members m
		JOIN definitions d ON d.id = m.definition_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query member kinds: %w", err)
	}
	defer rows.Close()

	// typeOnly stays true for a module until a non-type member shows up.
	typeOnly := make(map[int64]bool)
	for rows.Next() {
		var moduleID int64
		var kind string
		if err := rows.Scan(&moduleID, &kind); err != nil {
			return nil, fmt.Errorf("failed to scan member kind: %w", err)
		}
		if !symbols.Kind(kind).IsTypeLevel() {
			typeOnly[moduleID] = false
		} else if _, seen := typeOnly[moduleID]; !seen {
			typeOnly[moduleID] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating member kinds: %w", err)
	}

	for id, ok := range typeOnly {
		if !ok {
			delete(typeOnly, id)
		}
	}
	return typeOnly, nil
}

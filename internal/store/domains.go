package store

import (
	"database/sql"
	"fmt"

	"weft/internal/domains"
	"weft/internal/symbols"
)

// UpsertDomain registers a domain tag, updating the description of an
// existing one. Returns the row id.
func (s *Store) UpsertDomain(name, description string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("domain name is empty")
	}
	var id int64
	err := s.queryRow("SELECT id FROM domains WHERE name = ?", name).Scan(&id)
	if err == nil {
		if description != "" {
			if _, err := s.exec("UPDATE domains SET description = ? WHERE id = ?", description, id); err != nil {
				return 0, fmt.Errorf("failed to update domain: %w", err)
			}
		}
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up domain: %w", err)
	}

	res, err := s.exec("INSERT INTO domains (name, description) VALUES (?, ?)", name, description)
	if err != nil {
		return 0, fmt.Errorf("failed to insert domain: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get domain id: %w", err)
	}
	return id, nil
}

// GetDomainByName retrieves a registered domain.
func (s *Store) GetDomainByName(name string) (*domains.Domain, error) {
	var d domains.Domain
	err := s.queryRow("SELECT id, name, description FROM domains WHERE name = ?", name).
		Scan(&d.ID, &d.Name, &d.Description)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("domain %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &d, nil
}

// ListDomains returns all registered domains ordered by name.
func (s *Store) ListDomains() ([]domains.Domain, error) {
	rows, err := s.query("SELECT id, name, description FROM domains ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	defer rows.Close()

	var list []domains.Domain
	for rows.Next() {
		var d domains.Domain
		if err := rows.Scan(&d.ID, &d.Name, &d.Description); err != nil {
			return nil, fmt.Errorf("failed to scan domain: %w", err)
		}
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domains: %w", err)
	}
	return list, nil
}

// DomainsInUse returns the domain tags present in definition metadata,
// with usage counts. A domain may be in use before it is registered;
// the report marks registration state.
func (s *Store) DomainsInUse() (map[string]int, error) {
	rows, err := s.query(`
		SELECT value, COUNT(*) FROM definition_metadata
		WHERE key = ? OR key = ?
		GROUP BY value
	`, symbols.MetaDomain, symbols.AspectKey(symbols.MetaDomain))
	if err != nil {
		return nil, fmt.Errorf("failed to query domains in use: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("failed to scan domain usage: %w", err)
		}
		if name != "" {
			counts[name] += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating domain usage: %w", err)
	}
	return counts, nil
}

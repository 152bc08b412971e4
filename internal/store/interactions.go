package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"weft/internal/interactions"
)

// UpsertInteraction records a module-pair edge. The first insert for an
// ordered pair creates the row; later inserts fold into it: weights
// add, evidence merges, and a syntactic source upgrades an inferred
// one. Returns the row id.
func (s *Store) UpsertInteraction(in *interactions.Interaction) (int64, error) {
	if err := in.Validate(); err != nil {
		return 0, err
	}

	existing, err := s.GetInteractionByPair(in.FromModuleID, in.ToModuleID)
	if err != nil && !isNotFound(err) {
		return 0, err
	}

	if existing != nil {
		existing.Weight += in.Weight
		existing.Symbols = interactions.MergeEvidence(existing.Symbols, in.Symbols)
		if existing.Semantic == "" {
			existing.Semantic = in.Semantic
		}
		if in.Source.IsSyntactic() && !existing.Source.IsSyntactic() {
			existing.Source = in.Source
		}
		if in.Direction == interactions.DirectionBi {
			existing.Direction = interactions.DirectionBi
		}
		if err := s.updateInteraction(existing); err != nil {
			return 0, err
		}
		in.ID = existing.ID
		return existing.ID, nil
	}

	symbolsJSON, err := json.Marshal(in.Symbols)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal symbols: %w", err)
	}
	res, err := s.exec(`
		INSERT INTO interactions (from_module_id, to_module_id, direction, weight, pattern, semantic, source, symbols_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, in.FromModuleID, in.ToModuleID, in.Direction, in.Weight, in.Pattern, in.Semantic, string(in.Source), string(symbolsJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to insert interaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get interaction id: %w", err)
	}
	in.ID = id
	return id, nil
}

func (s *Store) updateInteraction(in *interactions.Interaction) error {
	symbolsJSON, err := json.Marshal(in.Symbols)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}
	_, err = s.exec(`
		UPDATE interactions
		SET direction = ?, weight = ?, pattern = ?, semantic = ?, source = ?, symbols_json = ?
		WHERE id = ?
	`, in.Direction, in.Weight, in.Pattern, in.Semantic, string(in.Source), string(symbolsJSON), in.ID)
	if err != nil {
		return fmt.Errorf("failed to update interaction: %w", err)
	}
	return nil
}

// GetInteractionByID retrieves an interaction by row id.
func (s *Store) GetInteractionByID(id int64) (*interactions.Interaction, error) {
	row := s.queryRow(`
		SELECT id, from_module_id, to_module_id, direction, weight, pattern, semantic, source, symbols_json
		FROM interactions WHERE id = ?
	`, id)
	in, err := scanInteraction(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("interaction %d: %w", id, ErrNotFound)
	}
	return in, err
}

// GetInteractionByPair retrieves the interaction for an ordered module
// pair, or ErrNotFound.
func (s *Store) GetInteractionByPair(fromModuleID, toModuleID int64) (*interactions.Interaction, error) {
	row := s.queryRow(`
		SELECT id, from_module_id, to_module_id, direction, weight, pattern, semantic, source, symbols_json
		FROM interactions WHERE from_module_id = ? AND to_module_id = ?
	`, fromModuleID, toModuleID)
	in, err := scanInteraction(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("interaction %d->%d: %w", fromModuleID, toModuleID, ErrNotFound)
	}
	return in, err
}

// ListInteractions returns every interaction, ordered by id.
func (s *Store) ListInteractions() ([]interactions.Interaction, error) {
	rows, err := s.query(`
		SELECT id, from_module_id, to_module_id, direction, weight, pattern, semantic, source, symbols_json
		FROM interactions ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list interactions: %w", err)
	}
	defer rows.Close()

	var list []interactions.Interaction
	for rows.Next() {
		var in interactions.Interaction
		var symbolsJSON string
		if err := rows.Scan(&in.ID, &in.FromModuleID, &in.ToModuleID, &in.Direction,
			&in.Weight, &in.Pattern, &in.Semantic, &in.Source, &symbolsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}
		if err := json.Unmarshal([]byte(symbolsJSON), &in.Symbols); err != nil {
			return nil, fmt.Errorf("failed to unmarshal symbols for interaction %d: %w", in.ID, err)
		}
		list = append(list, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating interactions: %w", err)
	}
	return list, nil
}

// SetInteractionDirection rewrites one interaction's direction. Used by
// the set-direction-uni repair.
func (s *Store) SetInteractionDirection(id int64, direction string) error {
	res, err := s.exec("UPDATE interactions SET direction = ? WHERE id = ?", direction, id)
	if err != nil {
		return fmt.Errorf("failed to set interaction direction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("interaction %d: %w", id, ErrNotFound)
	}
	return nil
}

// SetInteractionSymbols rewrites one interaction's evidence list. Used
// by the rebuild-symbols repair.
func (s *Store) SetInteractionSymbols(id int64, names []string) error {
	symbolsJSON, err := json.Marshal(names)
	if err != nil {
		return fmt.Errorf("failed to marshal symbols: %w", err)
	}
	res, err := s.exec("UPDATE interactions SET symbols_json = ? WHERE id = ?", string(symbolsJSON), id)
	if err != nil {
		return fmt.Errorf("failed to set interaction symbols: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("interaction %d: %w", id, ErrNotFound)
	}
	return nil
}

func scanInteraction(row *sql.Row) (*interactions.Interaction, error) {
	var in interactions.Interaction
	var symbolsJSON string
	err := row.Scan(&in.ID, &in.FromModuleID, &in.ToModuleID, &in.Direction,
		&in.Weight, &in.Pattern, &in.Semantic, &in.Source, &symbolsJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(symbolsJSON), &in.Symbols); err != nil {
		return nil, fmt.Errorf("failed to unmarshal symbols for interaction %d: %w", in.ID, err)
	}
	return &in, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

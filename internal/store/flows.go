package store

import (
	"database/sql"
	"fmt"

	"weft/internal/flows"
)

// InsertFlow inserts a flow row, returning its id. The slug must be
// unused. Steps are not written here; use InsertFlowSteps.
func (s *Store) InsertFlow(f *flows.Flow) (int64, error) {
	if f.Slug == "" {
		return 0, fmt.Errorf("flow %q has an empty slug", f.Name)
	}
	var existing int64
	err := s.queryRow("SELECT id FROM flows WHERE slug = ?", f.Slug).Scan(&existing)
	if err == nil {
		return 0, fmt.Errorf("flow slug %q already used by flow %d", f.Slug, existing)
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to check flow slug: %w", err)
	}

	res, err := s.exec(`
		INSERT INTO flows (name, slug, parent_id, depth, domain, stakeholder, entry_definition_id, entry_module_id, tier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.Name, f.Slug, f.ParentID, f.Depth, f.Domain, f.Stakeholder,
		f.EntryDefinitionID, f.EntryModuleID, f.Tier)
	if err != nil {
		return 0, fmt.Errorf("failed to insert flow: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get flow id: %w", err)
	}
	f.ID = id
	return id, nil
}

// InsertFlowSteps writes a flow's steps in sequence order.
func (s *Store) InsertFlowSteps(flowID int64, steps []flows.Step) error {
	return s.WithTx(func(tx *sql.Tx) error {
		for i := range steps {
			st := &steps[i]
			res, err := tx.Exec(`
				INSERT INTO flow_steps (flow_id, seq, interaction_id, from_definition_id, to_definition_id)
				VALUES (?, ?, ?, ?, ?)
			`, flowID, st.Seq, st.InteractionID, st.FromDefinitionID, st.ToDefinitionID)
			if err != nil {
				return fmt.Errorf("failed to insert flow step %d: %w", st.Seq, err)
			}
			if id, err := res.LastInsertId(); err == nil {
				st.ID = id
				st.FlowID = flowID
			}
		}
		return nil
	})
}

// GetFlowByID retrieves a flow with its steps.
func (s *Store) GetFlowByID(id int64) (*flows.Flow, error) {
	row := s.queryRow(flowSelect+" WHERE id = ?", id)
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flow %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	if f.Steps, err = s.ListFlowSteps(f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

// GetFlowBySlug retrieves a flow with its steps by slug.
func (s *Store) GetFlowBySlug(slug string) (*flows.Flow, error) {
	row := s.queryRow(flowSelect+" WHERE slug = ?", slug)
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flow %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	if f.Steps, err = s.ListFlowSteps(f.ID); err != nil {
		return nil, err
	}
	return f, nil
}

const flowSelect = `
	SELECT id, name, slug, parent_id, depth, domain, stakeholder,
	       entry_definition_id, entry_module_id, tier
	FROM flows
`

func scanFlow(row *sql.Row) (*flows.Flow, error) {
	var f flows.Flow
	err := row.Scan(&f.ID, &f.Name, &f.Slug, &f.ParentID, &f.Depth, &f.Domain,
		&f.Stakeholder, &f.EntryDefinitionID, &f.EntryModuleID, &f.Tier)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFlows returns all flows without their steps, ordered by id.
func (s *Store) ListFlows() ([]flows.Flow, error) {
	rows, err := s.query(flowSelect + " ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer rows.Close()

	var list []flows.Flow
	for rows.Next() {
		var f flows.Flow
		if err := rows.Scan(&f.ID, &f.Name, &f.Slug, &f.ParentID, &f.Depth, &f.Domain,
			&f.Stakeholder, &f.EntryDefinitionID, &f.EntryModuleID, &f.Tier); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}
	return list, nil
}

// ListFlowSteps returns one flow's steps in sequence order.
func (s *Store) ListFlowSteps(flowID int64) ([]flows.Step, error) {
	rows, err := s.query(`
		SELECT id, flow_id, seq, interaction_id, from_definition_id, to_definition_id
		FROM flow_steps WHERE flow_id = ? ORDER BY seq
	`, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow steps: %w", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

// ListAllFlowSteps returns every step row, ordered by flow then seq.
func (s *Store) ListAllFlowSteps() ([]flows.Step, error) {
	rows, err := s.query(`
		SELECT id, flow_id, seq, interaction_id, from_definition_id, to_definition_id
		FROM flow_steps ORDER BY flow_id, seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list flow steps: %w", err)
	}
	defer rows.Close()
	return scanSteps(rows)
}

func scanSteps(rows *sql.Rows) ([]flows.Step, error) {
	var steps []flows.Step
	for rows.Next() {
		var st flows.Step
		if err := rows.Scan(&st.ID, &st.FlowID, &st.Seq, &st.InteractionID,
			&st.FromDefinitionID, &st.ToDefinitionID); err != nil {
			return nil, fmt.Errorf("failed to scan flow step: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flow steps: %w", err)
	}
	return steps, nil
}

// DeleteFlow removes a flow and its steps.
func (s *Store) DeleteFlow(id int64) error {
	return s.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM flow_steps WHERE flow_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete flow steps: %w", err)
		}
		if _, err := tx.Exec("DELETE FROM feature_flows WHERE flow_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete feature links: %w", err)
		}
		res, err := tx.Exec("DELETE FROM flows WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete flow: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("flow %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// Feature is a named grouping of flows.
type Feature struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
	// FlowSlugs lists linked flows when assembled by ListFeatures.
	FlowSlugs []string `json:"flowSlugs,omitempty"`
}

// InsertFeature creates a feature, returning its id. Inserting an
// existing slug returns the existing id.
func (s *Store) InsertFeature(name, slug string) (int64, error) {
	var id int64
	err := s.queryRow("SELECT id FROM features WHERE slug = ?", slug).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to look up feature: %w", err)
	}

	res, err := s.exec("INSERT INTO features (name, slug) VALUES (?, ?)", name, slug)
	if err != nil {
		return 0, fmt.Errorf("failed to insert feature: %w", err)
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get feature id: %w", err)
	}
	return id, nil
}

// GetFeatureBySlug retrieves a feature and its linked flow slugs.
func (s *Store) GetFeatureBySlug(slug string) (*Feature, error) {
	var f Feature
	err := s.queryRow("SELECT id, name, slug FROM features WHERE slug = ?", slug).
		Scan(&f.ID, &f.Name, &f.Slug)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feature %q: %w", slug, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feature: %w", err)
	}

	rows, err := s.query(`
		SELECT fl.slug FROM feature_flows ff
		JOIN flows fl ON fl.id = ff.flow_id
		WHERE ff.feature_id = ? ORDER BY fl.slug
	`, f.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature flows: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var flowSlug string
		if err := rows.Scan(&flowSlug); err != nil {
			return nil, fmt.Errorf("failed to scan feature flow: %w", err)
		}
		f.FlowSlugs = append(f.FlowSlugs, flowSlug)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating feature flows: %w", err)
	}
	return &f, nil
}

// ListFeatures returns all features with their linked flow slugs.
func (s *Store) ListFeatures() ([]Feature, error) {
	rows, err := s.query("SELECT id, name, slug FROM features ORDER BY slug")
	if err != nil {
		return nil, fmt.Errorf("failed to list features: %w", err)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var f Feature
		if err := rows.Scan(&f.ID, &f.Name, &f.Slug); err != nil {
			return nil, fmt.Errorf("failed to scan feature: %w", err)
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating features: %w", err)
	}

	for i := range features {
		full, err := s.GetFeatureBySlug(features[i].Slug)
		if err != nil {
			return nil, err
		}
		features[i].FlowSlugs = full.FlowSlugs
	}
	return features, nil
}

// LinkFeatureFlow associates a flow with a feature. Linking twice is a
// no-op; features and flows are many-to-many.
func (s *Store) LinkFeatureFlow(featureID, flowID int64) error {
	var exists int
	if err := s.queryRow("SELECT 1 FROM features WHERE id = ?", featureID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("feature %d: %w", featureID, ErrNotFound)
		}
		return fmt.Errorf("failed to check feature: %w", err)
	}
	if err := s.queryRow("SELECT 1 FROM flows WHERE id = ?", flowID).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return fmt.Errorf("flow %d: %w", flowID, ErrNotFound)
		}
		return fmt.Errorf("failed to check flow: %w", err)
	}

	_, err := s.exec(`
		INSERT INTO feature_flows (feature_id, flow_id) VALUES (?, ?)
		ON CONFLICT(feature_id, flow_id) DO NOTHING
	`, featureID, flowID)
	if err != nil {
		return fmt.Errorf("failed to link feature flow: %w", err)
	}
	return nil
}

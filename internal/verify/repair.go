package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"weft/internal/interactions"
	"weft/internal/store"
)

// RepairStore is the slice of the fact store repairs write through.
type RepairStore interface {
	DeleteRow(table string, id int64) error
	SetInteractionDirection(id int64, direction string) error
	SetInteractionSymbols(id int64, names []string) error
}

// AppliedFix records one executed (or planned, under dry-run) repair.
type AppliedFix struct {
	Action  FixAction `json:"action"`
	Table   string    `json:"table,omitempty"`
	RowID   int64     `json:"rowId,omitempty"`
	Message string    `json:"message"`
}

// RepairResult summarizes a repair run.
type RepairResult struct {
	// DryRun is true when no writes were performed.
	DryRun bool `json:"dryRun"`
	// Applied counts fixes executed (or planned under dry-run).
	Applied int `json:"applied"`
	// Skipped counts issues without fix data plus fixes whose target
	// row had already disappeared by the time they ran.
	Skipped int          `json:"skipped"`
	Fixes   []AppliedFix `json:"fixes,omitempty"`
}

// Repairer applies fix descriptors produced by verification.
type Repairer struct {
	store  RepairStore
	logger *slog.Logger
	dryRun bool
}

// NewRepairer builds a repairer. With dryRun set it reports what it
// would do without touching the database.
func NewRepairer(st RepairStore, logger *slog.Logger, dryRun bool) *Repairer {
	return &Repairer{store: st, logger: logger, dryRun: dryRun}
}

// Repair walks the issues in order and applies each fix descriptor.
// Issues without fix data are skipped. A fix whose target row is
// already gone (removed by an earlier fix in the same run) counts as
// skipped, not failed.
func (r *Repairer) Repair(ctx context.Context, issues []Issue) (*RepairResult, error) {
	result := &RepairResult{DryRun: r.dryRun}

	for _, issue := range issues {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if issue.FixData == nil {
			result.Skipped++
			continue
		}

		fix := issue.FixData
		if r.dryRun {
			result.Applied++
			result.Fixes = append(result.Fixes, AppliedFix{
				Action:  fix.Action,
				Table:   fix.Table,
				RowID:   fix.RowID,
				Message: fmt.Sprintf("would apply %s to %s row %d", fix.Action, fix.Table, fix.RowID),
			})
			continue
		}

		err := r.apply(fix)
		if errors.Is(err, store.ErrNotFound) {
			result.Skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to apply %s to %s row %d: %w",
				fix.Action, fix.Table, fix.RowID, err)
		}

		result.Applied++
		result.Fixes = append(result.Fixes, AppliedFix{
			Action:  fix.Action,
			Table:   fix.Table,
			RowID:   fix.RowID,
			Message: fmt.Sprintf("applied %s to %s row %d", fix.Action, fix.Table, fix.RowID),
		})
		if r.logger != nil {
			r.logger.Info("repair applied", "action", string(fix.Action), "table", fix.Table, "row", fix.RowID)
		}
	}

	if r.logger != nil {
		r.logger.Info("repair complete", "applied", result.Applied, "skipped", result.Skipped, "dryRun", r.dryRun)
	}
	return result, nil
}

func (r *Repairer) apply(fix *FixData) error {
	switch fix.Action {
	case FixRemoveGhost, FixRemoveInteraction, FixRemoveInferredToModule:
		return r.store.DeleteRow(fix.Table, fix.RowID)
	case FixSetDirectionUni:
		return r.store.SetInteractionDirection(fix.RowID, interactions.DirectionUni)
	case FixRebuildSymbols:
		return r.store.SetInteractionSymbols(fix.RowID, fix.Symbols)
	default:
		return fmt.Errorf("unknown fix action %q", fix.Action)
	}
}

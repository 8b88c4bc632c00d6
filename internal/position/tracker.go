package position

import (
	"github.com/shopspring/decimal"

	"github.com/dappvibe/defi-lp-manager/internal/model"
)

// Tracker diffs successive position snapshots of a wallet into lifecycle
// changes. Positions worth less than the dust threshold (in token1
// terms) are treated as gone: they never produce NEW events and their
// disappearance from the tracked set reads as REMOVED.
type Tracker struct {
	dust decimal.Decimal
}

// NewTracker builds a tracker with the given dust threshold.
func NewTracker(dust decimal.Decimal) *Tracker {
	return &Tracker{dust: dust}
}

// Diff compares the previous tracked snapshot with freshly derived
// positions. It returns the lifecycle changes and the filtered snapshot
// to persist for the next cycle.
func (t *Tracker) Diff(previous, current []model.Position) ([]model.PositionChange, []model.Position) {
	prevByID := make(map[uint64]model.Position, len(previous))
	for _, pos := range previous {
		prevByID[pos.ID] = pos
	}

	tracked := make([]model.Position, 0, len(current))
	changes := make([]model.PositionChange, 0)
	seen := make(map[uint64]struct{}, len(current))

	for _, pos := range current {
		if pos.Value().LessThan(t.dust) {
			continue
		}
		seen[pos.ID] = struct{}{}

		prev, existed := prevByID[pos.ID]
		if !existed {
			changes = append(changes, model.PositionChange{Type: model.ChangeNew, Position: pos})
		} else {
			// Keep the first sighting time across cycles.
			pos.CreatedAt = prev.CreatedAt
			if prev.InRange != pos.InRange {
				changes = append(changes, model.PositionChange{Type: model.ChangeRange, Position: pos, Previous: &prev})
			}
			if prev.Staked != pos.Staked {
				changes = append(changes, model.PositionChange{Type: model.ChangeStake, Position: pos, Previous: &prev})
			}
		}
		tracked = append(tracked, pos)
	}

	for _, prev := range previous {
		if _, ok := seen[prev.ID]; !ok {
			prev := prev
			changes = append(changes, model.PositionChange{Type: model.ChangeRemove, Position: prev, Previous: &prev})
		}
	}

	return changes, tracked
}

// Package review implements the promotion gate and the narrative version
// state machine: Draft -> Review -> Final -> Locked, with Review -> Draft on
// rejection. The gate fails closed: promotion is blocked while any critical or
// significant change lacks a justification.
package review

import (
	"fmt"

	"github.com/pvsentinel/narrativecore/internal/domain"
)

// Action is a requested state transition.
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionLock    Action = "lock"
)

// ParseAction validates a raw action string.
func ParseAction(raw string) (Action, error) {
	action := Action(raw)
	switch action {
	case ActionSubmit, ActionApprove, ActionReject, ActionLock:
		return action, nil
	}
	return "", fmt.Errorf("unknown action %q", raw)
}

// Gate decides whether versions may move through the review lifecycle.
type Gate struct{}

func NewGate() *Gate {
	return &Gate{}
}

// RequireJustification returns the changes that still block promotion.
func (g *Gate) RequireJustification(changes []domain.ChangeRecord) []domain.ChangeRecord {
	var blocking []domain.ChangeRecord
	for _, change := range changes {
		if change.BlocksPromotion() {
			blocking = append(blocking, change)
		}
	}
	return blocking
}

// CanPromote reports whether the version may reach Final or Locked given its
// incoming changes. Returns ErrMissingJustification naming the first blocker.
func (g *Gate) CanPromote(version domain.NarrativeVersion, changes []domain.ChangeRecord) error {
	blocking := g.RequireJustification(changes)
	if len(blocking) == 0 {
		return nil
	}
	return fmt.Errorf("%w: version %d of case %s has %d unjustified %s change(s)",
		domain.ErrMissingJustification, version.SequenceNumber, version.CaseID, len(blocking), blocking[0].Severity)
}

// Transition applies the state machine for one action and returns the new
// state. The caller persists the result. Changes are the ChangeRecords that
// produced this version.
func (g *Gate) Transition(version domain.NarrativeVersion, action Action, role domain.Role, changes []domain.ChangeRecord) (domain.VersionState, error) {
	caps := role.Capabilities()

	switch action {
	case ActionSubmit:
		if !caps.CanEditDrafts {
			return "", fmt.Errorf("%w: role %s cannot submit drafts", domain.ErrPermissionDenied, role)
		}
		if version.State != domain.StateDraft {
			return "", fmt.Errorf("%w: cannot submit from %s", domain.ErrInvalidState, version.State)
		}
		return domain.StateReview, nil

	case ActionApprove:
		if !caps.CanApproveCases {
			return "", fmt.Errorf("%w: role %s cannot approve cases", domain.ErrPermissionDenied, role)
		}
		// Approval never skips Review; a draft with critical changes in
		// particular must pass through a reviewer.
		if version.State != domain.StateReview {
			return "", fmt.Errorf("%w: cannot approve from %s", domain.ErrInvalidState, version.State)
		}
		if err := g.CanPromote(version, changes); err != nil {
			return "", err
		}
		return domain.StateFinal, nil

	case ActionReject:
		if !caps.CanReviewCases {
			return "", fmt.Errorf("%w: role %s cannot reject cases", domain.ErrPermissionDenied, role)
		}
		if version.State != domain.StateReview {
			return "", fmt.Errorf("%w: cannot reject from %s", domain.ErrInvalidState, version.State)
		}
		return domain.StateDraft, nil

	case ActionLock:
		if !caps.CanLockCases {
			return "", fmt.Errorf("%w: role %s cannot lock cases", domain.ErrPermissionDenied, role)
		}
		if version.State != domain.StateFinal {
			return "", fmt.Errorf("%w: cannot lock from %s", domain.ErrInvalidState, version.State)
		}
		if err := g.CanPromote(version, changes); err != nil {
			return "", err
		}
		return domain.StateLocked, nil

	default:
		return "", fmt.Errorf("unknown action %q", action)
	}
}

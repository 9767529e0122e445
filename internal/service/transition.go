package service

import (
	"fmt"

	"github.com/playbook-media/be-cms-governance/internal/errors"
	"github.com/playbook-media/be-cms-governance/internal/repository"
)

// reviewStatusFor maps a review level to the only status a decision at that
// level may act on. Mismatches are rejected, never auto-corrected.
func reviewStatusFor(level repository.ReviewLevel) repository.Status {
	if level == repository.LevelTwo {
		return repository.StatusInReviewL2
	}
	return repository.StatusInReviewL1
}

// nextOnReviewRequest returns the status entered by the editorial "send it
// up" gesture. Only drafts (which also represent changes-requested items) may
// enter review.
func nextOnReviewRequest(current repository.Status) (repository.Status, error) {
	if current != repository.StatusDraft {
		return "", errors.InvalidTransition(
			fmt.Sprintf("cannot request review from status %q", current))
	}
	return repository.StatusInReviewL1, nil
}

// nextOnDecision computes the status produced by a review decision. The
// policy is an explicit input so the transition stays a pure function of its
// arguments.
//
// A changes decision reverts fully to draft at either level, discarding any
// level-1 progress on an escalated item; full re-review on resubmission is
// the confirmed product behavior. A level-2 approval is always final.
// autoEscalate overrides delegation: delegation decides who may act with
// top-authority weight, autoEscalate decides whether the level-2 step may be
// skipped at all, and the two must stay independent.
func nextOnDecision(
	current repository.Status,
	level repository.ReviewLevel,
	decision repository.Decision,
	pol *repository.GovernancePolicy,
	isDelegated bool,
) (repository.Status, error) {
	if required := reviewStatusFor(level); current != required {
		return "", errors.InvalidTransition(
			fmt.Sprintf("a %s decision requires status %q, item is %q", level, required, current))
	}

	if decision == repository.DecisionChanges {
		return repository.StatusDraft, nil
	}

	if level == repository.LevelTwo {
		return repository.StatusScheduled, nil
	}

	if (!pol.RequireTopSignoff || isDelegated) && !pol.AutoEscalate {
		if pol.AllowMidTierPublish {
			return repository.StatusScheduled, nil
		}
		return repository.StatusApprovedL1, nil
	}
	return repository.StatusInReviewL2, nil
}

package repository

import (
	"fmt"
	"time"
)

// ── Domain types for content governance ──────────────────────────────────────

// Status is the governance state of a content item.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusInReviewL1 Status = "in_review_l1"
	StatusInReviewL2 Status = "in_review_l2"
	StatusApprovedL1 Status = "approved_l1"
	StatusScheduled  Status = "scheduled"
	// StatusArchived is owned by the editorial system; the governance engine
	// only ever reads it (oversight queue).
	StatusArchived Status = "archived"
)

// ReviewLevel is a review tier. Level 2 is the top authority and always final.
type ReviewLevel string

const (
	LevelOne ReviewLevel = "level_1"
	LevelTwo ReviewLevel = "level_2"
)

// ParseReviewLevel validates an incoming level string.
func ParseReviewLevel(s string) (ReviewLevel, error) {
	switch ReviewLevel(s) {
	case LevelOne, LevelTwo:
		return ReviewLevel(s), nil
	}
	return "", fmt.Errorf("unknown review level %q", s)
}

// Decision is the outcome of a review action.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionChanges  Decision = "changes"
)

// ParseDecision validates an incoming decision string.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApproved, DecisionChanges:
		return Decision(s), nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// ContentItem is a piece of content moving through governance. Status is
// always derivable by replaying the approvals log against the policies in
// effect when each record was appended.
type ContentItem struct {
	ID           string
	Vertical     string
	Title        string
	Status       Status
	ItemDelegate *string // per-item override of the vertical's standing delegate
	CreatedBy    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ApprovalRecord is one immutable entry in an item's approval audit log.
type ApprovalRecord struct {
	ID           string
	ItemID       string
	Level        ReviewLevel
	ApproverID   string
	ApproverRole string
	Decision     Decision
	Note         *string
	// SubmissionID is a caller-supplied idempotency token; a retried decide
	// with the same token fails closed instead of double-appending.
	SubmissionID *string
	StatusBefore Status
	StatusAfter  Status
	CreatedAt    time.Time
}

// AssetApprovalRecord is one immutable entry in an item's production
// deliverable sign-off log. It never affects the item's status.
type AssetApprovalRecord struct {
	ID         string
	ItemID     string
	AssetID    string
	ApproverID string
	Decision   Decision
	Note       *string
	CreatedAt  time.Time
}

// GovernancePolicy is the per-vertical governance configuration. It is
// created lazily with tier-based defaults on first reference and shared by
// all items in the vertical.
type GovernancePolicy struct {
	Vertical            string
	RequireTopSignoff   bool
	AutoEscalate        bool
	AllowMidTierPublish bool
	StandingDelegateID  *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

package service

import (
	"context"
	"strings"

	"github.com/playbook-media/be-cms-governance/internal/errors"
	"github.com/playbook-media/be-cms-governance/internal/logger"
	"github.com/playbook-media/be-cms-governance/internal/repository"
)

// Reviewer roles recognized by the queue projection. Role entitlement is the
// identity layer's concern; these names only select which queue a caller sees.
const (
	RoleContentManager  = "content_manager"
	RoleSeniorEditor    = "senior_editor"
	RoleEditorInChief   = "editor_in_chief"
	RoleOperationsAdmin = "operations_admin"
)

// ContentStore persists content items and applies atomic state transitions.
type ContentStore interface {
	Create(ctx context.Context, item *repository.ContentItem) error
	GetByID(ctx context.Context, id string) (*repository.ContentItem, error)
	ListByStatuses(ctx context.Context, statuses []repository.Status) ([]*repository.ContentItem, error)
	SetItemDelegate(ctx context.Context, id, userID string) error
	// TransitionStatus is a compare-and-swap on the observed status.
	TransitionStatus(ctx context.Context, id string, from, to repository.Status) error
	// ApplyDecision appends the record and swaps the status atomically.
	ApplyDecision(ctx context.Context, rec *repository.ApprovalRecord) error
}

// ApprovalLogStore reads the audit logs and appends asset sign-offs.
type ApprovalLogStore interface {
	ListByItemID(ctx context.Context, itemID string) ([]*repository.ApprovalRecord, error)
	AppendAssetDecision(ctx context.Context, rec *repository.AssetApprovalRecord) error
	ListAssetsByItemID(ctx context.Context, itemID string) ([]*repository.AssetApprovalRecord, error)
}

// PolicyStore persists per-vertical governance policies.
type PolicyStore interface {
	// Resolve atomically creates the policy from defaults when absent.
	Resolve(ctx context.Context, vertical string, defaults *repository.GovernancePolicy) (*repository.GovernancePolicy, error)
	SetStandingDelegate(ctx context.Context, vertical, userID string) error
}

// EventPublisher notifies downstream systems of committed transitions.
// Publishing is best-effort and never fails the operation.
type EventPublisher interface {
	PublishItemEvent(ctx context.Context, eventType, itemID, vertical, actorID string, payload map[string]interface{})
}

// GovernanceService gates content items through staged review: review entry,
// two-level decisions with per-vertical policy and delegation, the secondary
// asset sign-off track, and the role-based queue projection.
type GovernanceService struct {
	items    ContentStore
	logs     ApprovalLogStore
	policies PolicyStore
	events   EventPublisher
	premium  map[string]bool
	log      *logger.Logger
}

// NewGovernanceService creates a new GovernanceService. premiumVerticals
// lists the verticals whose lazily created policies default to mandatory
// top sign-off with forced escalation.
func NewGovernanceService(
	items ContentStore,
	logs ApprovalLogStore,
	policies PolicyStore,
	events EventPublisher,
	premiumVerticals []string,
	log *logger.Logger,
) *GovernanceService {
	premium := make(map[string]bool, len(premiumVerticals))
	for _, v := range premiumVerticals {
		premium[strings.ToLower(v)] = true
	}
	return &GovernanceService{
		items:    items,
		logs:     logs,
		policies: policies,
		events:   events,
		premium:  premium,
		log:      log,
	}
}

// ── Item lifecycle ────────────────────────────────────────────────────────────

// CreateItemRequest represents a create item request from the editorial system.
type CreateItemRequest struct {
	Vertical  string
	Title     string
	CreatedBy string
}

// CreateItem creates a content item in draft.
func (s *GovernanceService) CreateItem(ctx context.Context, req *CreateItemRequest) (*repository.ContentItem, error) {
	if req.Vertical == "" {
		return nil, errors.InvalidInput("vertical", "vertical is required")
	}
	if req.Title == "" {
		return nil, errors.InvalidInput("title", "title is required")
	}

	item := &repository.ContentItem{
		Vertical: req.Vertical,
		Title:    req.Title,
		Status:   repository.StatusDraft,
	}
	if req.CreatedBy != "" {
		item.CreatedBy = &req.CreatedBy
	}

	if err := s.items.Create(ctx, item); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("item_id", item.ID).
		Str("vertical", item.Vertical).
		Msg("Content item created")

	return item, nil
}

// GetItem retrieves a content item by ID.
func (s *GovernanceService) GetItem(ctx context.Context, id string) (*repository.ContentItem, error) {
	return s.items.GetByID(ctx, id)
}

// ── Review entry ──────────────────────────────────────────────────────────────

// RequestReview moves a draft into level-1 review. This is a state entry,
// not a decision, so no audit record is appended.
func (s *GovernanceService) RequestReview(ctx context.Context, itemID, requesterID string) (repository.Status, error) {
	item, err := s.items.GetByID(ctx, itemID)
	if err != nil {
		return "", err
	}

	next, err := nextOnReviewRequest(item.Status)
	if err != nil {
		return "", err
	}

	if err := s.items.TransitionStatus(ctx, itemID, item.Status, next); err != nil {
		return "", err
	}

	s.log.Info().
		Str("item_id", itemID).
		Str("requested_by", requesterID).
		Str("status", string(next)).
		Msg("Review requested")

	s.publish(ctx, "review_requested", item, requesterID, map[string]interface{}{
		"status": string(next),
	})

	return next, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// DecideRequest represents a review decision submission.
type DecideRequest struct {
	ItemID       string
	ApproverID   string
	ApproverRole string
	Level        repository.ReviewLevel
	Decision     repository.Decision
	Note         *string
	// SubmissionID is an optional idempotency token; retries with the same
	// token fail with CONFLICT instead of double-appending.
	SubmissionID *string
}

// Decide records a review decision and advances the item's status. The audit
// append and the status swap are a single atomic unit; a decision whose
// precondition no longer holds by commit time fails without a phantom audit
// entry.
func (s *GovernanceService) Decide(ctx context.Context, req *DecideRequest) (repository.Status, error) {
	if req.ApproverID == "" {
		return "", errors.InvalidInput("approver_id", "approver id is required")
	}

	item, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return "", err
	}

	pol, err := s.ResolvePolicy(ctx, item.Vertical)
	if err != nil {
		return "", err
	}

	isDelegated := (pol.StandingDelegateID != nil && *pol.StandingDelegateID == req.ApproverID) ||
		(item.ItemDelegate != nil && *item.ItemDelegate == req.ApproverID)

	next, err := nextOnDecision(item.Status, req.Level, req.Decision, pol, isDelegated)
	if err != nil {
		return "", err
	}

	rec := &repository.ApprovalRecord{
		ItemID:       req.ItemID,
		Level:        req.Level,
		ApproverID:   req.ApproverID,
		ApproverRole: req.ApproverRole,
		Decision:     req.Decision,
		Note:         req.Note,
		SubmissionID: req.SubmissionID,
		StatusBefore: item.Status,
		StatusAfter:  next,
	}

	if err := s.items.ApplyDecision(ctx, rec); err != nil {
		return "", err
	}

	s.log.Info().
		Str("item_id", req.ItemID).
		Str("approver_id", req.ApproverID).
		Str("level", string(req.Level)).
		Str("decision", string(req.Decision)).
		Str("status", string(next)).
		Bool("delegated", isDelegated).
		Msg("Review decision recorded")

	s.publish(ctx, decisionEventType(next), item, req.ApproverID, map[string]interface{}{
		"level":    string(req.Level),
		"decision": string(req.Decision),
		"status":   string(next),
	})

	return next, nil
}

func decisionEventType(next repository.Status) string {
	switch next {
	case repository.StatusScheduled:
		return "item_cleared"
	case repository.StatusDraft:
		return "changes_requested"
	case repository.StatusInReviewL2:
		return "item_escalated"
	default:
		return "decision_recorded"
	}
}

// ── Secondary asset-approval track ────────────────────────────────────────────

// AssetDecisionRequest represents a production deliverable sign-off.
type AssetDecisionRequest struct {
	ItemID     string
	AssetID    string
	ApproverID string
	Decision   repository.Decision
	Note       *string
}

// RecordAssetDecision appends an asset sign-off. The asset track never reads
// or writes the item's governance status.
func (s *GovernanceService) RecordAssetDecision(ctx context.Context, req *AssetDecisionRequest) error {
	if req.AssetID == "" {
		return errors.InvalidInput("asset_id", "asset id is required")
	}
	if req.ApproverID == "" {
		return errors.InvalidInput("approver_id", "approver id is required")
	}

	item, err := s.items.GetByID(ctx, req.ItemID)
	if err != nil {
		return err
	}

	rec := &repository.AssetApprovalRecord{
		ItemID:     req.ItemID,
		AssetID:    req.AssetID,
		ApproverID: req.ApproverID,
		Decision:   req.Decision,
		Note:       req.Note,
	}

	if err := s.logs.AppendAssetDecision(ctx, rec); err != nil {
		return err
	}

	s.publish(ctx, "asset_decision_recorded", item, req.ApproverID, map[string]interface{}{
		"asset_id": req.AssetID,
		"decision": string(req.Decision),
	})

	return nil
}

// ── Policies and delegation ───────────────────────────────────────────────────

// ResolvePolicy returns the vertical's governance policy, lazily creating it
// with tier-based defaults on first reference.
func (s *GovernanceService) ResolvePolicy(ctx context.Context, vertical string) (*repository.GovernancePolicy, error) {
	if vertical == "" {
		return nil, errors.InvalidInput("vertical", "vertical is required")
	}
	return s.policies.Resolve(ctx, vertical, s.defaultPolicyFor(vertical))
}

// defaultPolicyFor builds the tier-based policy defaults: premium verticals
// require top sign-off and always escalate, everything else may publish from
// a level-1 approval.
func (s *GovernanceService) defaultPolicyFor(vertical string) *repository.GovernancePolicy {
	if s.premium[strings.ToLower(vertical)] {
		return &repository.GovernancePolicy{
			Vertical:          vertical,
			RequireTopSignoff: true,
			AutoEscalate:      true,
		}
	}
	return &repository.GovernancePolicy{
		Vertical:            vertical,
		AllowMidTierPublish: true,
	}
}

// Delegate sets the vertical's standing delegate. In-flight items are not
// touched; the new delegation applies to decisions made after the change.
func (s *GovernanceService) Delegate(ctx context.Context, vertical, userID string) error {
	if userID == "" {
		return errors.InvalidInput("user_id", "user id is required")
	}
	if _, err := s.ResolvePolicy(ctx, vertical); err != nil {
		return err
	}
	if err := s.policies.SetStandingDelegate(ctx, vertical, userID); err != nil {
		return err
	}

	s.log.Info().
		Str("vertical", vertical).
		Str("delegate_id", userID).
		Msg("Standing delegate assigned")

	return nil
}

// SetItemDelegate sets a one-off, per-item delegate override.
func (s *GovernanceService) SetItemDelegate(ctx context.Context, itemID, userID string) error {
	if userID == "" {
		return errors.InvalidInput("user_id", "user id is required")
	}
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return err
	}
	return s.items.SetItemDelegate(ctx, itemID, userID)
}

// ── Queue projection ──────────────────────────────────────────────────────────

// queueStatusesFor maps a reviewer role to the statuses its queue shows.
// Unknown roles see nothing: the projection fails closed.
func queueStatusesFor(role string) []repository.Status {
	switch role {
	case RoleContentManager, RoleSeniorEditor:
		return []repository.Status{repository.StatusDraft, repository.StatusInReviewL1}
	case RoleEditorInChief:
		return []repository.Status{repository.StatusInReviewL2}
	case RoleOperationsAdmin:
		return []repository.Status{
			repository.StatusDraft,
			repository.StatusInReviewL1,
			repository.StatusInReviewL2,
			repository.StatusApprovedL1,
			repository.StatusScheduled,
			repository.StatusArchived,
		}
	}
	return nil
}

// QueueFor returns the items a reviewer should look at right now. Pure read,
// no mutation.
func (s *GovernanceService) QueueFor(ctx context.Context, role, userID string) ([]*repository.ContentItem, error) {
	statuses := queueStatusesFor(role)
	if len(statuses) == 0 {
		return []*repository.ContentItem{}, nil
	}
	items, err := s.items.ListByStatuses(ctx, statuses)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*repository.ContentItem{}
	}
	return items, nil
}

// ── History reads ─────────────────────────────────────────────────────────────

// ApprovalHistory returns an item's full approval trail.
func (s *GovernanceService) ApprovalHistory(ctx context.Context, itemID string) ([]*repository.ApprovalRecord, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.logs.ListByItemID(ctx, itemID)
}

// AssetApprovalHistory returns an item's asset sign-off trail.
func (s *GovernanceService) AssetApprovalHistory(ctx context.Context, itemID string) ([]*repository.AssetApprovalRecord, error) {
	if _, err := s.items.GetByID(ctx, itemID); err != nil {
		return nil, err
	}
	return s.logs.ListAssetsByItemID(ctx, itemID)
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// publish emits a transition event; failures are the publisher's problem and
// never interrupt governance operations.
func (s *GovernanceService) publish(ctx context.Context, eventType string, item *repository.ContentItem, actorID string, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	s.events.PublishItemEvent(ctx, eventType, item.ID, item.Vertical, actorID, payload)
}

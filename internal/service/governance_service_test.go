package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbook-media/be-cms-governance/internal/errors"
	"github.com/playbook-media/be-cms-governance/internal/logger"
	"github.com/playbook-media/be-cms-governance/internal/repository"
)

// memStore is a mutex-guarded in-memory implementation of the store
// interfaces, matching the repository semantics: compare-and-swap on status,
// insert-if-absent policy creation, append-only logs.
type memStore struct {
	mu              sync.Mutex
	seq             int
	items           map[string]*repository.ContentItem
	approvals       map[string][]*repository.ApprovalRecord
	assets          map[string][]*repository.AssetApprovalRecord
	policies        map[string]*repository.GovernancePolicy
	policiesCreated int
}

func newMemStore() *memStore {
	return &memStore{
		items:     make(map[string]*repository.ContentItem),
		approvals: make(map[string][]*repository.ApprovalRecord),
		assets:    make(map[string][]*repository.AssetApprovalRecord),
		policies:  make(map[string]*repository.GovernancePolicy),
	}
}

func (m *memStore) Create(_ context.Context, item *repository.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	item.ID = fmt.Sprintf("item-%d", m.seq)
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*repository.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, errors.NotFound("content_item", id)
	}
	copied := *item
	return &copied, nil
}

func (m *memStore) ListByStatuses(_ context.Context, statuses []repository.Status) ([]*repository.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[repository.Status]bool, len(statuses))
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []*repository.ContentItem
	for _, item := range m.items {
		if wanted[item.Status] {
			copied := *item
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) SetItemDelegate(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return errors.NotFound("content_item", id)
	}
	item.ItemDelegate = &userID
	return nil
}

func (m *memStore) TransitionStatus(_ context.Context, id string, from, to repository.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return errors.NotFound("content_item", id)
	}
	if item.Status != from {
		return errors.New(errors.ErrCodeConflict, "item status changed concurrently; re-read and retry")
	}
	item.Status = to
	item.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) ApplyDecision(_ context.Context, rec *repository.ApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[rec.ItemID]
	if !ok {
		return errors.NotFound("content_item", rec.ItemID)
	}
	if rec.SubmissionID != nil {
		for _, existing := range m.approvals[rec.ItemID] {
			if existing.SubmissionID != nil && *existing.SubmissionID == *rec.SubmissionID {
				return errors.New(errors.ErrCodeConflict, "a decision with this submission id was already recorded")
			}
		}
	}
	if item.Status != rec.StatusBefore {
		return errors.New(errors.ErrCodeConflict, "item status changed concurrently; re-read and retry")
	}
	rec.CreatedAt = time.Now()
	stored := *rec
	m.approvals[rec.ItemID] = append(m.approvals[rec.ItemID], &stored)
	item.Status = rec.StatusAfter
	item.UpdatedAt = rec.CreatedAt
	return nil
}

func (m *memStore) ListByItemID(_ context.Context, itemID string) ([]*repository.ApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repository.ApprovalRecord(nil), m.approvals[itemID]...), nil
}

func (m *memStore) AppendAssetDecision(_ context.Context, rec *repository.AssetApprovalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.CreatedAt = time.Now()
	stored := *rec
	m.assets[rec.ItemID] = append(m.assets[rec.ItemID], &stored)
	return nil
}

func (m *memStore) ListAssetsByItemID(_ context.Context, itemID string) ([]*repository.AssetApprovalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*repository.AssetApprovalRecord(nil), m.assets[itemID]...), nil
}

func (m *memStore) Resolve(_ context.Context, vertical string, defaults *repository.GovernancePolicy) (*repository.GovernancePolicy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.policies[vertical]; !ok {
		stored := *defaults
		stored.CreatedAt = time.Now()
		stored.UpdatedAt = stored.CreatedAt
		m.policies[vertical] = &stored
		m.policiesCreated++
	}
	copied := *m.policies[vertical]
	return &copied, nil
}

func (m *memStore) SetStandingDelegate(_ context.Context, vertical, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pol, ok := m.policies[vertical]
	if !ok {
		return errors.NotFound("governance_policy", vertical)
	}
	pol.StandingDelegateID = &userID
	pol.UpdatedAt = time.Now()
	return nil
}

func newTestService(store *memStore) *GovernanceService {
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	return NewGovernanceService(store, store, store, nil,
		[]string{"Title-sponsor", "Presenting-sponsor"}, log)
}

func createDraft(t *testing.T, svc *GovernanceService, vertical string) *repository.ContentItem {
	t.Helper()
	item, err := svc.CreateItem(context.Background(), &CreateItemRequest{
		Vertical:  vertical,
		Title:     "Matchday recap",
		CreatedBy: "writer-1",
	})
	require.NoError(t, err)
	require.Equal(t, repository.StatusDraft, item.Status)
	return item
}

func TestGeneralVerticalClearsFromLevelOne(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "General")

	status, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL1, status)

	status, err = svc.Decide(ctx, &DecideRequest{
		ItemID:       item.ID,
		ApproverID:   "manager-1",
		ApproverRole: RoleContentManager,
		Level:        repository.LevelOne,
		Decision:     repository.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusScheduled, status)

	records, err := svc.ApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, repository.StatusInReviewL1, records[0].StatusBefore)
	assert.Equal(t, repository.StatusScheduled, records[0].StatusAfter)
}

func TestPremiumVerticalEscalatesAndClearsAtLevelTwo(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "Title-sponsor")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	status, err := svc.Decide(ctx, &DecideRequest{
		ItemID:       item.ID,
		ApproverID:   "manager-1",
		ApproverRole: RoleContentManager,
		Level:        repository.LevelOne,
		Decision:     repository.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL2, status)

	status, err = svc.Decide(ctx, &DecideRequest{
		ItemID:       item.ID,
		ApproverID:   "chief-1",
		ApproverRole: RoleEditorInChief,
		Level:        repository.LevelTwo,
		Decision:     repository.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusScheduled, status)
}

func TestAutoEscalateOverridesStandingDelegate(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	require.NoError(t, svc.Delegate(ctx, "Title-sponsor", "deputy-1"))

	item := createDraft(t, svc, "Title-sponsor")
	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	// The standing delegate approves at level 1; auto escalation still wins.
	status, err := svc.Decide(ctx, &DecideRequest{
		ItemID:       item.ID,
		ApproverID:   "deputy-1",
		ApproverRole: RoleSeniorEditor,
		Level:        repository.LevelOne,
		Decision:     repository.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL2, status)
}

func TestItemDelegateSkipsEscalationWhenNotForced(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	// Vertical requiring top sign-off but without forced escalation.
	_, err := svc.ResolvePolicy(ctx, "Features")
	require.NoError(t, err)
	store.mu.Lock()
	store.policies["Features"].RequireTopSignoff = true
	store.policies["Features"].AllowMidTierPublish = false
	store.mu.Unlock()

	item := createDraft(t, svc, "Features")
	require.NoError(t, svc.SetItemDelegate(ctx, item.ID, "deputy-2"))

	_, err = svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	status, err := svc.Decide(ctx, &DecideRequest{
		ItemID:       item.ID,
		ApproverID:   "deputy-2",
		ApproverRole: RoleSeniorEditor,
		Level:        repository.LevelOne,
		Decision:     repository.DecisionApproved,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApprovedL1, status)
}

func TestChangesAlwaysRevertsToDraft(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "Title-sponsor")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, &DecideRequest{
		ItemID: item.ID, ApproverID: "manager-1", ApproverRole: RoleContentManager,
		Level: repository.LevelOne, Decision: repository.DecisionApproved,
	})
	require.NoError(t, err)

	// Top authority requests changes: level-1 progress is discarded.
	status, err := svc.Decide(ctx, &DecideRequest{
		ItemID: item.ID, ApproverID: "chief-1", ApproverRole: RoleEditorInChief,
		Level: repository.LevelTwo, Decision: repository.DecisionChanges,
	})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, status)

	// Resubmission starts over at level 1.
	status, err = svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL1, status)
}

func TestLevelMismatchRejectedWithoutAudit(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "General")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	_, err = svc.Decide(ctx, &DecideRequest{
		ItemID: item.ID, ApproverID: "chief-1", ApproverRole: RoleEditorInChief,
		Level: repository.LevelTwo, Decision: repository.DecisionApproved,
	})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL1, got.Status)

	records, err := svc.ApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Empty(t, records, "a failed decision must not leave a phantom audit entry")
}

func TestRequestReviewRejectedWhenAlreadyUnderReview(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "General")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	_, err = svc.RequestReview(ctx, item.ID, "writer-1")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
}

func TestConcurrentDecisionsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "General")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	const reviewers = 10
	results := make(chan error, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Decide(ctx, &DecideRequest{
				ItemID:       item.ID,
				ApproverID:   fmt.Sprintf("manager-%d", n),
				ApproverRole: RoleContentManager,
				Level:        repository.LevelOne,
				Decision:     repository.DecisionApproved,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			code := errors.CodeOf(err)
			assert.Contains(t, []errors.Code{errors.ErrCodeConflict, errors.ErrCodeInvalidTransition}, code)
		}
	}
	assert.Equal(t, 1, succeeded)

	records, err := svc.ApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestConcurrentPolicyResolutionCreatesOnePolicy(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ResolvePolicy(ctx, "General")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.policiesCreated)

	pol, err := svc.ResolvePolicy(ctx, "General")
	require.NoError(t, err)
	assert.False(t, pol.RequireTopSignoff)
	assert.False(t, pol.AutoEscalate)
	assert.True(t, pol.AllowMidTierPublish)
}

func TestPremiumPolicyDefaults(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemStore())

	pol, err := svc.ResolvePolicy(ctx, "Title-sponsor")
	require.NoError(t, err)
	assert.True(t, pol.RequireTopSignoff)
	assert.True(t, pol.AutoEscalate)
	assert.False(t, pol.AllowMidTierPublish)
}

func TestDuplicateSubmissionFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "Title-sponsor")

	_, err := svc.RequestReview(ctx, item.ID, "writer-1")
	require.NoError(t, err)

	token := "submission-abc"
	req := &DecideRequest{
		ItemID: item.ID, ApproverID: "manager-1", ApproverRole: RoleContentManager,
		Level: repository.LevelOne, Decision: repository.DecisionApproved,
		SubmissionID: &token,
	}

	_, err = svc.Decide(ctx, req)
	require.NoError(t, err)

	_, err = svc.Decide(ctx, req)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConflict, errors.CodeOf(err))

	records, err := svc.ApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAssetDecisionsNeverTouchStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "General")

	note := "second cut looks good"
	for _, assetID := range []string{"cut-a", "cut-b"} {
		err := svc.RecordAssetDecision(ctx, &AssetDecisionRequest{
			ItemID:     item.ID,
			AssetID:    assetID,
			ApproverID: "producer-1",
			Decision:   repository.DecisionApproved,
			Note:       &note,
		})
		require.NoError(t, err)
	}

	got, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, got.Status)

	records, err := svc.AssetApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestQueueProjection(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)

	draft := createDraft(t, svc, "General")

	inL1 := createDraft(t, svc, "General")
	_, err := svc.RequestReview(ctx, inL1.ID, "writer-1")
	require.NoError(t, err)

	inL2 := createDraft(t, svc, "Title-sponsor")
	_, err = svc.RequestReview(ctx, inL2.ID, "writer-1")
	require.NoError(t, err)
	_, err = svc.Decide(ctx, &DecideRequest{
		ItemID: inL2.ID, ApproverID: "manager-1", ApproverRole: RoleContentManager,
		Level: repository.LevelOne, Decision: repository.DecisionApproved,
	})
	require.NoError(t, err)

	ids := func(items []*repository.ContentItem) []string {
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.ID)
		}
		return out
	}

	midTier, err := svc.QueueFor(ctx, RoleContentManager, "manager-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{draft.ID, inL1.ID}, ids(midTier))

	top, err := svc.QueueFor(ctx, RoleEditorInChief, "chief-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{inL2.ID}, ids(top))

	oversight, err := svc.QueueFor(ctx, RoleOperationsAdmin, "admin-1")
	require.NoError(t, err)
	assert.Len(t, oversight, 3)

	// Unknown roles fail closed.
	unknown, err := svc.QueueFor(ctx, "intern", "user-9")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

// TestReplayReproducesStatus drives an item through escalation, a changes
// loop-back and a full re-approval, then verifies the audit log replays to
// the item's current status.
func TestReplayReproducesStatus(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	svc := newTestService(store)
	item := createDraft(t, svc, "Title-sponsor")

	steps := []struct {
		approver string
		level    repository.ReviewLevel
		decision repository.Decision
	}{
		{"manager-1", repository.LevelOne, repository.DecisionApproved},
		{"chief-1", repository.LevelTwo, repository.DecisionChanges},
		{"manager-1", repository.LevelOne, repository.DecisionApproved},
		{"chief-1", repository.LevelTwo, repository.DecisionApproved},
	}

	for _, step := range steps {
		current, err := svc.GetItem(ctx, item.ID)
		require.NoError(t, err)
		if current.Status == repository.StatusDraft {
			_, err = svc.RequestReview(ctx, item.ID, "writer-1")
			require.NoError(t, err)
		}
		_, err = svc.Decide(ctx, &DecideRequest{
			ItemID: item.ID, ApproverID: step.approver, ApproverRole: RoleContentManager,
			Level: step.level, Decision: step.decision,
		})
		require.NoError(t, err)
	}

	records, err := svc.ApprovalHistory(ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, records, len(steps))

	pol, err := svc.ResolvePolicy(ctx, item.Vertical)
	require.NoError(t, err)

	// Each record's recorded outcome must equal the pure transition of its
	// observed input state, and the log must chain into the current status.
	for _, rec := range records {
		replayed, err := nextOnDecision(rec.StatusBefore, rec.Level, rec.Decision, pol, false)
		require.NoError(t, err)
		assert.Equal(t, rec.StatusAfter, replayed)
	}

	final, err := svc.GetItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusScheduled, final.Status)
	assert.Equal(t, final.Status, records[len(records)-1].StatusAfter)
}

package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playbook-media/be-cms-governance/internal/errors"
	"github.com/playbook-media/be-cms-governance/internal/repository"
)

func TestNextOnReviewRequest(t *testing.T) {
	next, err := nextOnReviewRequest(repository.StatusDraft)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInReviewL1, next)

	for _, current := range []repository.Status{
		repository.StatusInReviewL1,
		repository.StatusInReviewL2,
		repository.StatusApprovedL1,
		repository.StatusScheduled,
	} {
		_, err := nextOnReviewRequest(current)
		require.Error(t, err, "status %s", current)
		assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
	}
}

func TestNextOnDecision(t *testing.T) {
	openPolicy := &repository.GovernancePolicy{
		Vertical:            "General",
		AllowMidTierPublish: true,
	}
	premiumPolicy := &repository.GovernancePolicy{
		Vertical:          "Title-sponsor",
		RequireTopSignoff: true,
		AutoEscalate:      true,
	}
	signoffPolicy := &repository.GovernancePolicy{
		Vertical:          "Features",
		RequireTopSignoff: true,
	}
	holdPolicy := &repository.GovernancePolicy{
		Vertical: "Opinion",
		// neither escalation nor mid-tier publish: a level-1 approval parks
		// the item in approved_l1
	}

	type testCase struct {
		name        string
		current     repository.Status
		level       repository.ReviewLevel
		decision    repository.Decision
		policy      *repository.GovernancePolicy
		isDelegated bool
		want        repository.Status
		wantErr     bool
	}

	tests := []testCase{{
		name:     "open vertical publishes straight from level 1",
		current:  repository.StatusInReviewL1,
		level:    repository.LevelOne,
		decision: repository.DecisionApproved,
		policy:   openPolicy,
		want:     repository.StatusScheduled,
	}, {
		name:     "top signoff required escalates a non-delegate",
		current:  repository.StatusInReviewL1,
		level:    repository.LevelOne,
		decision: repository.DecisionApproved,
		policy:   signoffPolicy,
		want:     repository.StatusInReviewL2,
	}, {
		name:        "delegate skips escalation when not forced",
		current:     repository.StatusInReviewL1,
		level:       repository.LevelOne,
		decision:    repository.DecisionApproved,
		policy:      signoffPolicy,
		isDelegated: true,
		want:        repository.StatusApprovedL1,
	}, {
		name:        "auto escalate overrides delegation",
		current:     repository.StatusInReviewL1,
		level:       repository.LevelOne,
		decision:    repository.DecisionApproved,
		policy:      premiumPolicy,
		isDelegated: true,
		want:        repository.StatusInReviewL2,
	}, {
		name:     "no mid tier publish parks at approved_l1",
		current:  repository.StatusInReviewL1,
		level:    repository.LevelOne,
		decision: repository.DecisionApproved,
		policy:   holdPolicy,
		want:     repository.StatusApprovedL1,
	}, {
		name:     "level 2 approval is always final",
		current:  repository.StatusInReviewL2,
		level:    repository.LevelTwo,
		decision: repository.DecisionApproved,
		policy:   premiumPolicy,
		want:     repository.StatusScheduled,
	}, {
		name:     "changes at level 1 reverts to draft",
		current:  repository.StatusInReviewL1,
		level:    repository.LevelOne,
		decision: repository.DecisionChanges,
		policy:   openPolicy,
		want:     repository.StatusDraft,
	}, {
		name:     "changes at level 2 reverts fully to draft",
		current:  repository.StatusInReviewL2,
		level:    repository.LevelTwo,
		decision: repository.DecisionChanges,
		policy:   premiumPolicy,
		want:     repository.StatusDraft,
	}, {
		name:     "level 2 decision on a level 1 item is rejected",
		current:  repository.StatusInReviewL1,
		level:    repository.LevelTwo,
		decision: repository.DecisionApproved,
		policy:   openPolicy,
		wantErr:  true,
	}, {
		name:     "level 1 decision on an escalated item is rejected",
		current:  repository.StatusInReviewL2,
		level:    repository.LevelOne,
		decision: repository.DecisionApproved,
		policy:   openPolicy,
		wantErr:  true,
	}, {
		name:     "decision on a draft is rejected",
		current:  repository.StatusDraft,
		level:    repository.LevelOne,
		decision: repository.DecisionApproved,
		policy:   openPolicy,
		wantErr:  true,
	}, {
		name:     "decision on a scheduled item is rejected",
		current:  repository.StatusScheduled,
		level:    repository.LevelTwo,
		decision: repository.DecisionApproved,
		policy:   openPolicy,
		wantErr:  true,
	}}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := nextOnDecision(tc.current, tc.level, tc.decision, tc.policy, tc.isDelegated)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, errors.ErrCodeInvalidTransition, errors.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

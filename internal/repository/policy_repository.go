package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"

	"github.com/playbook-media/be-cms-governance/internal/database"
	"github.com/playbook-media/be-cms-governance/internal/errors"
)

// PolicyRepository persists per-vertical governance policies. Lazy creation
// is an atomic insert-if-absent keyed on the vertical, never a read-then-write,
// so concurrent first accesses produce exactly one policy row.
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Resolve returns the vertical's policy, creating it from the given defaults
// if no policy exists yet. The insert is ON CONFLICT DO NOTHING, so a
// concurrent creator's row wins and is what gets read back.
func (r *PolicyRepository) Resolve(ctx context.Context, vertical string, defaults *GovernancePolicy) (*GovernancePolicy, error) {
	insert := `
		INSERT INTO governance_policies
		    (vertical, require_top_signoff, auto_escalate, allow_mid_tier_publish)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vertical) DO NOTHING
	`

	_, err := r.db.Exec(ctx, insert,
		vertical,
		defaults.RequireTopSignoff,
		defaults.AutoEscalate,
		defaults.AllowMidTierPublish,
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to ensure governance policy")
	}

	query := `
		SELECT vertical, require_top_signoff, auto_escalate,
		       allow_mid_tier_publish, standing_delegate_id,
		       created_at, updated_at
		FROM governance_policies
		WHERE vertical = $1
	`

	pol, err := r.scanPolicy(r.db.QueryRow(ctx, query, vertical))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("governance_policy", vertical)
	}
	return pol, err
}

// SetStandingDelegate updates the vertical's standing delegate. The policy
// row must already exist; callers resolve it first.
func (r *PolicyRepository) SetStandingDelegate(ctx context.Context, vertical, userID string) error {
	query := `
		UPDATE governance_policies
		SET standing_delegate_id = $2,
		    updated_at           = NOW()
		WHERE vertical = $1
		RETURNING vertical
	`

	var returned string
	err := r.db.QueryRow(ctx, query, vertical, userID).Scan(&returned)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("governance_policy", vertical)
	}
	return err
}

// ── scan helper ───────────────────────────────────────────────────────────────

type policyScanner interface {
	Scan(dest ...any) error
}

func (r *PolicyRepository) scanPolicy(row policyScanner) (*GovernancePolicy, error) {
	pol := &GovernancePolicy{}
	err := row.Scan(
		&pol.Vertical,
		&pol.RequireTopSignoff,
		&pol.AutoEscalate,
		&pol.AllowMidTierPublish,
		&pol.StandingDelegateID,
		&pol.CreatedAt,
		&pol.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return pol, nil
}

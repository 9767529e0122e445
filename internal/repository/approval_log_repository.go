package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/playbook-media/be-cms-governance/internal/database"
	"github.com/playbook-media/be-cms-governance/internal/errors"
)

// ApprovalLogRepository reads the append-only approval audit logs and appends
// production-asset sign-offs. Primary approval records are appended only via
// ContentRepository.ApplyDecision so the append and the status swap stay in
// one transaction; both tables carry delete-prevention triggers.
type ApprovalLogRepository struct {
	db *database.DB
}

// NewApprovalLogRepository creates a new ApprovalLogRepository.
func NewApprovalLogRepository(db *database.DB) *ApprovalLogRepository {
	return &ApprovalLogRepository{db: db}
}

// ListByItemID returns an item's approval trail ordered oldest-first.
func (r *ApprovalLogRepository) ListByItemID(ctx context.Context, itemID string) ([]*ApprovalRecord, error) {
	query := `
		SELECT id, item_id, level, approver_id, approver_role,
		       decision, note, submission_id,
		       status_before, status_after, created_at
		FROM content_approvals
		WHERE item_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval log")
	}
	defer rows.Close()

	return r.scanApprovals(rows)
}

// AppendAssetDecision appends one production-asset sign-off record. The asset
// track never touches the item's governance status.
func (r *ApprovalLogRepository) AppendAssetDecision(ctx context.Context, rec *AssetApprovalRecord) error {
	query := `
		INSERT INTO content_asset_approvals
		    (item_id, asset_id, approver_id, decision, note)
		VALUES ($1, $2, $3, $4::approval_decision, $5)
		RETURNING id, created_at
	`

	err := r.db.QueryRow(ctx, query,
		rec.ItemID,
		rec.AssetID,
		rec.ApproverID,
		rec.Decision,
		rec.Note,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to append asset approval record")
	}
	return nil
}

// ListAssetsByItemID returns an item's asset sign-off trail oldest-first.
func (r *ApprovalLogRepository) ListAssetsByItemID(ctx context.Context, itemID string) ([]*AssetApprovalRecord, error) {
	query := `
		SELECT id, item_id, asset_id, approver_id, decision, note, created_at
		FROM content_asset_approvals
		WHERE item_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get asset approval log")
	}
	defer rows.Close()

	var records []*AssetApprovalRecord
	for rows.Next() {
		rec := &AssetApprovalRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.ItemID,
			&rec.AssetID,
			&rec.ApproverID,
			&rec.Decision,
			&rec.Note,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan asset approval record")
		}
		records = append(records, rec)
	}
	return records, nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalLogRepository) scanApprovals(rows pgx.Rows) ([]*ApprovalRecord, error) {
	var records []*ApprovalRecord
	for rows.Next() {
		rec := &ApprovalRecord{}
		err := rows.Scan(
			&rec.ID,
			&rec.ItemID,
			&rec.Level,
			&rec.ApproverID,
			&rec.ApproverRole,
			&rec.Decision,
			&rec.Note,
			&rec.SubmissionID,
			&rec.StatusBefore,
			&rec.StatusAfter,
			&rec.CreatedAt,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval record")
		}
		records = append(records, rec)
	}
	return records, nil
}

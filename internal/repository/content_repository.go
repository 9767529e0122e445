package repository

import (
	"context"
	stderrors "errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/playbook-media/be-cms-governance/internal/database"
	"github.com/playbook-media/be-cms-governance/internal/errors"
)

// uniqueViolation is the PostgreSQL error code for unique constraint breaks.
const uniqueViolation = "23505"

// ContentRepository persists content items and applies governance state
// transitions. Every transition is a compare-and-swap on the observed status;
// a decision transition additionally appends its audit record in the same
// transaction, so a failed swap leaves no phantom audit entry.
type ContentRepository struct {
	db *database.DB
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(db *database.DB) *ContentRepository {
	return &ContentRepository{db: db}
}

// Create inserts a content item in draft.
func (r *ContentRepository) Create(ctx context.Context, item *ContentItem) error {
	query := `
		INSERT INTO content_items
		    (vertical, title, status, item_delegate, created_by)
		VALUES ($1, $2, $3::content_status, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		item.Vertical,
		item.Title,
		item.Status,
		item.ItemDelegate,
		item.CreatedBy,
	).Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create content item")
	}
	return nil
}

// GetByID retrieves a content item by its primary key.
func (r *ContentRepository) GetByID(ctx context.Context, id string) (*ContentItem, error) {
	query := `
		SELECT id, vertical, title, status, item_delegate,
		       created_by, created_at, updated_at
		FROM content_items
		WHERE id = $1
	`

	item, err := r.scanItem(r.db.QueryRow(ctx, query, id))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, errors.NotFound("content_item", id)
	}
	return item, err
}

// ListByStatuses returns items whose status is in the given set, oldest
// updates first so reviewers drain their queue in order.
func (r *ContentRepository) ListByStatuses(ctx context.Context, statuses []Status) ([]*ContentItem, error) {
	if len(statuses) == 0 {
		return nil, nil
	}

	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `
		SELECT id, vertical, title, status, item_delegate,
		       created_by, created_at, updated_at
		FROM content_items
		WHERE status = ANY($1::content_status[])
		ORDER BY updated_at ASC
	`

	rows, err := r.db.Query(ctx, query, values)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list content items")
	}
	defer rows.Close()

	var items []*ContentItem
	for rows.Next() {
		item, err := r.scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan content item")
		}
		items = append(items, item)
	}
	return items, nil
}

// SetItemDelegate sets the per-item delegate override.
func (r *ContentRepository) SetItemDelegate(ctx context.Context, id, userID string) error {
	query := `
		UPDATE content_items
		SET item_delegate = $2,
		    updated_at    = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, userID).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.NotFound("content_item", id)
	}
	return err
}

// TransitionStatus moves an item from one status to another if and only if
// the expected status still holds. Used for transitions that append no audit
// record (review entry).
func (r *ContentRepository) TransitionStatus(ctx context.Context, id string, from, to Status) error {
	query := `
		UPDATE content_items
		SET status     = $3::content_status,
		    updated_at = NOW()
		WHERE id = $1
		  AND status = $2::content_status
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, from, to).Scan(&returnedID)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return errors.New(errors.ErrCodeConflict,
			"item status changed concurrently; re-read and retry")
	}
	return err
}

// ApplyDecision appends an approval record and swaps the item's status in a
// single transaction. Either both take effect or neither does.
func (r *ContentRepository) ApplyDecision(ctx context.Context, rec *ApprovalRecord) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		insert := `
			INSERT INTO content_approvals
			    (item_id, level, approver_id, approver_role,
			     decision, note, submission_id,
			     status_before, status_after)
			VALUES ($1, $2::review_level, $3, $4,
			        $5::approval_decision, $6, $7,
			        $8::content_status, $9::content_status)
			RETURNING id, created_at
		`

		err := tx.QueryRow(ctx, insert,
			rec.ItemID,
			rec.Level,
			rec.ApproverID,
			rec.ApproverRole,
			rec.Decision,
			rec.Note,
			rec.SubmissionID,
			rec.StatusBefore,
			rec.StatusAfter,
		).Scan(&rec.ID, &rec.CreatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			if stderrors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return errors.New(errors.ErrCodeConflict,
					"a decision with this submission id was already recorded")
			}
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to append approval record")
		}

		update := `
			UPDATE content_items
			SET status     = $3::content_status,
			    updated_at = NOW()
			WHERE id = $1
			  AND status = $2::content_status
			RETURNING id
		`

		var returnedID string
		err = tx.QueryRow(ctx, update, rec.ItemID, rec.StatusBefore, rec.StatusAfter).Scan(&returnedID)
		if stderrors.Is(err, pgx.ErrNoRows) {
			return errors.New(errors.ErrCodeConflict,
				"item status changed concurrently; re-read and retry")
		}
		return err
	})
}

// ── scan helper ───────────────────────────────────────────────────────────────

type itemScanner interface {
	Scan(dest ...any) error
}

func (r *ContentRepository) scanItem(row itemScanner) (*ContentItem, error) {
	item := &ContentItem{}
	err := row.Scan(
		&item.ID,
		&item.Vertical,
		&item.Title,
		&item.Status,
		&item.ItemDelegate,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return item, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type PlaidItemStore struct {
	db querier
}

func NewPlaidItemStore(db querier) *PlaidItemStore {
	return &PlaidItemStore{db: db}
}

// GetPlaidItem returns the item with Plaid item id itemID owned by uid, or
// nil when there is none.
func (s *PlaidItemStore) GetPlaidItem(ctx context.Context, uid, itemID string) (*models.PlaidItem, error) {
	var item models.PlaidItem
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, item_id, institution_id, transactions_cursor, status, error,
			last_synced_at, created_at, updated_at
		FROM plaid_items WHERE user_id = $1 AND item_id = $2`,
		uid, itemID,
	).Scan(&item.ID, &item.UserID, &item.ItemID, &item.InstitutionID, &item.TransactionsCursor, &item.Status, &item.Error,
		&item.LastSyncedAt, &item.CreatedAt, &item.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDatabaseError("get plaid item", err)
	}
	return &item, nil
}

func (s *PlaidItemStore) UpdatePlaidItemCursor(ctx context.Context, uid, id, cursor string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE plaid_items SET transactions_cursor = $3, updated_at = $4 WHERE user_id = $1 AND id = $2`,
		uid, id, cursor, time.Now())
	if err != nil {
		return errs.NewDatabaseError("update plaid item cursor", err)
	}
	return nil
}

// UpdatePlaidItemStatus leaves last_synced_at untouched when syncedAt is nil.
func (s *PlaidItemStore) UpdatePlaidItemStatus(ctx context.Context, uid, id string, st models.PlaidItemStatus, message *string, syncedAt *time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE plaid_items SET status = $3, error = $4, last_synced_at = COALESCE($5, last_synced_at), updated_at = $6
		WHERE user_id = $1 AND id = $2`,
		uid, id, string(st), message, syncedAt, time.Now())
	if err != nil {
		return errs.NewDatabaseError("update plaid item status", err)
	}
	return nil
}

package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type plaidItemStore struct {
	client *firestore.Client
}

func NewPlaidItemStore(client *firestore.Client) *plaidItemStore {
	return &plaidItemStore{client: client}
}

func (s *plaidItemStore) collection(uid string) *firestore.CollectionRef {
	return userDoc(s.client, uid).Collection("plaid_items")
}

// GetPlaidItem returns the item with Plaid item id itemID owned by uid, or
// nil when there is none.
func (s *plaidItemStore) GetPlaidItem(ctx context.Context, uid, itemID string) (*models.PlaidItem, error) {
	iter := s.collection(uid).Where("itemId", "==", itemID).Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDatabaseError("get plaid item", err)
	}

	var item models.PlaidItem
	if err := doc.DataTo(&item); err != nil {
		return nil, errs.NewDatabaseError("decode plaid item", err)
	}
	item.ID = doc.Ref.ID
	return &item, nil
}

func (s *plaidItemStore) UpdatePlaidItemCursor(ctx context.Context, uid, id, cursor string) error {
	_, err := s.collection(uid).Doc(id).Update(ctx, []firestore.Update{
		{Path: "transactionsCursor", Value: cursor},
		{Path: "updatedAt", Value: time.Now()},
	})
	if err != nil {
		return errs.NewDatabaseError("update plaid item cursor", err)
	}
	return nil
}

func (s *plaidItemStore) UpdatePlaidItemStatus(ctx context.Context, uid, id string, st models.PlaidItemStatus, message *string, syncedAt *time.Time) error {
	updates := []firestore.Update{
		{Path: "status", Value: st},
		{Path: "error", Value: message},
		{Path: "updatedAt", Value: time.Now()},
	}
	if syncedAt != nil {
		updates = append(updates, firestore.Update{Path: "lastSyncedAt", Value: *syncedAt})
	}
	if _, err := s.collection(uid).Doc(id).Update(ctx, updates); err != nil {
		return errs.NewDatabaseError("update plaid item status", err)
	}
	return nil
}

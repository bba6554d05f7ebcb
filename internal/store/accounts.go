package store

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type accountStore struct {
	client *firestore.Client
}

func NewAccountStore(client *firestore.Client) *accountStore {
	return &accountStore{client: client}
}

func (s *accountStore) collection(uid string) *firestore.CollectionRef {
	return userDoc(s.client, uid).Collection("accounts")
}

// UpsertPlaidAccount inserts acc keyed by its Plaid account id, or refreshes
// only the balance fields of the existing row. acc.ID is set either way.
func (s *accountStore) UpsertPlaidAccount(ctx context.Context, acc *models.FinanceAccount) (bool, error) {
	if acc.PlaidAccountID == nil {
		return false, errs.NewValidationError("plaid account id is required")
	}
	ref := s.collection(acc.UserID).Doc(plaidDocPrefix + *acc.PlaidAccountID)
	acc.ID = ref.ID

	created := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if snap != nil && snap.Exists() {
			created = false
			return tx.Update(ref, []firestore.Update{
				{Path: "balance", Value: acc.Balance},
				{Path: "availableBalance", Value: acc.AvailableBalance},
				{Path: "limit", Value: acc.Limit},
				{Path: "lastUpdated", Value: acc.LastUpdated},
				{Path: "updatedAt", Value: acc.UpdatedAt},
			})
		}
		created = true
		return tx.Create(ref, acc)
	})
	if err != nil {
		return false, errs.NewDatabaseError("upsert account", err)
	}
	return created, nil
}

func (s *accountStore) ListAccountsByItem(ctx context.Context, uid, plaidItemID string) ([]*models.FinanceAccount, error) {
	docs, err := s.collection(uid).Where("plaidItemId", "==", plaidItemID).Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("list accounts", err)
	}
	accounts := make([]*models.FinanceAccount, 0, len(docs))
	for _, d := range docs {
		var a models.FinanceAccount
		if err := d.DataTo(&a); err != nil {
			return nil, errs.NewDatabaseError("decode account", err)
		}
		a.ID = d.Ref.ID
		accounts = append(accounts, &a)
	}
	return accounts, nil
}

// GetAccountByName matches names case-insensitively. Returns nil when absent.
func (s *accountStore) GetAccountByName(ctx context.Context, uid, name string) (*models.FinanceAccount, error) {
	iter := s.collection(uid).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return nil, nil
		}
		if err != nil {
			return nil, errs.NewDatabaseError("find account", err)
		}
		var a models.FinanceAccount
		if err := doc.DataTo(&a); err != nil {
			return nil, errs.NewDatabaseError("decode account", err)
		}
		if strings.EqualFold(a.Name, name) {
			a.ID = doc.Ref.ID
			return &a, nil
		}
	}
}

func (s *accountStore) CreateAccount(ctx context.Context, acc *models.FinanceAccount) error {
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	if _, err := s.collection(acc.UserID).Doc(acc.ID).Create(ctx, acc); err != nil {
		return errs.NewDatabaseError("create account", err)
	}
	return nil
}

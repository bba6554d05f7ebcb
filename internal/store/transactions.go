package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type transactionStore struct {
	client *firestore.Client
}

func NewTransactionStore(client *firestore.Client) *transactionStore {
	return &transactionStore{client: client}
}

func (s *transactionStore) collection(uid string) *firestore.CollectionRef {
	return userDoc(s.client, uid).Collection("transactions")
}

func plaidTxDoc(id string) string { return plaidDocPrefix + id }

func (s *transactionStore) GetTransactionByPlaidID(ctx context.Context, uid, plaidID string) (*models.Transaction, error) {
	snap, err := s.collection(uid).Doc(plaidTxDoc(plaidID)).Get(ctx)
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDatabaseError("get transaction", err)
	}
	var tx models.Transaction
	if err := snap.DataTo(&tx); err != nil {
		return nil, errs.NewDatabaseError("decode transaction", err)
	}
	tx.ID = snap.Ref.ID
	return &tx, nil
}

// InsertTransaction creates tx. Plaid transactions are keyed by their
// provider id so a second insert of the same id is reported as a conflict.
func (s *transactionStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	if tx.PlaidTransactionID != nil {
		tx.ID = plaidTxDoc(*tx.PlaidTransactionID)
	}
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err := s.collection(tx.UserID).Doc(tx.ID).Create(ctx, tx)
	if isAlreadyExists(err) {
		return errs.NewValidationError("transaction " + tx.ID + " already exists")
	}
	if err != nil {
		return errs.NewDatabaseError("insert transaction", err)
	}
	return nil
}

// UpdateTransaction overwrites the mutable fields of an existing row.
func (s *transactionStore) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now()
	_, err := s.collection(tx.UserID).Doc(tx.ID).Update(ctx, []firestore.Update{
		{Path: "type", Value: tx.Type},
		{Path: "amount", Value: tx.Amount},
		{Path: "date", Value: tx.Date},
		{Path: "description", Value: tx.Description},
		{Path: "merchantName", Value: tx.MerchantName},
		{Path: "category", Value: tx.Category},
		{Path: "parentCategory", Value: tx.ParentCategory},
		{Path: "pending", Value: tx.Pending},
		{Path: "note", Value: tx.Note},
		{Path: "updatedAt", Value: tx.UpdatedAt},
	})
	if err != nil {
		return errs.NewDatabaseError("update transaction", err)
	}
	return nil
}

// DeleteTransactionByPlaidID reports whether a row was removed.
func (s *transactionStore) DeleteTransactionByPlaidID(ctx context.Context, uid, plaidID string) (bool, error) {
	ref := s.collection(uid).Doc(plaidTxDoc(plaidID))
	_, err := ref.Delete(ctx, firestore.Exists)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, errs.NewDatabaseError("delete transaction", err)
	}
	return true, nil
}

// FindTransactions returns the rows of an account on a given day with a
// given amount, the candidates for duplicate detection.
func (s *transactionStore) FindTransactions(ctx context.Context, uid, accountID string, date time.Time, amount string) ([]*models.Transaction, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	docs, err := s.collection(uid).
		Where("accountId", "==", accountID).
		Where("amount", "==", amount).
		Where("date", ">=", day).
		Where("date", "<", day.AddDate(0, 0, 1)).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, errs.NewDatabaseError("find transactions", err)
	}

	out := make([]*models.Transaction, 0, len(docs))
	for _, d := range docs {
		var tx models.Transaction
		if err := d.DataTo(&tx); err != nil {
			return nil, errs.NewDatabaseError("decode transaction", err)
		}
		tx.ID = d.Ref.ID
		out = append(out, &tx)
	}
	return out, nil
}

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

const transactionColumns = `id, user_id, account_id, type, amount::text, date, description,
	merchant_name, category, parent_category, pending, payment_channel, location, note,
	plaid_transaction_id, created_at, updated_at`

type TransactionStore struct {
	db querier
}

func NewTransactionStore(db querier) *TransactionStore {
	return &TransactionStore{db: db}
}

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var tx models.Transaction
	err := row.Scan(&tx.ID, &tx.UserID, &tx.AccountID, &tx.Type, &tx.Amount, &tx.Date, &tx.Description,
		&tx.MerchantName, &tx.Category, &tx.ParentCategory, &tx.Pending, &tx.PaymentChannel, &tx.Location, &tx.Note,
		&tx.PlaidTransactionID, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *TransactionStore) GetTransactionByPlaidID(ctx context.Context, uid, plaidID string) (*models.Transaction, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 AND plaid_transaction_id = $2`,
		uid, plaidID)
	tx, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDatabaseError("get transaction", err)
	}
	return tx, nil
}

// InsertTransaction creates tx. A second insert of the same Plaid id is
// reported as a conflict.
func (s *TransactionStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	now := time.Now()
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = now
	}
	tx.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO transactions (id, user_id, account_id, type, amount, date, description,
			merchant_name, category, parent_category, pending, payment_channel, location, note,
			plaid_transaction_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		tx.ID, tx.UserID, tx.AccountID, tx.Type, tx.Amount, tx.Date, tx.Description,
		tx.MerchantName, tx.Category, tx.ParentCategory, tx.Pending, tx.PaymentChannel, tx.Location, tx.Note,
		tx.PlaidTransactionID, tx.CreatedAt, tx.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewValidationError("transaction " + tx.ID + " already exists")
	}
	if err != nil {
		return errs.NewDatabaseError("insert transaction", err)
	}
	return nil
}

// UpdateTransaction overwrites the mutable fields of an existing row.
func (s *TransactionStore) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	tx.UpdatedAt = time.Now()
	tag, err := s.db.Exec(ctx, `
		UPDATE transactions SET type = $3, amount = $4::numeric, date = $5, description = $6,
			merchant_name = $7, category = $8, parent_category = $9, pending = $10, note = $11, updated_at = $12
		WHERE user_id = $1 AND id = $2`,
		tx.UserID, tx.ID, tx.Type, tx.Amount, tx.Date, tx.Description,
		tx.MerchantName, tx.Category, tx.ParentCategory, tx.Pending, tx.Note, tx.UpdatedAt)
	if err != nil {
		return errs.NewDatabaseError("update transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return errs.NewNotFoundError("transaction " + tx.ID + " not found")
	}
	return nil
}

// DeleteTransactionByPlaidID reports whether a row was removed.
func (s *TransactionStore) DeleteTransactionByPlaidID(ctx context.Context, uid, plaidID string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM transactions WHERE user_id = $1 AND plaid_transaction_id = $2`, uid, plaidID)
	if err != nil {
		return false, errs.NewDatabaseError("delete transaction", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FindTransactions returns the rows of an account on a given day with a
// given amount, the candidates for duplicate detection.
func (s *TransactionStore) FindTransactions(ctx context.Context, uid, accountID string, date time.Time, amount string) ([]*models.Transaction, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	rows, err := s.db.Query(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = $1 AND account_id = $2 AND amount = $3::numeric AND date >= $4 AND date < $5
		ORDER BY created_at`,
		uid, accountID, amount, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, errs.NewDatabaseError("find transactions", err)
	}
	defer rows.Close()

	out := []*models.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, errs.NewDatabaseError("decode transaction", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("find transactions", err)
	}
	return out, nil
}

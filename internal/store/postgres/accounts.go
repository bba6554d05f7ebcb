package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

const accountColumns = `id, user_id, name, official_name, type, subtype, mask,
	balance::text, available_balance::text, credit_limit::text, interest_rate::text, minimum_payment::text,
	iso_currency_code, plaid_account_id, plaid_item_id, institution_id, last_updated, created_at, updated_at`

type AccountStore struct {
	db querier
}

func NewAccountStore(db querier) *AccountStore {
	return &AccountStore{db: db}
}

func scanAccount(row pgx.Row) (*models.FinanceAccount, error) {
	var a models.FinanceAccount
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &a.OfficialName, &a.Type, &a.Subtype, &a.Mask,
		&a.Balance, &a.AvailableBalance, &a.Limit, &a.InterestRate, &a.MinimumPayment,
		&a.IsoCurrencyCode, &a.PlaidAccountID, &a.PlaidItemID, &a.InstitutionID, &a.LastUpdated, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertPlaidAccount inserts acc keyed by its Plaid account id, or refreshes
// only the balance fields of the existing row. acc.ID is set either way.
func (s *AccountStore) UpsertPlaidAccount(ctx context.Context, acc *models.FinanceAccount) (bool, error) {
	if acc.PlaidAccountID == nil {
		return false, errs.NewValidationError("plaid account id is required")
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}

	// xmax is zero only for a freshly inserted row
	var created bool
	err := s.db.QueryRow(ctx, `
		INSERT INTO finance_accounts (id, user_id, name, official_name, type, subtype, mask,
			balance, available_balance, credit_limit, iso_currency_code,
			plaid_account_id, plaid_item_id, institution_id, last_updated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9::numeric, $10::numeric, $11, $12, $13, $14, $15, $16, $16)
		ON CONFLICT (plaid_account_id) DO UPDATE SET
			balance = EXCLUDED.balance,
			available_balance = EXCLUDED.available_balance,
			credit_limit = EXCLUDED.credit_limit,
			last_updated = EXCLUDED.last_updated,
			updated_at = EXCLUDED.updated_at
		RETURNING id, (xmax = 0)`,
		acc.ID, acc.UserID, acc.Name, acc.OfficialName, acc.Type, acc.Subtype, acc.Mask,
		acc.Balance, acc.AvailableBalance, acc.Limit, acc.IsoCurrencyCode,
		acc.PlaidAccountID, acc.PlaidItemID, acc.InstitutionID, acc.LastUpdated, time.Now(),
	).Scan(&acc.ID, &created)
	if err != nil {
		return false, errs.NewDatabaseError("upsert account", err)
	}
	return created, nil
}

func (s *AccountStore) ListAccountsByItem(ctx context.Context, uid, plaidItemID string) ([]*models.FinanceAccount, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+accountColumns+` FROM finance_accounts WHERE user_id = $1 AND plaid_item_id = $2`,
		uid, plaidItemID)
	if err != nil {
		return nil, errs.NewDatabaseError("list accounts", err)
	}
	defer rows.Close()

	accounts := []*models.FinanceAccount{}
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, errs.NewDatabaseError("decode account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.NewDatabaseError("list accounts", err)
	}
	return accounts, nil
}

// GetAccountByName matches names case-insensitively. Returns nil when absent.
func (s *AccountStore) GetAccountByName(ctx context.Context, uid, name string) (*models.FinanceAccount, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM finance_accounts WHERE user_id = $1 AND lower(name) = lower($2) ORDER BY created_at LIMIT 1`,
		uid, name)
	a, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.NewDatabaseError("find account", err)
	}
	return a, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, acc *models.FinanceAccount) error {
	now := time.Now()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = now
	}
	acc.UpdatedAt = now
	if acc.LastUpdated.IsZero() {
		acc.LastUpdated = now
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO finance_accounts (id, user_id, name, type, balance, iso_currency_code, last_updated, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)`,
		acc.ID, acc.UserID, acc.Name, acc.Type, acc.Balance, acc.IsoCurrencyCode, acc.LastUpdated, acc.CreatedAt, acc.UpdatedAt)
	if isUniqueViolation(err) {
		return errs.NewValidationError("account " + acc.ID + " already exists")
	}
	if err != nil {
		return errs.NewDatabaseError("create account", err)
	}
	return nil
}

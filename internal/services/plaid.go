package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/metrics"
	"github.com/GregMSThompson/finance-workers/internal/models"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

const (
	plaidDateLayout       = "2006-01-02"
	initialSyncReportStep = 1000
	defaultCurrency       = "USD"
)

// --- Dependencies (minimal interfaces scoped to this service) ---

type plaidItemStore interface {
	GetPlaidItem(ctx context.Context, uid, itemID string) (*models.PlaidItem, error)
	UpdatePlaidItemCursor(ctx context.Context, uid, id, cursor string) error
	UpdatePlaidItemStatus(ctx context.Context, uid, id string, status models.PlaidItemStatus, message *string, syncedAt *time.Time) error
}

type plaidAccountStore interface {
	UpsertPlaidAccount(ctx context.Context, acc *models.FinanceAccount) (created bool, err error)
	ListAccountsByItem(ctx context.Context, uid, plaidItemID string) ([]*models.FinanceAccount, error)
}

type plaidTransactionStore interface {
	GetTransactionByPlaidID(ctx context.Context, uid, plaidID string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransactionByPlaidID(ctx context.Context, uid, plaidID string) (bool, error)
}

type plaidClient interface {
	AccountsGet(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error)
	SyncTransactions(ctx context.Context, accessToken string, cursor *string) (dto.PlaidSyncPage, error)
}

// errorClassifier hides the provider's error shape from the sync loop.
type errorClassifier interface {
	IsTransient(err error) bool
	ProviderDetail(err error) (string, bool)
}

type tokenOpener interface {
	OpenToken(ctx context.Context, token string) (string, error)
}

type tokenSecrets interface {
	GetPlaidToken(ctx context.Context, uid, itemID string) (string, error)
}

type itemLocker interface {
	Acquire(ctx context.Context, resource string) (queue.Lease, error)
}

type progressReporter interface {
	UpdateProgress(ctx context.Context, progress int) error
}

type PlaidSyncDeps struct {
	Items        plaidItemStore
	Accounts     plaidAccountStore
	Transactions plaidTransactionStore
	Plaid        plaidClient
	Classifier   errorClassifier
	Tokens       tokenOpener  // optional, decrypts kms: tokens
	Secrets      tokenSecrets // optional, used when the payload has no token
	Locker       itemLocker   // optional, serializes syncs of one item
}

type plaidSyncService struct {
	PlaidSyncDeps
	clockNow func() time.Time
	newID    func() string
}

func NewPlaidSyncService(deps PlaidSyncDeps) *plaidSyncService {
	return &plaidSyncService{
		PlaidSyncDeps: deps,
		clockNow:      time.Now,
		newID:         uuid.NewString,
	}
}

// Process is the queue handler for plaid:sync jobs.
func (s *plaidSyncService) Process(ctx context.Context, job *queue.Job) (any, error) {
	var payload dto.PlaidSyncJob
	if err := job.Decode(&payload); err != nil {
		return nil, err
	}
	return s.Sync(ctx, payload, job)
}

// Sync pulls accounts and transaction deltas for one item and reconciles
// them into storage, committing the cursor after every page.
func (s *plaidSyncService) Sync(ctx context.Context, p dto.PlaidSyncJob, progress progressReporter) (dto.PlaidSyncResult, error) {
	result := dto.PlaidSyncResult{}
	log, ctx := logger.With(ctx, "user_id", p.UserID, "item_id", p.ItemID, "initial_sync", p.InitialSync)
	log.Info("plaid sync started")

	item, err := s.Items.GetPlaidItem(ctx, p.UserID, p.ItemID)
	if err != nil {
		log.Error("failed to load plaid item", "error", err)
		return result, err
	}
	if item == nil {
		err := errs.NewFatalError(fmt.Sprintf("plaid item %s not found for user %s", p.ItemID, p.UserID), nil)
		log.Error("plaid sync aborted", "error", err)
		return result, err
	}

	var lease queue.Lease
	if s.Locker != nil {
		lease, err = s.Locker.Acquire(ctx, "plaid-item:"+item.ID)
		if err != nil {
			log.Warn("plaid item is already syncing", "error", err)
			return result, err
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("failed to release plaid item lock", "error", err)
			}
		}()
	}

	processed, err := s.syncItem(ctx, item, p, progress, lease)
	var locked *errs.LockedError
	if errors.As(err, &locked) {
		// another job owns the item now; its status is not ours to write
		return result, err
	}
	if err != nil {
		s.recordFailure(ctx, item, err)
		return result, err
	}

	now := s.clockNow()
	if err := s.Items.UpdatePlaidItemStatus(ctx, p.UserID, item.ID, models.PlaidItemActive, nil, &now); err != nil {
		log.Error("failed to mark plaid item active", "error", err)
		return result, err
	}

	log.Info("plaid sync completed", "transactions_processed", processed)
	result.Success = true
	result.TransactionsProcessed = processed
	return result, nil
}

// syncItem refreshes lease, when set, after every page so a long sync keeps
// the item lock past its TTL.
func (s *plaidSyncService) syncItem(ctx context.Context, item *models.PlaidItem, p dto.PlaidSyncJob, progress progressReporter, lease queue.Lease) (int, error) {
	log := logger.FromContext(ctx)

	token, err := s.accessToken(ctx, p)
	if err != nil {
		return 0, err
	}

	accounts, err := s.Plaid.AccountsGet(ctx, token)
	if err != nil {
		return 0, err
	}
	for _, acc := range accounts {
		if err := s.upsertAccount(ctx, item, acc); err != nil {
			return 0, err
		}
	}
	log.Info("plaid accounts upserted", "accounts", len(accounts))

	cursor := item.TransactionsCursor
	total := 0
	for {
		page, err := s.Plaid.SyncTransactions(ctx, token, cursor)
		if err != nil {
			return total, err
		}

		accountMap, err := s.accountMap(ctx, item)
		if err != nil {
			return total, err
		}

		for _, t := range page.Added {
			if err := s.handleAdded(ctx, p.UserID, accountMap, t); err != nil {
				return total, err
			}
		}
		for _, t := range page.Modified {
			if err := s.handleModified(ctx, p.UserID, accountMap, t); err != nil {
				return total, err
			}
		}
		for _, id := range page.Removed {
			if _, err := s.Transactions.DeleteTransactionByPlaidID(ctx, p.UserID, id); err != nil {
				return total, err
			}
		}

		if page.NextCursor != "" {
			if err := s.Items.UpdatePlaidItemCursor(ctx, p.UserID, item.ID, page.NextCursor); err != nil {
				return total, err
			}
			cursor = helpers.Ptr(page.NextCursor)
		}
		if lease != nil {
			if err := lease.Extend(ctx); err != nil {
				log.Error("lost plaid item lock mid-sync", "error", err)
				return total, err
			}
		}

		before := total
		total += len(page.Added) + len(page.Modified) + len(page.Removed)
		if p.InitialSync && progress != nil && total/initialSyncReportStep > before/initialSyncReportStep {
			log.Info("plaid initial sync progress", "transactions_processed", total)
			if err := progress.UpdateProgress(ctx, total); err != nil {
				log.Warn("failed to report sync progress", "error", err)
			}
		}

		if !page.HasMore {
			return total, nil
		}
	}
}

// accessToken prefers the payload token, decrypting it when sealed, and
// falls back to the secret store.
func (s *plaidSyncService) accessToken(ctx context.Context, p dto.PlaidSyncJob) (string, error) {
	token := p.AccessToken
	if token == "" {
		if s.Secrets == nil {
			return "", errs.NewFatalError("access token missing from job", nil)
		}
		return s.Secrets.GetPlaidToken(ctx, p.UserID, p.ItemID)
	}
	if s.Tokens == nil {
		return token, nil
	}
	opened, err := s.Tokens.OpenToken(ctx, token)
	var ext *errs.ExternalServiceError
	if errors.As(err, &ext) && ext.Transient {
		return "", err
	}
	if err != nil {
		return "", errs.NewFatalError("access token could not be decrypted", err)
	}
	return opened, nil
}

func (s *plaidSyncService) upsertAccount(ctx context.Context, item *models.PlaidItem, acc dto.PlaidAccount) error {
	now := s.clockNow()
	balance := "0.00"
	if acc.Current != nil {
		balance = formatSigned(*acc.Current)
	}
	currency := defaultCurrency
	if acc.IsoCurrencyCode != nil {
		currency = *acc.IsoCurrencyCode
	}

	row := &models.FinanceAccount{
		UserID:           item.UserID,
		Name:             acc.Name,
		OfficialName:     acc.OfficialName,
		Type:             mapPlaidAccountType(acc.Type),
		Subtype:          acc.Subtype,
		Mask:             acc.Mask,
		Balance:          balance,
		AvailableBalance: formatAmountPtr(acc.Available),
		Limit:            formatAmountPtr(acc.Limit),
		IsoCurrencyCode:  currency,
		PlaidAccountID:   helpers.Ptr(acc.AccountID),
		PlaidItemID:      helpers.Ptr(item.ID),
		LastUpdated:      now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if item.InstitutionID != "" {
		row.InstitutionID = helpers.Ptr(item.InstitutionID)
	}
	_, err := s.Accounts.UpsertPlaidAccount(ctx, row)
	return err
}

func (s *plaidSyncService) accountMap(ctx context.Context, item *models.PlaidItem) (map[string]string, error) {
	accounts, err := s.Accounts.ListAccountsByItem(ctx, item.UserID, item.ID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, len(accounts))
	for _, a := range accounts {
		if a.PlaidAccountID != nil {
			m[*a.PlaidAccountID] = a.ID
		}
	}
	return m, nil
}

func (s *plaidSyncService) handleAdded(ctx context.Context, uid string, accounts map[string]string, t dto.PlaidTransaction) error {
	existing, err := s.Transactions.GetTransactionByPlaidID(ctx, uid, t.TransactionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	return s.insert(ctx, uid, accounts, t)
}

func (s *plaidSyncService) handleModified(ctx context.Context, uid string, accounts map[string]string, t dto.PlaidTransaction) error {
	existing, err := s.Transactions.GetTransactionByPlaidID(ctx, uid, t.TransactionID)
	if err != nil {
		return err
	}
	if existing == nil {
		logger.FromContext(ctx).Warn("modified transaction was never added, inserting",
			"transaction_id", t.TransactionID, "plaid_account_id", t.AccountID)
		metrics.PlaidModifiedFallback()
		return s.insert(ctx, uid, accounts, t)
	}

	date, err := parsePlaidDate(t.Date)
	if err != nil {
		return err
	}
	category, parent := splitCategory(t.Category)
	existing.Type = transactionType(t.Amount)
	existing.Amount = formatAmount(t.Amount)
	existing.Date = date
	existing.Description = t.Name
	existing.MerchantName = t.MerchantName
	existing.Category = category
	existing.ParentCategory = parent
	existing.Pending = t.Pending
	return s.Transactions.UpdateTransaction(ctx, existing)
}

func (s *plaidSyncService) insert(ctx context.Context, uid string, accounts map[string]string, t dto.PlaidTransaction) error {
	accountID, ok := accounts[t.AccountID]
	if !ok {
		logger.FromContext(ctx).Warn("cannot find matching account for transaction",
			"plaid_account_id", t.AccountID, "transaction_id", t.TransactionID)
		return nil
	}

	date, err := parsePlaidDate(t.Date)
	if err != nil {
		return err
	}
	category, parent := splitCategory(t.Category)
	now := s.clockNow()

	tx := &models.Transaction{
		ID:                 s.newID(),
		UserID:             uid,
		AccountID:          accountID,
		Type:               transactionType(t.Amount),
		Amount:             formatAmount(t.Amount),
		Date:               date,
		Description:        t.Name,
		MerchantName:       t.MerchantName,
		Category:           category,
		ParentCategory:     parent,
		Pending:            t.Pending,
		Location:           t.Location,
		PlaidTransactionID: helpers.Ptr(t.TransactionID),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if t.PaymentChannel != "" {
		tx.PaymentChannel = helpers.Ptr(t.PaymentChannel)
	}
	return s.Transactions.InsertTransaction(ctx, tx)
}

// recordFailure logs with provider detail and flips the item to error state.
func (s *plaidSyncService) recordFailure(ctx context.Context, item *models.PlaidItem, err error) {
	log := logger.FromContext(ctx)

	args := []any{"error", err, "transient", s.Classifier.IsTransient(err)}
	if detail, ok := s.Classifier.ProviderDetail(err); ok {
		args = append(args, "plaid_error", detail)
	}
	log.Error("plaid sync failed", args...)

	msg := err.Error()
	if uerr := s.Items.UpdatePlaidItemStatus(ctx, item.UserID, item.ID, models.PlaidItemError, &msg, nil); uerr != nil {
		log.Error("failed to record plaid item error", "error", uerr)
	}
}

func parsePlaidDate(v string) (time.Time, error) {
	d, err := time.Parse(plaidDateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse plaid date %q: %w", v, err)
	}
	return d, nil
}

// splitCategory returns the leaf category and, for nested paths, the root.
func splitCategory(path []string) (category, parent *string) {
	if len(path) == 0 {
		return nil, nil
	}
	category = helpers.Ptr(path[len(path)-1])
	if len(path) > 1 {
		parent = helpers.Ptr(path[0])
	}
	return category, parent
}

func mapPlaidAccountType(t string) string {
	switch t {
	case "depository", "credit", "loan", "investment", "brokerage", "other":
		return t
	default:
		return "other"
	}
}

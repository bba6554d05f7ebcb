package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
	"github.com/GregMSThompson/finance-workers/internal/queue"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
)

// --- fakes ---

type plaidFakeItemStore struct {
	items       map[string]*models.PlaidItem // keyed by Plaid item id
	getErr      error
	cursorCalls []string
	statuses    []models.PlaidItemStatus
	cursorErrAt int // fail the nth cursor write (1-based), 0 never
}

func (f *plaidFakeItemStore) GetPlaidItem(ctx context.Context, uid, itemID string) (*models.PlaidItem, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	item, ok := f.items[itemID]
	if !ok || item.UserID != uid {
		return nil, nil
	}
	return item, nil
}

func (f *plaidFakeItemStore) UpdatePlaidItemCursor(ctx context.Context, uid, id, cursor string) error {
	if f.cursorErrAt > 0 && len(f.cursorCalls)+1 == f.cursorErrAt {
		return errors.New("cursor write failed")
	}
	f.cursorCalls = append(f.cursorCalls, cursor)
	for _, item := range f.items {
		if item.ID == id {
			item.TransactionsCursor = helpers.Ptr(cursor)
		}
	}
	return nil
}

func (f *plaidFakeItemStore) UpdatePlaidItemStatus(ctx context.Context, uid, id string, status models.PlaidItemStatus, message *string, syncedAt *time.Time) error {
	f.statuses = append(f.statuses, status)
	for _, item := range f.items {
		if item.ID == id {
			item.Status = status
			item.Error = message
			if syncedAt != nil {
				item.LastSyncedAt = syncedAt
			}
		}
	}
	return nil
}

type plaidFakeAccountStore struct {
	rows    map[string]*models.FinanceAccount // keyed by Plaid account id
	inserts int
	updates int
}

func (f *plaidFakeAccountStore) UpsertPlaidAccount(ctx context.Context, acc *models.FinanceAccount) (bool, error) {
	key := *acc.PlaidAccountID
	if existing, ok := f.rows[key]; ok {
		existing.Balance = acc.Balance
		existing.AvailableBalance = acc.AvailableBalance
		existing.Limit = acc.Limit
		existing.LastUpdated = acc.LastUpdated
		f.updates++
		acc.ID = existing.ID
		return false, nil
	}
	cp := *acc
	cp.ID = "acct-" + key
	acc.ID = cp.ID
	f.rows[key] = &cp
	f.inserts++
	return true, nil
}

func (f *plaidFakeAccountStore) ListAccountsByItem(ctx context.Context, uid, plaidItemID string) ([]*models.FinanceAccount, error) {
	var out []*models.FinanceAccount
	for _, a := range f.rows {
		if a.PlaidItemID != nil && *a.PlaidItemID == plaidItemID {
			out = append(out, a)
		}
	}
	return out, nil
}

type plaidFakeTxStore struct {
	rows    map[string]*models.Transaction // keyed by Plaid transaction id
	deletes []string
	updated []string
}

func newPlaidFakeTxStore() *plaidFakeTxStore {
	return &plaidFakeTxStore{rows: map[string]*models.Transaction{}}
}

func (f *plaidFakeTxStore) GetTransactionByPlaidID(ctx context.Context, uid, plaidID string) (*models.Transaction, error) {
	if tx, ok := f.rows[plaidID]; ok {
		cp := *tx
		return &cp, nil
	}
	return nil, nil
}

func (f *plaidFakeTxStore) InsertTransaction(ctx context.Context, tx *models.Transaction) error {
	id := *tx.PlaidTransactionID
	if _, ok := f.rows[id]; ok {
		return fmt.Errorf("duplicate %s", id)
	}
	f.rows[id] = tx
	return nil
}

func (f *plaidFakeTxStore) UpdateTransaction(ctx context.Context, tx *models.Transaction) error {
	f.updated = append(f.updated, *tx.PlaidTransactionID)
	f.rows[*tx.PlaidTransactionID] = tx
	return nil
}

func (f *plaidFakeTxStore) DeleteTransactionByPlaidID(ctx context.Context, uid, plaidID string) (bool, error) {
	f.deletes = append(f.deletes, plaidID)
	if _, ok := f.rows[plaidID]; !ok {
		return false, nil
	}
	delete(f.rows, plaidID)
	return true, nil
}

type plaidFakeClient struct {
	accounts    []dto.PlaidAccount
	accountsErr error
	pages       []dto.PlaidSyncPage
	pageErrAt   int // fail the nth page request (1-based), 0 never
	cursors     []*string
	tokens      []string
}

func (f *plaidFakeClient) AccountsGet(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error) {
	f.tokens = append(f.tokens, accessToken)
	return f.accounts, f.accountsErr
}

func (f *plaidFakeClient) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (dto.PlaidSyncPage, error) {
	f.cursors = append(f.cursors, cursor)
	n := len(f.cursors)
	if f.pageErrAt > 0 && n == f.pageErrAt {
		return dto.PlaidSyncPage{}, errs.NewExternalServiceError("plaid", true, "API_ERROR/INTERNAL_SERVER_ERROR", errors.New("500"))
	}
	if n > len(f.pages) {
		return dto.PlaidSyncPage{}, errors.New("unexpected page request")
	}
	return f.pages[n-1], nil
}

type fakeClassifier struct{}

func (fakeClassifier) IsTransient(err error) bool { return errs.IsTransient(err) }
func (fakeClassifier) ProviderDetail(err error) (string, bool) {
	d := errs.Detail(err)
	return d, d != ""
}

type fakeProgress struct{ values []int }

func (f *fakeProgress) UpdateProgress(ctx context.Context, p int) error {
	f.values = append(f.values, p)
	return nil
}

type fakeLocker struct {
	held     map[string]bool
	released []string
	extends  int
	lost     bool
}

func (f *fakeLocker) Acquire(ctx context.Context, resource string) (queue.Lease, error) {
	if f.held[resource] {
		return nil, errs.NewLockedError(resource)
	}
	f.held[resource] = true
	return &fakeLease{locker: f, resource: resource}, nil
}

type fakeLease struct {
	locker   *fakeLocker
	resource string
}

func (l *fakeLease) Extend(ctx context.Context) error {
	if l.locker.lost {
		return errs.NewLockedError(l.resource)
	}
	l.locker.extends++
	return nil
}

func (l *fakeLease) Release(ctx context.Context) error {
	delete(l.locker.held, l.resource)
	l.locker.released = append(l.locker.released, l.resource)
	return nil
}

type fakeTokens struct{}

func (fakeTokens) OpenToken(ctx context.Context, token string) (string, error) {
	if token == "kms:bad" {
		return "", errors.New("decrypt failed")
	}
	if token == "kms:down" {
		return "", errs.NewExternalServiceError("kms", true, "unavailable", errors.New("unavailable"))
	}
	if len(token) > 4 && token[:4] == "kms:" {
		return "plain-" + token[4:], nil
	}
	return token, nil
}

type plaidFixture struct {
	items    *plaidFakeItemStore
	accounts *plaidFakeAccountStore
	txs      *plaidFakeTxStore
	client   *plaidFakeClient
	svc      *plaidSyncService
}

func newPlaidFixture(pages ...dto.PlaidSyncPage) *plaidFixture {
	f := &plaidFixture{
		items: &plaidFakeItemStore{items: map[string]*models.PlaidItem{
			"item-1": {ID: "pi-1", UserID: "user-1", ItemID: "item-1", InstitutionID: "ins_1", Status: models.PlaidItemActive},
		}},
		accounts: &plaidFakeAccountStore{rows: map[string]*models.FinanceAccount{}},
		txs:      newPlaidFakeTxStore(),
		client: &plaidFakeClient{
			accounts: []dto.PlaidAccount{{AccountID: "acc-1", Name: "Checking", Type: "depository", Current: helpers.Ptr(125.5)}},
			pages:    pages,
		},
	}
	f.svc = NewPlaidSyncService(PlaidSyncDeps{
		Items:        f.items,
		Accounts:     f.accounts,
		Transactions: f.txs,
		Plaid:        f.client,
		Classifier:   fakeClassifier{},
	})
	f.svc.clockNow = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

func syncJob() dto.PlaidSyncJob {
	return dto.PlaidSyncJob{UserID: "user-1", AccessToken: "access-1", ItemID: "item-1"}
}

func plaidTx(id string, amount float64) dto.PlaidTransaction {
	return dto.PlaidTransaction{TransactionID: id, AccountID: "acc-1", Amount: amount, Date: "2024-02-14", Name: "Coffee"}
}

// --- tests ---

func TestPlaidSyncFirstSyncEndToEnd(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{
		Added:      []dto.PlaidTransaction{plaidTx("t1", -20)},
		NextCursor: "c1",
	})

	res, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if !res.Success || res.TransactionsProcessed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if f.client.cursors[0] != nil {
		t.Fatalf("first sync should start without cursor, got %q", *f.client.cursors[0])
	}

	tx := f.txs.rows["t1"]
	if tx == nil {
		t.Fatal("expected transaction t1 to be inserted")
	}
	if tx.Type != models.TransactionExpense || tx.Amount != "20.00" {
		t.Fatalf("unexpected transaction: type=%s amount=%s", tx.Type, tx.Amount)
	}
	if tx.AccountID != "acct-acc-1" {
		t.Fatalf("account id = %q, want acct-acc-1", tx.AccountID)
	}

	item := f.items.items["item-1"]
	if helpers.Value(item.TransactionsCursor) != "c1" || item.Status != models.PlaidItemActive {
		t.Fatalf("unexpected item state: cursor=%v status=%s", helpers.Value(item.TransactionsCursor), item.Status)
	}
	if item.Error != nil || item.LastSyncedAt == nil {
		t.Fatalf("expected cleared error and bumped lastSyncedAt: %+v", item)
	}
}

func TestPlaidSyncTransactionTypeClassification(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{
		Added:      []dto.PlaidTransaction{plaidTx("neg", -42.50), plaidTx("pos", 100)},
		NextCursor: "c1",
	})
	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	if tx := f.txs.rows["neg"]; tx.Type != models.TransactionExpense || tx.Amount != "42.50" {
		t.Fatalf("neg: type=%s amount=%s", tx.Type, tx.Amount)
	}
	if tx := f.txs.rows["pos"]; tx.Type != models.TransactionIncome || tx.Amount != "100.00" {
		t.Fatalf("pos: type=%s amount=%s", tx.Type, tx.Amount)
	}
}

func TestPlaidSyncAccountUpsertIsIdempotent(t *testing.T) {
	f := newPlaidFixture(
		dto.PlaidSyncPage{NextCursor: "c1"},
		dto.PlaidSyncPage{NextCursor: "c2"},
	)
	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("first Sync returned error: %v", err)
	}
	f.client.accounts[0].Current = helpers.Ptr(99.999)
	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("second Sync returned error: %v", err)
	}

	if len(f.accounts.rows) != 1 || f.accounts.inserts != 1 || f.accounts.updates != 1 {
		t.Fatalf("rows=%d inserts=%d updates=%d", len(f.accounts.rows), f.accounts.inserts, f.accounts.updates)
	}
	if got := f.accounts.rows["acc-1"].Balance; got != "100.00" {
		t.Fatalf("balance = %q, want 100.00", got)
	}
}

func TestPlaidSyncAccountDefaults(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{NextCursor: "c1"})
	f.client.accounts = []dto.PlaidAccount{{AccountID: "acc-9", Name: "Card", Type: "mystery"}}
	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	acc := f.accounts.rows["acc-9"]
	if acc.Type != "other" || acc.Balance != "0.00" || acc.IsoCurrencyCode != "USD" {
		t.Fatalf("unexpected defaults: %+v", acc)
	}
	if acc.InterestRate != nil || acc.MinimumPayment != nil || acc.Limit != nil {
		t.Fatalf("expected optional fields to default to nil: %+v", acc)
	}
	if helpers.Value(acc.InstitutionID) != "ins_1" {
		t.Fatalf("institution = %v", helpers.Value(acc.InstitutionID))
	}
}

func TestPlaidSyncAddedDuplicateIsSkipped(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{
		Added:      []dto.PlaidTransaction{plaidTx("t1", -5)},
		NextCursor: "c1",
	})
	original := &models.Transaction{ID: "existing", PlaidTransactionID: helpers.Ptr("t1"), Amount: "1.00"}
	f.txs.rows["t1"] = original

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(f.txs.rows) != 1 || f.txs.rows["t1"] != original {
		t.Fatalf("expected existing row untouched, got %+v", f.txs.rows["t1"])
	}
}

func TestPlaidSyncUnmappableAccountIsSkipped(t *testing.T) {
	orphan := plaidTx("t-orphan", -5)
	orphan.AccountID = "unknown-account"
	f := newPlaidFixture(dto.PlaidSyncPage{
		Added:      []dto.PlaidTransaction{orphan, plaidTx("t2", -1)},
		NextCursor: "c1",
	})

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if _, ok := f.txs.rows["t-orphan"]; ok {
		t.Fatal("orphan transaction must not be assigned to any account")
	}
	if _, ok := f.txs.rows["t2"]; !ok {
		t.Fatal("expected mapped transaction to be inserted")
	}
}

func TestPlaidSyncModifiedWithoutAddedIsInserted(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{
		Modified:   []dto.PlaidTransaction{plaidTx("t-mod", -12.345)},
		NextCursor: "c1",
	})

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	tx, ok := f.txs.rows["t-mod"]
	if !ok {
		t.Fatal("expected modified transaction to be inserted")
	}
	if tx.Amount != "12.35" && tx.Amount != "12.34" {
		t.Fatalf("unexpected amount %q", tx.Amount)
	}
}

func TestPlaidSyncModifiedUpdatesExisting(t *testing.T) {
	mod := plaidTx("t1", 30)
	mod.Name = "Refund"
	mod.Pending = true
	mod.Category = []string{"Shops", "Clothing"}
	f := newPlaidFixture(dto.PlaidSyncPage{Modified: []dto.PlaidTransaction{mod}, NextCursor: "c1"})
	f.txs.rows["t1"] = &models.Transaction{ID: "tx-1", AccountID: "acct-acc-1", PlaidTransactionID: helpers.Ptr("t1"), Amount: "30.00", Type: models.TransactionExpense}

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	tx := f.txs.rows["t1"]
	if tx.ID != "tx-1" || tx.Description != "Refund" || !tx.Pending || tx.Type != models.TransactionIncome {
		t.Fatalf("unexpected update: %+v", tx)
	}
	if helpers.Value(tx.Category) != "Clothing" || helpers.Value(tx.ParentCategory) != "Shops" {
		t.Fatalf("category=%v parent=%v", helpers.Value(tx.Category), helpers.Value(tx.ParentCategory))
	}
}

func TestPlaidSyncRemovedUnknownIsNoop(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{Removed: []string{"ghost", "t1"}, NextCursor: "c1"})
	f.txs.rows["t1"] = &models.Transaction{ID: "tx-1", PlaidTransactionID: helpers.Ptr("t1")}

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(f.txs.rows) != 0 {
		t.Fatalf("expected t1 deleted, rows=%v", f.txs.rows)
	}
	if len(f.txs.deletes) != 2 {
		t.Fatalf("expected 2 delete attempts, got %v", f.txs.deletes)
	}
}

func TestPlaidSyncCursorAdvancesPerPage(t *testing.T) {
	f := newPlaidFixture(
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("a", -1)}, NextCursor: "c1", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("b", -1)}, NextCursor: "c2", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("c", -1)}, NextCursor: "c3"},
	)

	res, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if res.TransactionsProcessed != 3 {
		t.Fatalf("processed = %d, want 3", res.TransactionsProcessed)
	}
	want := []string{"c1", "c2", "c3"}
	if fmt.Sprint(f.items.cursorCalls) != fmt.Sprint(want) {
		t.Fatalf("cursor writes = %v, want %v", f.items.cursorCalls, want)
	}
	if helpers.Value(f.items.items["item-1"].TransactionsCursor) != "c3" {
		t.Fatal("stored cursor should be the last page's cursor")
	}
	if helpers.Value(f.client.cursors[1]) != "c1" || helpers.Value(f.client.cursors[2]) != "c2" {
		t.Fatal("each page must be requested with the previous page's cursor")
	}
}

func TestPlaidSyncResumesFromPersistedCursor(t *testing.T) {
	f := newPlaidFixture(
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("a", -1)}, NextCursor: "c1", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("b", -1)}, NextCursor: "c2", HasMore: true},
	)
	f.client.pageErrAt = 3

	_, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	if err == nil {
		t.Fatal("expected error from failing page")
	}
	item := f.items.items["item-1"]
	if helpers.Value(item.TransactionsCursor) != "c2" {
		t.Fatalf("persisted cursor = %q, want c2", helpers.Value(item.TransactionsCursor))
	}
	if item.Status != models.PlaidItemError || item.Error == nil {
		t.Fatalf("expected error status, got %s", item.Status)
	}

	// resume: a new sync starts from the last persisted cursor
	f.client.cursors = nil
	f.client.pageErrAt = 0
	f.client.pages = []dto.PlaidSyncPage{{Added: []dto.PlaidTransaction{plaidTx("c", -1)}, NextCursor: "c3"}}
	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("resumed Sync returned error: %v", err)
	}
	if helpers.Value(f.client.cursors[0]) != "c2" {
		t.Fatalf("resume started from %q, want c2", helpers.Value(f.client.cursors[0]))
	}
	if item.Status != models.PlaidItemActive || item.Error != nil {
		t.Fatalf("expected item active again: %+v", item)
	}
}

func TestPlaidSyncMissingItemIsFatal(t *testing.T) {
	f := newPlaidFixture()
	job := syncJob()
	job.ItemID = "nope"

	_, err := f.svc.Sync(helpers.TestCtx(), job, nil)
	if !errs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(f.client.tokens) != 0 || len(f.items.statuses) != 0 {
		t.Fatal("missing item must not touch provider or item state")
	}
}

func TestPlaidSyncItemOwnedByOtherUserIsFatal(t *testing.T) {
	f := newPlaidFixture()
	job := syncJob()
	job.UserID = "someone-else"

	if _, err := f.svc.Sync(helpers.TestCtx(), job, nil); !errs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestPlaidSyncProviderErrorMarksItem(t *testing.T) {
	f := newPlaidFixture()
	f.client.accountsErr = errs.NewExternalServiceError("plaid", false, "ITEM_ERROR/ITEM_LOGIN_REQUIRED", errors.New("400"))

	_, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	if err != f.client.accountsErr {
		t.Fatalf("error = %v, want provider error", err)
	}
	item := f.items.items["item-1"]
	if item.Status != models.PlaidItemError || helpers.Value(item.Error) == "" {
		t.Fatalf("expected item error state: %+v", item)
	}
}

func TestPlaidSyncInitialSyncReportsProgress(t *testing.T) {
	page := func(n int, cursor string, more bool) dto.PlaidSyncPage {
		added := make([]dto.PlaidTransaction, n)
		for i := range added {
			added[i] = plaidTx(fmt.Sprintf("%s-%d", cursor, i), -1)
		}
		return dto.PlaidSyncPage{Added: added, NextCursor: cursor, HasMore: more}
	}
	f := newPlaidFixture(page(500, "c1", true), page(500, "c2", true), page(300, "c3", false))
	job := syncJob()
	job.InitialSync = true
	progress := &fakeProgress{}

	if _, err := f.svc.Sync(helpers.TestCtx(), job, progress); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(progress.values) != 1 || progress.values[0] != 1000 {
		t.Fatalf("progress = %v, want [1000]", progress.values)
	}
}

func TestPlaidSyncNoProgressWithoutInitialSync(t *testing.T) {
	added := make([]dto.PlaidTransaction, 1000)
	for i := range added {
		added[i] = plaidTx(fmt.Sprintf("t-%d", i), -1)
	}
	f := newPlaidFixture(dto.PlaidSyncPage{Added: added, NextCursor: "c1"})
	progress := &fakeProgress{}

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), progress); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(progress.values) != 0 {
		t.Fatalf("expected no progress, got %v", progress.values)
	}
}

func TestPlaidSyncLockedItem(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{NextCursor: "c1"})
	locker := &fakeLocker{held: map[string]bool{"plaid-item:pi-1": true}}
	f.svc.Locker = locker

	_, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	var locked *errs.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if errs.IsFatal(err) {
		t.Fatal("lock contention must be retryable")
	}
	if len(f.client.tokens) != 0 {
		t.Fatal("provider must not be called while the item is locked")
	}
}

func TestPlaidSyncReleasesLock(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{NextCursor: "c1"})
	locker := &fakeLocker{held: map[string]bool{}}
	f.svc.Locker = locker

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if len(locker.released) != 1 || len(locker.held) != 0 {
		t.Fatalf("expected lock released, released=%v held=%v", locker.released, locker.held)
	}
}

func TestPlaidSyncExtendsLockEveryPage(t *testing.T) {
	f := newPlaidFixture(
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("a", -1)}, NextCursor: "c1", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("b", -1)}, NextCursor: "c2", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("c", -1)}, NextCursor: "c3"},
	)
	locker := &fakeLocker{held: map[string]bool{}}
	f.svc.Locker = locker

	if _, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if locker.extends != 3 {
		t.Fatalf("expected one lock refresh per page, got %d", locker.extends)
	}
}

func TestPlaidSyncStopsWhenLockIsLost(t *testing.T) {
	f := newPlaidFixture(
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("a", -1)}, NextCursor: "c1", HasMore: true},
		dto.PlaidSyncPage{Added: []dto.PlaidTransaction{plaidTx("b", -1)}, NextCursor: "c2"},
	)
	locker := &fakeLocker{held: map[string]bool{}, lost: true}
	f.svc.Locker = locker

	_, err := f.svc.Sync(helpers.TestCtx(), syncJob(), nil)
	var locked *errs.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if len(f.client.cursors) != 1 {
		t.Fatalf("second page must not be fetched after the lock is lost, got %d requests", len(f.client.cursors))
	}
	if len(f.items.statuses) != 0 {
		t.Fatalf("item status must be left to the new lock holder, got %v", f.items.statuses)
	}
}

func TestPlaidSyncDecryptsSealedToken(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{NextCursor: "c1"})
	f.svc.Tokens = fakeTokens{}
	job := syncJob()
	job.AccessToken = "kms:abc"

	if _, err := f.svc.Sync(helpers.TestCtx(), job, nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if f.client.tokens[0] != "plain-abc" {
		t.Fatalf("token = %q, want plain-abc", f.client.tokens[0])
	}
}

func TestPlaidSyncUndecryptableTokenIsFatal(t *testing.T) {
	f := newPlaidFixture()
	f.svc.Tokens = fakeTokens{}
	job := syncJob()
	job.AccessToken = "kms:bad"

	if _, err := f.svc.Sync(helpers.TestCtx(), job, nil); !errs.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
}

func TestPlaidSyncKMSOutageIsRetried(t *testing.T) {
	f := newPlaidFixture()
	f.svc.Tokens = fakeTokens{}
	job := syncJob()
	job.AccessToken = "kms:down"

	_, err := f.svc.Sync(helpers.TestCtx(), job, nil)
	if err == nil || errs.IsFatal(err) || !errs.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

type fakeSecrets struct{ token string }

func (f fakeSecrets) GetPlaidToken(ctx context.Context, uid, itemID string) (string, error) {
	return f.token, nil
}

func TestPlaidSyncFallsBackToSecretStore(t *testing.T) {
	f := newPlaidFixture(dto.PlaidSyncPage{NextCursor: "c1"})
	f.svc.Secrets = fakeSecrets{token: "from-secrets"}
	job := syncJob()
	job.AccessToken = ""

	if _, err := f.svc.Sync(helpers.TestCtx(), job, nil); err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if f.client.tokens[0] != "from-secrets" {
		t.Fatalf("token = %q", f.client.tokens[0])
	}
}

func TestSplitCategory(t *testing.T) {
	tests := []struct {
		path           []string
		leaf, parent   string
		hasLeaf, hasPa bool
	}{
		{path: nil},
		{path: []string{"Travel"}, leaf: "Travel", hasLeaf: true},
		{path: []string{"Food", "Restaurants", "Coffee"}, leaf: "Coffee", parent: "Food", hasLeaf: true, hasPa: true},
	}
	for _, tt := range tests {
		leaf, parent := splitCategory(tt.path)
		if (leaf != nil) != tt.hasLeaf || (parent != nil) != tt.hasPa {
			t.Fatalf("splitCategory(%v) = %v, %v", tt.path, leaf, parent)
		}
		if tt.hasLeaf && *leaf != tt.leaf {
			t.Fatalf("leaf = %q, want %q", *leaf, tt.leaf)
		}
		if tt.hasPa && *parent != tt.parent {
			t.Fatalf("parent = %q, want %q", *parent, tt.parent)
		}
	}
}

package plaidclient

import (
	"context"

	"github.com/plaid/plaid-go/v24/plaid"
	"golang.org/x/time/rate"

	"github.com/GregMSThompson/finance-workers/internal/dto"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

const syncPageSize = 500

type Adapter struct {
	client  *plaid.APIClient
	limiter *rate.Limiter
}

// NewAdapter builds a Plaid client. requestsPerSecond <= 0 disables limiting.
func NewAdapter(clientID, secret string, env dto.PlaidEnvironment, requestsPerSecond float64) *Adapter {
	cfg := plaid.NewConfiguration()
	cfg.AddDefaultHeader("PLAID-CLIENT-ID", clientID)
	cfg.AddDefaultHeader("PLAID-SECRET", secret)
	cfg.UseEnvironment(toPlaidEnv(env))

	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = max(1, int(requestsPerSecond))
	}

	return &Adapter{
		client:  plaid.NewAPIClient(cfg),
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (a *Adapter) AccountsGet(ctx context.Context, accessToken string) ([]dto.PlaidAccount, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req := plaid.NewAccountsGetRequest(accessToken)
	resp, httpResp, err := a.client.PlaidApi.AccountsGet(ctx).AccountsGetRequest(*req).Execute()
	if err != nil {
		return nil, Classify("accounts/get", httpResp, err)
	}

	accounts := make([]dto.PlaidAccount, 0, len(resp.GetAccounts()))
	for _, acc := range resp.GetAccounts() {
		accounts = append(accounts, convertAccount(acc))
	}
	return accounts, nil
}

// SyncTransactions fetches one page of /transactions/sync starting at cursor.
func (a *Adapter) SyncTransactions(ctx context.Context, accessToken string, cursor *string) (dto.PlaidSyncPage, error) {
	var page dto.PlaidSyncPage
	if err := a.limiter.Wait(ctx); err != nil {
		return page, err
	}

	req := plaid.NewTransactionsSyncRequest(accessToken)
	if cursor != nil && *cursor != "" {
		req.SetCursor(*cursor)
	}
	req.SetCount(syncPageSize)

	resp, httpResp, err := a.client.PlaidApi.TransactionsSync(ctx).TransactionsSyncRequest(*req).Execute()
	if err != nil {
		return page, Classify("transactions/sync", httpResp, err)
	}

	for _, t := range resp.GetAdded() {
		page.Added = append(page.Added, convertTransaction(t))
	}
	for _, t := range resp.GetModified() {
		page.Modified = append(page.Modified, convertTransaction(t))
	}
	for _, r := range resp.GetRemoved() {
		if id := r.GetTransactionId(); id != "" {
			page.Removed = append(page.Removed, id)
		}
	}
	page.NextCursor = resp.GetNextCursor()
	page.HasMore = resp.GetHasMore()

	return page, nil
}

func convertAccount(acc plaid.AccountBase) dto.PlaidAccount {
	out := dto.PlaidAccount{
		AccountID: acc.GetAccountId(),
		Name:      acc.GetName(),
		Type:      string(acc.GetType()),
	}
	if v, ok := acc.GetOfficialNameOk(); ok && v != nil && *v != "" {
		out.OfficialName = v
	}
	if v, ok := acc.GetSubtypeOk(); ok && v != nil {
		s := string(*v)
		out.Subtype = &s
	}
	if v, ok := acc.GetMaskOk(); ok && v != nil && *v != "" {
		out.Mask = v
	}

	bal := acc.GetBalances()
	if v, ok := bal.GetCurrentOk(); ok {
		out.Current = v
	}
	if v, ok := bal.GetAvailableOk(); ok {
		out.Available = v
	}
	if v, ok := bal.GetLimitOk(); ok {
		out.Limit = v
	}
	if v, ok := bal.GetIsoCurrencyCodeOk(); ok && v != nil && *v != "" {
		out.IsoCurrencyCode = v
	}
	return out
}

func convertTransaction(t plaid.Transaction) dto.PlaidTransaction {
	out := dto.PlaidTransaction{
		TransactionID:  t.GetTransactionId(),
		AccountID:      t.GetAccountId(),
		Amount:         t.GetAmount(),
		Date:           t.GetDate(),
		Name:           t.GetName(),
		Category:       t.GetCategory(),
		Pending:        t.GetPending(),
		PaymentChannel: t.GetPaymentChannel(),
	}
	if v, ok := t.GetMerchantNameOk(); ok && v != nil && *v != "" {
		out.MerchantName = v
	}
	if loc, ok := t.GetLocationOk(); ok && loc != nil {
		out.Location = convertLocation(*loc)
	}
	return out
}

func convertLocation(loc plaid.Location) *models.Location {
	out := &models.Location{
		Address:    loc.GetAddress(),
		City:       loc.GetCity(),
		Region:     loc.GetRegion(),
		PostalCode: loc.GetPostalCode(),
		Country:    loc.GetCountry(),
	}
	if v, ok := loc.GetLatOk(); ok {
		out.Lat = v
	}
	if v, ok := loc.GetLonOk(); ok {
		out.Lon = v
	}
	if *out == (models.Location{}) {
		return nil
	}
	return out
}

func toPlaidEnv(env dto.PlaidEnvironment) plaid.Environment {
	switch env {
	case dto.PlaidSandbox:
		return plaid.Sandbox
	case dto.PalidDevelopment:
		return plaid.Development
	default: // dto.PlaidProduction:
		return plaid.Production
	}
}

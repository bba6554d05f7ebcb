package dto

import "github.com/GregMSThompson/finance-workers/internal/models"

// PlaidSyncJob is the queue payload for a Plaid sync.
type PlaidSyncJob struct {
	UserID      string `json:"userId" validate:"required"`
	AccessToken string `json:"accessToken"`
	ItemID      string `json:"itemId" validate:"required"`
	InitialSync bool   `json:"initialSync"`
}

type PlaidSyncResult struct {
	Success               bool `json:"success"`
	TransactionsProcessed int  `json:"transactionsProcessed"`
}

// PlaidAccount is one account returned by /accounts/get.
type PlaidAccount struct {
	AccountID       string
	Name            string
	OfficialName    *string
	Type            string
	Subtype         *string
	Mask            *string
	Current         *float64
	Available       *float64
	Limit           *float64
	IsoCurrencyCode *string
}

// PlaidTransaction is one added or modified transaction from /transactions/sync.
type PlaidTransaction struct {
	TransactionID  string
	AccountID      string
	Amount         float64
	Date           string // YYYY-MM-DD as Plaid returns
	Name           string
	MerchantName   *string
	Category       []string
	Pending        bool
	PaymentChannel string
	Location       *models.Location
}

// Paid adapter result - represents one page from /transactions/sync
type PlaidSyncPage struct {
	Added      []PlaidTransaction
	Modified   []PlaidTransaction
	Removed    []string // transaction ids
	NextCursor string
	HasMore    bool
}

type PlaidEnvironment string

const (
	PlaidSandbox     PlaidEnvironment = "sandbox"
	PalidDevelopment PlaidEnvironment = "development"
	PlaidProduction  PlaidEnvironment = "production"
)

package models

import "time"

type FinanceAccount struct {
	ID               string    `firestore:"id" json:"id"`
	UserID           string    `firestore:"userId" json:"userId"`
	Name             string    `firestore:"name" json:"name"`
	OfficialName     *string   `firestore:"officialName" json:"officialName,omitempty"`
	Type             string    `firestore:"type" json:"type"` // depository, credit, loan, investment, brokerage, other, checking
	Subtype          *string   `firestore:"subtype" json:"subtype,omitempty"`
	Mask             *string   `firestore:"mask" json:"mask,omitempty"`
	Balance          string    `firestore:"balance" json:"balance"`
	AvailableBalance *string   `firestore:"availableBalance" json:"availableBalance,omitempty"`
	Limit            *string   `firestore:"limit" json:"limit,omitempty"`
	InterestRate     *string   `firestore:"interestRate" json:"interestRate,omitempty"`
	MinimumPayment   *string   `firestore:"minimumPayment" json:"minimumPayment,omitempty"`
	IsoCurrencyCode  string    `firestore:"isoCurrencyCode" json:"isoCurrencyCode"`
	PlaidAccountID   *string   `firestore:"plaidAccountId" json:"plaidAccountId,omitempty"` // unique when set
	PlaidItemID      *string   `firestore:"plaidItemId" json:"plaidItemId,omitempty"`       // PlaidItem.ID
	InstitutionID    *string   `firestore:"institutionId" json:"institutionId,omitempty"`
	LastUpdated      time.Time `firestore:"lastUpdated" json:"lastUpdated"`
	CreatedAt        time.Time `firestore:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt" json:"updatedAt"`
}

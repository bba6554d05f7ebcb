package models

import (
	"time"
)

type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

type Transaction struct {
	ID                 string          `firestore:"id" json:"id"`
	UserID             string          `firestore:"userId" json:"userId"`
	AccountID          string          `firestore:"accountId" json:"accountId"` // FinanceAccount.ID
	Type               TransactionType `firestore:"type" json:"type"`
	Amount             string          `firestore:"amount" json:"amount"` // absolute value, 2 decimals
	Date               time.Time       `firestore:"date" json:"date"`
	Description        string          `firestore:"description" json:"description"`
	MerchantName       *string         `firestore:"merchantName" json:"merchantName,omitempty"`
	Category           *string         `firestore:"category" json:"category,omitempty"`
	ParentCategory     *string         `firestore:"parentCategory" json:"parentCategory,omitempty"`
	Pending            bool            `firestore:"pending" json:"pending"`
	PaymentChannel     *string         `firestore:"paymentChannel" json:"paymentChannel,omitempty"`
	Location           *Location       `firestore:"location" json:"location,omitempty"`
	Note               *string         `firestore:"note" json:"note,omitempty"`
	PlaidTransactionID *string         `firestore:"plaidTransactionId" json:"plaidTransactionId,omitempty"` // unique when set
	CreatedAt          time.Time       `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

type Location struct {
	Address    string   `firestore:"address,omitempty" json:"address,omitempty"`
	City       string   `firestore:"city,omitempty" json:"city,omitempty"`
	Region     string   `firestore:"region,omitempty" json:"region,omitempty"`
	PostalCode string   `firestore:"postalCode,omitempty" json:"postalCode,omitempty"`
	Country    string   `firestore:"country,omitempty" json:"country,omitempty"`
	Lat        *float64 `firestore:"lat,omitempty" json:"lat,omitempty"`
	Lon        *float64 `firestore:"lon,omitempty" json:"lon,omitempty"`
}

package models

import (
	"time"
)

type PlaidItemStatus string

const (
	PlaidItemActive            PlaidItemStatus = "active"
	PlaidItemError             PlaidItemStatus = "error"
	PlaidItemRevoked           PlaidItemStatus = "revoked"
	PlaidItemPendingExpiration PlaidItemStatus = "pending_expiration"
)

// PlaidItem is one linked bank connection. Only the sync worker mutates it.
type PlaidItem struct {
	ID                 string          `firestore:"id" json:"id"`
	UserID             string          `firestore:"userId" json:"userId"`
	ItemID             string          `firestore:"itemId" json:"itemId"` // Plaid item_id
	InstitutionID      string          `firestore:"institutionId" json:"institutionId,omitempty"`
	TransactionsCursor *string         `firestore:"transactionsCursor" json:"transactionsCursor,omitempty"`
	Status             PlaidItemStatus `firestore:"status" json:"status"`
	Error              *string         `firestore:"error" json:"error,omitempty"`
	LastSyncedAt       *time.Time      `firestore:"lastSyncedAt" json:"lastSyncedAt,omitempty"`
	CreatedAt          time.Time       `firestore:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time       `firestore:"updatedAt" json:"updatedAt"`
}

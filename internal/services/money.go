package services

import (
	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-workers/internal/models"
)

// formatAmount renders the absolute value of v with two decimals.
func formatAmount(v float64) string {
	return decimal.NewFromFloat(v).Abs().StringFixed(2)
}

// formatSigned keeps the sign, for balances.
func formatSigned(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func formatAmountPtr(v *float64) *string {
	if v == nil {
		return nil
	}
	s := decimal.NewFromFloat(*v).StringFixed(2)
	return &s
}

// transactionType classifies by sign: negative amounts are expenses.
func transactionType(amount float64) models.TransactionType {
	if amount < 0 {
		return models.TransactionExpense
	}
	return models.TransactionIncome
}

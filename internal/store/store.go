package store

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-workers/internal/models"
)

const plaidDocPrefix = "plaid-"

type PlaidItems interface {
	GetPlaidItem(ctx context.Context, uid, itemID string) (*models.PlaidItem, error)
	UpdatePlaidItemCursor(ctx context.Context, uid, id, cursor string) error
	UpdatePlaidItemStatus(ctx context.Context, uid, id string, st models.PlaidItemStatus, message *string, syncedAt *time.Time) error
}

type Accounts interface {
	UpsertPlaidAccount(ctx context.Context, acc *models.FinanceAccount) (bool, error)
	ListAccountsByItem(ctx context.Context, uid, plaidItemID string) ([]*models.FinanceAccount, error)
	GetAccountByName(ctx context.Context, uid, name string) (*models.FinanceAccount, error)
	CreateAccount(ctx context.Context, acc *models.FinanceAccount) error
}

type Transactions interface {
	GetTransactionByPlaidID(ctx context.Context, uid, plaidID string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
	DeleteTransactionByPlaidID(ctx context.Context, uid, plaidID string) (bool, error)
	FindTransactions(ctx context.Context, uid, accountID string, date time.Time, amount string) ([]*models.Transaction, error)
}

type Events interface {
	ListEvents(ctx context.Context, uid, calendarID, source string) ([]*models.CalendarEvent, error)
	CreateEvent(ctx context.Context, ev *models.CalendarEvent) error
	UpdateEvent(ctx context.Context, ev *models.CalendarEvent) error
	SoftDeleteEvent(ctx context.Context, uid, id string, at time.Time) error
}

// Stores groups the persistence the workers need, whichever database backs it.
type Stores struct {
	Items        PlaidItems
	Accounts     Accounts
	Transactions Transactions
	Events       Events
}

func NewFirestoreStores(client *firestore.Client) Stores {
	return Stores{
		Items:        NewPlaidItemStore(client),
		Accounts:     NewAccountStore(client),
		Transactions: NewTransactionStore(client),
		Events:       NewEventStore(client),
	}
}

func userDoc(client *firestore.Client, uid string) *firestore.DocumentRef {
	return client.Collection("users").Doc(uid)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

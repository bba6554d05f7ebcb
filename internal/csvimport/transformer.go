// Package csvimport turns a bank CSV export into stored transactions, one
// classified result per row.
package csvimport

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
	"github.com/GregMSThompson/finance-workers/pkg/helpers"
	"github.com/GregMSThompson/finance-workers/pkg/logger"
)

type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionSkipped Action = "skipped"
	ActionMerged  Action = "merged"
	ActionInvalid Action = "invalid"
)

// Result is the outcome of one CSV row. Err is set for invalid rows.
type Result struct {
	Line        int
	Action      Action
	Transaction *models.Transaction
	Err         error
}

type Options struct {
	DeduplicateThreshold int // percent description similarity for a merge
	BatchSize            int
	BatchDelay           time.Duration
	MaxRetries           int
	RetryDelay           time.Duration
}

func DefaultOptions() Options {
	return Options{
		DeduplicateThreshold: 60,
		BatchSize:            10,
		BatchDelay:           100 * time.Millisecond,
		MaxRetries:           3,
		RetryDelay:           500 * time.Millisecond,
	}
}

type AccountStore interface {
	GetAccountByName(ctx context.Context, uid, name string) (*models.FinanceAccount, error)
	CreateAccount(ctx context.Context, acc *models.FinanceAccount) error
}

type TransactionStore interface {
	FindTransactions(ctx context.Context, uid, accountID string, date time.Time, amount string) ([]*models.Transaction, error)
	InsertTransaction(ctx context.Context, tx *models.Transaction) error
	UpdateTransaction(ctx context.Context, tx *models.Transaction) error
}

type Transformer struct {
	accounts     AccountStore
	transactions TransactionStore
	opts         Options
	newID        func() string
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewTransformer(accounts AccountStore, transactions TransactionStore, opts Options) *Transformer {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.DeduplicateThreshold <= 0 {
		opts.DeduplicateThreshold = def.DeduplicateThreshold
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &Transformer{
		accounts:     accounts,
		transactions: transactions,
		opts:         opts,
		newID:        uuid.NewString,
		sleep:        sleepCtx,
	}
}

// Transform parses content and calls yield with the result of every row, in
// file order. Row problems are reported as invalid results; the returned
// error is for failures of the whole pipeline (unreadable or unknown format,
// cancelled context, or yield returning an error).
func (t *Transformer) Transform(ctx context.Context, uid string, content []byte, yield func(Result) error) error {
	log := logger.FromContext(ctx)

	p, err := newParser(content)
	if err != nil {
		return err
	}
	log.Info("csv format detected", "format", p.format)

	accounts := make(map[string]*models.FinanceAccount)
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		r, rowErr, err := p.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errs.NewFatalError("read csv", err)
		}

		if processed > 0 && processed%t.opts.BatchSize == 0 && t.opts.BatchDelay > 0 {
			if err := t.sleep(ctx, t.opts.BatchDelay); err != nil {
				return err
			}
		}
		processed++

		var res Result
		if rowErr != nil {
			log.Warn("skipping invalid csv row", "error", rowErr)
			res = Result{Line: p.line, Action: ActionInvalid, Err: rowErr}
		} else {
			res = t.processRow(ctx, uid, r, accounts)
		}
		if err := yield(res); err != nil {
			return err
		}
	}
}

func (t *Transformer) processRow(ctx context.Context, uid string, r *row, accounts map[string]*models.FinanceAccount) Result {
	log := logger.FromContext(ctx).With("line", r.line, "account", r.account)

	var res Result
	err := t.withRetry(ctx, func() error {
		acc, err := t.account(ctx, uid, r.account, accounts)
		if err != nil {
			return err
		}
		res, err = t.apply(ctx, uid, acc, r)
		return err
	})
	if err != nil {
		log.Error("failed to process csv row", "error", err, "date", r.date.Format("2006-01-02"), "amount", r.amount.StringFixed(2))
		return Result{Line: r.line, Action: ActionInvalid, Err: err}
	}
	res.Line = r.line
	return res
}

// account resolves an account by name, creating a zero-balance checking
// account the first time a name is seen.
func (t *Transformer) account(ctx context.Context, uid, name string, cache map[string]*models.FinanceAccount) (*models.FinanceAccount, error) {
	if acc, ok := cache[name]; ok {
		return acc, nil
	}
	acc, err := t.accounts.GetAccountByName(ctx, uid, name)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		now := time.Now()
		acc = &models.FinanceAccount{
			ID:              t.newID(),
			UserID:          uid,
			Name:            name,
			Type:            "checking",
			Balance:         "0.00",
			IsoCurrencyCode: "USD",
			LastUpdated:     now,
		}
		if err := t.accounts.CreateAccount(ctx, acc); err != nil {
			return nil, err
		}
		logger.FromContext(ctx).Info("created account for csv import", "account", name, "account_id", acc.ID)
	}
	cache[name] = acc
	return acc, nil
}

func (t *Transformer) apply(ctx context.Context, uid string, acc *models.FinanceAccount, r *row) (Result, error) {
	amount := r.amount.StringFixed(2)
	candidates, err := t.transactions.FindTransactions(ctx, uid, acc.ID, r.date, amount)
	if err != nil {
		return Result{}, err
	}

	var best *models.Transaction
	bestScore := -1
	for _, c := range candidates {
		if c.Type != r.txType {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(c.Description), r.description) {
			if !fillMetadata(c, r) {
				return Result{Action: ActionSkipped, Transaction: c}, nil
			}
			if err := t.transactions.UpdateTransaction(ctx, c); err != nil {
				return Result{}, err
			}
			return Result{Action: ActionUpdated, Transaction: c}, nil
		}
		if score := Similarity(c.Description, r.description); score > bestScore {
			best, bestScore = c, score
		}
	}

	if best != nil && bestScore >= t.opts.DeduplicateThreshold {
		if fillMetadata(best, r) {
			if err := t.transactions.UpdateTransaction(ctx, best); err != nil {
				return Result{}, err
			}
		}
		return Result{Action: ActionMerged, Transaction: best}, nil
	}

	tx := &models.Transaction{
		ID:          t.newID(),
		UserID:      uid,
		AccountID:   acc.ID,
		Type:        r.txType,
		Amount:      amount,
		Date:        r.date,
		Description: r.description,
	}
	fillMetadata(tx, r)
	if err := t.transactions.InsertTransaction(ctx, tx); err != nil {
		return Result{}, err
	}
	return Result{Action: ActionCreated, Transaction: tx}, nil
}

// fillMetadata copies category, parent category and note from r into empty
// fields of tx and reports whether anything changed.
func fillMetadata(tx *models.Transaction, r *row) bool {
	changed := false
	if helpers.Value(tx.Category) == "" && r.category != "" {
		tx.Category = helpers.Ptr(r.category)
		changed = true
	}
	if helpers.Value(tx.ParentCategory) == "" && r.parent != "" {
		tx.ParentCategory = helpers.Ptr(r.parent)
		changed = true
	}
	if helpers.Value(tx.Note) == "" && r.note != "" {
		tx.Note = helpers.Ptr(r.note)
		changed = true
	}
	return changed
}

// withRetry retries transient failures up to MaxRetries attempts.
func (t *Transformer) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= t.opts.MaxRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !errs.IsTransient(err) || attempt == t.opts.MaxRetries {
			return err
		}
		logger.FromContext(ctx).Debug("retrying csv row", "attempt", attempt, "error", err)
		if sErr := t.sleep(ctx, t.opts.RetryDelay*time.Duration(attempt)); sErr != nil {
			return sErr
		}
	}
	return err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

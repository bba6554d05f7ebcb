package csvimport

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GregMSThompson/finance-workers/internal/errs"
	"github.com/GregMSThompson/finance-workers/internal/models"
)

type Format string

const (
	FormatCopilot    Format = "copilot"
	FormatCapitalOne Format = "capital-one"
	FormatUnknown    Format = "unknown"
)

var dateLayouts = []string{"2006-01-02", "01/02/06", "01/02/2006", "1/2/2006"}

// row is one CSV record normalized across bank formats.
type row struct {
	line        int
	account     string
	date        time.Time
	description string
	amount      decimal.Decimal
	txType      models.TransactionType
	category    string
	parent      string
	note        string
}

// DetectFormat picks the bank export format from the header row.
func DetectFormat(headers []string) Format {
	set := make(map[string]bool, len(headers))
	for _, h := range headers {
		set[normalizeHeader(h)] = true
	}
	switch {
	case set["date"] && set["name"] && set["amount"] && set["type"]:
		return FormatCopilot
	case set["transaction date"] && set["transaction amount"] && set["transaction description"]:
		return FormatCapitalOne
	default:
		return FormatUnknown
	}
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

// parser walks a CSV document record by record.
type parser struct {
	r      *csv.Reader
	format Format
	index  map[string]int
	line   int
}

func newParser(content []byte) (*parser, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	headers, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, errs.NewFatalError("csv has no header row", err)
	}
	if err != nil {
		return nil, errs.NewFatalError("read csv header", err)
	}

	format := DetectFormat(headers)
	if format == FormatUnknown {
		return nil, errs.NewFatalError("unknown csv format, supported formats: Copilot, Capital One", nil)
	}

	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[normalizeHeader(h)] = i
	}
	return &parser{r: r, format: format, index: index, line: 1}, nil
}

// next returns the next row. A row-level problem is returned as a non-nil
// rowErr with a nil err so the caller can keep going.
func (p *parser) next() (r *row, rowErr error, err error) {
	rec, err := p.r.Read()
	p.line++
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("line %d: %w", perr.Line, err), nil
		}
		return nil, nil, err
	}
	if blank(rec) {
		return p.next()
	}

	switch p.format {
	case FormatCopilot:
		r, rowErr = p.copilot(rec)
	default:
		r, rowErr = p.capitalOne(rec)
	}
	if rowErr != nil {
		return nil, fmt.Errorf("line %d: %w", p.line, rowErr), nil
	}
	r.line = p.line
	return r, nil, nil
}

func (p *parser) field(rec []string, name string) string {
	i, ok := p.index[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// copilot rows carry signed amounts where negative is money out; a type of
// "income" wins over the sign.
func (p *parser) copilot(rec []string) (*row, error) {
	date, err := parseDate(p.field(rec, "date"))
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.field(rec, "amount"))
	if err != nil {
		return nil, err
	}
	account := p.field(rec, "account")
	if account == "" {
		return nil, errors.New("missing account")
	}

	txType := models.TransactionIncome
	if amount.IsNegative() {
		txType = models.TransactionExpense
	}
	if strings.EqualFold(p.field(rec, "type"), "income") {
		txType = models.TransactionIncome
	}

	return &row{
		account:     account,
		date:        date,
		description: p.field(rec, "name"),
		amount:      amount.Abs(),
		txType:      txType,
		category:    p.field(rec, "category"),
		parent:      p.field(rec, "parent category"),
		note:        p.field(rec, "note"),
	}, nil
}

// capitalOne rows carry unsigned amounts with a Debit/Credit type.
func (p *parser) capitalOne(rec []string) (*row, error) {
	date, err := parseDate(p.field(rec, "transaction date"))
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(p.field(rec, "transaction amount"))
	if err != nil {
		return nil, err
	}

	txType := models.TransactionExpense
	if strings.EqualFold(p.field(rec, "transaction type"), "credit") {
		txType = models.TransactionIncome
	}

	return &row{
		account:     strings.TrimSpace("Capital One " + p.field(rec, "account number")),
		date:        date,
		description: p.field(rec, "transaction description"),
		amount:      amount.Abs(),
		txType:      txType,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

func parseAmount(s string) (decimal.Decimal, error) {
	clean := strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	if clean == "" {
		return decimal.Zero, errors.New("missing amount")
	}
	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	return d, nil
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

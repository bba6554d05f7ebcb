package plaidclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/plaid/plaid-go/v24/plaid"

	"github.com/GregMSThompson/finance-workers/internal/errs"
)

const serviceName = "plaid"

// Plaid error types that clear up on their own.
var transientTypes = map[string]bool{
	"API_ERROR":           true,
	"INSTITUTION_ERROR":   true,
	"RATE_LIMIT_EXCEEDED": true,
}

// Item errors that need user action; retrying will not help.
var fatalCodes = map[string]bool{
	"ITEM_LOGIN_REQUIRED":     true,
	"ITEM_NOT_FOUND":          true,
	"INVALID_ACCESS_TOKEN":    true,
	"ACCESS_NOT_GRANTED":      true,
	"USER_PERMISSION_REVOKED": true,
}

// Classify converts a plaid-go error into an errs.ExternalServiceError that
// carries Plaid's error payload as detail.
func Classify(op string, resp *http.Response, err error) error {
	if err == nil {
		return nil
	}

	var apiErr plaid.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		// transport failure: DNS, reset, timeout
		return errs.NewExternalServiceError(serviceName, true, "", fmt.Errorf("%s: %w", op, err))
	}

	pe, perr := plaid.ToPlaidError(err)
	if perr != nil {
		transient := resp == nil || resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		return errs.NewExternalServiceError(serviceName, transient, string(apiErr.Body()), fmt.Errorf("%s: %w", op, err))
	}

	detail := fmt.Sprintf("%s/%s: %s", pe.GetErrorType(), pe.GetErrorCode(), pe.GetErrorMessage())
	if id := pe.GetRequestId(); id != "" {
		detail += " (request " + id + ")"
	}

	wrapped := fmt.Errorf("%s: %s: %w", op, pe.GetErrorMessage(), err)
	if fatalCodes[pe.GetErrorCode()] {
		return errs.NewFatalError(detail, errs.NewExternalServiceError(serviceName, false, detail, wrapped))
	}
	return errs.NewExternalServiceError(serviceName, transientTypes[string(pe.GetErrorType())], detail, wrapped)
}

// ErrorClassifier is the typed error view the sync processor depends on.
type ErrorClassifier struct{}

func (ErrorClassifier) IsTransient(err error) bool { return errs.IsTransient(err) }

// ProviderDetail returns Plaid's error payload summary when err came from Plaid.
func (ErrorClassifier) ProviderDetail(err error) (string, bool) {
	d := errs.Detail(err)
	return d, d != ""
}

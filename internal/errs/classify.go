package errs

import "errors"

// IsFatal reports whether err (or anything it wraps) should skip queue retries.
func IsFatal(err error) bool {
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return true
	}
	var notFound *NotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	var validation *ValidationError
	return errors.As(err, &validation)
}

// IsTransient reports whether err is worth retrying. Unknown errors are
// treated as transient so the queue retry policy decides.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if IsFatal(err) {
		return false
	}
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Transient
	}
	return true
}

// Detail returns the provider-specific detail attached to err, if any.
func Detail(err error) string {
	var ext *ExternalServiceError
	if errors.As(err, &ext) {
		return ext.Detail
	}
	return ""
}

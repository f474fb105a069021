package provider

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// Error is a failed backend call. StatusCode is zero for transport failures.
type Error struct {
	Provider   string
	StatusCode int
	Code       string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(" request failed")
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " [%s]", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// IsQuota reports whether the backend refused the call for rate or billing limits.
func (e *Error) IsQuota() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch e.Code {
	case "insufficient_quota", "rate_limit_exceeded", "rate_limit_error":
		return true
	}
	return false
}

// IsQuota reports whether err carries a provider quota failure.
func IsQuota(err error) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.IsQuota()
}

// classify wraps SDK errors into *Error so callers never import SDK types.
func classify(providerName string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}

	out := &Error{Provider: providerName, Err: err}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		out.StatusCode = oaiErr.StatusCode
		out.Code = oaiErr.Code
		return out
	}

	var anthErr *anthropic.Error
	if errors.As(err, &anthErr) {
		out.StatusCode = anthErr.StatusCode
		return out
	}

	return out
}

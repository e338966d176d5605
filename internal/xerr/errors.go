// Package xerr provides the typed error hierarchy used across the
// Convert rebalancing system. Every error that can occur while talking to
// the exchange is categorized once, here, and that category drives the
// retry/skip decision at the HTTP client (C1) and the Convert executor (C8).
//
// This replaces the pattern observed in original_source/src/core/convert_errors.py
// of scattering error-code checks across call sites.
package xerr

import "fmt"

// Kind categorizes an error for retry/skip policy purposes, per the
// error-kind table.
type Kind string

const (
	KindTransient        Kind = "transient"         // network timeout, HTTP 429/418/5xx, -1003
	KindClockSkew        Kind = "clock_skew"         // -1021
	KindConfigAuth       Kind = "config_auth"        // -1022, -2015
	KindClientRequest    Kind = "client_request"     // -1102, -1111
	KindBusinessRule     Kind = "business_rule"      // insufficient balance, below min, above max, delisted
	KindQuoteExpired     Kind = "quote_expired"
	KindDuplicateAccept  Kind = "duplicate_accept"
	KindDailyLimit       Kind = "daily_limit" // code 345239 / "hourly"
)

// Error is the single typed error used throughout the system.
type Error struct {
	Kind    Kind
	Code    string // exchange error code, if any, e.g. "-1021"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a typed Error.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap builds a typed Error around an underlying cause.
func Wrap(kind Kind, code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

// Is reports whether err is a typed Error of the given Kind.
func Is(err error, kind Kind) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == kind
}

// Retryable reports whether the error kind should be retried by the
// HTTP client's backoff policy (Transient and ClockSkew only; ClockSkew
// is retried exactly once by the caller after refreshing the clock offset).
func Retryable(err error) bool {
	te, ok := err.(*Error)
	if !ok {
		return false
	}
	return te.Kind == KindTransient || te.Kind == KindClockSkew
}

// classifyCode maps a Binance-style numeric error code to a Kind. Codes
// not recognized here are treated as business-rule errors (skip and log).
func classifyCode(code string) Kind {
	switch code {
	case "-1003", "-1021":
		if code == "-1021" {
			return KindClockSkew
		}
		return KindTransient
	case "-1022", "-2015":
		return KindConfigAuth
	case "-1102", "-1111":
		return KindClientRequest
	case "345239":
		return KindDailyLimit
	default:
		return KindBusinessRule
	}
}

// FromExchangeCode builds a typed Error from an exchange-returned code/message pair.
func FromExchangeCode(code, message string) *Error {
	return New(classifyCode(code), code, message)
}

// FromHTTPStatus builds a typed Error from a raw HTTP status code.
func FromHTTPStatus(status int, body string) *Error {
	switch {
	case status == 429 || status == 418 || status >= 500:
		return New(KindTransient, fmt.Sprintf("http_%d", status), body)
	default:
		return New(KindClientRequest, fmt.Sprintf("http_%d", status), body)
	}
}

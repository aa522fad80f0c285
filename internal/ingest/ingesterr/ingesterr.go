package ingesterr

import (
	"errors"
	"fmt"
)

// Kind groups errors by how the pipeline recovers from them.
type Kind string

const (
	// KindValidation: reject the record, batch continues.
	KindValidation Kind = "validation"
	// KindConflict: flag the record for manual review, batch continues.
	KindConflict Kind = "conflict"
	// KindAmbiguous: resolution matched more than one candidate, flag for review.
	KindAmbiguous Kind = "ambiguous"
	// KindConsistency: internal invariant broken, abort the record and surface loudly.
	KindConsistency Kind = "consistency"
)

// Reason codes: every rejected or flagged record carries exactly one.
const (
	CodeMissingRequiredField      = "missing_required_field"
	CodeInvalidAmountCurrencyPair = "invalid_amount_currency_pair"
	CodeInvalidFundingPercentage  = "invalid_funding_percentage"
	CodeMergeConflict             = "merge_conflict"
	CodeDuplicateStrongIdentifier = "duplicate_strong_identifier"
	CodeAmbiguousEntityMatch      = "ambiguous_entity_match"
	CodeForeignKeyUnresolved      = "foreign_key_unresolved"
)

type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Code: code, Err: err}
}

func Validation(code string, format string, args ...interface{}) *Error {
	return New(KindValidation, code, fmt.Errorf(format, args...))
}

func Conflict(code string, format string, args ...interface{}) *Error {
	return New(KindConflict, code, fmt.Errorf(format, args...))
}

func Ambiguous(format string, args ...interface{}) *Error {
	return New(KindAmbiguous, CodeAmbiguousEntityMatch, fmt.Errorf(format, args...))
}

func Consistency(code string, format string, args ...interface{}) *Error {
	return New(KindConsistency, code, fmt.Errorf(format, args...))
}

// KindOf returns the ingest kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return ""
}

// CodeOf returns the reason code of err, or "" when err carries none.
func CodeOf(err error) string {
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Code
	}
	return ""
}

func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsConflict(err error) bool    { return KindOf(err) == KindConflict }
func IsAmbiguous(err error) bool   { return KindOf(err) == KindAmbiguous }
func IsConsistency(err error) bool { return KindOf(err) == KindConsistency }

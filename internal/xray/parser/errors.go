package parser

import (
	"errors"
	"fmt"
)

// Error kinds. Every ParseError matches exactly one of these with errors.Is.
var (
	ErrInvalidScheme = errors.New("vmess link must start with vmess://")
	ErrInvalidBase64 = errors.New("vmess link base64 payload is invalid")
	ErrInvalidJSON   = errors.New("vmess link payload is not a JSON object")
	ErrMissingField  = errors.New("vmess link is missing a field")
	ErrInvalidPort   = errors.New("vmess link port is invalid")
	ErrInvalidUserID = errors.New("vmess user id must be a UUID")
)

// ParseError carries the failed step and, for field errors, the wire key.
type ParseError struct {
	Kind  error
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Kind.Error()
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Field)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func fail(kind error, field string, err error) *ParseError {
	return &ParseError{Kind: kind, Field: field, Err: err}
}

// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrValidation indicates a client request is missing or has malformed fields.
var ErrValidation = errors.New("validation error")

// ErrUpstream indicates the payment provider call failed.
var ErrUpstream = errors.New("upstream error")

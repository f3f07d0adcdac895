// Copyright 2024 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package execerror defines the classes of errors that the execution engine
// surfaces. Classes are expressed as error marks so that they survive
// wrapping, and every constructor keeps the original cause in the chain.
package execerror

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrSetup marks malformed plan or configuration input, detected before
	// the first batch is pulled. Setup errors are never retried.
	ErrSetup = errors.New("setup error")
	// ErrUnsupportedConfiguration marks a recognized but unimplemented mode,
	// such as an unknown reader type.
	ErrUnsupportedConfiguration = errors.New("unsupported configuration")
	// ErrComparison marks join key pairs that cannot be ordered.
	ErrComparison = errors.New("comparison error")
	// ErrAllocation marks failures of the memory accounting contract.
	ErrAllocation = errors.New("allocation failure")
	// ErrArity marks operator reconstruction with the wrong number of children.
	ErrArity = errors.New("arity error")
	// ErrIteratorClosed marks use of a reader iterator after Close.
	ErrIteratorClosed = errors.New("iterator closed")
)

// NewSetupError wraps cause as a setup error. The message describes what was
// being set up; details name the split or table at fault.
func NewSetupError(cause error, msg string, details ...string) error {
	if cause == nil {
		cause = errors.New(msg)
	} else {
		cause = errors.Wrap(cause, msg)
	}
	for _, d := range details {
		cause = errors.WithDetail(cause, d)
	}
	return errors.Mark(cause, ErrSetup)
}

// NewSetupErrorf creates a setup error with no underlying cause.
func NewSetupErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrSetup)
}

// NewUnsupportedConfigurationErrorf creates an unsupported configuration
// error.
func NewUnsupportedConfigurationErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrUnsupportedConfiguration)
}

// NewComparisonErrorf creates a comparison error.
func NewComparisonErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrComparison)
}

// NewAllocationError wraps a failure of the memory accounting contract.
func NewAllocationError(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrAllocation)
}

// NewArityErrorf creates an arity error.
func NewArityErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.NewWithDepthf(1, format, args...), ErrArity)
}

// IsSetupError returns whether err is a setup error.
func IsSetupError(err error) bool { return errors.Is(err, ErrSetup) }

// IsUnsupportedConfigurationError returns whether err is an unsupported
// configuration error.
func IsUnsupportedConfigurationError(err error) bool {
	return errors.Is(err, ErrUnsupportedConfiguration)
}

// IsComparisonError returns whether err is a comparison error.
func IsComparisonError(err error) bool { return errors.Is(err, ErrComparison) }

// IsAllocationError returns whether err is an allocation failure.
func IsAllocationError(err error) bool { return errors.Is(err, ErrAllocation) }

// IsArityError returns whether err is an arity error.
func IsArityError(err error) bool { return errors.Is(err, ErrArity) }

// IsRetryable returns whether an error may succeed if the operation is
// attempted again. Setup, configuration and arity errors never are.
func IsRetryable(err error) bool {
	return err != nil && !IsSetupError(err) && !IsUnsupportedConfigurationError(err) &&
		!IsArityError(err) && !IsComparisonError(err)
}

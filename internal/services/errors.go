// Package services defines the business logic for transactions and insight
// generation. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import "errors"

var (
	// ErrTransactionNotFound indicates that the requested transaction does not
	// exist or is not accessible to the current user.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrEmptyMerchant is returned when a transaction arrives without a
	// merchant name.
	ErrEmptyMerchant = errors.New("merchant is empty")

	// ErrInvalidDate is returned when a transaction date is not a valid
	// YYYY-MM-DD calendar date.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD")

	// ErrNegativeAmount is returned when a transaction total or item price is
	// below zero.
	ErrNegativeAmount = errors.New("amount must not be negative")

	// ErrTooManyItems is returned when a transaction carries more line items
	// than the configured maximum.
	ErrTooManyItems = errors.New("too many line items")

	// ErrInvalidFeedback is returned when a feedback value is outside the
	// allowed set (currently -1 or 1).
	ErrInvalidFeedback = errors.New("feedback value must be -1 or 1")

	// ErrUnknownInsight is returned when a user rates an insight that does
	// not appear in their shown history.
	ErrUnknownInsight = errors.New("insight was not shown to this user")

	// ErrDuplicateFeedback is returned when a user attempts to rate an
	// insight they have already rated.
	ErrDuplicateFeedback = errors.New("feedback already exists")
)

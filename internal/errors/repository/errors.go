package repository

import "errors"

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrOrderAlreadyExists = errors.New("order already exists")
	ErrHoldingNotFound    = errors.New("holding not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrStatusConflict     = errors.New("order status conflict")
	ErrDuplicateExecution = errors.New("execution already recorded for order")
	ErrPartialApplication = errors.New("execution partially applied")
	ErrPriceCacheMiss     = errors.New("price not cached")
)

package utils

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrSignatureInvalid   = errors.New("invalid webhook signature")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrDatabaseError      = errors.New("database error")
	ErrInvalidPage        = fmt.Errorf("%w: invalid page parameter", ErrValidation)
	ErrInvalidPageSize    = fmt.Errorf("%w: invalid page size parameter", ErrValidation)

	ErrInvalidAmount         = fmt.Errorf("%w: amount out of range", ErrValidation)
	ErrOrderAlreadyPaid      = fmt.Errorf("%w: order already paid", ErrValidation)
	ErrOrderCancelled        = fmt.Errorf("%w: order is cancelled", ErrValidation)
	ErrTransactionInProgress = fmt.Errorf("%w: order already has a payment in progress", ErrValidation)
	ErrTransactionCompleted  = fmt.Errorf("%w: transaction already completed", ErrValidation)
	ErrTransactionNotFound   = fmt.Errorf("%w: transaction", ErrNotFound)
	ErrOrderNotFound         = fmt.Errorf("%w: order", ErrNotFound)
)

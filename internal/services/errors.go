// internal/services/errors.go
package services

import (
	"errors"
	"fmt"

	"github.com/javajoker/partner-engine/internal/commission"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/utils"
)

var (
	ErrNotFound                = repository.ErrNotFound
	ErrLinkNotFound            = errors.New("link not found")
	ErrCodeGenerationExhausted = errors.New("short code generation exhausted")
	ErrBatchAlreadyOpen        = errors.New("settlement batch already open for partner and period")
	ErrBatchCloseIncomplete    = errors.New("settlement batch close incomplete")
	ErrBatchOpen               = errors.New("settlement batch is still open")
	ErrConcurrentModification  = errors.New("concurrent modification")
	ErrUsageCapExceeded        = errors.New("policy usage cap exceeded")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrForbidden               = errors.New("forbidden")
	ErrPayoutNotConfigured     = errors.New("payout gateway not configured")
)

// ValidationError is shared with the commission engine so handlers map both
// the same way.
type ValidationError = commission.ValidationError

func invalid(field, format string, args ...interface{}) error {
	return commission.NewValidationError(field, format, args...)
}

func validateRequest(req interface{}) error {
	if err := utils.ValidateStruct(req); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func transition(from, to interface{}) error {
	return fmt.Errorf("%w: %v -> %v", ErrInvalidTransition, from, to)
}

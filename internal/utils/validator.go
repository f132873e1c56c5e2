// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var (
	shortCodePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{4,32}$`)
	currencyPattern  = regexp.MustCompile(`^[A-Z]{3}$`)
	periodKeyPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2]|W(0[1-9]|[1-4]\d|5[0-3]))$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("short_code", validateShortCode)
	validate.RegisterValidation("currency", validateCurrency)
	validate.RegisterValidation("period_key", validatePeriodKey)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateShortCode(fl validator.FieldLevel) bool {
	return shortCodePattern.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

// validatePeriodKey accepts calendar months (2025-03) and ISO weeks (2025-W09).
func validatePeriodKey(fl validator.FieldLevel) bool {
	return periodKeyPattern.MatchString(fl.Field().String())
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "uuid":
		return e.Field() + " must be a UUID"
	case "url":
		return e.Field() + " must be a URL"
	case "short_code":
		return "Short code must be 4-32 characters of letters, digits, '-' or '_'"
	case "currency":
		return "Currency must be a three letter ISO 4217 code"
	case "period_key":
		return "Period must look like 2025-03 or 2025-W09"
	default:
		return e.Field() + " is invalid"
	}
}

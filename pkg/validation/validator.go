// Package validation wraps go-playground/validator/v10 with the custom
// rules the audit pipeline's configuration schema needs.
package validation

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the validator library with custom validation rules.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance with the pipeline's
// custom rules registered.
func NewValidator() *Validator {
	v := validator.New()
	v.RegisterValidation("hex_key", validateHexKey)
	return &Validator{validate: v}
}

// Validate validates a struct and returns an error describing every
// failing field if validation fails.
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		return fmt.Errorf("validation: %w", err)
	}
	return nil
}

var hexKeyPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// validateHexKey checks that a field is a non-empty hex-encoded string,
// used for the pseudonymization HMAC/encryption key fields.
func validateHexKey(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return value != "" && hexKeyPattern.MatchString(value)
}

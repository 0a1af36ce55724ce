package validate

import (
	"github.com/go-playground/validator/v10"
)

var v = validator.New(validator.WithRequiredStructEnabled())

// Phone reports whether the value is a dialable E.164 phone number.
func Phone(number string) bool {
	return v.Var(number, "required,e164") == nil
}

// Struct validates a payload struct against its validate tags.
func Struct(payload any) error {
	return v.Struct(payload)
}

package validator

import (
	"fmt"

	playground "github.com/go-playground/validator/v10"
)

// Recipient validation rules per channel: phone channels require an
// E.164 number, email requires a well-formed address.
var validate = playground.New()

// ValidatePhone checks an E.164 recipient ("+15551234567").
func ValidatePhone(recipient string) error {
	if err := validate.Var(recipient, "required,e164"); err != nil {
		return fmt.Errorf("recipient must be an E.164 phone number")
	}
	return nil
}

// ValidateEmail checks an email recipient.
func ValidateEmail(recipient string) error {
	if err := validate.Var(recipient, "required,email"); err != nil {
		return fmt.Errorf("recipient must be a valid email address")
	}
	return nil
}

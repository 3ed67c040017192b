package sepa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jbub/banking/iban"
)

var ErrInvalidIBAN = errors.New("invalid IBAN")

// NormalizeIBAN strips spaces and upper-cases the value.
func NormalizeIBAN(value string) string {
	return strings.ToUpper(strings.Join(strings.Fields(value), ""))
}

// ValidateIBAN checks the country layout and the mod-97 checksum of value
// after normalizing it.
func ValidateIBAN(value string) error {
	if err := iban.Validate(NormalizeIBAN(value)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIBAN, err)
	}
	return nil
}

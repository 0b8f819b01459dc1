package market

import (
	"regexp"
	"strings"

	"github.com/ZilDuck/solana-card-market/internal/entity"
	"github.com/go-playground/validator/v10"
)

var (
	validate = validator.New()
	handleRe = regexp.MustCompile(`^@?[A-Za-z0-9_]{3,32}$`)
)

// ValidateContact requires at least one channel and checks the format of each one given.
func ValidateContact(c entity.Contact) (entity.Contact, error) {
	c.Email = strings.TrimSpace(c.Email)
	c.Handle = strings.TrimSpace(c.Handle)

	if c.Empty() {
		return c, precondition(ErrMissingContact, "")
	}
	if c.Email != "" {
		if err := validate.Var(c.Email, "email"); err != nil {
			return c, precondition(ErrInvalidContact, "email")
		}
	}
	if c.Handle != "" && !handleRe.MatchString(c.Handle) {
		return c, precondition(ErrInvalidContact, "handle")
	}

	return c, nil
}

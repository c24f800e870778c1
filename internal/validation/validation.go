// Package validation checks user input before it reaches a remote call.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/jeffersonhds/storefront/internal/apperr"
	"github.com/jeffersonhds/storefront/internal/domain"
)

const (
	MinPasswordLength = 6
	MinNameLength     = 3
)

var emailRe = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

var (
	ErrEmailRequired    = errors.New("email is required")
	ErrInvalidEmail     = errors.New("invalid email")
	ErrPasswordRequired = errors.New("password is required")
	ErrShortPassword    = errors.New("password must have at least 6 characters")
	ErrNameRequired     = errors.New("name is required")
	ErrShortName        = errors.New("name must have at least 3 characters")
	ErrInvalidCEP       = errors.New("invalid CEP, type the 8 digits")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrAddressRequired  = errors.New("address is required")
)

func Email(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmailRequired
	}
	if !emailRe.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func Password(password string) error {
	if password == "" {
		return ErrPasswordRequired
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrShortPassword
	}
	return nil
}

func Name(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	if utf8.RuneCountInString(name) < MinNameLength {
		return ErrShortName
	}
	return nil
}

// CEP returns the 8 digits of a Brazilian postal code, accepting "01310-100".
func CEP(raw string) (string, error) {
	digits := Digits(raw)
	if len(digits) != 8 {
		return "", ErrInvalidCEP
	}
	return digits, nil
}

// Phone accepts 10 or 11 digits (area code included) in any formatting.
func Phone(raw string) error {
	n := len(Digits(raw))
	if n < 10 || n > 11 {
		return ErrInvalidPhone
	}
	return nil
}

func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SignIn only checks the email format and that a password was typed; length
// rules apply to new passwords.
func SignIn(email, password string) error {
	return invalid("auth.sign_in", errors.Join(Email(email), required(password, ErrPasswordRequired)))
}

func SignUp(name, email, password string) error {
	return invalid("auth.sign_up", errors.Join(Name(name), Email(email), Password(password)))
}

func Customer(c domain.CustomerInfo) error {
	return invalid("checkout.customer", errors.Join(
		Name(c.Name),
		required(c.Address, ErrAddressRequired),
		Phone(c.PhoneNumber),
	))
}

func required(v string, err error) error {
	if strings.TrimSpace(v) == "" {
		return err
	}
	return nil
}

func invalid(op string, err error) error {
	if err == nil {
		return nil
	}
	return apperr.New(apperr.KindInvalid, op, err)
}

package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-api-accounts/internal/domain"
	"github.com/go-playground/validator/v10"
)

// v is the package-level singleton validator. It is initialised once at
// package load time. Any custom type registrations must be made during init()
// before the first call to Struct.
var v = validator.New()

func init() {
	// "role" accepts only the registrable roles.
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return domain.ValidRole(fl.Field().String())
	})
}

// Struct validates the given struct using its validate tags.
// The returned error wraps domain.ErrValidation and lists every failed field.
func Struct(s interface{}) error {
	if err := v.Struct(s); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		msgs := make([]string, 0, len(ve))
		for _, fe := range ve {
			msgs = append(msgs, message(fe))
		}
		return fmt.Errorf("%s: %w", strings.Join(msgs, "; "), domain.ErrValidation)
	}
	return nil
}

// Var validates a single value against tag, e.g. Var(email, "required,email").
func Var(field string, value interface{}, tag string) error {
	if err := v.Var(value, tag); err != nil {
		return fmt.Errorf("field '%s' is invalid: %w", field, domain.ErrValidation)
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "eqfield":
		return fmt.Sprintf("field '%s' must match '%s'", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("field '%s' must be one of [%s]", fe.Field(), fe.Param())
	case "role":
		return fmt.Sprintf("field '%s' must be one of [%s %s]", fe.Field(), domain.RoleCustomer, domain.RoleSeller)
	default:
		return fmt.Sprintf("field '%s' failed '%s'", fe.Field(), fe.Tag())
	}
}

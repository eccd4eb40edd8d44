// Package validation checks request structs with go-playground/validator and
// renders failures as English messages keyed by JSON field names.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslation "github.com/go-playground/validator/v10/translations/en"
)

// Validator is safe for concurrent use.
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New builds a Validator with English translations registered.
func New() (*Validator, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	enLocale := en.New()
	translator, found := ut.New(enLocale, enLocale).GetTranslator("en")
	if !found {
		return nil, errors.New("en translator was not found")
	}
	if err := enTranslation.RegisterDefaultTranslations(validate, translator); err != nil {
		return nil, fmt.Errorf("register translations: %w", err)
	}

	// Use JSON field names in messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: validate, translator: translator}, nil
}

// Struct validates value and returns the first failure message, or "" when valid.
func (v *Validator) Struct(value any) (string, error) {
	err := v.validate.Struct(value)
	if err == nil {
		return "", nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return "", err
	}
	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, fieldErr.Translate(v.translator))
	}
	return strings.Join(messages, "; "), nil
}

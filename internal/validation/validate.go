// Package validation wraps go-playground/validator with readable errors.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks value's struct tags.
func Validate[T any](value T) (T, error) {
	if err := validate.Struct(value); err != nil {
		return value, ValidationErrorToString(value, err)
	}
	return value, nil
}

// ValidationErrorToString flattens validator errors into one message.
func ValidationErrorToString(input any, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s=%s'", fe.StructField(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("field '%s' failed rule '%s'", fe.StructField(), fe.Tag()))
	}
	return fmt.Errorf("invalid %T: %s", input, strings.Join(parts, "; "))
}

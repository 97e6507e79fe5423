// Package validator turns go-playground validation failures into the
// per-field details object carried in 400 responses.
package validator

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// Details extracts field-level errors from a gin binding error. Returns nil
// when the error carries no field information.
func Details(err error) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	if len(fields) == 0 {
		return nil
	}
	return map[string]any{"field_errors": fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "is below the minimum"
	case "eq":
		return "has an unexpected value"
	case "oneof":
		return "must be one of the allowed values"
	default:
		return "is invalid"
	}
}

// Package bind decodes and validates JSON request bodies.
//
// Validation uses go-playground/validator struct tags; failures are
// reported through the wrapper state as a structured validation error
// with per-field messages.
package bind

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/nhalm/apiman/internal/wrapper"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		if name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]; name != "" && name != "-" {
			return name
		}
		return fld.Name
	})
}

// JSON decodes the request body into dest and validates it.
// Returns true if binding and validation succeeded, false otherwise.
// When either fails, an error is set in the wrapper context.
func JSON(r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		wrapper.SetError(r, wrapper.ErrBadRequest.With("Invalid JSON request body"))
		return false
	}

	if err := validate.Struct(dest); err != nil {
		wrapper.SetError(r, wrapper.NewValidationError(translateErrors(err)))
		return false
	}

	return true
}

func translateErrors(err error) []wrapper.FieldError {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return []wrapper.FieldError{{Code: "invalid", Message: err.Error()}}
	}

	fieldErrors := make([]wrapper.FieldError, 0, len(validationErrors))
	for _, fe := range validationErrors {
		fieldErrors = append(fieldErrors, wrapper.FieldError{
			Param:   fe.Field(),
			Code:    fe.Tag(),
			Message: formatMessage(fe.Tag(), fe.Param()),
		})
	}
	return fieldErrors
}

func formatMessage(tag, param string) string {
	switch tag {
	case "required":
		return "required"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	default:
		if param != "" {
			return tag + "=" + param
		}
		return tag
	}
}

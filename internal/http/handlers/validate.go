package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"courier-dispatch/internal/apperr"
	"courier-dispatch/internal/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	if err := validate.RegisterValidation("delivery_status", validateDeliveryStatus); err != nil {
		panic(err)
	}
}

func validateDeliveryStatus(fl validator.FieldLevel) bool {
	return domain.Status(fl.Field().String()).Valid()
}

// validateStruct turns the first failed rule into an apperr.ValidationError
// named after the JSON path of the field.
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Invalid("", err.Error())
	}
	fe := fieldErrs[0]
	return apperr.Invalid(fieldPath(fe.Namespace()), reason(fe))
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "required"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "max":
		return fmt.Sprintf("at most %s characters", fe.Param())
	case "gte", "lte":
		return "out of range"
	case "delivery_status":
		return "unknown status"
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

package validation

import (
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"
)

// New returns a configured validator. Field errors are reported under the
// JSON field name, and "notblank" rejects whitespace-only strings.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("notblank", notBlank)

	return v
}

func notBlank(fl validatorv10.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

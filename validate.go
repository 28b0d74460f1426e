package crmledger

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	lastFourPattern = regexp.MustCompile(`^[0-9]{4}$`)
	expiryPattern   = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON name.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("lastfour", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag
		return lastFourPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("expiry", func(fl validator.FieldLevel) bool { //nolint:errcheck // static tag
		return expiryPattern.MatchString(fl.Field().String())
	})

	return v
}

// check validates in against its struct tags and converts failures into
// ValidationError values.
func (l *Ledger) check(in any) error {
	err := l.validate.Struct(in)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return ValidationError{Field: "input", Message: err.Error()}
	}

	var multi MultiError
	for _, fe := range verrs {
		multi.Add(ValidationError{Field: fe.Field(), Message: describe(fe)})
	}
	if len(multi.Errors) == 1 {
		return multi.Errors[0]
	}
	return multi
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "lowercase":
		return "must be lowercase"
	case "timezone":
		return "must be an IANA time zone"
	case "ltefield":
		return "must not exceed " + fe.Param()
	case "lastfour":
		return "must be exactly four digits"
	case "expiry":
		return "must be MM/YY"
	}
	return "failed " + fe.Tag() + " check"
}

func invalid(field, msg string) error {
	return ValidationError{Field: field, Message: msg}
}

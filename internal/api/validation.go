package api

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("tier", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if s == "" {
			return true
		}
		_, ok := tier.ParseLabel(s)
		return ok
	})
	_ = v.RegisterValidation("degree", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		return s == "" || model.CanonicalDegree(s) != ""
	})
	_ = v.RegisterValidation("gradyear", func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		if s == "" {
			return true
		}
		year, err := strconv.Atoi(s)
		return err == nil && len(s) == 4 && year >= 1900 && year <= 2100
	})
	return v
}

// describe renders validator failures as field -> message.
func describe(errs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = "is required"
		case "min", "max":
			out[field] = fmt.Sprintf("length must satisfy %s=%s", fe.Tag(), fe.Param())
		case "len":
			out[field] = fmt.Sprintf("must be %s characters", fe.Param())
		case "startswith":
			out[field] = fmt.Sprintf("must start with %q", fe.Param())
		case "gradyear":
			out[field] = "must be a year between 1900 and 2100"
		default:
			out[field] = "is not a valid " + fe.Tag()
		}
	}
	return out
}

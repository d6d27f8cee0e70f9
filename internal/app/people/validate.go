package people

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/convention-registry/member-api/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("membership", func(fl validator.FieldLevel) bool {
		return domain.Membership(fl.Field().String()).Valid()
	}); err != nil {
		panic(fmt.Sprintf("register membership validation: %v", err))
	}
	return v
}

func validateNewPerson(p NewPerson) error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return inputError(err.Error(), nil)
	}
	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = "failed " + fe.Tag() + " validation"
	}
	return inputError("invalid person", details)
}

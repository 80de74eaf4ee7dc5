package robots

import (
	"errors"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Field rules. The Draft struct tags carry the same rules.
const (
	nameRules     = "notblank"
	priceRules    = "gte=0,finite"
	imageURLRules = "required,url"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	if err := v.RegisterValidation("notblank", notBlank); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("finite", finite); err != nil {
		panic(err)
	}
	return v
}

func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

func finite(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Validate checks every field of the draft and returns the first failure as a
// *ValidationError, in field order: name, price, imageUrl.
func (d Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return toValidationError("", err)
	}
	return nil
}

// Validate checks only the fields present in the patch.
func (p Patch) Validate() error {
	if p.Name != nil {
		if err := validate.Var(*p.Name, nameRules); err != nil {
			return toValidationError("name", err)
		}
	}
	if p.Price != nil {
		if err := validate.Var(*p.Price, priceRules); err != nil {
			return toValidationError("price", err)
		}
	}
	if p.ImageURL != nil {
		if err := validate.Var(*p.ImageURL, imageURLRules); err != nil {
			return toValidationError("imageUrl", err)
		}
	}
	return nil
}

// ParsePrice converts user-entered text into a price.
func ParsePrice(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ValidationError{Field: "price", Reason: "must be a number"}
	}
	if err := validate.Var(f, priceRules); err != nil {
		return 0, toValidationError("price", err)
	}
	return f, nil
}

func toValidationError(field string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if field == "" {
			field = fe.Field()
		}
		return &ValidationError{Field: field, Reason: reason(fe.Tag())}
	}
	return &ValidationError{Field: field, Reason: err.Error()}
}

func reason(tag string) string {
	switch tag {
	case "required", "notblank":
		return "must not be empty"
	case "gte":
		return "must be a non-negative number"
	case "finite":
		return "must be a finite number"
	case "url":
		return "must be a valid URL"
	default:
		return "failed " + tag + " check"
	}
}

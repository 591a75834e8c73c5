package candidates

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var phonePattern = regexp.MustCompile(`^[0-9\-+\s()]+$`)

const (
	MinAge = 18
	MaxAge = 80
)

// CityChecker reports whether a city name is known.
type CityChecker interface {
	Contains(name string) bool
}

// ValidationError maps form field names to messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// formInput carries the registration rules as validator tags. Strings are
// trimmed before validation.
type formInput struct {
	FullName            string `json:"fullName" validate:"required,min=2"`
	Email               string `json:"email" validate:"required,email"`
	PhoneNumber         string `json:"phoneNumber" validate:"required,phone"`
	Age                 int    `json:"age" validate:"gte=18,lte=80"`
	City                string `json:"city" validate:"required,knowncity"`
	Hobbies             string `json:"hobbies" validate:"required"`
	WhyPerfectCandidate string `json:"whyPerfectCandidate" validate:"required,min=20"`
}

type cityCheckerKey struct{}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	must(v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	}))
	must(v.RegisterValidationCtx("knowncity", func(ctx context.Context, fl validator.FieldLevel) bool {
		cities, _ := ctx.Value(cityCheckerKey{}).(CityChecker)
		return cities == nil || cities.Contains(fl.Field().String())
	}))
	return v
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}

// ValidateForm applies the registration form rules. The store does not call
// it; callers validate before Add or Update. A nil cities skips the city
// membership check.
func ValidateForm(f Form, cities CityChecker) error {
	in := formInput{
		FullName:            strings.TrimSpace(f.FullName),
		Email:               strings.TrimSpace(f.Email),
		PhoneNumber:         strings.TrimSpace(f.PhoneNumber),
		Age:                 f.Age,
		City:                strings.TrimSpace(f.City),
		Hobbies:             strings.TrimSpace(f.Hobbies),
		WhyPerfectCandidate: strings.TrimSpace(f.WhyPerfectCandidate),
	}
	ctx := context.Background()
	if cities != nil {
		ctx = context.WithValue(ctx, cityCheckerKey{}, cities)
	}

	err := validate.StructCtx(ctx, in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate form: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	case "phone":
		return "may contain only digits, spaces, and + - ( )"
	case "gte", "lte":
		return fmt.Sprintf("must be between %d and %d", MinAge, MaxAge)
	case "knowncity":
		return "please select a city from the list"
	}
	return fmt.Sprintf("failed %s", fe.Tag())
}

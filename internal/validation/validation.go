// Package validation checks request payloads at the HTTP boundary.
package validation

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"caregiver-hub/pkg/apierror"
)

const passwordSpecials = "@$!%*?&"

var personNamePattern = regexp.MustCompile(`^[a-zA-Z\s\-']+$`)

type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = validate.RegisterValidation("password_strength", validatePasswordStrength)
	_ = validate.RegisterValidation("person_name", validatePersonName)

	return &Validator{validate: validate}
}

// Struct validates v and returns a VALIDATION_FAILED API error listing every
// failing field.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return fmt.Errorf("validate request: %w", err)
	}

	details := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		details = append(details, describe(fieldErr))
	}

	return apierror.New("VALIDATION_FAILED", "request validation failed", strings.Join(details, "; "), http.StatusBadRequest)
}

func describe(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", field, fe.Param())
	case "datetime":
		return field + " must be a date in YYYY-MM-DD format"
	case "url":
		return field + " must be a valid URL"
	case "password_strength":
		return field + " must contain a lowercase letter, an uppercase letter, a digit and one of " + passwordSpecials
	case "person_name":
		return field + " may only contain letters, spaces, hyphens and apostrophes"
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

// fieldPath drops the top-level struct name from the namespace, so a nested
// field reads "device_info.device_id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func validatePasswordStrength(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= '0' && r <= '9':
			hasDigit = true
		case strings.ContainsRune(passwordSpecials, r):
			hasSpecial = true
		}
	}

	return hasLower && hasUpper && hasDigit && hasSpecial
}

func validatePersonName(fl validator.FieldLevel) bool {
	return personNamePattern.MatchString(fl.Field().String())
}

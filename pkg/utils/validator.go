package utils

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/turtacn/littlejwt/pkg/errors"
)

var defaultValidator *validator.Validate

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

func init() {
	defaultValidator = validator.New()
	_ = defaultValidator.RegisterValidation("uuid", validateUUID)
}

// ValidateStruct validates a struct using the default validator.
// Field failures are collected into a single config error whose metadata maps
// snake_case field paths to messages.
func ValidateStruct(s interface{}) error {
	err := defaultValidator.Struct(s)
	if err == nil {
		return nil
	}
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return errors.Wrap(err, errors.CodeConfig, "validation could not run")
	}

	details := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		details[fieldPath(fe.Namespace())] = formatValidationError(fe)
	}
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+details[k])
	}
	out := errors.Config("invalid configuration: %s", strings.Join(parts, "; "))
	for _, k := range keys {
		out = out.WithMetadata(k, details[k])
	}
	return out
}

// IsUUID reports whether s parses as a UUID.
func IsUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func validateUUID(fl validator.FieldLevel) bool {
	return IsUUID(fl.Field().String())
}

// formatValidationError creates a user-friendly error message for a validation error.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed on the '%s' tag", fe.Tag())
	}
}

// fieldPath drops the root struct name and snake_cases each segment.
func fieldPath(namespace string) string {
	segments := strings.Split(namespace, ".")
	if len(segments) > 1 {
		segments = segments[1:]
	}
	for i, s := range segments {
		segments[i] = toSnakeCase(s)
	}
	return strings.Join(segments, ".")
}

func toSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}

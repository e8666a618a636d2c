package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted YAML path, e.g. "storage.driver".
	Field string

	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError lists every invalid field.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("schedule", func(fl validator.FieldLevel) bool {
		spec := fl.Field().String()
		if spec == ScheduleOff {
			return true
		}
		_, err := cronParser.Parse(spec)
		return err == nil
	})
	return v
}

// ParseSchedule parses a revalidation schedule. It returns nil for "off".
func ParseSchedule(spec string) (cron.Schedule, error) {
	if spec == ScheduleOff {
		return nil, nil
	}
	return cronParser.Parse(spec)
}

// Validate checks every field and returns a ValidationError listing all
// problems, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
		}
	}
	if cfg.Blob.Driver == "s3" && cfg.Blob.S3.Bucket == "" {
		errs = append(errs, FieldError{Field: "blob.s3.bucket", Message: "bucket is required for the s3 driver"})
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		errs = append(errs, FieldError{Field: "storage.dsn", Message: "database path is required for the sqlite driver"})
	}
	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	_, rest, ok := strings.Cut(ns, ".")
	if !ok {
		return ns
	}
	return rest
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fe.Value())
	case "required", "required_if":
		return "is required"
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return fmt.Sprintf("must be a URL, got %q", fe.Value())
	case "schedule":
		return fmt.Sprintf("invalid cron expression %q", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

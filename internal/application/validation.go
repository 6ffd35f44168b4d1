package application

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidCommand is wrapped by every command envelope validation failure
var ErrInvalidCommand = errors.New("invalid command")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		// stream segments end up inside "stock-ledger:{warehouse}:{location}:{sku}"
		_ = validate.RegisterValidation("stream_segment", func(fl validator.FieldLevel) bool {
			v := fl.Field().String()
			return strings.TrimSpace(v) != "" && !strings.Contains(v, ":")
		})

		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})
	})
	return validate
}

// CommandValidationError lists the envelope fields that failed validation
type CommandValidationError struct {
	Fields map[string]string
}

func (e *CommandValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return fmt.Sprintf("%s: %s", ErrInvalidCommand, strings.Join(parts, ", "))
}

func (e *CommandValidationError) Unwrap() error { return ErrInvalidCommand }

// validateCommand checks struct tags on a command envelope
func validateCommand(cmd any) error {
	err := getValidator().Struct(cmd)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}

	fields := make(map[string]string, len(validationErrors))
	for _, fe := range validationErrors {
		fields[fe.Field()] = describe(fe)
	}
	return &CommandValidationError{Fields: fields}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "stream_segment":
		return "must be non-blank and must not contain ':'"
	default:
		return "is invalid"
	}
}

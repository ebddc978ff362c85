package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"skycheck/internal/suitability"
	"skycheck/internal/types"
)

var icaoTagPattern = regexp.MustCompile(`^[A-Za-z]{4}$`)

// ValidationError describes one failed field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects field failures and non-blocking warnings.
type ValidationResult struct {
	Errors   []ValidationError `json:"errors,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// IsValid reports whether there are no errors. Warnings do not count.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator with the domain tags:
//
//	icao            four letters
//	aircraft_class  jet, light or microlight
//	wind_unit       kmh, kt, mps, mph (empty allowed)
//	visibility_unit m, km, sm (empty allowed)
//
// Field names in errors follow the json tag.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator with the custom tags registered.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})

	// Registration only fails for empty tags or nil funcs.
	_ = v.RegisterValidation("icao", func(fl validator.FieldLevel) bool {
		return icaoTagPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("aircraft_class", func(fl validator.FieldLevel) bool {
		return types.AircraftClass(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("wind_unit", func(fl validator.FieldLevel) bool {
		_, err := suitability.ParseWindUnit(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("visibility_unit", func(fl validator.FieldLevel) bool {
		_, err := suitability.ParseVisibilityUnit(fl.Field().String())
		return err == nil
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates s and returns an AppError whose code follows the
// first failure. All failures are listed under details.validation_errors.
func (v *Validator) ValidateStruct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "request validation failed", err)
	}

	result := ValidationResult{}
	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, ValidationError{
			Field:   fieldPath(fe),
			Code:    fe.Tag(),
			Message: messageFor(fe),
		})
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(codeForTag(first.Code), first.Message, err,
		map[string]any{"validation_errors": result.Errors})
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func codeForTag(tag string) types.ErrorCode {
	switch tag {
	case "required":
		return types.ErrCodeValidationMissingField
	case "icao":
		return types.ErrCodeValidationInvalidICAO
	case "aircraft_class":
		return types.ErrCodeValidationInvalidAircraft
	case "wind_unit", "visibility_unit":
		return types.ErrCodeValidationInvalidUnit
	default:
		return types.ErrCodeValidationInvalidSnapshot
	}
}

func messageFor(fe validator.FieldError) string {
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "icao":
		return field + " must be a four letter ICAO code"
	case "aircraft_class":
		return field + " must be one of jet, light, microlight"
	case "wind_unit":
		return field + " must be one of kmh, kt, mps, mph"
	case "visibility_unit":
		return field + " must be one of m, km, sm"
	case "gte", "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte", "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

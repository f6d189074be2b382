package validation

import (
	"fmt"
	"strings"

	errors "github.com/frahmantamala/trading-panel/internal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Label      string
	Value      interface{}
	Validators []ValidatorFunc
}

// ValidationBuilder collects every failing field instead of stopping at the
// first one.
type ValidationBuilder struct {
	fields []*FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]*FieldValidator, 0),
	}
}

// Field registers a value under its key. The label is what users read in
// messages; when empty the key is used.
func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	return v.LabeledField(name, name, value)
}

func (v *ValidationBuilder) LabeledField(name, label string, value interface{}) *FieldValidator {
	if label == "" {
		label = name
	}
	fv := &FieldValidator{
		FieldName:  name,
		Label:      label,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return fv
}

// IsBlank reports whether a value counts as not filled in: nil, a nil
// pointer, or a string that is empty after trimming.
func IsBlank(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	case *string:
		return v == nil || strings.TrimSpace(*v) == ""
	case []byte:
		return len(strings.TrimSpace(string(v))) == 0
	}
	return false
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if IsBlank(value) {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.Label), errors.ErrCodeMissingField)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if len(v) > max {
				message := fmt.Sprintf("%s must not exceed %d characters", fv.Label, max)
				return errors.NewValidationFieldError(fv.FieldName, message, errors.ErrCodeValidationFailed)
			}
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			err := validator(field.Value)
			if err == nil {
				continue
			}
			if details, ok := err.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: err.Message,
				Code:    string(err.Code),
			})
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}

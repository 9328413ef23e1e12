package extraction

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/pbj-app/pbj-api/internal/models"
)

// ValidationError reports the specific paths that violate the structured
// record contract. Paths use wire field names, e.g.
// "records[1].behavior.severity".
type ValidationError struct {
	Paths []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("extraction payload violates contract at: %s", strings.Join(e.Paths, ", "))
}

// NewValidator builds the contract validator. The returned validator is pure:
// it performs no I/O and never mutates its input.
func NewValidator() *validator.Validate {
	v := validator.New()

	// Report wire names instead of Go field names in violation paths.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("behavior_category", func(fl validator.FieldLevel) bool {
		return models.BehaviorCategory(fl.Field().String()).IsValid()
	})

	_ = v.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})

	return v
}

// Validate checks raw tool-call arguments against the full nested contract,
// field by field, including closed-enumeration membership and required-field
// presence per sub-record. It never coerces or drops fields; on failure it
// returns a ValidationError naming every violating path.
func Validate(v *validator.Validate, raw json.RawMessage) (*Result, error) {
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &ValidationError{Paths: []string{fmt.Sprintf("(payload): %v", err)}}
	}

	if err := v.Struct(&result); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); !ok {
			return nil, &ValidationError{Paths: []string{fmt.Sprintf("(payload): %v", err)}}
		}
		paths := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			paths = append(paths, wirePath(fe.Namespace()))
		}
		return nil, &ValidationError{Paths: paths}
	}

	return &result, nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}

// wirePath strips the root struct name from a validator namespace, leaving
// the wire-level path ("Result.records[1].behavior.severity" →
// "records[1].behavior.severity").
func wirePath(namespace string) string {
	if idx := strings.Index(namespace, "."); idx >= 0 {
		return namespace[idx+1:]
	}
	return namespace
}

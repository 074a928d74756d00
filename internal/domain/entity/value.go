package entity

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/lllypuk/claimservice/internal/domain/errs"
)

//nolint:gochecknoglobals // validator caches struct metadata and is safe for concurrent use
var validate = validator.New()

// FieldError is a constraint violation on a single field.
type FieldError struct {
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match errs.ErrInvalidInput.
func (e *FieldError) Unwrap() error {
	return errs.ErrInvalidInput
}

// NewFieldError creates a FieldError.
func NewFieldError(field, message string) error {
	return &FieldError{Field: field, Message: message}
}

// Check normalizes v to the field's canonical Go type and applies its constraints.
// Canonical types are string, float64, int64, time.Time and []string.
func (f Field) Check(v any) (any, error) {
	if v == nil {
		if !f.Nullable {
			return nil, NewFieldError(f.Name, "must not be null")
		}
		return nil, nil
	}
	n, err := f.Normalize(v)
	if err != nil {
		return nil, err
	}
	if f.Rules == "" {
		return n, nil
	}
	if vErr := validate.Var(n, f.Rules); vErr != nil {
		var ves validator.ValidationErrors
		if errors.As(vErr, &ves) && len(ves) > 0 {
			return nil, NewFieldError(f.Name, describe(ves[0]))
		}
		return nil, NewFieldError(f.Name, vErr.Error())
	}
	return n, nil
}

// Normalize converts v to the canonical Go type for the field kind without
// applying constraints.
func (f Field) Normalize(v any) (any, error) {
	switch f.Kind {
	case KindString:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
	case KindInt:
		switch n := v.(type) {
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case float64:
			if n == math.Trunc(n) {
				return int64(n), nil
			}
		}
	case KindTime:
		switch t := v.(type) {
		case time.Time:
			return canonicalTime(t), nil
		case string:
			parsed, err := time.Parse(time.RFC3339, t)
			if err == nil {
				return canonicalTime(parsed), nil
			}
		}
	case KindStrings:
		switch list := v.(type) {
		case []string:
			return append([]string{}, list...), nil
		case []any:
			out := make([]string, 0, len(list))
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, NewFieldError(f.Name, "must be a list of strings")
				}
				out = append(out, s)
			}
			return out, nil
		}
	}
	return nil, NewFieldError(f.Name, fmt.Sprintf("must be of type %s", f.Kind))
}

// ParseText parses a textual value, such as a query parameter, for the field.
// A list field parses a single element, matching list membership.
func (f Field) ParseText(s string) (any, error) {
	switch f.Kind {
	case KindString, KindStrings:
		return s, nil
	case KindFloat:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, NewFieldError(f.Name, "must be a number")
		}
		return n, nil
	case KindInt:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, NewFieldError(f.Name, "must be an integer")
		}
		return n, nil
	case KindTime:
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, NewFieldError(f.Name, "must be an RFC3339 timestamp")
		}
		return canonicalTime(t), nil
	}
	return nil, NewFieldError(f.Name, "unsupported field kind")
}

// TimePrecision is the resolution timestamps are kept at, matching BSON dates.
const TimePrecision = time.Millisecond

// canonicalTime drops the zone and anything below TimePrecision.
func canonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimePrecision)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "email":
		return "must be a valid email"
	case "required":
		return "is required"
	default:
		return strings.TrimSpace("failed constraint " + fe.Tag() + " " + fe.Param())
	}
}

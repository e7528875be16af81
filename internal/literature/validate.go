package literature

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/matsen/firstrecord/internal/apperr"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator. Field names in messages use
// the JSON tag so they match what API callers send.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidationError lists field-level problems with a request.
type ValidationError struct {
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "validation error: " + strings.Join(parts, "; ")
}

// Unwrap lets errors.Is match apperr.ErrValidation.
func (e *ValidationError) Unwrap() error { return apperr.ErrValidation }

// ValidateStruct runs tag validation on v and converts failures to a
// ValidationError.
func ValidateStruct(v any) error {
	err := Validator().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", apperr.ErrValidation, err)
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		out.Fields[fe.Namespace()] = describe(fe)
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed " + fe.Tag() + " check"
	}
}

// Validate checks q's field ranges, the year ordering, and the source ids.
func (q Query) Validate() error {
	if err := ValidateStruct(q); err != nil {
		return err
	}
	fields := make(map[string]string)
	if q.YearFrom != nil && q.YearTo != nil && *q.YearFrom > *q.YearTo {
		fields["yearFrom"] = "must be <= yearTo"
	}
	for _, id := range q.EnabledSources {
		if !id.IsKnown() {
			fields["enabledSources"] = "unknown source " + string(id)
			break
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

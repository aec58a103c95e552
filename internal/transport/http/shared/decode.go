package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeJSON reads the body into dst and runs its `validate` tags. Every problem comes back
// as a field issue; a nil slice means the payload is usable.
func DecodeJSON(r *http.Request, dst any) []ValidationIssue {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return []ValidationIssue{decodeIssue(err)}
	}
	return ValidateStruct(dst)
}

func ValidateStruct(payload any) []ValidationIssue {
	err := validate.Struct(payload)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationIssue{{Field: "body", Reason: err.Error()}}
	}
	issues := make([]ValidationIssue, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		issues = append(issues, ValidationIssue{Field: fieldPath(fe), Reason: fieldReason(fe)})
	}
	return issues
}

func decodeIssue(err error) ValidationIssue {
	if errors.Is(err, io.EOF) {
		return ValidationIssue{Field: "body", Reason: "request body is empty"}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return ValidationIssue{Field: "body", Reason: fmt.Sprintf("invalid JSON at byte offset %d", syntaxErr.Offset)}
	}
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return ValidationIssue{Field: typeErr.Field, Reason: "should be of type " + typeErr.Type.String()}
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ValidationIssue{Field: "body", Reason: fmt.Sprintf("must not exceed %d bytes", maxErr.Limit)}
	}
	return ValidationIssue{Field: "body", Reason: err.Error()}
}

// fieldPath drops the top-level struct name so paths read like the JSON payload.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if idx := strings.Index(ns, "."); idx >= 0 {
		return ns[idx+1:]
	}
	return fe.Field()
}

func fieldReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return "must be one of " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "email":
		return "must be a valid email"
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	}
	return "failed validation for '" + fe.Tag() + "'"
}

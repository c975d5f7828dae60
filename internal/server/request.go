package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rsclarke/keyward/internal/validation"
)

const maxBodyBytes = 1 << 16 // 64KB limit

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// fieldLabels are the human names used in validation messages.
var fieldLabels = map[string]string{
	"key":         "API key",
	"endpoint":    "Endpoint",
	"username":    "Username",
	"password":    "Password",
	"name":        "Name",
	"description": "Description",
	"status":      "Status",
	"rateLimit":   "Rate limit",
}

// requestError is a client error detected before a handler runs.
type requestError struct {
	status int
	msg    string
}

func (e *requestError) Error() string { return e.msg }

// decodeJSON strictly decodes the request body into v and validates it.
// An empty body decodes to the zero value and is left to validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body != nil {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil && err != io.EOF {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				return &requestError{http.StatusRequestEntityTooLarge, "Request body too large"}
			}
			return &requestError{http.StatusBadRequest, "Invalid request data"}
		}
		// Ensure no trailing data
		if dec.Decode(&struct{}{}) != io.EOF {
			return &requestError{http.StatusBadRequest, "Unexpected trailing data"}
		}
	}
	if err := validate.Struct(v); err != nil {
		return &requestError{http.StatusBadRequest, validationMessage(err)}
	}
	return nil
}

func validationMessage(err error) string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "Invalid request data"
	}
	fe := ve[0]
	label, ok := fieldLabels[fe.Field()]
	if !ok {
		label = fe.Field()
	}

	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "min":
		if isString {
			if fe.Param() == "1" {
				return label + " is required"
			}
			return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", label, fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("%s must be less than %s characters", label, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", label, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return label + " is invalid"
	}
}

// clientIP returns the caller address reported by the fronting proxy, or the
// transport peer when the request arrived directly.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return validation.UnknownIP
}

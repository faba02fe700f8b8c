package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/forum/internal/apperror"
	"github.com/sakif/forum/internal/auth"
	"github.com/sakif/forum/internal/service"
)

// maxBodyBytes bounds every JSON request body. A post body of 10000
// characters is at most ~40KB of UTF-8.
const maxBodyBytes = 1 << 20

var validate = newValidator()

// newValidator reports json tag names in errors so the field named in a 400
// matches what the client sent.
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

// decodeJSON reads one JSON object into dst and validates its struct tags.
// Both failures come back as apperror validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperror.ValidationFailed("body", "request body is too large")
		case errors.Is(err, io.EOF):
			return apperror.ValidationFailed("body", "request body is required")
		default:
			return apperror.ValidationFailed("body", "request body is not valid JSON")
		}
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("body", "request body is invalid")
	}
	fe := verrs[0]
	return apperror.ValidationFailed(fe.Field(), describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}

// queryInt reads a positive integer query parameter. An absent or empty
// parameter reports ok=false with no error; anything else that is not a
// positive integer is a validation error.
func queryInt(r *http.Request, name string) (n int, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, false, nil
	}
	n, err = strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false, apperror.ValidationFailed(name, fmt.Sprintf("%s must be a positive integer", name))
	}
	return n, true, nil
}

// pagingFromQuery builds a *service.Paging from ?page=&size=. With neither
// present the result is nil, meaning no pagination.
func pagingFromQuery(r *http.Request) (*service.Paging, error) {
	page, hasPage, err := queryInt(r, "page")
	if err != nil {
		return nil, err
	}
	size, hasSize, err := queryInt(r, "size")
	if err != nil {
		return nil, err
	}
	if !hasPage && !hasSize {
		return nil, nil
	}
	if !hasPage {
		page = 1
	}
	return &service.Paging{Page: page, Size: size}, nil
}

// callerEmail is the verified email of the caller, or "" when anonymous.
func callerEmail(r *http.Request) string {
	email, _ := auth.EmailFromContext(r.Context())
	return email
}

package http

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/aussiebroadwan/mfagate/pkg/httpx"
	"github.com/aussiebroadwan/mfagate/pkg/mfasdk"
	"github.com/go-playground/validator/v10"
)

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

// decode reads a JSON body into v and validates it. On failure the response
// has been written and false is returned.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		mfasdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
		return false
	}

	err := validate.Struct(v)
	if err == nil {
		return true
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		mfasdk.ErrInvalidRequest.WriteError(w)
		return false
	}

	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		key := strings.TrimPrefix(fe.Namespace(), reflect.TypeOf(v).Elem().Name()+".")
		details[key] = reason(fe)
	}
	httpx.WriteJSON(w, http.StatusBadRequest, mfasdk.ValidationErrorResponse{
		Code:    mfasdk.ErrorCodeValidation,
		Message: "validation failed for some fields",
		Details: details,
	})
	return false
}

func reason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "numeric":
		return "must only contain digits"
	case "alphanum":
		return "must only contain a-z, A-Z or 0-9"
	default:
		return "invalid (" + fe.Tag() + ")"
	}
}

// Package validation decodes and validates inquiry requests.
package validation

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/teilomillet/concierge/errors"
	"github.com/teilomillet/concierge/server/middleware"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationErrorDetail describes one rejected field.
type ValidationErrorDetail struct {
	Field   string `json:"field"`   // The field that failed validation
	Message string `json:"message"` // Human-readable error message
	Code    string `json:"code"`    // Machine-readable error code
}

type inquiryKey struct{}

// InquiryFromContext returns the request stored by ValidateInquiry.
func InquiryFromContext(ctx context.Context) (*InquiryRequest, bool) {
	req, ok := ctx.Value(inquiryKey{}).(*InquiryRequest)
	return req, ok
}

// DecodeInquiry reads and validates an inquiry body.
func DecodeInquiry(r *http.Request) (*InquiryRequest, []ValidationErrorDetail, error) {
	var req InquiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, []ValidationErrorDetail{{
			Field:   "body",
			Message: err.Error(),
			Code:    "invalid_json",
		}}, err
	}

	if err := validate.Struct(&req); err != nil {
		var verrs validator.ValidationErrors
		if !stderrors.As(err, &verrs) {
			return nil, nil, err
		}
		details := make([]ValidationErrorDetail, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, ValidationErrorDetail{
				Field:   fieldPath(fe.Namespace()),
				Message: describe(fe),
				Code:    fe.Tag() + "_validation_failed",
			})
		}
		return nil, details, err
	}
	return &req, nil, nil
}

// fieldPath strips the struct name from a validator namespace,
// e.g. InquiryRequest.previous[2].role becomes previous[2].role.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field '%s' is required", fe.Field())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("validation failed on '%s'", fe.Tag())
	}
}

// ValidateInquiry rejects malformed inquiries with 400 Bad request before
// any downstream work and stores the decoded request in the context.
func ValidateInquiry(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := middleware.GetRequestID(r.Context())

			req, details, err := DecodeInquiry(r)
			if err != nil {
				var tooLarge *http.MaxBytesError
				if stderrors.As(err, &tooLarge) {
					errors.WriteError(w, errors.NewError(errors.BadRequestError, "Request body too large",
						http.StatusRequestEntityTooLarge, requestID,
						map[string]interface{}{"limit": tooLarge.Limit}, err))
					return
				}

				cerr := errors.NewBadRequestError(requestID, map[string]interface{}{"errors": details})
				errors.LogError(logger, cerr, requestID)
				errors.WriteError(w, cerr)
				return
			}

			ctx := context.WithValue(r.Context(), inquiryKey{}, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

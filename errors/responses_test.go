package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

// Clients decode error bodies into ErrorResponse; every constructor must
// produce a body that survives that trip with its status and details.
func TestErrorResponseDecodesConstructors(t *testing.T) {
	cause := stderrors.New("upstream refused")

	cases := map[string]struct {
		err  *ConciergeError
		want ErrorResponse
	}{
		"bad request": {
			err: NewBadRequestError("r-1", map[string]interface{}{"field": "previous"}),
			want: ErrorResponse{
				Type: BadRequestError, Message: "Bad request", RequestID: "r-1",
				Details: map[string]interface{}{"field": "previous"},
			},
		},
		"provider": {
			err:  NewProviderError("r-2", "Completion service failed", cause),
			want: ErrorResponse{Type: ProviderError, Message: "Completion service failed", RequestID: "r-2"},
		},
		"unavailable": {
			err: NewUnavailableError("r-3", cause),
			want: ErrorResponse{
				Type: UnavailableError, Message: "Completion service temporarily unavailable", RequestID: "r-3",
				Details: map[string]interface{}{"suggestion": "Please retry shortly"},
			},
		},
		"not found": {
			err: NewNotFoundError("r-4", "/v1/completions"),
			want: ErrorResponse{
				Type: NotFoundError, Message: "Resource not found", RequestID: "r-4",
				Details: map[string]interface{}{"path": "/v1/completions"},
			},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tc.err)

			if rec.Code != tc.err.Code {
				t.Fatalf("status = %d, want %d", rec.Code, tc.err.Code)
			}

			var got ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode body %q: %v", rec.Body.String(), err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("decoded %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestErrorResponseHidesCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, NewInternalError("r-5", stderrors.New("template: system:1: missing key")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	if len(raw) != 3 {
		t.Errorf("body has fields %v, want only type, message and request_id", raw)
	}
}

package errors

import (
	"encoding/json"
	"net/http"
	"testing"

	"pgregory.net/rapid"
)

func TestConstructors(t *testing.T) {
	if e := NewNotFound("Care request"); e.HTTPStatus != http.StatusNotFound || e.Code != CodeNotFound {
		t.Errorf("NewNotFound = %+v", e)
	}
	if e := NewConflict("taken"); e.HTTPStatus != http.StatusConflict || e.Code != CodeConflict {
		t.Errorf("NewConflict = %+v", e)
	}
	if e := NewValidationError("bad"); e.HTTPStatus != http.StatusBadRequest || e.Code != CodeValidation {
		t.Errorf("NewValidationError = %+v", e)
	}
}

// TestErrorResponse_Property checks every response serializes with a stable
// code, a message, and the request id, and never leaks the HTTP status field.
func TestErrorResponse_Property(t *testing.T) {
	codes := []ErrorCode{
		CodeUnauthorized, CodeForbidden, CodeNotFound,
		CodeInvalidStatus, CodeInvalidState, CodeInvalidOperation,
		CodeConflict, CodeDuplicateApplication, CodeValidation,
		CodeClosed, CodeReviewWindowClosed, CodeInternal,
	}

	rapid.Check(t, func(rt *rapid.T) {
		code := codes[rapid.IntRange(0, len(codes)-1).Draw(rt, "codeIdx")]
		message := rapid.StringMatching(`[a-zA-Z0-9 .,]{5,80}`).Draw(rt, "message")
		requestID := rapid.StringMatching(`[a-f0-9-]{8,36}`).Draw(rt, "requestID")

		resp := ErrorResponse{
			Error:     APIError{Code: code, Message: message, HTTPStatus: http.StatusTeapot},
			RequestID: requestID,
		}

		raw, err := json.Marshal(resp)
		if err != nil {
			rt.Fatalf("marshal: %v", err)
		}

		var decoded map[string]any
		if err := json.Unmarshal(raw, &decoded); err != nil {
			rt.Fatalf("unmarshal: %v", err)
		}

		errObj, ok := decoded["error"].(map[string]any)
		if !ok {
			rt.Fatalf("no error object in %s", raw)
		}
		if errObj["code"] != string(code) || errObj["message"] != message {
			rt.Fatalf("code/message lost: %s", raw)
		}
		if _, leaked := errObj["HTTPStatus"]; leaked {
			rt.Fatalf("HTTP status leaked into body: %s", raw)
		}
		if decoded["request_id"] != requestID {
			rt.Fatalf("request id lost: %s", raw)
		}
	})
}

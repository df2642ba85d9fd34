package authservice

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes the response envelope {success, field, message, ...payload}.
// field is null when empty.
func writeJSON(w http.ResponseWriter, status int, success bool, field, message string, payload map[string]any) {
	body := make(map[string]any, len(payload)+3)
	for k, v := range payload {
		body[k] = v
	}
	body["success"] = success
	body["message"] = message
	if field == "" {
		body["field"] = nil
	} else {
		body["field"] = field
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure has nowhere to go.
	_ = json.NewEncoder(w).Encode(body)
}

func writeSuccess(w http.ResponseWriter, status int, message string, payload map[string]any) {
	writeJSON(w, status, true, "", message, payload)
}

// writeError maps err onto the envelope. Internal errors keep a generic
// message unless exposeCause is set.
func writeError(w http.ResponseWriter, err error, exposeCause bool) {
	authErr := AsAuthError(err)
	message := authErr.Message
	if authErr.Kind == KindInternal {
		message = "Internal server error"
		if exposeCause && authErr.Err != nil {
			message = authErr.Err.Error()
		}
	}
	writeJSON(w, authErr.StatusCode(), false, authErr.Field, message, map[string]any{
		"error": string(authErr.Kind),
	})
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (a 422 problem
// response is written automatically; malformed bodies and field validation
// failures surface the same way).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		UnprocessableEntity(w, "Invalid request body")
		return false
	}
	return true
}

// queryInt parses an optional non-negative integer query parameter.
// Returns the fallback when the parameter is absent. On a malformed value
// it writes a 422 problem response and returns ok=false.
func queryInt(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		UnprocessableEntity(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

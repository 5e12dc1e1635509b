// Package httpx carries the portal's HTTP conventions: JSON bodies, RFC
// 7807 problem documents for failures, and the error-to-status mapping
// shared by every handler.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
)

// Request bodies are small administrative writes; anything larger than
// this is not a legitimate portal payload.
const maxBodyBytes = 1 << 20

// ProblemDetail is the RFC 7807 problem document returned on failures.
// Records outside the caller's accessible companies reuse the not-found
// shape so their existence does not leak.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON writes a JSON response. Every portal payload is scoped to the
// requesting principal, so intermediaries must not cache any of them.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem writes an RFC 7807 problem response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes a JSON request body into target, capped at one
// megabyte.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(target)
}

package httpapi

import (
	"encoding/json"
	"net/http"
)

// Result is the error body of every API endpoint. Successful responses carry
// their payload directly so dashboards can consume the same shapes as the
// websocket stream.
type Result struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

const ResultError = -1

func Fail(message string) Result {
	return Result{Code: ResultError, Type: "error", Message: message}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

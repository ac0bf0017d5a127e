package server

import (
	"encoding/json"
	"net/http"
)

// writeJSON serves plain net/http handlers mounted with gin.WrapH.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

package server

import (
	"encoding/json"
	"net/http"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// WriteResult maps a supervisor operation result onto the wire. Failed
// operations are client errors; the supervisor rejects them without
// touching state.
func WriteResult(w http.ResponseWriter, result models.OpResult) error {
	if !result.OK {
		return WriteError(w, http.StatusConflict, result.Message)
	}
	body := map[string]interface{}{
		"status":  "success",
		"message": result.Message,
	}
	if result.Job != nil {
		body["job"] = result.Job
	}
	return WriteJSON(w, http.StatusOK, body)
}

package utils

import (
	"encoding/json"
	"log"
	"net/http"

	"SmartWater.influxDB/internal/models"
)

// RespondWithError sends a JSON error response using the APIError model.
// The status code comes from the APIError.
func RespondWithError(writer http.ResponseWriter, apiErr models.APIError) {
	if apiErr.Status == "" {
		apiErr.Status = "error"
	}
	RespondWithJSON(writer, apiErr.StatusCode, apiErr)
}

// RespondWithJSON sends a JSON response with the specified status code.
func RespondWithJSON(writer http.ResponseWriter, statusCode int, payload interface{}) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(statusCode)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(writer).Encode(payload); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}

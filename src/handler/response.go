package handler

import (
	"encoding/json"
	"net/http"

	logger "github.com/sirupsen/logrus"
)

// statusResponse is the envelope the trading agents and the dashboard
// expect from every endpoint that does not return a data payload.
type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// dataResponse wraps read-endpoint payloads.
type dataResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "success", Message: message})
}

func writeData(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, dataResponse{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, statusResponse{Status: "error", Message: message})
}

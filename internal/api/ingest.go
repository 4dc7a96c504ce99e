package api

import (
	"encoding/json"
	"net/http"
	"strings"
)

type ingestRequest struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type ingestResponse struct {
	Result string `json:"result"`
}

func handleIngest(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Loader == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "INGEST_NOT_CONFIGURED", "ingestion is not configured", false, nil)
		return
	}

	var request ingestRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ingest request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.URL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "URL_REQUIRED", "url is required", false, nil)
		return
	}

	result := deps.Loader.LoadFromURL(r.Context(), request.URL, request.Token)
	status := http.StatusOK
	if strings.HasPrefix(result, "Error:") {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, ingestResponse{Result: result})
}

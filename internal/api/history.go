package api

import (
	"net/http"
	"time"
)

type historyEntry struct {
	ID          int64     `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	UserQuery   string    `json:"user_query"`
	SQLQuery    string    `json:"sql_query"`
	SQLResult   string    `json:"sql_result"`
	FinalAnswer string    `json:"final_answer"`
}

type historyResponse struct {
	Interactions []historyEntry `json:"interactions"`
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "history is not configured", false, nil)
		return
	}

	interactions, err := deps.History.ListInteractions(r.Context())
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to load interaction history", true, map[string]any{"details": err.Error()})
		return
	}

	entries := make([]historyEntry, 0, len(interactions))
	for _, interaction := range interactions {
		entries = append(entries, historyEntry{
			ID:          interaction.ID,
			Timestamp:   interaction.Timestamp,
			UserQuery:   interaction.UserQuery,
			SQLQuery:    interaction.SQLQuery,
			SQLResult:   interaction.SQLResult,
			FinalAnswer: interaction.FinalAnswer,
		})
	}
	writeJSON(w, http.StatusOK, historyResponse{Interactions: entries})
}

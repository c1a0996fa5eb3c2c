package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/cbodonnell/tickrelay/pkg/game/types"
	"github.com/cbodonnell/tickrelay/pkg/log"
	"github.com/cbodonnell/tickrelay/pkg/repositories"
	"github.com/cbodonnell/tickrelay/pkg/server"
	"github.com/gorilla/mux"
)

const (
	DefaultMatchLimit = 20
	MaxMatchLimit     = 100
)

// Session is the part of a hosted session the status API reads.
type Session interface {
	ID() string
	Status() server.Status
	State() types.GameState
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
	}
}

func HandleStatus(session Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if session == nil {
			http.Error(w, "No session is hosted", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, session.Status())
	}
}

func HandleSessionState(session Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := mux.Vars(r)["sessionID"]
		if session == nil || session.ID() != sessionID {
			http.Error(w, "Session not found", http.StatusNotFound)
			return
		}
		writeJSON(w, session.State())
	}
}

func HandleListMatches(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			http.Error(w, "Match history is disabled", http.StatusServiceUnavailable)
			return
		}
		limit := DefaultMatchLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				http.Error(w, "Limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(parsed, MaxMatchLimit)
		}

		results, err := repository.ListMatchResults(r.Context(), limit)
		if err != nil {
			log.Error("failed to list matches: %v", err)
			http.Error(w, "Failed to list matches", http.StatusInternalServerError)
			return
		}
		writeJSON(w, results)
	}
}

func HandleGetMatch(repository repositories.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repository == nil {
			http.Error(w, "Match history is disabled", http.StatusServiceUnavailable)
			return
		}
		sessionID := mux.Vars(r)["sessionID"]
		result, err := repository.LoadMatchResult(r.Context(), sessionID)
		if err != nil {
			if repositories.IsNotFound(err) {
				http.Error(w, "Match not found", http.StatusNotFound)
				return
			}
			log.Error("failed to load match %s: %v", sessionID, err)
			http.Error(w, "Failed to load match", http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	}
}

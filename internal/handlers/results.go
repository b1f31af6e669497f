// internal/handlers/results.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/typemasterhq/typemaster/internal/database"
	"github.com/typemasterhq/typemaster/internal/models"
)

// SaveResultHandler persists a solo typing test result: POST /results.
// Authenticated submitters are linked to their account via the auth cookie;
// guests may pass a session id instead.
func SaveResultHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !database.Connected() {
		http.Error(w, "result persistence is unavailable", http.StatusServiceUnavailable)
		return
	}

	var res models.TypingResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if res.WPM < 0 || res.Accuracy < 0 || res.Accuracy > 100 {
		http.Error(w, "invalid result values", http.StatusBadRequest)
		return
	}

	if accountID := resolveAccount(r); accountID != "" {
		res.AccountID = accountID
		res.IsGuest = false
		res.SessionID = ""
	} else {
		res.AccountID = ""
		res.IsGuest = true
	}
	if res.TestDate.IsZero() {
		res.TestDate = time.Now().UTC()
	}

	if err := database.SaveTypingResult(r.Context(), res); err != nil {
		http.Error(w, "failed to save result", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// internal/handlers/text.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/typemasterhq/typemaster/internal/text"
)

// GetTextHandler serves solo-mode practice text: GET /text?source=&wordCount=.
func GetTextHandler(provider text.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		source := r.URL.Query().Get("source")
		if source == "" {
			source = text.SourceMixed
		}
		wordCount := 50
		if raw := r.URL.Query().Get("wordCount"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
				wordCount = v
			}
		}

		body := provider.GetText(r.Context(), source, wordCount)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"text":      body,
			"source":    source,
			"wordCount": wordCount,
		})
	}
}

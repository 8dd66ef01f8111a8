package cli

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gorakshaai/goraksha/pkg/diagnosis"
)

// homeViewHandler renders the prediction form. When the API is gated the
// form asks for the token and sends it as a bearer header.
func homeViewHandler(tmpl *template.Template, t *diagnosis.Table, gated bool) http.HandlerFunc {
	profiles := t.Profiles()
	return func(w http.ResponseWriter, r *http.Request) {
		d := map[string]any{
			"version":    version,
			"commit":     commit,
			"build_date": date,
			"err":        r.URL.Query().Get("err"),
			"profiles":   profiles,
			"gated":      gated,
		}
		if err := tmpl.ExecuteTemplate(w, "home", d); err != nil {
			slog.Error("template render failed", "error", err)
			http.Error(w, "internal server error", http.StatusInternalServerError)
		}
	}
}

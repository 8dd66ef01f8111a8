package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorakshaai/goraksha/pkg/data"
	"github.com/gorakshaai/goraksha/pkg/diagnosis"
)

// PredictionStore persists verdicts. *data.Store implements it.
type PredictionStore interface {
	SavePrediction(ctx context.Context, p *data.Prediction) error
	GetPrediction(ctx context.Context, id string) (*data.Prediction, error)
	ListPredictions(ctx context.Context, animal *string, limit int) ([]*data.Prediction, error)
	SummarizePredictions(ctx context.Context) ([]*data.PredictionCount, error)
}

type profileTable struct {
	Profiles   []*diagnosis.Profile `json:"profiles" yaml:"profiles"`
	Fallback   *diagnosis.Profile   `json:"fallback" yaml:"fallback"`
	Contagious []string             `json:"contagious" yaml:"contagious"`
}

func newProfileTable(t *diagnosis.Table) *profileTable {
	return &profileTable{
		Profiles:   t.Profiles(),
		Fallback:   t.Fallback(),
		Contagious: t.ContagiousDiseases(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryParamInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}

	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Error("error converting query string to int", "value", v, "error", err)
		return def
	}

	if i < 1 || i > data.PredictionListLimitMax {
		return def
	}

	return i
}

func optional(val string) *string {
	if val == "" || val == "undefined" {
		return nil
	}
	return &val
}

func speciesAPIHandler(t *diagnosis.Table) http.HandlerFunc {
	table := newProfileTable(t)
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, table)
	}
}

func predictionListAPIHandler(store PredictionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "prediction history not available")
			return
		}

		animal := optional(r.URL.Query().Get("animal"))
		limit := queryParamInt(r, "limit", data.PredictionListLimitDefault)

		list, err := store.ListPredictions(r.Context(), animal, limit)
		if err != nil {
			slog.Error("failed to list predictions", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to list predictions")
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

func predictionAPIHandler(store PredictionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "prediction history not available")
			return
		}

		id := r.PathValue("id")
		p, err := store.GetPrediction(r.Context(), id)
		if err != nil {
			if errors.Is(err, data.ErrNotFound) {
				writeError(w, http.StatusNotFound, "prediction not found")
				return
			}
			slog.Error("failed to get prediction", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to get prediction")
			return
		}

		writeJSON(w, http.StatusOK, p)
	}
}

func predictionSummaryAPIHandler(store PredictionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeError(w, http.StatusServiceUnavailable, "prediction history not available")
			return
		}

		list, err := store.SummarizePredictions(r.Context())
		if err != nil {
			slog.Error("failed to summarize predictions", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to summarize predictions")
			return
		}

		writeJSON(w, http.StatusOK, list)
	}
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/gorakshaai/goraksha/pkg/data"
	"github.com/gorakshaai/goraksha/pkg/diagnosis"
	urfave "github.com/urfave/cli/v3"
)

const (
	predictMaxBodyBytes = 16 << 20
	predictMaxMemory    = 1 << 20
)

var (
	animalFlag = &urfave.StringFlag{
		Name:     "animal",
		Usage:    "Animal type, matched exactly (e.g. cattle, dog)",
		Required: true,
	}

	symptomFlag = &urfave.StringSliceFlag{
		Name:  "symptom",
		Usage: "Observed symptom tag, repeat for more (e.g. --symptom fever --symptom coughing)",
	}

	rankedFlag = &urfave.BoolFlag{
		Name:  "ranked",
		Usage: "Include the score of every candidate disease",
	}

	saveFlag = &urfave.BoolFlag{
		Name:  "save",
		Usage: "Persist the prediction in the configured database",
	}

	predictCmd = &urfave.Command{
		Name:   "predict",
		Usage:  "Score one case and print the verdict",
		Action: cmdPredict,
		Flags: []urfave.Flag{
			animalFlag,
			symptomFlag,
			rankedFlag,
			saveFlag,
		},
	}
)

type predictResponse struct {
	Success    bool               `json:"success" yaml:"success"`
	Prediction *diagnosis.Verdict `json:"prediction,omitempty" yaml:"prediction,omitempty"`
	ID         string             `json:"id,omitempty" yaml:"id,omitempty"`
	Error      string             `json:"error,omitempty" yaml:"error,omitempty"`
}

type predictOutput struct {
	ID         string                   `json:"id,omitempty" yaml:"id,omitempty"`
	Prediction *diagnosis.Verdict       `json:"prediction" yaml:"prediction"`
	Ranked     []diagnosis.DiseaseScore `json:"ranked,omitempty" yaml:"ranked,omitempty"`
}

func cmdPredict(ctx context.Context, cmd *urfave.Command) error {
	cfg, err := getConfig(ctx, cmd)
	if err != nil {
		return err
	}

	c := &diagnosis.Case{
		AnimalType: cmd.String(animalFlag.Name),
		Symptoms:   cmd.StringSlice(symptomFlag.Name),
	}
	if c.Symptoms == nil {
		c.Symptoms = []string{}
	}

	scorer := diagnosis.NewScorer(nil)
	if !scorer.Table().Known(c.AnimalType) {
		slog.Warn("unknown animal type, using fallback profile", "animal", c.AnimalType)
	}

	out := &predictOutput{Prediction: scorer.Evaluate(c)}
	if cmd.Bool(rankedFlag.Name) {
		out.Ranked = scorer.Rank(c.AnimalType, c.Symptoms)
	}

	if cmd.Bool(saveFlag.Name) {
		store, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		p := data.NewPrediction(c, out.Prediction)
		if err := store.SavePrediction(ctx, p); err != nil {
			return fmt.Errorf("saving prediction: %w", err)
		}
		out.ID = p.ID
	}

	return encode(cmd.Root().Writer, cfg.Format, out)
}

func writePredictError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &predictResponse{Success: false, Error: msg})
}

// parseCase reads a Case from a JSON body or from form fields. In the form
// encoding symptoms are a JSON array of strings.
func parseCase(r *http.Request) (*diagnosis.Case, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var c diagnosis.Case
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return nil, fmt.Errorf("invalid JSON body: %w", err)
		}
		if c.Symptoms == nil {
			c.Symptoms = []string{}
		}
		return &c, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(predictMaxMemory); err != nil {
			return nil, fmt.Errorf("invalid form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("invalid form: %w", err)
	}

	c := &diagnosis.Case{
		AnimalType:     r.FormValue("animal_type"),
		Symptoms:       []string{},
		Age:            r.FormValue("age"),
		Weight:         r.FormValue("weight"),
		Temperature:    r.FormValue("temperature"),
		AdditionalInfo: r.FormValue("additional_info"),
	}

	if raw := strings.TrimSpace(r.FormValue("symptoms")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &c.Symptoms); err != nil {
			return nil, fmt.Errorf("symptoms must be a JSON array of strings: %w", err)
		}
		if c.Symptoms == nil {
			c.Symptoms = []string{}
		}
	}

	return c, nil
}

func predictAPIHandler(scorer *diagnosis.Scorer, store PredictionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, predictMaxBodyBytes)

		c, err := parseCase(r)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writePredictError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			slog.Debug("invalid prediction request", "error", err)
			writePredictError(w, http.StatusBadRequest, err.Error())
			return
		}

		if c.AnimalType == "" {
			writePredictError(w, http.StatusBadRequest, "animal_type is required")
			return
		}

		v := scorer.Evaluate(c)
		resp := &predictResponse{Success: true, Prediction: v}

		if store != nil {
			p := data.NewPrediction(c, v)
			if err := store.SavePrediction(r.Context(), p); err != nil {
				slog.Error("failed to save prediction", "animal", c.AnimalType, "error", err)
			} else {
				resp.ID = p.ID
			}
		}

		slog.Debug("prediction",
			"animal", c.AnimalType,
			"symptoms", len(c.Symptoms),
			"disease", v.Disease,
			"confidence", v.Confidence,
			"severity", v.Severity)

		writeJSON(w, http.StatusOK, resp)
	}
}

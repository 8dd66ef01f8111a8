package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorakshaai/goraksha/pkg/diagnosis"
	"github.com/pkg/errors"
)

const (
	PredictionListLimitDefault = 50
	PredictionListLimitMax     = 500

	insertPredictionSQL = `INSERT INTO prediction (
			id,
			created_at,
			animal_type,
			symptoms,
			age,
			weight,
			temperature,
			additional_info,
			disease,
			confidence,
			severity,
			recommendations
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectPredictionColumns = `SELECT
			id,
			created_at,
			animal_type,
			symptoms,
			age,
			weight,
			temperature,
			additional_info,
			disease,
			confidence,
			severity,
			recommendations
		FROM prediction
	`

	selectPredictionByIDSQL = selectPredictionColumns + `WHERE id = ?`

	selectPredictionsSQL = selectPredictionColumns + `WHERE animal_type = COALESCE(?, animal_type)
		ORDER BY created_at DESC, id
		LIMIT ?
	`

	selectPredictionSummarySQL = `SELECT
			disease,
			severity,
			COUNT(*) as predictions
		FROM prediction
		GROUP BY disease, severity
		ORDER BY 3 DESC, 1, 2
	`
)

// Prediction is a stored case together with the verdict it produced.
type Prediction struct {
	ID        string             `json:"id" yaml:"id"`
	CreatedAt time.Time          `json:"created_at" yaml:"created_at"`
	Case      *diagnosis.Case    `json:"case" yaml:"case"`
	Verdict   *diagnosis.Verdict `json:"prediction" yaml:"prediction"`
}

// PredictionCount is the number of stored predictions for one
// disease and severity pair.
type PredictionCount struct {
	Disease  string `json:"disease" yaml:"disease"`
	Severity string `json:"severity" yaml:"severity"`
	Count    int    `json:"count" yaml:"count"`
}

// NewPrediction pairs a case with its verdict under a fresh id.
func NewPrediction(c *diagnosis.Case, v *diagnosis.Verdict) *Prediction {
	return &Prediction{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Case:      c,
		Verdict:   v,
	}
}

// SavePrediction inserts p.
func (s *Store) SavePrediction(ctx context.Context, p *Prediction) error {
	if s == nil || s.db == nil {
		return errDBNotInitialized
	}
	if p == nil || p.Case == nil || p.Verdict == nil {
		return errors.New("prediction with case and verdict required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	symptoms, err := json.Marshal(nonNil(p.Verdict.SymptomsAnalyzed))
	if err != nil {
		return errors.Wrap(err, "failed to marshal symptoms")
	}
	recs, err := json.Marshal(nonNil(p.Verdict.Recommendations))
	if err != nil {
		return errors.Wrap(err, "failed to marshal recommendations")
	}

	_, err = s.db.ExecContext(ctx, s.rebind(insertPredictionSQL),
		p.ID,
		p.CreatedAt.UnixMilli(),
		p.Case.AnimalType,
		string(symptoms),
		p.Case.Age,
		p.Case.Weight,
		p.Case.Temperature,
		p.Case.AdditionalInfo,
		p.Verdict.Disease,
		p.Verdict.Confidence,
		p.Verdict.Severity,
		string(recs),
	)
	if err != nil {
		return errors.Wrapf(err, "failed to insert prediction: %s", p.ID)
	}

	return nil
}

// GetPrediction returns the prediction with id, or ErrNotFound.
func (s *Store) GetPrediction(ctx context.Context, id string) (*Prediction, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	row := s.db.QueryRowContext(ctx, s.rebind(selectPredictionByIDSQL), id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "failed to get prediction: %s", id)
	}
	return p, nil
}

// ListPredictions returns the most recent predictions, newest first.
// A nil animal matches every species.
func (s *Store) ListPredictions(ctx context.Context, animal *string, limit int) ([]*Prediction, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = PredictionListLimitDefault
	}
	limit = min(limit, PredictionListLimitMax)

	rows, err := s.db.QueryContext(ctx, s.rebind(selectPredictionsSQL), animal, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute prediction select statement")
	}
	defer rows.Close()

	list := make([]*Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan prediction row")
		}
		list = append(list, p)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate prediction rows")
	}

	return list, nil
}

// SummarizePredictions counts stored predictions per disease and severity,
// most frequent first.
func (s *Store) SummarizePredictions(ctx context.Context) ([]*PredictionCount, error) {
	if s == nil || s.db == nil {
		return nil, errDBNotInitialized
	}

	rows, err := s.db.QueryContext(ctx, selectPredictionSummarySQL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute prediction summary statement")
	}
	defer rows.Close()

	list := make([]*PredictionCount, 0)
	for rows.Next() {
		c := &PredictionCount{}
		if err := rows.Scan(&c.Disease, &c.Severity, &c.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan summary row")
		}
		list = append(list, c)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate summary rows")
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrediction(r rowScanner) (*Prediction, error) {
	var (
		p        = &Prediction{Case: &diagnosis.Case{}, Verdict: &diagnosis.Verdict{}}
		created  int64
		symptoms string
		recs     string
	)

	if err := r.Scan(
		&p.ID,
		&created,
		&p.Case.AnimalType,
		&symptoms,
		&p.Case.Age,
		&p.Case.Weight,
		&p.Case.Temperature,
		&p.Case.AdditionalInfo,
		&p.Verdict.Disease,
		&p.Verdict.Confidence,
		&p.Verdict.Severity,
		&recs,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(symptoms), &p.Case.Symptoms); err != nil {
		return nil, errors.Wrapf(err, "failed to decode symptoms for prediction: %s", p.ID)
	}
	if err := json.Unmarshal([]byte(recs), &p.Verdict.Recommendations); err != nil {
		return nil, errors.Wrapf(err, "failed to decode recommendations for prediction: %s", p.ID)
	}

	p.CreatedAt = time.UnixMilli(created).UTC()
	p.Verdict.AnimalType = p.Case.AnimalType
	p.Verdict.SymptomsAnalyzed = p.Case.Symptoms

	return p, nil
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

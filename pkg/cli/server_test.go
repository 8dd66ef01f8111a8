package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorakshaai/goraksha/pkg/data"
	"github.com/gorakshaai/goraksha/pkg/diagnosis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct {
	PredictionStore
}

func (failingStore) SavePrediction(context.Context, *data.Prediction) error {
	return errors.New("disk full")
}

func setupTestRouter(t *testing.T, token string) (http.Handler, *data.Store) {
	t.Helper()
	store, err := data.Open(context.Background(), filepath.Join(t.TempDir(), data.DataFileName))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return makeRouter(routerDeps{store: store, token: token}), store
}

func postForm(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/predict_disease", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodePredict(t *testing.T, w *httptest.ResponseRecorder) *predictResponse {
	t.Helper()
	var resp predictResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return &resp
}

func TestPredictForm(t *testing.T) {
	h, store := setupTestRouter(t, "")

	w := postForm(t, h, url.Values{
		"animal_type":     {"chicken"},
		"symptoms":        {`["fever","difficulty_breathing"]`},
		"age":             {"2"},
		"temperature":     {"42.1"},
		"additional_info": {"whole flock"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodePredict(t, w)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Prediction)
	assert.Equal(t, "Avian Influenza", resp.Prediction.Disease)
	assert.InDelta(t, 80.0, resp.Prediction.Confidence, 0.001)
	assert.Equal(t, diagnosis.SeverityMedium, resp.Prediction.Severity)
	assert.Equal(t, diagnosis.RecommendIsolate, resp.Prediction.Recommendations[1])
	require.NotEmpty(t, resp.ID)

	p, err := store.GetPrediction(context.Background(), resp.ID)
	require.NoError(t, err)
	assert.Equal(t, "2", p.Case.Age)
	assert.Equal(t, "whole flock", p.Case.AdditionalInfo)
	assert.Equal(t, resp.Prediction.Disease, p.Verdict.Disease)
}

func TestPredictMultipart(t *testing.T) {
	h := makeRouter(routerDeps{})

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("animal_type", "dog"))
	require.NoError(t, mw.WriteField("symptoms", `["vomiting","diarrhea"]`))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/predict_disease", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodePredict(t, w)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ID)
	assert.Equal(t, []string{"vomiting", "diarrhea"}, resp.Prediction.SymptomsAnalyzed)
	assert.Contains(t, resp.Prediction.Recommendations, diagnosis.RecommendFluids)
}

func TestPredictJSON(t *testing.T) {
	h := makeRouter(routerDeps{})

	req := httptest.NewRequest(http.MethodPost, "/predict_disease",
		strings.NewReader(`{"animal_type":"llama","symptoms":["fever"]}`))
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	resp := decodePredict(t, w)
	assert.Equal(t, "General Infection", resp.Prediction.Disease)
	assert.Equal(t, "llama", resp.Prediction.AnimalType)
}

func TestPredictDefaultsSymptoms(t *testing.T) {
	h := makeRouter(routerDeps{})

	w := postForm(t, h, url.Values{"animal_type": {"horse"}})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodePredict(t, w)
	assert.Equal(t, []string{}, resp.Prediction.SymptomsAnalyzed)
	assert.InDelta(t, 60.0, resp.Prediction.Confidence, 0.001)
	assert.Equal(t, diagnosis.SeverityLow, resp.Prediction.Severity)
}

func TestPredictBadInput(t *testing.T) {
	h := makeRouter(routerDeps{})

	tests := []struct {
		name string
		form url.Values
	}{
		{"missing animal", url.Values{"symptoms": {`["fever"]`}}},
		{"symptoms not json", url.Values{"animal_type": {"dog"}, "symptoms": {"fever"}}},
		{"symptoms not array", url.Values{"animal_type": {"dog"}, "symptoms": {`{"a":1}`}}},
		{"symptoms not strings", url.Values{"animal_type": {"dog"}, "symptoms": {`[1,2]`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(t, h, tt.form)
			assert.Equal(t, http.StatusBadRequest, w.Code)

			resp := decodePredict(t, w)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
			assert.Nil(t, resp.Prediction)
		})
	}
}

func TestPredictMalformedFormEncoding(t *testing.T) {
	h := makeRouter(routerDeps{})

	req := httptest.NewRequest(http.MethodPost, "/predict_disease", strings.NewReader("animal_type=dog&symptoms=%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodePredict(t, w)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "invalid form")
	assert.Nil(t, resp.Prediction)
}

func TestPredictBodyTooLarge(t *testing.T) {
	h := makeRouter(routerDeps{})

	big := url.Values{"animal_type": {"dog"}, "additional_info": {strings.Repeat("x", predictMaxBodyBytes)}}
	w := postForm(t, h, big)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	resp := decodePredict(t, w)
	assert.False(t, resp.Success)
	assert.Equal(t, "request body too large", resp.Error)
}

func TestPredictSaveFailure(t *testing.T) {
	h := makeRouter(routerDeps{store: failingStore{}})

	w := postForm(t, h, url.Values{"animal_type": {"cat"}, "symptoms": {`["sneezing"]`}})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodePredict(t, w)
	assert.True(t, resp.Success)
	assert.Empty(t, resp.ID)
	assert.NotNil(t, resp.Prediction)
}

func TestPredictionAPI(t *testing.T) {
	h, _ := setupTestRouter(t, "")

	for _, animal := range []string{"cattle", "cattle", "pig"} {
		w := postForm(t, h, url.Values{"animal_type": {animal}, "symptoms": {`["fever"]`}})
		require.Equal(t, http.StatusOK, w.Code)
	}

	t.Run("list", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions?animal=cattle&limit=5", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var list []*data.Prediction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		assert.Len(t, list, 2)
	})

	t.Run("get", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions?limit=1", nil))
		var list []*data.Prediction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 1)

		w = httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions/"+list[0].ID, nil))
		require.Equal(t, http.StatusOK, w.Code)

		var p data.Prediction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
		assert.Equal(t, list[0].ID, p.ID)
	})

	t.Run("not found", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions/nope", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("summary", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/predictions/summary", nil))
		require.Equal(t, http.StatusOK, w.Code)

		var list []*data.PredictionCount
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
		require.Len(t, list, 2)
		assert.Equal(t, 2, list[0].Count)
		assert.Equal(t, "Bovine Respiratory Disease", list[0].Disease)
	})
}

func TestPredictionAPIWithoutStore(t *testing.T) {
	h := makeRouter(routerDeps{})

	for _, path := range []string{"/api/predictions", "/api/predictions/summary", "/api/predictions/abc"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
	}
}

func TestSpeciesAPI(t *testing.T) {
	h := makeRouter(routerDeps{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/species", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var table profileTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &table))
	assert.Len(t, table.Profiles, 8)
	assert.NotNil(t, table.Fallback)
}

func TestHomeAndHealth(t *testing.T) {
	h := makeRouter(routerDeps{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `<option value="cattle">`)
	assert.Contains(t, w.Body.String(), "difficulty_breathing")
	assert.NotContains(t, w.Body.String(), `id="api_token"`)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok\n", w.Body.String())

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/predict_disease", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &http.Server{Addr: "127.0.0.1:0", Handler: makeRouter(routerDeps{})}

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, s, discardLogger()) }()

	cancel()
	assert.NoError(t, <-done)
}

package exercise

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
)

type repoFake struct {
	records []Record
}

func (r *repoFake) Add(_ context.Context, record Record) (*Record, error) {
	r.records = append(r.records, record)
	return &record, nil
}

func (r *repoFake) Get(_ context.Context, id string) (*Record, error) {
	for i := range r.records {
		if r.records[i].ID == id {
			return &r.records[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

func (r *repoFake) List(_ context.Context, params ListParams) ([]Record, error) {
	var filtered []Record
	for _, rec := range r.records {
		if params.UserID == "" || rec.UserID == params.UserID {
			filtered = append(filtered, rec)
		}
	}
	// newest first
	for i, j := 0, len(filtered)-1; i < j; i, j = i+1, j-1 {
		filtered[i], filtered[j] = filtered[j], filtered[i]
	}
	if params.Skip < len(filtered) {
		filtered = filtered[params.Skip:]
	} else {
		filtered = nil
	}
	if len(filtered) > params.Limit {
		filtered = filtered[:params.Limit]
	}
	if filtered == nil {
		filtered = make([]Record, 0)
	}
	return filtered, nil
}

func (r *repoFake) ListAll(_ context.Context, userID string) ([]Record, error) {
	var filtered []Record
	for _, rec := range r.records {
		if userID == "" || rec.UserID == userID {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func TestHandleAdd(t *testing.T) {
	repo := &repoFake{}
	handler := NewHandler(repo, metrics.NewTestManager())

	body, err := json.Marshal(Record{
		UserID: "runner-1",
		BandData: &BandData{
			HeartRate: intPtr(120),
		},
	})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.HandleAdd(rr, httptest.NewRequest("POST", "/api/exercise", bytes.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)

	var added Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &added))
	assert.NotEmpty(t, added.ID)
	assert.Equal(t, "runner-1", added.UserID)
	assert.False(t, added.Timestamp.IsZero())
	require.Len(t, repo.records, 1)
}

func TestHandleAdd_DefaultUser(t *testing.T) {
	repo := &repoFake{}
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleAdd(rr, httptest.NewRequest("POST", "/api/exercise", bytes.NewReader([]byte(`{}`))))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, DefaultUserID, repo.records[0].UserID)
}

func TestHandleList(t *testing.T) {
	now := time.Now()
	repo := &repoFake{records: []Record{
		{ID: "rec-1", UserID: "runner-1", Timestamp: now.Add(-2 * time.Hour)},
		{ID: "rec-2", UserID: "runner-2", Timestamp: now.Add(-time.Hour)},
		{ID: "rec-3", UserID: "runner-1", Timestamp: now},
	}}
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleList(rr, httptest.NewRequest("GET", "/api/exercise?userId=runner-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var records []Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Equal(t, "rec-3", records[0].ID)
	assert.Equal(t, "rec-1", records[1].ID)
}

func TestHandleList_InvalidParams(t *testing.T) {
	handler := NewHandler(&repoFake{}, metrics.NewTestManager())

	for _, target := range []string{
		"/api/exercise?limit=abc",
		"/api/exercise?limit=0",
		"/api/exercise?skip=-1",
	} {
		rr := httptest.NewRecorder()
		handler.HandleList(rr, httptest.NewRequest("GET", target, nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code, target)
	}
}

func TestHandleGet(t *testing.T) {
	repo := &repoFake{records: []Record{
		{ID: "rec-1", UserID: "runner-1", Timestamp: time.Now()},
	}}
	handler := NewHandler(repo, metrics.NewTestManager())

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/exercise/rec-1", nil), map[string]string{
		"id": "rec-1",
	})
	rr := httptest.NewRecorder()
	handler.HandleGet(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var got Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "rec-1", got.ID)
}

func TestHandleGet_NotFound(t *testing.T) {
	handler := NewHandler(&repoFake{}, metrics.NewTestManager())

	req := mux.SetURLVars(httptest.NewRequest("GET", "/api/exercise/nope", nil), map[string]string{
		"id": "nope",
	})
	rr := httptest.NewRecorder()
	handler.HandleGet(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandleStatistics(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	repo := &repoFake{records: []Record{
		recordWithBand("runner-1", day1, 100, 6.5, 300),
		recordWithBand("runner-1", day1.Add(24*time.Hour), 200, 5.5, 500),
	}}
	handler := NewHandler(repo, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleStatistics(rr, httptest.NewRequest("GET", "/api/statistics?userId=runner-1", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var stats Statistics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, 150.0, stats.HeartRate.Avg)
	assert.Equal(t, 200.0, stats.HeartRate.Max)
	assert.Equal(t, 100.0, stats.HeartRate.Min)
}

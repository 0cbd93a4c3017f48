package export

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/exercise"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

type exerciseSourceFake struct {
	records []exercise.Record
}

func (e *exerciseSourceFake) ListAll(_ context.Context, userID string) ([]exercise.Record, error) {
	var filtered []exercise.Record
	for _, rec := range e.records {
		if userID == "" || rec.UserID == userID {
			filtered = append(filtered, rec)
		}
	}
	return filtered, nil
}

func TestToCSV_Empty(t *testing.T) {
	csvBytes, err := ToCSV(ExerciseHeaders, nil)
	require.NoError(t, err)
	assert.Equal(t, "暂无数据\n", string(csvBytes))
}

func TestToCSV(t *testing.T) {
	csvBytes, err := ToCSV(
		[]string{"a", "b"},
		[]map[string]string{{"a": "1", "b": "2"}},
	)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(csvBytes))
}

func TestExerciseRows(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	records := []exercise.Record{
		{
			ID:     "rec-1",
			UserID: "runner-1",
			BandData: &exercise.BandData{
				HeartRate: intPtr(120),
				Pace:      floatPtr(6.5),
				Calories:  intPtr(300),
			},
			TreadmillData: &exercise.TreadmillData{
				Speed:    floatPtr(9.2),
				Distance: floatPtr(4.6),
				Duration: intPtr(30),
			},
			BasicInfo: &exercise.BasicInfo{
				Height:  floatPtr(178),
				Weight:  floatPtr(72.5),
				BodyFat: floatPtr(18.2),
			},
			Timestamp: day1,
		},
		{ID: "rec-2", UserID: "runner-1", Timestamp: day1.Add(24 * time.Hour)},
	}

	rows := ExerciseRows(records)
	require.Len(t, rows, 2)

	// newest first
	assert.Equal(t, "2025-03-02 08:30:00", rows[0]["日期"])
	assert.Equal(t, "", rows[0]["心率(bpm)"])

	assert.Equal(t, "2025-03-01 08:30:00", rows[1]["日期"])
	assert.Equal(t, "runner-1", rows[1]["用户ID"])
	assert.Equal(t, "120", rows[1]["心率(bpm)"])
	assert.Equal(t, "6.5", rows[1]["配速(min/km)"])
	assert.Equal(t, "300", rows[1]["卡路里(kcal)"])
	assert.Equal(t, "9.2", rows[1]["速度(km/h)"])
	assert.Equal(t, "4.6", rows[1]["距离(km)"])
	assert.Equal(t, "30", rows[1]["时长(分钟)"])
	assert.Equal(t, "178", rows[1]["身高(cm)"])
	assert.Equal(t, "72.5", rows[1]["体重(kg)"])
	assert.Equal(t, "18.2", rows[1]["体脂率(%)"])
}

func TestTablePDF_Smoke(t *testing.T) {
	pdfBytes, err := TablePDF("运动数据导出", ExerciseHeaders, []map[string]string{
		{"日期": "2025-03-01 08:30:00", "用户ID": "runner-1", "心率(bpm)": "120"},
	})
	require.NoError(t, err)
	assert.True(t, len(pdfBytes) > 0)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestTrainingPlanPDF_Smoke(t *testing.T) {
	pdfBytes, err := TrainingPlanPDF(map[string]any{
		"title":    "个性化训练计划",
		"duration": float64(4),
		"goal":     "提升跑步能力",
		"weekly_schedule": []any{
			map[string]any{
				"week":          float64(1),
				"training_days": []any{"周一", "周三"},
				"rest_days":     []any{"周二"},
			},
		},
		"daily_plans": []any{
			map[string]any{"day": "周一", "warmup": "5分钟慢跑", "main": "30分钟跑步", "cooldown": "拉伸"},
		},
		"suggestions": []any{"保持规律训练"},
	})
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdfBytes[:4]))
}

func TestHandleCSV(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	source := &exerciseSourceFake{records: []exercise.Record{
		{
			ID:        "rec-1",
			UserID:    "runner-1",
			BandData:  &exercise.BandData{HeartRate: intPtr(120)},
			Timestamp: day1,
		},
	}}
	handler := NewHandler(source, metrics.NewTestManager())

	req := httptest.NewRequest("GET", "/api/export/csv", nil)
	req = req.WithContext(auth.SetUserID(req.Context(), "runner-1"))

	rr := httptest.NewRecorder()
	handler.HandleCSV(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "running_data.csv")
	assert.Contains(t, rr.Body.String(), "心率(bpm)")
	assert.Contains(t, rr.Body.String(), "120")
}

func TestHandleCSV_NoData(t *testing.T) {
	handler := NewHandler(&exerciseSourceFake{}, metrics.NewTestManager())

	req := httptest.NewRequest("GET", "/api/export/csv", nil)
	req = req.WithContext(auth.SetUserID(req.Context(), "runner-1"))

	rr := httptest.NewRecorder()
	handler.HandleCSV(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "暂无数据\n", rr.Body.String())
}

func TestHandleJSON(t *testing.T) {
	day1 := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	source := &exerciseSourceFake{records: []exercise.Record{
		{ID: "rec-1", UserID: "runner-1", Timestamp: day1},
		{ID: "rec-2", UserID: "runner-1", Timestamp: day1.Add(time.Hour)},
	}}
	handler := NewHandler(source, metrics.NewTestManager())

	// explicit userId param overrides the caller
	req := httptest.NewRequest("GET", "/api/export/json?userId=runner-1", nil)
	req = req.WithContext(auth.SetUserID(req.Context(), "someone-else"))

	rr := httptest.NewRecorder()
	handler.HandleJSON(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "running_data.json")

	body := rr.Body.String()
	assert.Contains(t, body, "rec-1")
	// newest first
	assert.Less(t, strings.Index(body, "rec-2"), strings.Index(body, "rec-1"))
}

func TestHandlePDF(t *testing.T) {
	handler := NewHandler(&exerciseSourceFake{}, metrics.NewTestManager())

	req := httptest.NewRequest("GET", "/api/export/pdf", nil)
	req = req.WithContext(auth.SetUserID(req.Context(), "runner-1"))

	rr := httptest.NewRecorder()
	handler.HandlePDF(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Disposition"), "running_data.pdf")
	assert.Equal(t, "%PDF", rr.Body.String()[:4])
}

func TestHandleExport_Unauthorized(t *testing.T) {
	handler := NewHandler(&exerciseSourceFake{}, metrics.NewTestManager())

	rr := httptest.NewRecorder()
	handler.HandleCSV(rr, httptest.NewRequest("GET", "/api/export/csv", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

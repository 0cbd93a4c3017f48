package export

import (
	"context"
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/exercise"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

type exerciseSource interface {
	ListAll(ctx context.Context, userID string) ([]exercise.Record, error)
}

type Handler struct {
	exercises exerciseSource
	metrics   *metrics.Manager
}

func NewHandler(exercises exerciseSource, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		exercises: exercises,
		metrics:   metricsManager,
	}
}

// exportUserID resolves the export target: an explicit userId query param,
// falling back to the caller.
func exportUserID(r *http.Request) (string, bool) {
	if userID := r.URL.Query().Get("userId"); userID != "" {
		return userID, true
	}
	return auth.UserIDFromContext(r.Context())
}

func (handler *Handler) HandleCSV(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.export.csv")
	defer span.End()

	userID, ok := exportUserID(r)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := handler.exercises.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("export csv, list records for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	csvBytes, err := ToCSV(ExerciseHeaders, ExerciseRows(records))
	if err != nil {
		log.Errorf("export csv for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExports.WithLabelValues("csv").Inc()
	pkg.WriteAttachmentBytes(w, pkg.ContentType.CSV, "running_data.csv", csvBytes)
}

func (handler *Handler) HandleJSON(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.export.json")
	defer span.End()

	userID, ok := exportUserID(r)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := handler.exercises.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("export json, list records for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	// newest first, like the tabular exports
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	jsonBytes, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		log.Errorf("export json for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExports.WithLabelValues("json").Inc()
	pkg.WriteAttachmentBytes(w, pkg.ContentType.JSON, "running_data.json", jsonBytes)
}

func (handler *Handler) HandlePDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.export.pdf")
	defer span.End()

	userID, ok := exportUserID(r)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	records, err := handler.exercises.ListAll(ctx, userID)
	if err != nil {
		log.Errorf("export pdf, list records for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	pdfBytes, err := TablePDF("运动数据导出", ExerciseHeaders, ExerciseRows(records))
	if err != nil {
		log.Errorf("export pdf for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to export data", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExports.WithLabelValues("pdf").Inc()
	pkg.WriteAttachmentBytes(w, pkg.ContentType.PDF, "running_data.pdf", pdfBytes)
}

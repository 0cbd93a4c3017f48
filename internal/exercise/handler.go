package exercise

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

const defaultListLimit = 100

type exerciseRepo interface {
	Add(ctx context.Context, record Record) (*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	List(ctx context.Context, params ListParams) ([]Record, error)
	ListAll(ctx context.Context, userID string) ([]Record, error)
}

type Handler struct {
	repo     exerciseRepo
	analyzer *Analyzer
	metrics  *metrics.Manager
}

func NewHandler(repo exerciseRepo, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:     repo,
		analyzer: NewAnalyzer(repo),
		metrics:  metricsManager,
	}
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercise.list")
	defer span.End()

	limit := defaultListLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			pkg.WriteJSONError(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	skip := 0
	if skipStr := r.URL.Query().Get("skip"); skipStr != "" {
		parsed, err := strconv.Atoi(skipStr)
		if err != nil || parsed < 0 {
			pkg.WriteJSONError(w, "invalid skip", http.StatusBadRequest)
			return
		}
		skip = parsed
	}

	records, err := handler.repo.List(ctx, ListParams{
		UserID: r.URL.Query().Get("userId"),
		Limit:  limit,
		Skip:   skip,
	})
	if err != nil {
		log.Errorf("list exercise records: %s", err)
		pkg.WriteJSONError(w, "failed to get exercise data", http.StatusInternalServerError)
		return
	}

	recordsJson, err := json.Marshal(records)
	if err != nil {
		log.Errorf("marshal exercise records: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, recordsJson, http.StatusOK)
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercise.add")
	defer span.End()

	var record Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		log.Tracef("new exercise record, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	record.ID = uuid.NewString()
	record.Timestamp = time.Now()
	if record.UserID == "" {
		record.UserID = DefaultUserID
	}

	added, err := handler.repo.Add(ctx, record)
	if err != nil {
		log.Errorf("failed to add exercise record for [%s]: %s", record.UserID, err)
		pkg.WriteJSONError(w, "failed to save exercise data", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExerciseRecords.Inc()

	addedJson, err := json.Marshal(added)
	if err != nil {
		log.Errorf("marshal added exercise record: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("new exercise record added: %s", added.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercise.get")
	defer span.End()

	vars := mux.Vars(r)
	id := vars["id"]
	if id == "" {
		pkg.WriteJSONError(w, "id empty", http.StatusBadRequest)
		return
	}

	record, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			pkg.WriteJSONError(w, "exercise data not found", http.StatusNotFound)
			return
		}
		log.Errorf("failed to get exercise record %s: %s", id, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	recordJson, err := json.Marshal(record)
	if err != nil {
		log.Errorf("marshal exercise record: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, recordJson, http.StatusOK)
}

func (handler *Handler) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercise.statistics")
	defer span.End()

	stats, err := handler.analyzer.Statistics(ctx, r.URL.Query().Get("userId"))
	if err != nil {
		log.Errorf("failed to get statistics: %s", err)
		pkg.WriteJSONError(w, "failed to get statistics", http.StatusInternalServerError)
		return
	}

	statsJson, err := json.Marshal(stats)
	if err != nil {
		log.Errorf("marshal statistics: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, statsJson, http.StatusOK)
}

package trainingplan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/export"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

const defaultHistoryDays = 30

type plansRepo interface {
	Add(ctx context.Context, plan Plan) (*Plan, error)
	GetOwned(ctx context.Context, id, userID string) (*Plan, error)
	List(ctx context.Context, userID, status string) ([]Plan, error)
}

type planGenerator interface {
	Generate(ctx context.Context, prompt string) (PlanData, error)
}

type GenerateResponse struct {
	Message string   `json:"message"`
	PlanID  string   `json:"plan_id"`
	Plan    PlanData `json:"plan"`
}

type ListResponse struct {
	Plans []PlanListItem `json:"plans"`
}

type Handler struct {
	repo      plansRepo
	generator planGenerator
	exercises exerciseSource
	users     userSource
	metrics   *metrics.Manager
}

func NewHandler(
	repo plansRepo,
	generator planGenerator,
	exercises exerciseSource,
	users userSource,
	metricsManager *metrics.Manager,
) *Handler {
	return &Handler{
		repo:      repo,
		generator: generator,
		exercises: exercises,
		users:     users,
		metrics:   metricsManager,
	}
}

func (handler *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainingplan.generate")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	planType := r.URL.Query().Get("plan_type")
	if planType == "" {
		planType = "short"
	}
	goal := r.URL.Query().Get("goal")
	if goal == "" {
		goal = "improve_pace"
	}
	days := defaultHistoryDays
	if daysStr := r.URL.Query().Get("days"); daysStr != "" {
		parsed, err := strconv.Atoi(daysStr)
		if err != nil || parsed < 1 {
			pkg.WriteJSONError(w, "invalid days", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	history, err := collectHistory(ctx, handler.exercises, handler.users, userID, days)
	if err != nil {
		log.Errorf("generate plan, collect history for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to generate training plan", http.StatusInternalServerError)
		return
	}

	generateStart := time.Now()
	planData, err := handler.generator.Generate(ctx, buildPrompt(history, planType, goal))
	if err != nil {
		log.Errorf("generate plan for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to generate training plan", http.StatusInternalServerError)
		return
	}
	handler.metrics.HistPlanGenerationDuration.Observe(time.Since(generateStart).Seconds())

	plan := Plan{
		ID:       uuid.NewString(),
		UserID:   userID,
		PlanType: planType,
		Goal:     goal,
		PlanData: planData,
		HistorySummary: HistorySummary{
			AvgHeartRate:   history.AvgHeartRate(),
			AvgPace:        history.AvgPace(),
			TotalExercises: history.TotalExercises,
		},
		Status:    StatusActive,
		CreatedAt: time.Now(),
	}

	added, err := handler.repo.Add(ctx, plan)
	if err != nil {
		log.Errorf("generate plan, save plan for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to save training plan", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterTrainingPlans.Inc()
	log.Debugf("training plan generated for [%s]: %s", userID, added.ID)

	respJson, err := json.Marshal(GenerateResponse{
		Message: "训练计划生成成功",
		PlanID:  added.ID,
		Plan:    planData,
	})
	if err != nil {
		log.Errorf("generate plan, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainingplan.list")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	plans, err := handler.repo.List(ctx, userID, r.URL.Query().Get("status"))
	if err != nil {
		log.Errorf("list plans for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to get training plans", http.StatusInternalServerError)
		return
	}

	items := make([]PlanListItem, 0, len(plans))
	for _, p := range plans {
		items = append(items, PlanListItem{
			ID:        p.ID,
			PlanType:  p.PlanType,
			Goal:      p.Goal,
			Title:     p.PlanData.Title(),
			Duration:  p.PlanData.Duration(),
			Status:    p.Status,
			CreatedAt: p.CreatedAt,
		})
	}

	respJson, err := json.Marshal(ListResponse{Plans: items})
	if err != nil {
		log.Errorf("list plans, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainingplan.get")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	planID := mux.Vars(r)["id"]
	plan, err := handler.repo.GetOwned(ctx, planID, userID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "training plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("get plan %s: %s", planID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	planJson, err := json.Marshal(plan)
	if err != nil {
		log.Errorf("get plan, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, planJson, http.StatusOK)
}

func (handler *Handler) HandleExportPDF(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.trainingplan.export-pdf")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	planID := mux.Vars(r)["id"]
	plan, err := handler.repo.GetOwned(ctx, planID, userID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			pkg.WriteJSONError(w, "training plan not found", http.StatusNotFound)
			return
		}
		log.Errorf("export plan %s: %s", planID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pdfBytes, err := export.TrainingPlanPDF(plan.PlanData)
	if err != nil {
		log.Errorf("export plan %s, render pdf: %s", planID, err)
		pkg.WriteJSONError(w, "failed to export training plan", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterExports.WithLabelValues("pdf").Inc()

	filename := fmt.Sprintf("training_plan_%s.pdf", plan.ID)
	pkg.WriteAttachmentBytes(w, pkg.ContentType.PDF, filename, pdfBytes)
}

package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fitrack-app/fitrack-backend/internal/auth"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/metrics"
	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
	"github.com/fitrack-app/fitrack-backend/pkg"
)

const previewChunkSize = 8192

type videosRepo interface {
	Add(ctx context.Context, video Video) (*Video, error)
	GetOwned(ctx context.Context, id, userID string) (*Video, error)
	List(ctx context.Context, userID, angle string) ([]Video, error)
	SetAnalysisStatus(ctx context.Context, id, status string) error
	SetAnalysisResult(ctx context.Context, id string, result *AnalysisResult) error
}

type videoStore interface {
	Save(ctx context.Context, filename string, src io.Reader) (string, int64, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type UploadResponse struct {
	Message  string `json:"message"`
	VideoID  string `json:"video_id"`
	Filename string `json:"filename"`
	Angle    string `json:"angle"`
	FileSize int64  `json:"file_size"`
}

type ListResponse struct {
	Videos []Video `json:"videos"`
}

type AnalyzeResponse struct {
	Message        string          `json:"message"`
	AnalysisResult *AnalysisResult `json:"analysis_result"`
}

type Handler struct {
	repo     videosRepo
	store    videoStore
	analyzer Analyzer
	metrics  *metrics.Manager
}

func NewHandler(repo videosRepo, store videoStore, analyzer Analyzer, metricsManager *metrics.Manager) *Handler {
	return &Handler{
		repo:     repo,
		store:    store,
		analyzer: analyzer,
		metrics:  metricsManager,
	}
}

func (handler *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.videos.upload")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxFileSize+1024*1024)
	file, header, err := r.FormFile("file")
	if err != nil {
		log.Tracef("video upload, get form file: %s", err)
		pkg.WriteJSONError(w, "video file missing or too large", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !ExtensionAllowed(header.Filename) {
		pkg.WriteJSONError(w, "unsupported video format", http.StatusBadRequest)
		return
	}

	angle := r.FormValue("angle")
	if angle == "" {
		angle = "front"
	}
	if !AngleAllowed(angle) {
		pkg.WriteJSONError(w, "angle must be front, side or back", http.StatusBadRequest)
		return
	}

	if header.Size > MaxFileSize {
		pkg.WriteJSONError(w, "file size over limit (max 100MB)", http.StatusBadRequest)
		return
	}

	ext := lowerExt(header.Filename)
	filename := fmt.Sprintf("%s_%s_%s%s", userID, angle, time.Now().Format("20060102_150405"), ext)

	path, size, err := handler.store.Save(ctx, filename, file)
	if err != nil {
		log.Errorf("video upload, save file [%s]: %s", filename, err)
		pkg.WriteJSONError(w, "failed to save video", http.StatusInternalServerError)
		return
	}

	video := Video{
		ID:               uuid.NewString(),
		UserID:           userID,
		Filename:         filename,
		Filepath:         path,
		Angle:            angle,
		OriginalFilename: header.Filename,
		FileSize:         size,
		UploadedAt:       time.Now(),
		AnalysisStatus:   AnalysisStatusPending,
	}

	added, err := handler.repo.Add(ctx, video)
	if err != nil {
		log.Errorf("video upload, add video row [%s]: %s", filename, err)
		pkg.WriteJSONError(w, "failed to save video", http.StatusInternalServerError)
		return
	}

	handler.metrics.CounterVideoUploads.Inc()
	log.Debugf("video uploaded: %s [%s]", added.ID, filename)

	respJson, err := json.Marshal(UploadResponse{
		Message:  "视频上传成功",
		VideoID:  added.ID,
		Filename: filename,
		Angle:    angle,
		FileSize: size,
	})
	if err != nil {
		log.Errorf("video upload, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.videos.list")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	videosList, err := handler.repo.List(ctx, userID, r.URL.Query().Get("angle"))
	if err != nil {
		log.Errorf("list videos for [%s]: %s", userID, err)
		pkg.WriteJSONError(w, "failed to get videos", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(ListResponse{Videos: videosList})
	if err != nil {
		log.Errorf("list videos, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

func (handler *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.videos.preview")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	videoID := mux.Vars(r)["id"]
	video, err := handler.repo.GetOwned(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			pkg.WriteJSONError(w, "video not found", http.StatusNotFound)
			return
		}
		log.Errorf("preview, get video %s: %s", videoID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	f, err := handler.store.Open(ctx, video.Filepath)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			pkg.WriteJSONError(w, "video file not found", http.StatusNotFound)
			return
		}
		log.Errorf("preview, open video file %s: %s", video.Filepath, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", video.OriginalFilename))
	w.WriteHeader(http.StatusOK)

	buf := make([]byte, previewChunkSize)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				log.Tracef("preview, client gone for video %s: %s", videoID, writeErr)
				return
			}
		}
		if readErr == io.EOF {
			return
		}
		if readErr != nil {
			log.Errorf("preview, read video file %s: %s", video.Filepath, readErr)
			return
		}
	}
}

func (handler *Handler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.videos.analyze")
	defer span.End()

	userID, ok := auth.UserIDFromContext(ctx)
	if !ok {
		pkg.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	videoID := mux.Vars(r)["id"]
	video, err := handler.repo.GetOwned(ctx, videoID, userID)
	if err != nil {
		if errors.Is(err, ErrVideoNotFound) {
			pkg.WriteJSONError(w, "video not found", http.StatusNotFound)
			return
		}
		log.Errorf("analyze, get video %s: %s", videoID, err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.SetAnalysisStatus(ctx, video.ID, AnalysisStatusProcessing); err != nil {
		log.Errorf("analyze, set status for video %s: %s", video.ID, err)
		pkg.WriteJSONError(w, "failed to analyze video", http.StatusInternalServerError)
		return
	}

	result, err := handler.analyzer.Analyze(ctx, video)
	if err != nil {
		log.Errorf("analyze video %s: %s", video.ID, err)
		if statusErr := handler.repo.SetAnalysisStatus(ctx, video.ID, AnalysisStatusFailed); statusErr != nil {
			log.Errorf("analyze, set failed status for video %s: %s", video.ID, statusErr)
		}
		pkg.WriteJSONError(w, "failed to analyze video", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.SetAnalysisResult(ctx, video.ID, result); err != nil {
		log.Errorf("analyze, save result for video %s: %s", video.ID, err)
		pkg.WriteJSONError(w, "failed to analyze video", http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(AnalyzeResponse{
		Message:        "视频分析完成",
		AnalysisResult: result,
	})
	if err != nil {
		log.Errorf("analyze, marshal response: %s", err)
		pkg.WriteJSONError(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.Debugf("video %s analyzed", video.ID)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, respJson, http.StatusOK)
}

package videos

import (
	"path/filepath"
	"strings"
	"time"
)

const MaxFileSize = 100 * 1024 * 1024

const (
	AnalysisStatusPending    = "pending"
	AnalysisStatusProcessing = "processing"
	AnalysisStatusCompleted  = "completed"
	AnalysisStatusFailed     = "failed"
)

var allowedExtensions = map[string]struct{}{
	".mp4":  {},
	".avi":  {},
	".mov":  {},
	".mkv":  {},
	".webm": {},
}

var allowedAngles = map[string]struct{}{
	"front": {},
	"side":  {},
	"back":  {},
}

func ExtensionAllowed(filename string) bool {
	_, ok := allowedExtensions[lowerExt(filename)]
	return ok
}

func lowerExt(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func AngleAllowed(angle string) bool {
	_, ok := allowedAngles[angle]
	return ok
}

type AnalysisResult struct {
	Score         int      `json:"score"`
	KneeAlignment string   `json:"knee_alignment"`
	FootStrike    string   `json:"foot_strike"`
	ArmSwing      string   `json:"arm_swing"`
	Posture       string   `json:"posture"`
	Suggestions   []string `json:"suggestions"`
	KeyPoints     []any    `json:"key_points"`
}

type Video struct {
	ID               string          `json:"id"`
	UserID           string          `json:"user_id"`
	Filename         string          `json:"filename"`
	Filepath         string          `json:"-"`
	Angle            string          `json:"angle"`
	OriginalFilename string          `json:"original_filename"`
	FileSize         int64           `json:"file_size"`
	UploadedAt       time.Time       `json:"uploaded_at"`
	AnalysisStatus   string          `json:"analysis_status"`
	AnalysisResult   *AnalysisResult `json:"analysis_result"`
	UpdatedAt        *time.Time      `json:"updated_at,omitempty"`
}

package videos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

var ErrVideoNotFound = errors.New("video not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, video Video) (_ *Video, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.videos.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("video.id", video.ID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO videos
				(id, user_id, filename, filepath, angle, original_filename, file_size, uploaded_at, analysis_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		video.ID, video.UserID, video.Filename, video.Filepath, video.Angle,
		video.OriginalFilename, video.FileSize, video.UploadedAt, video.AnalysisStatus,
	)
	if err != nil {
		return nil, fmt.Errorf("insert video: %w", err)
	}

	return &video, nil
}

// GetOwned returns the video only when it belongs to the given user.
func (r *Repo) GetOwned(ctx context.Context, id, userID string) (_ *Video, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.videos.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, filename, filepath, angle, original_filename, file_size,
				uploaded_at, analysis_status, analysis_result, updated_at
			FROM videos
			WHERE id = $1 AND user_id = $2;`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	videos, err := r.rows2videos(rows)
	if err != nil {
		return nil, err
	}

	if len(videos) != 1 {
		return nil, ErrVideoNotFound
	}

	return &videos[0], nil
}

// List returns the user's videos newest first, optionally filtered by angle.
func (r *Repo) List(ctx context.Context, userID, angle string) (_ []Video, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.videos.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))
	span.SetAttributes(attribute.String("angle", angle))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, filename, filepath, angle, original_filename, file_size,
				uploaded_at, analysis_status, analysis_result, updated_at
			FROM videos
			WHERE user_id = $1
			AND ($2::text = '' OR angle = $2)
			ORDER BY uploaded_at DESC
			LIMIT 100;`,
		userID, angle,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2videos(rows)
}

func (r *Repo) SetAnalysisStatus(ctx context.Context, id, status string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.videos.set-analysis-status")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))
	span.SetAttributes(attribute.String("status", status))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE videos SET analysis_status = $1, updated_at = $2 WHERE id = $3;`,
		status, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *Repo) SetAnalysisResult(ctx context.Context, id string, result *AnalysisResult) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.videos.set-analysis-result")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	resultJson, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal analysis result: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE videos SET analysis_status = $1, analysis_result = $2, updated_at = $3 WHERE id = $4;`,
		AnalysisStatusCompleted, resultJson, time.Now(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}

func (r *Repo) rows2videos(rows pgx.Rows) ([]Video, error) {
	var videos []Video
	for rows.Next() {
		var v Video
		var analysisResultBytes []byte
		var updatedAt *time.Time
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.Filename, &v.Filepath, &v.Angle, &v.OriginalFilename,
			&v.FileSize, &v.UploadedAt, &v.AnalysisStatus, &analysisResultBytes, &updatedAt,
		); err != nil {
			return nil, err
		}

		if len(analysisResultBytes) > 0 {
			if err := json.Unmarshal(analysisResultBytes, &v.AnalysisResult); err != nil {
				return nil, fmt.Errorf("unmarshal analysis result for video %s: %w", v.ID, err)
			}
		}
		v.UpdatedAt = updatedAt

		videos = append(videos, v)
	}

	if videos == nil {
		videos = make([]Video, 0)
	}

	return videos, nil
}

package exercise

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

var ErrRecordNotFound = errors.New("exercise record not found")

type ListParams struct {
	UserID string
	Limit  int
	Skip   int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, record Record) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercise.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("record.id", record.ID))

	var basicInfoJson, bandDataJson, treadmillDataJson []byte
	if record.BasicInfo != nil {
		if basicInfoJson, err = json.Marshal(record.BasicInfo); err != nil {
			return nil, fmt.Errorf("marshal basic info: %w", err)
		}
	}
	if record.BandData != nil {
		if bandDataJson, err = json.Marshal(record.BandData); err != nil {
			return nil, fmt.Errorf("marshal band data: %w", err)
		}
	}
	if record.TreadmillData != nil {
		if treadmillDataJson, err = json.Marshal(record.TreadmillData); err != nil {
			return nil, fmt.Errorf("marshal treadmill data: %w", err)
		}
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO exercise
				(id, user_id, basic_info, band_data, treadmill_data, created_at)
			VALUES ($1, $2, $3, $4, $5, $6);`,
		record.ID, record.UserID, basicInfoJson, bandDataJson, treadmillDataJson, record.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	return &record, nil
}

func (r *Repo) Get(ctx context.Context, id string) (_ *Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercise.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, basic_info, band_data, treadmill_data, created_at
			FROM exercise
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	records, err := r.rows2records(rows)
	if err != nil {
		return nil, err
	}

	if len(records) != 1 {
		return nil, ErrRecordNotFound
	}

	return &records[0], nil
}

// List returns records newest first, with optional owner filter and paging.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercise.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", params.UserID))
	span.SetAttributes(attribute.Int("limit", params.Limit))
	span.SetAttributes(attribute.Int("skip", params.Skip))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, basic_info, band_data, treadmill_data, created_at
			FROM exercise
			WHERE ($1::text = '' OR user_id = $1)
			ORDER BY created_at DESC
			LIMIT $2
			OFFSET $3;`,
		params.UserID, params.Limit, params.Skip,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2records(rows)
}

// ListAll returns every record for the given owner filter, oldest first.
func (r *Repo) ListAll(ctx context.Context, userID string) (_ []Record, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercise.listall")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user_id", userID))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, user_id, basic_info, band_data, treadmill_data, created_at
			FROM exercise
			WHERE ($1::text = '' OR user_id = $1)
			ORDER BY created_at ASC;`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2records(rows)
}

func (r *Repo) rows2records(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var rec Record
		var basicInfoBytes, bandDataBytes, treadmillDataBytes []byte
		var createdAt time.Time
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &basicInfoBytes, &bandDataBytes, &treadmillDataBytes, &createdAt,
		); err != nil {
			return nil, err
		}
		rec.Timestamp = createdAt

		if len(basicInfoBytes) > 0 {
			if err := json.Unmarshal(basicInfoBytes, &rec.BasicInfo); err != nil {
				return nil, fmt.Errorf("unmarshal basic info for record %s: %w", rec.ID, err)
			}
		}
		if len(bandDataBytes) > 0 {
			if err := json.Unmarshal(bandDataBytes, &rec.BandData); err != nil {
				return nil, fmt.Errorf("unmarshal band data for record %s: %w", rec.ID, err)
			}
		}
		if len(treadmillDataBytes) > 0 {
			if err := json.Unmarshal(treadmillDataBytes, &rec.TreadmillData); err != nil {
				return nil, fmt.Errorf("unmarshal treadmill data for record %s: %w", rec.ID, err)
			}
		}

		records = append(records, rec)
	}

	if records == nil {
		records = make([]Record, 0)
	}

	return records, nil
}

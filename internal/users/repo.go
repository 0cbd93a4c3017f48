package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fitrack-app/fitrack-backend/internal/telemetry/tracing"
)

var ErrUserNotFound = errors.New("user not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, user User) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", user.ID))

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO users
				(id, username, phone, email, wechat_openid, password_hash, gender, birthday, avatar, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);`,
		user.ID, user.Username,
		nullable(user.Phone), nullable(user.Email), nullable(user.WechatOpenID),
		user.PasswordHash, user.Gender, user.Birthday, user.Avatar,
		user.IsActive, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &user, nil
}

func (r *Repo) Get(ctx context.Context, id string) (*User, error) {
	return r.getBy(ctx, "repo.users.get", "id", id)
}

func (r *Repo) GetByPhone(ctx context.Context, phone string) (*User, error) {
	return r.getBy(ctx, "repo.users.get-by-phone", "phone", phone)
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*User, error) {
	return r.getBy(ctx, "repo.users.get-by-email", "email", email)
}

func (r *Repo) GetByWechatOpenID(ctx context.Context, openID string) (*User, error) {
	return r.getBy(ctx, "repo.users.get-by-openid", "wechat_openid", openID)
}

func (r *Repo) getBy(ctx context.Context, spanName, column, value string) (_ *User, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, spanName)
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		fmt.Sprintf(`
			SELECT
				id, username, phone, email, wechat_openid, password_hash,
				gender, birthday, avatar, is_active, created_at, updated_at
			FROM users
			WHERE %s = $1;`, column),
		value,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	users, err := r.rows2users(rows)
	if err != nil {
		return nil, err
	}

	if len(users) != 1 {
		return nil, ErrUserNotFound
	}

	return &users[0], nil
}

func (r *Repo) Update(ctx context.Context, user *User) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.users.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("user.id", user.ID))

	tag, err := r.db.Exec(
		ctx,
		`UPDATE users SET
				username = $1, phone = $2, email = $3, wechat_openid = $4,
				gender = $5, birthday = $6, avatar = $7, is_active = $8, updated_at = $9
			WHERE id = $10;`,
		user.Username,
		nullable(user.Phone), nullable(user.Email), nullable(user.WechatOpenID),
		user.Gender, user.Birthday, user.Avatar, user.IsActive, user.UpdatedAt,
		user.ID,
	)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}

	return nil
}

// nullable keeps empty identity fields as NULL so the partial unique
// indexes on phone/email/wechat_openid do not collide on "".
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repo) rows2users(rows pgx.Rows) ([]User, error) {
	var users []User
	for rows.Next() {
		var u User
		var phone, email, openID *string
		var createdAt, updatedAt time.Time
		if err := rows.Scan(
			&u.ID, &u.Username, &phone, &email, &openID, &u.PasswordHash,
			&u.Gender, &u.Birthday, &u.Avatar, &u.IsActive, &createdAt, &updatedAt,
		); err != nil {
			return nil, err
		}
		if phone != nil {
			u.Phone = *phone
		}
		if email != nil {
			u.Email = *email
		}
		if openID != nil {
			u.WechatOpenID = *openID
		}
		u.CreatedAt = createdAt
		u.UpdatedAt = updatedAt
		users = append(users, u)
	}

	if users == nil {
		users = make([]User, 0)
	}

	return users, nil
}

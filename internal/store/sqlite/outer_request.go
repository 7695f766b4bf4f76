package sqlite

import (
	"context"
	"time"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type outerRequestRepo struct {
	q querier
}

func (r outerRequestRepo) GetByInnerState(ctx context.Context, innerState string) (*repository.OuterAuthRecord, error) {
	var (
		rec                  repository.OuterAuthRecord
		info                 string
		expiresAt, createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT inner_state, info, expires_at, created_at
		FROM outer_auth_request
		WHERE inner_state = ?`, innerState,
	).Scan(&rec.InnerState, &info, &expiresAt, &createdAt)
	if err != nil {
		return nil, mapErr(err)
	}
	rec.Info = []byte(info)
	rec.ExpiresAt = fromMillis(expiresAt)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}

func (r outerRequestRepo) Create(ctx context.Context, rec repository.OuterAuthRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO outer_auth_request (inner_state, info, expires_at, created_at)
		VALUES (?, ?, ?, ?)`,
		rec.InnerState, string(rec.Info), toMillis(rec.ExpiresAt), toMillis(createdAt),
	)
	return mapErr(err)
}

func (r outerRequestRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM outer_auth_request WHERE expires_at < ?`, toMillis(before))
	if err != nil {
		return 0, mapErr(err)
	}
	return res.RowsAffected()
}

package pg

import (
	"context"
	"time"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type outerRequestRepo struct {
	q querier
}

func (r outerRequestRepo) GetByInnerState(ctx context.Context, innerState string) (*repository.OuterAuthRecord, error) {
	const query = `
		SELECT inner_state, info, expires_at, created_at
		FROM outer_auth_request
		WHERE inner_state = $1
	`
	var rec repository.OuterAuthRecord
	err := r.q.QueryRow(ctx, query, innerState).Scan(&rec.InnerState, &rec.Info, &rec.ExpiresAt, &rec.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &rec, nil
}

func (r outerRequestRepo) Create(ctx context.Context, rec repository.OuterAuthRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO outer_auth_request (inner_state, info, expires_at, created_at)
		VALUES ($1, $2, $3, $4)`,
		rec.InnerState, rec.Info, rec.ExpiresAt, createdAt,
	)
	return mapErr(err)
}

func (r outerRequestRepo) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.q.Exec(ctx, `DELETE FROM outer_auth_request WHERE expires_at < $1`, before)
	if err != nil {
		return 0, mapErr(err)
	}
	return tag.RowsAffected(), nil
}

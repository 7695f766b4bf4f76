package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type userRepo struct {
	q querier
}

func scanUser(row *sql.Row) (*repository.User, error) {
	var (
		u                  repository.User
		displayName, image sql.NullString
		createdAt          int64
	)
	if err := row.Scan(&u.ID, &u.TenancyID, &displayName, &image, &u.IsAnonymous, &createdAt); err != nil {
		return nil, mapErr(err)
	}
	u.DisplayName = displayName.String
	u.ProfileImageURL = image.String
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}

func (r userRepo) GetByID(ctx context.Context, tenancyID, userID string) (*repository.User, error) {
	return scanUser(r.q.QueryRowContext(ctx, `
		SELECT id, tenancy_id, display_name, profile_image_url, is_anonymous, created_at
		FROM project_user
		WHERE tenancy_id = ? AND id = ?`,
		tenancyID, userID,
	))
}

func (r userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	u := &repository.User{
		ID:              uuid.Must(uuid.NewV7()).String(),
		TenancyID:       input.TenancyID,
		DisplayName:     input.DisplayName,
		ProfileImageURL: input.ProfileImageURL,
		IsAnonymous:     input.IsAnonymous,
		CreatedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO project_user (id, tenancy_id, display_name, profile_image_url, is_anonymous, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.TenancyID, nullString(u.DisplayName), nullString(u.ProfileImageURL), u.IsAnonymous, toMillis(u.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (r userRepo) UpgradeAnonymous(ctx context.Context, tenancyID, userID string, input repository.UpgradeUserInput) (*repository.User, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE project_user
		SET is_anonymous = 0,
		    display_name = COALESCE(display_name, ?),
		    profile_image_url = COALESCE(profile_image_url, ?)
		WHERE tenancy_id = ? AND id = ?`,
		nullString(input.DisplayName), nullString(input.ProfileImageURL), tenancyID, userID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repository.ErrNotFound
	}
	return r.GetByID(ctx, tenancyID, userID)
}

func (r userRepo) Count(ctx context.Context, tenancyID string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM project_user WHERE tenancy_id = ?`, tenancyID).Scan(&n)
	return n, mapErr(err)
}

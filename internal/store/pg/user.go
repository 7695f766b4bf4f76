package pg

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type userRepo struct {
	q querier
}

func (r userRepo) GetByID(ctx context.Context, tenancyID, userID string) (*repository.User, error) {
	// Un id que no es uuid no puede existir; evitar el error de cast que
	// abortaría la transacción en curso.
	if _, err := uuid.Parse(userID); err != nil {
		return nil, repository.ErrNotFound
	}
	var u repository.User
	var displayName, image *string
	err := r.q.QueryRow(ctx, `
		SELECT id, tenancy_id, display_name, profile_image_url, is_anonymous, created_at
		FROM project_user
		WHERE tenancy_id = $1 AND id = $2`,
		tenancyID, userID,
	).Scan(&u.ID, &u.TenancyID, &displayName, &image, &u.IsAnonymous, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.DisplayName = derefString(displayName)
	u.ProfileImageURL = derefString(image)
	return &u, nil
}

func (r userRepo) Create(ctx context.Context, input repository.CreateUserInput) (*repository.User, error) {
	u := &repository.User{
		ID:              uuid.Must(uuid.NewV7()).String(),
		TenancyID:       input.TenancyID,
		DisplayName:     input.DisplayName,
		ProfileImageURL: input.ProfileImageURL,
		IsAnonymous:     input.IsAnonymous,
		CreatedAt:       time.Now(),
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO project_user (id, tenancy_id, display_name, profile_image_url, is_anonymous, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.TenancyID, nullIfEmpty(u.DisplayName), nullIfEmpty(u.ProfileImageURL), u.IsAnonymous, u.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

func (r userRepo) UpgradeAnonymous(ctx context.Context, tenancyID, userID string, input repository.UpgradeUserInput) (*repository.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, repository.ErrNotFound
	}
	var u repository.User
	var displayName, image *string
	err := r.q.QueryRow(ctx, `
		UPDATE project_user
		SET is_anonymous = FALSE,
		    display_name = COALESCE(display_name, $3),
		    profile_image_url = COALESCE(profile_image_url, $4)
		WHERE tenancy_id = $1 AND id = $2
		RETURNING id, tenancy_id, display_name, profile_image_url, is_anonymous, created_at`,
		tenancyID, userID, nullIfEmpty(input.DisplayName), nullIfEmpty(input.ProfileImageURL),
	).Scan(&u.ID, &u.TenancyID, &displayName, &image, &u.IsAnonymous, &u.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.DisplayName = derefString(displayName)
	u.ProfileImageURL = derefString(image)
	return &u, nil
}

func (r userRepo) Count(ctx context.Context, tenancyID string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM project_user WHERE tenancy_id = $1`, tenancyID).Scan(&n)
	return n, mapErr(err)
}

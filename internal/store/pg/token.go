package pg

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type tokenRepo struct {
	q querier
}

func scopesOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (r tokenRepo) CreateRefreshToken(ctx context.Context, tok repository.OAuthToken) (*repository.OAuthToken, error) {
	tok.ID = uuid.Must(uuid.NewV7()).String()
	tok.CreatedAt = time.Now()
	_, err := r.q.Exec(ctx, `
		INSERT INTO oauth_token (id, tenancy_id, binding_id, refresh_token, scopes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		tok.ID, tok.TenancyID, tok.BindingID, tok.RefreshToken, scopesOrEmpty(tok.Scopes), tok.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tok, nil
}

func (r tokenRepo) CreateAccessToken(ctx context.Context, tok repository.OAuthAccessToken) (*repository.OAuthAccessToken, error) {
	tok.ID = uuid.Must(uuid.NewV7()).String()
	tok.CreatedAt = time.Now()
	_, err := r.q.Exec(ctx, `
		INSERT INTO oauth_access_token (id, tenancy_id, binding_id, access_token, scopes, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tok.ID, tok.TenancyID, tok.BindingID, tok.AccessToken, scopesOrEmpty(tok.Scopes), tok.ExpiresAt, tok.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tok, nil
}

func (r tokenRepo) ListAccessTokens(ctx context.Context, tenancyID, bindingID string) ([]repository.OAuthAccessToken, error) {
	if _, err := uuid.Parse(bindingID); err != nil {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, tenancy_id, binding_id, access_token, scopes, expires_at, created_at
		FROM oauth_access_token
		WHERE tenancy_id = $1 AND binding_id = $2
		ORDER BY created_at DESC, id DESC`,
		tenancyID, bindingID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.OAuthAccessToken
	for rows.Next() {
		var t repository.OAuthAccessToken
		if err := rows.Scan(&t.ID, &t.TenancyID, &t.BindingID, &t.AccessToken, &t.Scopes, &t.ExpiresAt, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r tokenRepo) ListRefreshTokens(ctx context.Context, tenancyID, bindingID string) ([]repository.OAuthToken, error) {
	if _, err := uuid.Parse(bindingID); err != nil {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT id, tenancy_id, binding_id, refresh_token, scopes, created_at
		FROM oauth_token
		WHERE tenancy_id = $1 AND binding_id = $2
		ORDER BY created_at DESC, id DESC`,
		tenancyID, bindingID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.OAuthToken
	for rows.Next() {
		var t repository.OAuthToken
		if err := rows.Scan(&t.ID, &t.TenancyID, &t.BindingID, &t.RefreshToken, &t.Scopes, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

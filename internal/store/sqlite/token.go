package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type tokenRepo struct {
	q querier
}

func encodeScopes(s []string) string {
	if len(s) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func decodeScopes(raw string) ([]string, error) {
	var s []string
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r tokenRepo) CreateRefreshToken(ctx context.Context, tok repository.OAuthToken) (*repository.OAuthToken, error) {
	tok.ID = uuid.Must(uuid.NewV7()).String()
	tok.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO oauth_token (id, tenancy_id, binding_id, refresh_token, scopes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		tok.ID, tok.TenancyID, tok.BindingID, tok.RefreshToken, encodeScopes(tok.Scopes), toMillis(tok.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tok, nil
}

func (r tokenRepo) CreateAccessToken(ctx context.Context, tok repository.OAuthAccessToken) (*repository.OAuthAccessToken, error) {
	tok.ID = uuid.Must(uuid.NewV7()).String()
	tok.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO oauth_access_token (id, tenancy_id, binding_id, access_token, scopes, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		tok.ID, tok.TenancyID, tok.BindingID, tok.AccessToken, encodeScopes(tok.Scopes),
		toMillis(tok.ExpiresAt), toMillis(tok.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &tok, nil
}

func (r tokenRepo) ListAccessTokens(ctx context.Context, tenancyID, bindingID string) ([]repository.OAuthAccessToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenancy_id, binding_id, access_token, scopes, expires_at, created_at
		FROM oauth_access_token
		WHERE tenancy_id = ? AND binding_id = ?
		ORDER BY created_at DESC, id DESC`,
		tenancyID, bindingID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.OAuthAccessToken
	for rows.Next() {
		var (
			t                    repository.OAuthAccessToken
			scopes               string
			expiresAt, createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.TenancyID, &t.BindingID, &t.AccessToken, &scopes, &expiresAt, &createdAt); err != nil {
			return nil, err
		}
		if t.Scopes, err = decodeScopes(scopes); err != nil {
			return nil, err
		}
		t.ExpiresAt = fromMillis(expiresAt)
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r tokenRepo) ListRefreshTokens(ctx context.Context, tenancyID, bindingID string) ([]repository.OAuthToken, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, tenancy_id, binding_id, refresh_token, scopes, created_at
		FROM oauth_token
		WHERE tenancy_id = ? AND binding_id = ?
		ORDER BY created_at DESC, id DESC`,
		tenancyID, bindingID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.OAuthToken
	for rows.Next() {
		var (
			t         repository.OAuthToken
			scopes    string
			createdAt int64
		)
		if err := rows.Scan(&t.ID, &t.TenancyID, &t.BindingID, &t.RefreshToken, &scopes, &createdAt); err != nil {
			return nil, err
		}
		if t.Scopes, err = decodeScopes(scopes); err != nil {
			return nil, err
		}
		t.CreatedAt = fromMillis(createdAt)
		out = append(out, t)
	}
	return out, rows.Err()
}

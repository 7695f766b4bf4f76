package repository

import (
	"context"
	"time"
)

// OAuthToken es un refresh token del provider (sellado en reposo).
type OAuthToken struct {
	ID           string
	TenancyID    string
	BindingID    string // ProviderAccount.ID
	RefreshToken string
	Scopes       []string
	CreatedAt    time.Time
}

// OAuthAccessToken es un access token del provider (sellado en reposo).
type OAuthAccessToken struct {
	ID          string
	TenancyID   string
	BindingID   string // ProviderAccount.ID
	AccessToken string
	Scopes      []string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// OAuthTokenRepository es append-only: cada callback exitoso es un grant nuevo.
type OAuthTokenRepository interface {
	CreateRefreshToken(ctx context.Context, tok OAuthToken) (*OAuthToken, error)
	CreateAccessToken(ctx context.Context, tok OAuthAccessToken) (*OAuthAccessToken, error)

	// ListAccessTokens retorna los access tokens de un binding, más nuevos primero.
	ListAccessTokens(ctx context.Context, tenancyID, bindingID string) ([]OAuthAccessToken, error)

	// ListRefreshTokens retorna los refresh tokens de un binding, más nuevos primero.
	ListRefreshTokens(ctx context.Context, tenancyID, bindingID string) ([]OAuthToken, error)
}

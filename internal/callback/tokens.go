package callback

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/security/tokenbox"
)

// TokenPersister stores the provider tokens of a grant, sealed at rest.
// Writes are append-only.
type TokenPersister struct {
	box *tokenbox.Box
}

// NewTokenPersister creates a TokenPersister sealing with box.
func NewTokenPersister(box *tokenbox.Box) *TokenPersister {
	return &TokenPersister{box: box}
}

// Persist inserts the refresh token (when present) and the access token for
// binding.
func (p *TokenPersister) Persist(ctx context.Context, tokens repository.OAuthTokenRepository, binding *repository.ProviderAccount, scopes []string, set provider.TokenSet) error {
	aad := tokenbox.BindingAAD(binding.TenancyID, binding.ID)

	if set.RefreshToken != "" {
		sealed, err := p.box.Seal(set.RefreshToken, aad)
		if err != nil {
			return err
		}
		if _, err := tokens.CreateRefreshToken(ctx, repository.OAuthToken{
			TenancyID:    binding.TenancyID,
			BindingID:    binding.ID,
			RefreshToken: sealed,
			Scopes:       scopes,
		}); err != nil {
			return err
		}
	}

	sealed, err := p.box.Seal(set.AccessToken, aad)
	if err != nil {
		return err
	}
	_, err = tokens.CreateAccessToken(ctx, repository.OAuthAccessToken{
		TenancyID:   binding.TenancyID,
		BindingID:   binding.ID,
		AccessToken: sealed,
		Scopes:      scopes,
		ExpiresAt:   set.AccessTokenExpiredAt.UTC().Truncate(time.Millisecond),
	})
	return err
}

// extractScopes splits scope strings on whitespace and commas, dropping
// duplicates and keeping first-seen order.
func extractScopes(raw ...string) []string {
	out := []string{}
	for _, r := range raw {
		for _, s := range strings.FieldsFunc(r, func(c rune) bool {
			return c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r'
		}) {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
	}
	return out
}

// Package tenancy carga la configuración por tenancy (providers OAuth,
// allowlist de redirects, política de merge) desde un snapshot YAML.
//
// Cada Get devuelve una copia profunda: el callback trabaja sobre un
// snapshot inmutable durante todo el request aunque el archivo cambie.
package tenancy

import (
	"context"
	"errors"
	"slices"
)

// MergeStrategy decide si una identidad OAuth nueva se vincula a un usuario
// existente que comparte email.
type MergeStrategy string

const (
	MergeLinkMethod      MergeStrategy = "link_method"
	MergeRaiseError      MergeStrategy = "raise_error"
	MergeAllowDuplicates MergeStrategy = "allow_duplicates"
)

// Tipos de provider soportados por el gateway.
const (
	ProviderGoogle = "google"
	ProviderGitHub = "github"
	ProviderOIDC   = "oidc"
)

// ErrNotFound indica que la tenancy no existe en el snapshot.
var ErrNotFound = errors.New("tenancy: not found")

// Provider es la configuración de un provider OAuth externo.
type Provider struct {
	ID           string `yaml:"id"`
	Type         string `yaml:"type"`
	Enabled      bool   `yaml:"enabled"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	TokenURL     string `yaml:"token_url"`
	UserInfoURL  string `yaml:"userinfo_url"`
	DefaultScope string `yaml:"default_scope"`
}

// Tenancy es la configuración efectiva de una tenancy.
type Tenancy struct {
	ID                   string        `yaml:"id"`
	Providers            []Provider    `yaml:"providers"`
	TrustedDomains       []string      `yaml:"trusted_domains"`
	AllowLocalhost       bool          `yaml:"allow_localhost"`
	NativeAppSchemes     []string      `yaml:"native_app_schemes"`
	AccountMergeStrategy MergeStrategy `yaml:"account_merge_strategy"`
	AllowSignUp          *bool         `yaml:"allow_sign_up"`
	AllowedScopes        []string      `yaml:"allowed_scopes"`
	PublishableClientKey string        `yaml:"publishable_client_key"`
}

// Store resuelve tenancies por id.
type Store interface {
	// Get retorna una copia inmutable. ErrNotFound si no existe.
	Get(ctx context.Context, tenancyID string) (*Tenancy, error)
}

// Provider busca un provider por id.
func (t *Tenancy) Provider(id string) (Provider, bool) {
	for _, p := range t.Providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}

// SignUpAllowed es true salvo que la tenancy lo deshabilite explícitamente.
func (t *Tenancy) SignUpAllowed() bool {
	return t.AllowSignUp == nil || *t.AllowSignUp
}

// MergeStrategy retorna la estrategia efectiva (link_method por defecto).
func (t *Tenancy) MergeStrategy() MergeStrategy {
	if t.AccountMergeStrategy == "" {
		return MergeLinkMethod
	}
	return t.AccountMergeStrategy
}

// Clone retorna una copia profunda.
func (t *Tenancy) Clone() *Tenancy {
	if t == nil {
		return nil
	}
	c := *t
	c.Providers = slices.Clone(t.Providers)
	c.TrustedDomains = slices.Clone(t.TrustedDomains)
	c.NativeAppSchemes = slices.Clone(t.NativeAppSchemes)
	c.AllowedScopes = slices.Clone(t.AllowedScopes)
	if t.AllowSignUp != nil {
		v := *t.AllowSignUp
		c.AllowSignUp = &v
	}
	return &c
}

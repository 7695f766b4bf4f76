package repository

import (
	"context"
	"time"
)

// FlowType distingue el flujo iniciado en /authorize.
type FlowType string

const (
	FlowSignInOrUp FlowType = "sign-in-or-up"
	FlowLink       FlowType = "link"
)

// OuterAuthRequest es el payload que /authorize persiste antes de redirigir
// al provider. Es server-authored: un payload que no valida es un bug, no un
// error del usuario.
type OuterAuthRequest struct {
	TenancyID         string   `json:"tenancyId" validate:"required"`
	InnerCodeVerifier string   `json:"innerCodeVerifier" validate:"required"`
	Type              FlowType `json:"type" validate:"required,oneof=sign-in-or-up link"`
	// ProjectUserID es obligatorio en link; en sign-in-or-up es la pista de
	// upgrade de un usuario anónimo.
	ProjectUserID            string `json:"projectUserId,omitempty" validate:"required_if=Type link"`
	ProviderScope            string `json:"providerScope"`
	ErrorRedirectURL         string `json:"errorRedirectUrl,omitempty" validate:"omitempty,url"`
	AfterCallbackRedirectURL string `json:"afterCallbackRedirectUrl,omitempty" validate:"omitempty,url"`

	// Parámetros OAuth2 del cliente externo ("outer").
	State                string `json:"state" validate:"required"`
	Scope                string `json:"scope"`
	GrantType            string `json:"grantType" validate:"required"`
	CodeChallenge        string `json:"codeChallenge"`
	CodeChallengeMethod  string `json:"codeChallengeMethod" validate:"omitempty,oneof=S256 plain"`
	ResponseType         string `json:"responseType" validate:"required"`
	RedirectURI          string `json:"redirectUri" validate:"required,url"`
	PublishableClientKey string `json:"publishableClientKey"`

	// Seteados desde la fila, no desde el JSON.
	InnerState string    `json:"-"`
	ExpiresAt  time.Time `json:"-"`
}

// OuterAuthRecord es la fila cruda: Info se decodifica y valida en el guard.
type OuterAuthRecord struct {
	InnerState string
	Info       []byte
	ExpiresAt  time.Time
	CreatedAt  time.Time
}

// OuterRequestRepository es el store tenant-agnostic de correlación.
// El callback solo lee; nunca borra (el TTL es la única limpieza).
type OuterRequestRepository interface {
	// GetByInnerState retorna ErrNotFound si no existe.
	GetByInnerState(ctx context.Context, innerState string) (*OuterAuthRecord, error)

	// Create persiste un registro. Retorna ErrConflict si el inner state ya existe.
	Create(ctx context.Context, rec OuterAuthRecord) error

	// PurgeExpired elimina filas con expires_at anterior a before.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

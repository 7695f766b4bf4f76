package repository

import (
	"context"
	"time"
)

// ProviderAccount es el binding durable (tenancy, provider, account id) → usuario.
type ProviderAccount struct {
	ID                string
	TenancyID         string
	ProviderID        string
	ProviderAccountID string
	ProjectUserID     string
	Email             string
	CreatedAt         time.Time
}

// CreateProviderAccountInput contiene los datos para crear un binding.
type CreateProviderAccountInput struct {
	TenancyID         string
	ProviderID        string
	ProviderAccountID string
	ProjectUserID     string
	Email             string
	// AuthMethod crea además la fila auth_method del binding. Es un registro
	// para quien liste los métodos de login del usuario; Find no la consulta
	// y cualquier binding existente resuelve el sign-in.
	AuthMethod bool
}

// ProviderAccountRepository define operaciones sobre bindings.
type ProviderAccountRepository interface {
	// Find busca por la tripla única. Retorna ErrNotFound si no existe.
	Find(ctx context.Context, tenancyID, providerID, providerAccountID string) (*ProviderAccount, error)

	// Create inserta el binding (y su auth method si input.AuthMethod).
	// Retorna ErrConflict si la tripla ya está vinculada.
	Create(ctx context.Context, input CreateProviderAccountInput) (*ProviderAccount, error)

	// ListByUser lista los bindings de un usuario.
	ListByUser(ctx context.Context, tenancyID, projectUserID string) ([]ProviderAccount, error)
}

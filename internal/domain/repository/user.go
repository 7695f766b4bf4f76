package repository

import (
	"context"
	"time"
)

// User es un usuario de la tenancy.
type User struct {
	ID              string
	TenancyID       string
	DisplayName     string
	ProfileImageURL string
	IsAnonymous     bool
	CreatedAt       time.Time
}

// CreateUserInput contiene el perfil inicial de un usuario.
type CreateUserInput struct {
	TenancyID       string
	DisplayName     string
	ProfileImageURL string
	IsAnonymous     bool
}

// UpgradeUserInput contiene el perfil con el que un anónimo pasa a ser usuario pleno.
type UpgradeUserInput struct {
	DisplayName     string
	ProfileImageURL string
}

// UserRepository define operaciones sobre usuarios.
type UserRepository interface {
	// GetByID retorna ErrNotFound si el usuario no existe en la tenancy.
	GetByID(ctx context.Context, tenancyID, userID string) (*User, error)

	// Create crea un usuario.
	Create(ctx context.Context, input CreateUserInput) (*User, error)

	// UpgradeAnonymous marca el usuario como no anónimo y completa el perfil
	// (sin pisar campos ya seteados). Retorna ErrNotFound si no existe.
	UpgradeAnonymous(ctx context.Context, tenancyID, userID string, input UpgradeUserInput) (*User, error)

	// Count cuenta usuarios de la tenancy.
	Count(ctx context.Context, tenancyID string) (int, error)
}

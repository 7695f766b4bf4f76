package repository

import (
	"context"
	"strings"
	"time"
)

// ContactChannelEmail es el único tipo de canal que usa el callback.
const ContactChannelEmail = "EMAIL"

// ContactChannel es un canal de contacto de un usuario (email).
type ContactChannel struct {
	ID            string
	TenancyID     string
	ProjectUserID string
	Type          string
	Value         string
	IsPrimary     bool
	IsVerified    bool
	UsedForAuth   bool
	CreatedAt     time.Time
}

// ContactChannelRepository define operaciones sobre canales de contacto.
type ContactChannelRepository interface {
	// FindUsedForAuth busca el canal de auth con ese valor (ya normalizado).
	// Retorna ErrNotFound si ningún canal de auth lo usa.
	FindUsedForAuth(ctx context.Context, tenancyID, channelType, value string) (*ContactChannel, error)

	// Create inserta un canal. Retorna ErrConflict si otro canal de auth ya
	// usa el mismo valor.
	Create(ctx context.Context, ch ContactChannel) (*ContactChannel, error)
}

// NormalizeEmail aplica la normalización con la que se guardan y buscan emails.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

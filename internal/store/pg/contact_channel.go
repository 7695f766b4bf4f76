package pg

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type contactChannelRepo struct {
	q querier
}

func (r contactChannelRepo) FindUsedForAuth(ctx context.Context, tenancyID, channelType, value string) (*repository.ContactChannel, error) {
	var ch repository.ContactChannel
	err := r.q.QueryRow(ctx, `
		SELECT id, tenancy_id, project_user_id, type, value, is_primary, is_verified, used_for_auth, created_at
		FROM contact_channel
		WHERE tenancy_id = $1 AND type = $2 AND value = $3 AND used_for_auth`,
		tenancyID, channelType, value,
	).Scan(&ch.ID, &ch.TenancyID, &ch.ProjectUserID, &ch.Type, &ch.Value,
		&ch.IsPrimary, &ch.IsVerified, &ch.UsedForAuth, &ch.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ch, nil
}

func (r contactChannelRepo) Create(ctx context.Context, ch repository.ContactChannel) (*repository.ContactChannel, error) {
	ch.ID = uuid.Must(uuid.NewV7()).String()
	ch.CreatedAt = time.Now()
	_, err := r.q.Exec(ctx, `
		INSERT INTO contact_channel (id, tenancy_id, project_user_id, type, value, is_primary, is_verified, used_for_auth, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ch.ID, ch.TenancyID, ch.ProjectUserID, ch.Type, ch.Value,
		ch.IsPrimary, ch.IsVerified, ch.UsedForAuth, ch.CreatedAt,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ch, nil
}

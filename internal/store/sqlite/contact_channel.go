package sqlite

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
	var (
		ch        repository.ContactChannel
		createdAt int64
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, tenancy_id, project_user_id, type, value, is_primary, is_verified, used_for_auth, created_at
		FROM contact_channel
		WHERE tenancy_id = ? AND type = ? AND value = ? AND used_for_auth = 1`,
		tenancyID, channelType, value,
	).Scan(&ch.ID, &ch.TenancyID, &ch.ProjectUserID, &ch.Type, &ch.Value,
		&ch.IsPrimary, &ch.IsVerified, &ch.UsedForAuth, &createdAt)
	if err != nil {
		return nil, mapErr(err)
	}
	ch.CreatedAt = fromMillis(createdAt)
	return &ch, nil
}

func (r contactChannelRepo) Create(ctx context.Context, ch repository.ContactChannel) (*repository.ContactChannel, error) {
	ch.ID = uuid.Must(uuid.NewV7()).String()
	ch.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO contact_channel (id, tenancy_id, project_user_id, type, value, is_primary, is_verified, used_for_auth, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.TenancyID, ch.ProjectUserID, ch.Type, ch.Value,
		ch.IsPrimary, ch.IsVerified, ch.UsedForAuth, toMillis(ch.CreatedAt),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return &ch, nil
}

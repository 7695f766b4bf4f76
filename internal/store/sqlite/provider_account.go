package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type providerAccountRepo struct {
	q querier
}

const providerAccountColumns = `id, tenancy_id, provider_id, provider_account_id, project_user_id, email, created_at`

func scanProviderAccount(row interface{ Scan(...any) error }) (*repository.ProviderAccount, error) {
	var (
		pa        repository.ProviderAccount
		email     sql.NullString
		createdAt int64
	)
	if err := row.Scan(&pa.ID, &pa.TenancyID, &pa.ProviderID, &pa.ProviderAccountID,
		&pa.ProjectUserID, &email, &createdAt); err != nil {
		return nil, err
	}
	pa.Email = email.String
	pa.CreatedAt = fromMillis(createdAt)
	return &pa, nil
}

func (r providerAccountRepo) Find(ctx context.Context, tenancyID, providerID, providerAccountID string) (*repository.ProviderAccount, error) {
	row := r.q.QueryRowContext(ctx, `
		SELECT `+providerAccountColumns+`
		FROM provider_account
		WHERE tenancy_id = ? AND provider_id = ? AND provider_account_id = ?`,
		tenancyID, providerID, providerAccountID,
	)
	pa, err := scanProviderAccount(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return pa, nil
}

func (r providerAccountRepo) Create(ctx context.Context, input repository.CreateProviderAccountInput) (*repository.ProviderAccount, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	pa := &repository.ProviderAccount{
		ID:                uuid.Must(uuid.NewV7()).String(),
		TenancyID:         input.TenancyID,
		ProviderID:        input.ProviderID,
		ProviderAccountID: input.ProviderAccountID,
		ProjectUserID:     input.ProjectUserID,
		Email:             input.Email,
		CreatedAt:         now,
	}

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO provider_account (id, tenancy_id, provider_id, provider_account_id, project_user_id, email, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pa.ID, pa.TenancyID, pa.ProviderID, pa.ProviderAccountID, pa.ProjectUserID, nullString(pa.Email), toMillis(now),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if !input.AuthMethod {
		return pa, nil
	}

	_, err = r.q.ExecContext(ctx, `
		INSERT INTO auth_method (id, tenancy_id, project_user_id, binding_id, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		uuid.Must(uuid.NewV7()).String(), pa.TenancyID, pa.ProjectUserID, pa.ID, toMillis(now),
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return pa, nil
}

func (r providerAccountRepo) ListByUser(ctx context.Context, tenancyID, projectUserID string) ([]repository.ProviderAccount, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+providerAccountColumns+`
		FROM provider_account
		WHERE tenancy_id = ? AND project_user_id = ?
		ORDER BY created_at, id`,
		tenancyID, projectUserID,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.ProviderAccount
	for rows.Next() {
		pa, err := scanProviderAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *pa)
	}
	return out, rows.Err()
}

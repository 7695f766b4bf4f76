package pg

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

type providerAccountRepo struct {
	q querier
}

const providerAccountColumns = `id, tenancy_id, provider_id, provider_account_id, project_user_id, email, created_at`

func scanProviderAccount(row interface{ Scan(...any) error }) (*repository.ProviderAccount, error) {
	var pa repository.ProviderAccount
	var email *string
	if err := row.Scan(&pa.ID, &pa.TenancyID, &pa.ProviderID, &pa.ProviderAccountID,
		&pa.ProjectUserID, &email, &pa.CreatedAt); err != nil {
		return nil, err
	}
	pa.Email = derefString(email)
	return &pa, nil
}

func (r providerAccountRepo) Find(ctx context.Context, tenancyID, providerID, providerAccountID string) (*repository.ProviderAccount, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+providerAccountColumns+`
		FROM provider_account
		WHERE tenancy_id = $1 AND provider_id = $2 AND provider_account_id = $3`,
		tenancyID, providerID, providerAccountID,
	)
	pa, err := scanProviderAccount(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return pa, nil
}

// Create inserta el binding y, si corresponde, su auth method. Fuera de
// InTx son sentencias independientes; el callback siempre usa InTx.
func (r providerAccountRepo) Create(ctx context.Context, input repository.CreateProviderAccountInput) (*repository.ProviderAccount, error) {
	now := time.Now()
	pa := &repository.ProviderAccount{
		ID:                uuid.Must(uuid.NewV7()).String(),
		TenancyID:         input.TenancyID,
		ProviderID:        input.ProviderID,
		ProviderAccountID: input.ProviderAccountID,
		ProjectUserID:     input.ProjectUserID,
		Email:             input.Email,
		CreatedAt:         now,
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO provider_account (id, tenancy_id, provider_id, provider_account_id, project_user_id, email, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		pa.ID, pa.TenancyID, pa.ProviderID, pa.ProviderAccountID, pa.ProjectUserID, nullIfEmpty(pa.Email), now,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	if !input.AuthMethod {
		return pa, nil
	}

	_, err = r.q.Exec(ctx, `
		INSERT INTO auth_method (id, tenancy_id, project_user_id, binding_id, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.Must(uuid.NewV7()).String(), pa.TenancyID, pa.ProjectUserID, pa.ID, now,
	)
	if err != nil {
		return nil, mapErr(err)
	}
	return pa, nil
}

func (r providerAccountRepo) ListByUser(ctx context.Context, tenancyID, projectUserID string) ([]repository.ProviderAccount, error) {
	if _, err := uuid.Parse(projectUserID); err != nil {
		return nil, nil
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+providerAccountColumns+`
		FROM provider_account
		WHERE tenancy_id = $1 AND project_user_id = $2
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

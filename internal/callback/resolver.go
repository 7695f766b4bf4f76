package callback

import (
	"context"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/provider"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// ResolveInput is everything account resolution reads.
type ResolveInput struct {
	Tenancy    *tenancy.Tenancy
	ProviderID string
	Request    *repository.OuterAuthRequest
	UserInfo   provider.UserInfo
}

// Resolve maps a provider identity to a local user. All writes go through
// repos, which the caller binds to a single transaction: any error rolls
// back every row written here.
func Resolve(ctx context.Context, repos repository.Repositories, in ResolveInput) (Resolution, error) {
	switch in.Request.Type {
	case repository.FlowLink:
		return resolveLink(ctx, repos, in)
	case repository.FlowSignInOrUp:
		return resolveSignInOrUp(ctx, repos, in)
	default:
		return nil, internalf("unknown oauth flow type %q", in.Request.Type)
	}
}

func resolveLink(ctx context.Context, repos repository.Repositories, in ResolveInput) (Resolution, error) {
	userID := in.Request.ProjectUserID
	if userID == "" {
		return nil, internalf("link flow without a project user")
	}
	if _, err := repos.Users().GetByID(ctx, in.Tenancy.ID, userID); err != nil {
		if repository.IsNotFound(err) {
			return nil, internalf("link flow: user %s not found", userID)
		}
		return nil, internalf("load link user: %w", err)
	}

	binding, err := findBinding(ctx, repos, in)
	if err != nil {
		return nil, err
	}
	if binding != nil {
		if binding.ProjectUserID != userID {
			return LinkConflict{UserID: userID, OwnerID: binding.ProjectUserID}, nil
		}
		return LinkedAccount{UserID: userID, Binding: binding}, nil
	}

	// Linking connects the account without enabling sign-in through it.
	binding, err = createBinding(ctx, repos, in, userID, false)
	if err != nil {
		return nil, err
	}
	return LinkedAccount{UserID: userID, Binding: binding, Created: true}, nil
}

func resolveSignInOrUp(ctx context.Context, repos repository.Repositories, in ResolveInput) (Resolution, error) {
	binding, err := findBinding(ctx, repos, in)
	if err != nil {
		return nil, err
	}
	if binding != nil {
		return ExistingUser{UserID: binding.ProjectUserID, Binding: binding}, nil
	}

	info := in.UserInfo
	merge, err := decideMerge(ctx, repos.ContactChannels(), in.Tenancy, info.Email, info.EmailVerified)
	if err != nil {
		return nil, err
	}
	if merge.LinkedUserID != "" {
		binding, err := createBinding(ctx, repos, in, merge.LinkedUserID, true)
		if err != nil {
			return nil, err
		}
		return LinkedViaEmail{UserID: merge.LinkedUserID, Binding: binding}, nil
	}

	if !in.Tenancy.SignUpAllowed() {
		return nil, clientInput(CodeSignUpNotEnabled, "Sign up is not enabled for this project.")
	}

	user, upgraded, err := createOrUpgradeUser(ctx, repos, in)
	if err != nil {
		return nil, err
	}

	if email := repository.NormalizeEmail(info.Email); email != "" {
		_, err := repos.ContactChannels().Create(ctx, repository.ContactChannel{
			TenancyID:     in.Tenancy.ID,
			ProjectUserID: user.ID,
			Type:          repository.ContactChannelEmail,
			Value:         email,
			IsPrimary:     true,
			IsVerified:    info.EmailVerified,
			UsedForAuth:   merge.PrimaryEmailAuthEnabled,
		})
		if repository.IsConflict(err) {
			return nil, errContactChannelTaken(email, false).WithCause(err)
		}
		if err != nil {
			return nil, internalf("create contact channel: %w", err)
		}
	}

	binding, err = createBinding(ctx, repos, in, user.ID, true)
	if err != nil {
		return nil, err
	}
	return NewUser{UserID: user.ID, Binding: binding, Upgraded: upgraded}, nil
}

// createOrUpgradeUser promotes the current anonymous user when there is one,
// otherwise creates a fresh user. A missing current user is not an error.
func createOrUpgradeUser(ctx context.Context, repos repository.Repositories, in ResolveInput) (*repository.User, bool, error) {
	info := in.UserInfo
	if hint := in.Request.ProjectUserID; hint != "" {
		current, err := repos.Users().GetByID(ctx, in.Tenancy.ID, hint)
		switch {
		case repository.IsNotFound(err):
		case err != nil:
			return nil, false, internalf("load current user: %w", err)
		case current.IsAnonymous:
			user, err := repos.Users().UpgradeAnonymous(ctx, in.Tenancy.ID, current.ID, repository.UpgradeUserInput{
				DisplayName:     info.DisplayName,
				ProfileImageURL: info.ProfileImageURL,
			})
			if err != nil {
				return nil, false, internalf("upgrade anonymous user: %w", err)
			}
			return user, true, nil
		}
	}

	user, err := repos.Users().Create(ctx, repository.CreateUserInput{
		TenancyID:       in.Tenancy.ID,
		DisplayName:     info.DisplayName,
		ProfileImageURL: info.ProfileImageURL,
	})
	if err != nil {
		return nil, false, internalf("create user: %w", err)
	}
	return user, false, nil
}

func findBinding(ctx context.Context, repos repository.Repositories, in ResolveInput) (*repository.ProviderAccount, error) {
	b, err := repos.ProviderAccounts().Find(ctx, in.Tenancy.ID, in.ProviderID, in.UserInfo.AccountID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, internalf("lookup provider account: %w", err)
	}
	return b, nil
}

func createBinding(ctx context.Context, repos repository.Repositories, in ResolveInput, userID string, authMethod bool) (*repository.ProviderAccount, error) {
	b, err := repos.ProviderAccounts().Create(ctx, repository.CreateProviderAccountInput{
		TenancyID:         in.Tenancy.ID,
		ProviderID:        in.ProviderID,
		ProviderAccountID: in.UserInfo.AccountID,
		ProjectUserID:     userID,
		Email:             repository.NormalizeEmail(in.UserInfo.Email),
		AuthMethod:        authMethod,
	})
	if repository.IsConflict(err) {
		return nil, errAlreadyConnected().WithCause(err)
	}
	if err != nil {
		return nil, internalf("create provider account: %w", err)
	}
	return b, nil
}

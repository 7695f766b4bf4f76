package callback

import (
	"context"

	"go.uber.org/zap"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
	"github.com/dropDatabas3/oauthcallback/internal/observability/logger"
	"github.com/dropDatabas3/oauthcallback/internal/tenancy"
)

// mergeDecision is the result of applying the tenancy's email merge strategy.
type mergeDecision struct {
	// LinkedUserID is set when the identity attaches to an existing user.
	LinkedUserID string
	// PrimaryEmailAuthEnabled marks the new user's email as usable for sign-in.
	PrimaryEmailAuthEnabled bool
}

// decideMerge looks for an auth contact channel holding email and applies
// the merge strategy. Channels not used for auth are ignored.
func decideMerge(ctx context.Context, channels repository.ContactChannelRepository, t *tenancy.Tenancy, email string, emailVerified bool) (mergeDecision, error) {
	email = repository.NormalizeEmail(email)
	if email == "" {
		return mergeDecision{}, nil
	}

	existing, err := channels.FindUsedForAuth(ctx, t.ID, repository.ContactChannelEmail, email)
	if repository.IsNotFound(err) {
		return mergeDecision{PrimaryEmailAuthEnabled: true}, nil
	}
	if err != nil {
		return mergeDecision{}, internalf("lookup auth contact channel: %w", err)
	}

	switch t.MergeStrategy() {
	case tenancy.MergeAllowDuplicates:
		return mergeDecision{}, nil
	case tenancy.MergeRaiseError:
		return mergeDecision{}, errContactChannelTaken(email, false)
	case tenancy.MergeLinkMethod:
		if !existing.IsVerified {
			return mergeDecision{}, errContactChannelTaken(email, true)
		}
		if !emailVerified {
			logger.From(ctx).Warn("provider email not verified but matches a verified auth channel",
				logger.TenancyID(t.ID),
				logger.EmailMasked(email),
				zap.Bool("captured", true),
			)
			return mergeDecision{}, errContactChannelTaken(email, false)
		}
		return mergeDecision{LinkedUserID: existing.ProjectUserID}, nil
	default:
		return mergeDecision{}, internalf("unknown account merge strategy %q", t.MergeStrategy())
	}
}

package callback

import (
	"fmt"

	"github.com/dropDatabas3/oauthcallback/internal/domain/repository"
)

// Resolution is the terminal result of account resolution. The set of
// variants is closed: ExistingUser, LinkedViaEmail, NewUser, LinkedAccount
// and LinkConflict.
type Resolution interface {
	resolution()
	// Label names the variant for logs and metrics.
	Label() string
}

// ExistingUser: sign-in through an existing binding. Provider identity wins
// over any email match.
type ExistingUser struct {
	UserID  string
	Binding *repository.ProviderAccount
}

// LinkedViaEmail: no binding existed; the merge strategy attached the
// identity to the user owning the verified email.
type LinkedViaEmail struct {
	UserID  string
	Binding *repository.ProviderAccount
}

// NewUser: a user and its binding were created together. Upgraded is true
// when an anonymous user was promoted instead of creating a fresh row.
type NewUser struct {
	UserID   string
	Binding  *repository.ProviderAccount
	Upgraded bool
}

// LinkedAccount: explicit link flow for a signed-in user. Created is false
// when the binding already belonged to that user.
type LinkedAccount struct {
	UserID  string
	Binding *repository.ProviderAccount
	Created bool
}

// LinkConflict: link flow where the provider account belongs to someone else.
// No tokens are written.
type LinkConflict struct {
	UserID  string
	OwnerID string
}

func (ExistingUser) resolution()   {}
func (LinkedViaEmail) resolution() {}
func (NewUser) resolution()        {}
func (LinkedAccount) resolution()  {}
func (LinkConflict) resolution()   {}

func (ExistingUser) Label() string   { return "existing_user" }
func (LinkedViaEmail) Label() string { return "linked_via_email" }
func (r NewUser) Label() string {
	if r.Upgraded {
		return "anonymous_upgrade"
	}
	return "new_user"
}
func (LinkedAccount) Label() string { return "linked_account" }
func (LinkConflict) Label() string  { return "link_conflict" }

// Outcome is what the grant step needs from a Resolution.
type Outcome struct {
	UserID  string
	NewUser bool
	Binding *repository.ProviderAccount
}

// OutcomeOf maps every Resolution variant. LinkConflict becomes a conflict
// error; an unknown variant is a programming error and panics.
func OutcomeOf(r Resolution) (Outcome, error) {
	switch v := r.(type) {
	case ExistingUser:
		return Outcome{UserID: v.UserID, Binding: v.Binding}, nil
	case LinkedViaEmail:
		return Outcome{UserID: v.UserID, Binding: v.Binding}, nil
	case NewUser:
		return Outcome{UserID: v.UserID, NewUser: true, Binding: v.Binding}, nil
	case LinkedAccount:
		return Outcome{UserID: v.UserID, Binding: v.Binding}, nil
	case LinkConflict:
		return Outcome{}, errAlreadyConnected()
	default:
		panic(fmt.Sprintf("callback: unhandled resolution variant %T", r))
	}
}

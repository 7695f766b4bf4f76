// Package callback resolves an OAuth provider callback into exactly one
// internal user and answers the outer OAuth2 client.
//
// Pipeline for a single callback:
//
//	Guard.Check          inner cookie (single-use) + outer request row
//	tenancy snapshot     immutable for the whole request
//	Guard.CheckExpiry    after the tenancy so the error can redirect
//	exchange             provider.Gateway, bounded timeout, no retries
//	Resolver.Resolve     one transaction, returns a Resolution variant
//	TokenPersister       after commit; failures are logged, never undone
//	GrantAuthorizer      code or token redirect to the stored redirect_uri
//
// Any known error raised after the outer request and tenancy are loaded goes
// through ErrorRedirector.
package callback

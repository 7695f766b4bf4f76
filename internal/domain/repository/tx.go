package repository

import "context"

// Repositories agrupa los repositorios. Dentro de InTx todos comparten la
// misma transacción.
type Repositories interface {
	OuterRequests() OuterRequestRepository
	ProviderAccounts() ProviderAccountRepository
	Users() UserRepository
	ContactChannels() ContactChannelRepository
	Tokens() OAuthTokenRepository
}

// TxRunner ejecuta fn en una transacción: commit si fn retorna nil,
// rollback en cualquier otro caso (incluido panic).
type TxRunner interface {
	InTx(ctx context.Context, fn func(Repositories) error) error
}

package account

import "context"

type Repository interface {
	// CreateAccount inserts the account and its role profile atomically.
	// Returns ErrEmailTaken when the email is already registered.
	CreateAccount(ctx context.Context, a NewAccount) (*Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*Account, error)
}

package accounts

import "context"

type accountContextKey struct{}

// ContextWithAccount stores the resolved account in context.
func ContextWithAccount(ctx context.Context, account *Account) context.Context {
	return context.WithValue(ctx, accountContextKey{}, account)
}

// FromContext extracts the resolved account from context.
func FromContext(ctx context.Context) *Account {
	account, _ := ctx.Value(accountContextKey{}).(*Account)
	return account
}

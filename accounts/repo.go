package accounts

import (
	"context"
	"errors"
)

var (
	NotFoundErr    = errors.New("sender account not found")
	EmailExistsErr = errors.New("email already registered")
)

// Directory resolves sender identities to accounts and their relay
// credentials. Provisioning is plain CRUD; the token core only reads.
type Directory interface {
	Upsert(ctx context.Context, account *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	List(ctx context.Context, offset, limit int) ([]*Account, error)
}

package accountrepofake

import (
	"context"
	"sort"
	"sync"

	"github.com/relaygate/go-relay-server/accounts"
)

var _ accounts.Directory = (*FakeAccountRepo)(nil)

type FakeAccountRepo struct {
	byID    map[string]*accounts.Account
	byEmail map[string]string // email to account ID
	lock    sync.RWMutex
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{
		byID:    make(map[string]*accounts.Account),
		byEmail: make(map[string]string),
	}
}

func (ar *FakeAccountRepo) Upsert(_ context.Context, account *accounts.Account) error {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if existingID, ok := ar.byEmail[account.Email]; ok && existingID != account.ID {
		return accounts.EmailExistsErr
	}

	clone := *account
	ar.byID[account.ID] = &clone
	ar.byEmail[account.Email] = account.ID
	return nil
}

func (ar *FakeAccountRepo) GetByEmail(_ context.Context, email string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.byEmail[email]
	if !ok {
		return nil, accounts.NotFoundErr
	}
	clone := *ar.byID[id]
	return &clone, nil
}

func (ar *FakeAccountRepo) GetByID(_ context.Context, id string) (*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	account, ok := ar.byID[id]
	if !ok {
		return nil, accounts.NotFoundErr
	}
	clone := *account
	return &clone, nil
}

func (ar *FakeAccountRepo) List(_ context.Context, offset, limit int) ([]*accounts.Account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	all := make([]*accounts.Account, 0, len(ar.byID))
	for _, a := range ar.byID {
		clone := *a
		all = append(all, &clone)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Email < all[j].Email
	})

	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

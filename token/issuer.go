package token

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
)

const defaultStorageTimeout = 5 * time.Second

// Issuer creates or recovers a token for a sender. If the sender
// already holds a valid record for today, that record is returned
// unchanged ("recovery"); otherwise a fresh record is created and
// persisted. Concurrent calls for the same owner may race and each
// create a record - that is accepted, both records are individually
// valid and any valid token is honored.
type Issuer struct {
	repo           Repo
	directory      accounts.Directory
	policy         Policy
	nowFunc        func() time.Time
	secretFunc     func() (string, error)
	storageTimeout time.Duration
}

// IssuerOption defines a function type to modify the Issuer instance.
type IssuerOption func(*Issuer)

// WithNowFunc sets the clock (primarily for testing).
func WithNowFunc(now func() time.Time) IssuerOption {
	return func(i *Issuer) {
		i.nowFunc = now
	}
}

// WithSecretSource sets the secret generator (primarily for testing).
func WithSecretSource(gen func() (string, error)) IssuerOption {
	return func(i *Issuer) {
		i.secretFunc = gen
	}
}

// WithStorageTimeout bounds every store call made by the issuer.
func WithStorageTimeout(d time.Duration) IssuerOption {
	return func(i *Issuer) {
		i.storageTimeout = d
	}
}

// NewIssuer initializes an Issuer with required dependencies.
func NewIssuer(repo Repo, directory accounts.Directory, policy Policy, options ...IssuerOption) (*Issuer, error) {
	if repo == nil {
		return nil, errors.New("[NewIssuer] token repo is required")
	}
	if directory == nil {
		return nil, errors.New("[NewIssuer] account directory is required")
	}

	issuer := &Issuer{
		repo:           repo,
		directory:      directory,
		policy:         policy,
		nowFunc:        time.Now,
		secretFunc:     NewSecret,
		storageTimeout: defaultStorageTimeout,
	}

	for _, opt := range options {
		opt(issuer)
	}

	return issuer, nil
}

// IssueOrRecover returns the sender's valid record for today, creating
// one if none exists. The second return value reports whether a new
// record was created. Recovery never mutates state or resets the
// counter. A DuplicateSecretErr from the store propagates; the caller
// decides whether to retry with a fresh secret.
func (i *Issuer) IssueOrRecover(ctx context.Context, ownerEmail string) (*Record, bool, error) {
	account, err := i.resolveOwner(ctx, ownerEmail)
	if err != nil {
		return nil, false, err
	}

	records, err := i.listRecords(ctx, account.ID)
	if err != nil {
		return nil, false, errors.Wrap(err, "[Issuer.IssueOrRecover] ListByOwner")
	}

	today := DateOf(i.nowFunc())
	for _, record := range records {
		if i.policy.IsValid(record, today) {
			return record, false, nil
		}
	}

	secret, err := i.secretFunc()
	if err != nil {
		return nil, false, errors.Wrap(err, "[Issuer.IssueOrRecover] generate secret")
	}

	record := &Record{
		ID:       uuid.New().String(),
		OwnerID:  account.ID,
		Secret:   secret,
		IssuedOn: today,
		Counter:  0,
	}

	if err := i.appendRecord(ctx, record); err != nil {
		return nil, false, errors.Wrap(err, "[Issuer.IssueOrRecover] Append")
	}

	return record, true, nil
}

func (i *Issuer) resolveOwner(ctx context.Context, ownerEmail string) (*accounts.Account, error) {
	sctx, cancel := context.WithTimeout(ctx, i.storageTimeout)
	defer cancel()

	account, err := i.directory.GetByEmail(sctx, ownerEmail)
	if err != nil {
		return nil, errors.Wrap(err, "[Issuer.IssueOrRecover] resolve owner")
	}
	return account, nil
}

func (i *Issuer) listRecords(ctx context.Context, ownerID string) ([]*Record, error) {
	sctx, cancel := context.WithTimeout(ctx, i.storageTimeout)
	defer cancel()
	return i.repo.ListByOwner(sctx, ownerID)
}

func (i *Issuer) appendRecord(ctx context.Context, record *Record) error {
	sctx, cancel := context.WithTimeout(ctx, i.storageTimeout)
	defer cancel()
	return i.repo.Append(sctx, record)
}

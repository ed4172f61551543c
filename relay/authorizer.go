package relay

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
	"github.com/relaygate/go-relay-server/token"
)

const (
	defaultStorageTimeout = 5 * time.Second
	defaultSendTimeout    = 30 * time.Second
)

// Repos holds all repository dependencies for the AuthorizationService.
type Repos struct {
	Tokens   token.Repo         // Store of token records
	Accounts accounts.Directory // Resolves senders to relay credentials
}

// AuthorizationService validates a bearer token before permitting a
// relay attempt and attributes each successful send to the authorizing
// record. Safe for concurrent use; consumption serializes through the
// store's compare-and-swap increment.
type AuthorizationService struct {
	repos          Repos
	policy         token.Policy
	nowFunc        func() time.Time // injectable for testing
	storageTimeout time.Duration
	sendTimeout    time.Duration
}

// AuthorizationServiceOption defines a function type to modify the
// AuthorizationService instance.
type AuthorizationServiceOption func(*AuthorizationService)

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(now func() time.Time) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.nowFunc = now
	}
}

// WithStorageTimeout bounds every store call made by the authorizer.
func WithStorageTimeout(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.storageTimeout = d
	}
}

// WithSendTimeout bounds the caller-supplied send action.
func WithSendTimeout(d time.Duration) AuthorizationServiceOption {
	return func(as *AuthorizationService) {
		as.sendTimeout = d
	}
}

// NewAuthorizationService initializes a new AuthorizationService with
// required dependencies.
func NewAuthorizationService(repos Repos, policy token.Policy, options ...AuthorizationServiceOption) (*AuthorizationService, error) {
	if repos.Tokens == nil {
		return nil, errors.New("[NewAuthorizationService] Tokens repo is required")
	}
	if repos.Accounts == nil {
		return nil, errors.New("[NewAuthorizationService] Accounts directory is required")
	}

	service := &AuthorizationService{
		repos:          repos,
		policy:         policy,
		nowFunc:        time.Now,
		storageTimeout: defaultStorageTimeout,
		sendTimeout:    defaultSendTimeout,
	}

	for _, opt := range options {
		opt(service)
	}

	return service, nil
}

// AuthorizeAndConsume checks the presented secret against the sender's
// valid record for today, invokes send, and on success increments the
// record's counter by exactly one. Ordering is strict: validation
// precedes the send, consumption follows a successful send. A failed
// send consumes no quota.
func (as *AuthorizationService) AuthorizeAndConsume(ctx context.Context, ownerEmail, presentedSecret string, send SendAction) error {
	account, err := as.resolveOwner(ctx, ownerEmail)
	if err != nil {
		return err
	}

	records, err := as.listRecords(ctx, account.ID)
	if err != nil {
		return errors.Wrap(err, "[AuthorizationService.AuthorizeAndConsume] ListByOwner")
	}
	if len(records) == 0 {
		return NoTokenIssuedErr
	}

	today := token.DateOf(as.nowFunc())
	var authorized *token.Record
	for _, record := range records {
		if as.policy.IsValid(record, today) {
			authorized = record
			break
		}
	}
	if authorized == nil {
		return TokenExpiredErr
	}

	// Bearer comparison must not leak timing information about
	// partial matches, and must happen before any mutation.
	if subtle.ConstantTimeCompare([]byte(authorized.Secret), []byte(presentedSecret)) != 1 {
		return TokenMismatchErr
	}

	if err := as.attemptSend(ctx, account.Credentials, send); err != nil {
		return fmt.Errorf("%w: %w", RelayFailedErr, err)
	}

	return as.consume(ctx, account.ID, authorized)
}

func (as *AuthorizationService) resolveOwner(ctx context.Context, ownerEmail string) (*accounts.Account, error) {
	sctx, cancel := context.WithTimeout(ctx, as.storageTimeout)
	defer cancel()

	account, err := as.repos.Accounts.GetByEmail(sctx, ownerEmail)
	if err != nil {
		return nil, errors.Wrap(err, "[AuthorizationService.AuthorizeAndConsume] resolve owner")
	}
	return account, nil
}

func (as *AuthorizationService) listRecords(ctx context.Context, ownerID string) ([]*token.Record, error) {
	sctx, cancel := context.WithTimeout(ctx, as.storageTimeout)
	defer cancel()
	return as.repos.Tokens.ListByOwner(sctx, ownerID)
}

func (as *AuthorizationService) attemptSend(ctx context.Context, creds accounts.RelayCredentials, send SendAction) error {
	sctx, cancel := context.WithTimeout(ctx, as.sendTimeout)
	defer cancel()
	return send(sctx, creds)
}

// consume attributes one successful send to the record. The increment
// is a compare-and-swap keyed on the counter value this call last
// observed; on conflict the current value is re-read and the swap
// retried. Every conflict means a concurrent consumer succeeded, so
// the loop always makes system-wide progress and N concurrent
// successes land at exactly counter+N.
func (as *AuthorizationService) consume(ctx context.Context, ownerID string, record *token.Record) error {
	expected := record.Counter
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "[AuthorizationService.consume] canceled")
		}

		sctx, cancel := context.WithTimeout(ctx, as.storageTimeout)
		_, err := as.repos.Tokens.IncrementCounter(sctx, record.ID, expected)
		cancel()
		if err == nil {
			return nil
		}
		if !errors.Is(err, token.CounterConflictErr) {
			return errors.Wrap(err, "[AuthorizationService.consume] IncrementCounter")
		}

		current, err := as.currentCounter(ctx, ownerID, record.ID)
		if err != nil {
			return err
		}
		expected = current
	}
}

func (as *AuthorizationService) currentCounter(ctx context.Context, ownerID, recordID string) (int, error) {
	records, err := as.listRecords(ctx, ownerID)
	if err != nil {
		return 0, errors.Wrap(err, "[AuthorizationService.consume] re-read counter")
	}
	for _, record := range records {
		if record.ID == recordID {
			return record.Counter, nil
		}
	}
	return 0, errors.Wrap(token.NotFoundErr, "[AuthorizationService.consume] record vanished")
}

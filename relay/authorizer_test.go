package relay_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/relaygate/go-relay-server/accounts"
	accountrepofake "github.com/relaygate/go-relay-server/accounts/repofake"
	"github.com/relaygate/go-relay-server/relay"
	"github.com/relaygate/go-relay-server/token"
	tokenrepofake "github.com/relaygate/go-relay-server/token/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testOwnerID    = "4e6a8f7c-55b1-4c2e-9f0d-2d9c3b7a0001"
	testOwnerEmail = "sender@example.com"
	testSecret     = "00112233445566778899aabbccddeeff"
	testSmtpHost   = "smtp.example.com"
)

type authFixture struct {
	tokenRepo   *tokenrepofake.FakeTokenRepo
	accountRepo *accountrepofake.FakeAccountRepo
	service     *relay.AuthorizationService
	now         time.Time
}

func setupAuthFixture(t *testing.T, quotaLimit int) *authFixture {
	t.Helper()

	f := &authFixture{
		tokenRepo:   tokenrepofake.NewFakeTokenRepo(),
		accountRepo: accountrepofake.NewFakeAccountRepo(),
		now:         time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC),
	}

	err := f.accountRepo.Upsert(context.Background(), &accounts.Account{
		ID:    testOwnerID,
		Email: testOwnerEmail,
		Credentials: accounts.RelayCredentials{
			SmtpHost: testSmtpHost,
			SmtpPort: 587,
			Password: "relay-password",
		},
	})
	require.NoError(t, err)

	f.service, err = relay.NewAuthorizationService(
		relay.Repos{Tokens: f.tokenRepo, Accounts: f.accountRepo},
		token.NewPolicy(quotaLimit),
		relay.WithNowTime(func() time.Time { return f.now }),
	)
	require.NoError(t, err)
	return f
}

func (f *authFixture) seedRecord(t *testing.T, id string, counter int, issuedOn time.Time) {
	t.Helper()
	err := f.tokenRepo.Append(context.Background(), &token.Record{
		ID:       id,
		OwnerID:  testOwnerID,
		Secret:   testSecret,
		IssuedOn: issuedOn,
		Counter:  counter,
	})
	require.NoError(t, err)
}

func sendSuccess(calls *int32, gotCreds *accounts.RelayCredentials) relay.SendAction {
	return func(_ context.Context, creds accounts.RelayCredentials) error {
		atomic.AddInt32(calls, 1)
		if gotCreds != nil {
			*gotCreds = creds
		}
		return nil
	}
}

func today() time.Time {
	return time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
}

func TestAuthorizeAndConsume_SuccessIncrementsOnce(t *testing.T) {
	f := setupAuthFixture(t, 100)
	f.seedRecord(t, "rec-1", 0, today())

	var calls int32
	var creds accounts.RelayCredentials
	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(&calls, &creds))

	require.NoError(t, err)
	require.Equal(t, int32(1), calls)
	require.Equal(t, testSmtpHost, creds.SmtpHost, "send runs with the owner's relay credentials")
	require.Equal(t, 1, f.tokenRepo.Counter("rec-1"))
}

func TestAuthorizeAndConsume_MismatchNeverSendsNorConsumes(t *testing.T) {
	f := setupAuthFixture(t, 100)
	f.seedRecord(t, "rec-1", 0, today())

	var calls int32
	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, "ffffffffffffffffffffffffffffffff", sendSuccess(&calls, nil))

	require.ErrorIs(t, err, relay.TokenMismatchErr)
	require.Equal(t, int32(0), calls, "mismatch is checked before any send")
	require.Equal(t, 0, f.tokenRepo.Counter("rec-1"))
}

func TestAuthorizeAndConsume_FailedSendConsumesNothing(t *testing.T) {
	f := setupAuthFixture(t, 100)
	f.seedRecord(t, "rec-1", 0, today())

	sendErr := context.DeadlineExceeded
	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret,
		func(context.Context, accounts.RelayCredentials) error { return sendErr })

	require.ErrorIs(t, err, relay.RelayFailedErr)
	require.ErrorIs(t, err, sendErr, "the gateway failure stays in the chain")
	require.Equal(t, 0, f.tokenRepo.Counter("rec-1"))
}

func TestAuthorizeAndConsume_NoTokenIssued(t *testing.T) {
	f := setupAuthFixture(t, 100)

	var calls int32
	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(&calls, nil))

	require.ErrorIs(t, err, relay.NoTokenIssuedErr)
	require.Equal(t, int32(0), calls)
}

func TestAuthorizeAndConsume_StaleRecordExpired(t *testing.T) {
	f := setupAuthFixture(t, 100)
	f.seedRecord(t, "rec-1", 0, today().AddDate(0, 0, -1))

	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret,
		sendSuccess(new(int32), nil))

	require.ErrorIs(t, err, relay.TokenExpiredErr, "stale regardless of counter")
}

func TestAuthorizeAndConsume_ExhaustedRecordExpired(t *testing.T) {
	f := setupAuthFixture(t, 10)
	f.seedRecord(t, "rec-1", 10, today())

	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret,
		sendSuccess(new(int32), nil))

	require.ErrorIs(t, err, relay.TokenExpiredErr)
	require.Equal(t, 10, f.tokenRepo.Counter("rec-1"))
}

func TestAuthorizeAndConsume_UnknownOwner(t *testing.T) {
	f := setupAuthFixture(t, 100)

	err := f.service.AuthorizeAndConsume(context.Background(), "stranger@example.com", testSecret,
		sendSuccess(new(int32), nil))

	require.ErrorIs(t, err, accounts.NotFoundErr)
}

func TestAuthorizeAndConsume_QuotaWalk(t *testing.T) {
	f := setupAuthFixture(t, 5)
	f.seedRecord(t, "rec-1", 0, today())

	var calls int32
	for i := 0; i < 5; i++ {
		err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(&calls, nil))
		require.NoError(t, err)
	}
	require.Equal(t, 5, f.tokenRepo.Counter("rec-1"))

	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(&calls, nil))
	require.ErrorIs(t, err, relay.TokenExpiredErr, "call past the quota is rejected")
	require.Equal(t, int32(5), calls)
	require.Equal(t, 5, f.tokenRepo.Counter("rec-1"))
}

func TestAuthorizeAndConsume_ConcurrentConsumersLoseNoUpdates(t *testing.T) {
	const concurrent = 32

	f := setupAuthFixture(t, 100)
	f.seedRecord(t, "rec-1", 0, today())

	var calls int32
	var wg sync.WaitGroup
	errs := make(chan error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(&calls, nil))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(concurrent), calls)
	require.Equal(t, concurrent, f.tokenRepo.Counter("rec-1"),
		"each success is attributed exactly once")
}

func TestAuthorizeAndConsume_ConcurrentSuccessesLandExactlyAtQuota(t *testing.T) {
	const (
		limit      = 10
		concurrent = 4
	)

	f := setupAuthFixture(t, limit)
	// counter = limit - N: all N validations pass even after the other
	// increments land, so all N must be attributed.
	f.seedRecord(t, "rec-1", limit-concurrent, today())

	var wg sync.WaitGroup
	errs := make(chan error, concurrent)
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(new(int32), nil))
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, limit, f.tokenRepo.Counter("rec-1"), "exactly at quota, not under")

	err := f.service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret, sendSuccess(new(int32), nil))
	require.ErrorIs(t, err, relay.TokenExpiredErr)
}

type unavailableTokenRepo struct{}

func (unavailableTokenRepo) ListByOwner(context.Context, string) ([]*token.Record, error) {
	return nil, token.StorageError(context.DeadlineExceeded)
}

func (unavailableTokenRepo) Append(context.Context, *token.Record) error {
	return token.StorageError(context.DeadlineExceeded)
}

func (unavailableTokenRepo) IncrementCounter(context.Context, string, int) (int, error) {
	return 0, token.StorageError(context.DeadlineExceeded)
}

func TestAuthorizeAndConsume_StorageFailureIsNotAuthFailure(t *testing.T) {
	f := setupAuthFixture(t, 100)

	service, err := relay.NewAuthorizationService(
		relay.Repos{Tokens: unavailableTokenRepo{}, Accounts: f.accountRepo},
		token.NewPolicy(100),
	)
	require.NoError(t, err)

	err = service.AuthorizeAndConsume(context.Background(), testOwnerEmail, testSecret,
		sendSuccess(new(int32), nil))

	require.ErrorIs(t, err, token.StorageUnavailableErr)
	require.NotErrorIs(t, err, relay.TokenExpiredErr)
	require.NotErrorIs(t, err, relay.NoTokenIssuedErr)
}

package token_test

import (
	"context"
	"testing"
	"time"

	"github.com/relaygate/go-relay-server/accounts"
	accountrepofake "github.com/relaygate/go-relay-server/accounts/repofake"
	"github.com/relaygate/go-relay-server/token"
	tokenrepofake "github.com/relaygate/go-relay-server/token/repofake"
	"github.com/stretchr/testify/require"
)

const (
	testOwnerID    = "6f0a4d3e-1d7c-4b9a-8a61-0f1f6f1f0001"
	testOwnerEmail = "sender@example.com"
)

type issuerFixture struct {
	tokenRepo   *tokenrepofake.FakeTokenRepo
	accountRepo *accountrepofake.FakeAccountRepo
	issuer      *token.Issuer
	now         time.Time
}

func setupIssuerFixture(t *testing.T, options ...token.IssuerOption) *issuerFixture {
	t.Helper()

	f := &issuerFixture{
		tokenRepo:   tokenrepofake.NewFakeTokenRepo(),
		accountRepo: accountrepofake.NewFakeAccountRepo(),
		now:         time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
	}

	err := f.accountRepo.Upsert(context.Background(), &accounts.Account{
		ID:    testOwnerID,
		Email: testOwnerEmail,
		Credentials: accounts.RelayCredentials{
			SmtpHost: "smtp.example.com",
			SmtpPort: 587,
			Password: "relay-password",
		},
	})
	require.NoError(t, err)

	opts := append([]token.IssuerOption{
		token.WithNowFunc(func() time.Time { return f.now }),
	}, options...)

	f.issuer, err = token.NewIssuer(f.tokenRepo, f.accountRepo, token.NewPolicy(100), opts...)
	require.NoError(t, err)
	return f
}

func TestIssueOrRecover_CreatesFirstRecord(t *testing.T) {
	f := setupIssuerFixture(t)

	record, created, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)

	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, testOwnerID, record.OwnerID)
	require.Equal(t, 0, record.Counter)
	require.Equal(t, day(2024, time.May, 1), record.IssuedOn)
	require.Len(t, record.Secret, 32)
	require.NotEmpty(t, record.ID)
}

func TestIssueOrRecover_RecoversSameDayWithoutMutation(t *testing.T) {
	f := setupIssuerFixture(t)

	first, created, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.NoError(t, err)
	require.False(t, created, "same-day call is recovery, not issuance")
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.Secret, second.Secret)
	require.Equal(t, 0, f.tokenRepo.Counter(first.ID), "recovery never touches the counter")
}

func TestIssueOrRecover_NewRecordAfterDayRollover(t *testing.T) {
	f := setupIssuerFixture(t)

	first, _, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.NoError(t, err)

	f.now = f.now.Add(24 * time.Hour)
	second, created, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)

	require.NoError(t, err)
	require.True(t, created, "yesterday's record is stale")
	require.NotEqual(t, first.ID, second.ID)
	require.NotEqual(t, first.Secret, second.Secret, "secrets are never regenerated in place")
	require.Equal(t, day(2024, time.May, 2), second.IssuedOn)
}

func TestIssueOrRecover_NewRecordWhenExhausted(t *testing.T) {
	f := setupIssuerFixture(t)

	first, _, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		_, err := f.tokenRepo.IncrementCounter(context.Background(), first.ID, i)
		require.NoError(t, err)
	}

	second, created, err := f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.NoError(t, err)
	require.True(t, created, "exhausted record is not recoverable")
	require.NotEqual(t, first.Secret, second.Secret)
	require.Equal(t, 0, second.Counter)
}

func TestIssueOrRecover_OwnerNotFound(t *testing.T) {
	f := setupIssuerFixture(t)

	_, _, err := f.issuer.IssueOrRecover(context.Background(), "stranger@example.com")

	require.Error(t, err)
	require.ErrorIs(t, err, accounts.NotFoundErr)
}

func TestIssueOrRecover_DuplicateSecretPropagates(t *testing.T) {
	const fixedSecret = "00112233445566778899aabbccddeeff"

	f := setupIssuerFixture(t, token.WithSecretSource(func() (string, error) {
		return fixedSecret, nil
	}))

	// Another owner already holds this exact secret.
	err := f.tokenRepo.Append(context.Background(), &token.Record{
		ID:       "other-record",
		OwnerID:  "other-owner",
		Secret:   fixedSecret,
		IssuedOn: day(2024, time.May, 1),
	})
	require.NoError(t, err)

	_, _, err = f.issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.ErrorIs(t, err, token.DuplicateSecretErr, "collision must fail, never overwrite")
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

func TestIssueOrRecover_StorageFailurePropagates(t *testing.T) {
	f := setupIssuerFixture(t)

	issuer, err := token.NewIssuer(unavailableTokenRepo{}, f.accountRepo, token.NewPolicy(100))
	require.NoError(t, err)

	_, _, err = issuer.IssueOrRecover(context.Background(), testOwnerEmail)
	require.ErrorIs(t, err, token.StorageUnavailableErr,
		"a caller must not believe a token was issued when it was not")
}

package token_test

import (
	"testing"
	"time"

	"github.com/relaygate/go-relay-server/token"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNewPolicy_DefaultsQuota(t *testing.T) {
	require.Equal(t, token.DefaultDailyQuota, token.NewPolicy(0).Limit)
	require.Equal(t, token.DefaultDailyQuota, token.NewPolicy(-3).Limit)
	require.Equal(t, 50, token.NewPolicy(50).Limit)
}

func TestIsValid_CounterBoundary(t *testing.T) {
	policy := token.NewPolicy(100)
	today := day(2024, time.May, 1)

	record := &token.Record{IssuedOn: today, Counter: 99}
	require.True(t, policy.IsValid(record, today), "counter at limit-1 is still valid")

	record.Counter = 100
	require.False(t, policy.IsValid(record, today), "counter at limit is exhausted")
}

func TestIsValid_DateBoundary(t *testing.T) {
	policy := token.NewPolicy(100)
	issued := day(2024, time.May, 1)
	record := &token.Record{IssuedOn: issued, Counter: 0}

	require.True(t, policy.IsValid(record, issued))
	require.True(t, policy.IsValid(record, time.Date(2024, time.May, 1, 23, 59, 59, 0, time.UTC)),
		"validity holds for the whole calendar day")
	require.False(t, policy.IsValid(record, day(2024, time.May, 2)),
		"stale regardless of counter value")
	require.False(t, policy.IsValid(record, day(2024, time.April, 30)))
}

func TestIsValid_NilRecord(t *testing.T) {
	require.False(t, token.NewPolicy(100).IsValid(nil, day(2024, time.May, 1)))
}

func TestDateOf_NormalizesToUTCDate(t *testing.T) {
	zone := time.FixedZone("CET+2", 2*60*60)
	// 00:30 on May 2nd in CET+2 is still May 1st in UTC.
	local := time.Date(2024, time.May, 2, 0, 30, 0, 0, zone)
	require.Equal(t, day(2024, time.May, 1), token.DateOf(local))

	require.Equal(t, day(2024, time.May, 1), token.DateOf(time.Date(2024, time.May, 1, 17, 4, 33, 12, time.UTC)))
}

func TestNewSecret_HexAndUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		secret, err := token.NewSecret()
		require.NoError(t, err)
		require.Len(t, secret, 32, "16 random bytes hex encoded")
		_, dup := seen[secret]
		require.False(t, dup)
		seen[secret] = struct{}{}
	}
}

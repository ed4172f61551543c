// Package redisstore is an alternative token store backend for
// deployments that keep short-lived records out of the relational
// database. Records are hashes keyed by id, with a per-owner index set
// and a secret index enforcing uniqueness. The counter increment uses
// WATCH so concurrent consumers serialize the same way the SQL
// conditional update does.
package redisstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/relaygate/go-relay-server/token"
)

const (
	tokenKeyPrefix  = "relay:token:"
	secretKeyPrefix = "relay:secret:"
	ownerKeyPrefix  = "relay:owner:"

	issuedOnLayout = "2006-01-02"
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// NewClient connects to Redis and verifies the connection.
func NewClient(cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "[redisstore.NewClient] ping")
	}
	return client, nil
}

var _ token.Repo = (*TokenRepository)(nil)

type TokenRepository struct {
	client *redis.Client
}

func NewTokenRepository(client *redis.Client) *TokenRepository {
	return &TokenRepository{client: client}
}

func (r *TokenRepository) ListByOwner(ctx context.Context, ownerID string) ([]*token.Record, error) {
	ids, err := r.client.SMembers(ctx, ownerKeyPrefix+ownerID).Result()
	if err != nil {
		return nil, token.StorageError(err)
	}

	records := make([]*token.Record, 0, len(ids))
	for _, id := range ids {
		fields, err := r.client.HGetAll(ctx, tokenKeyPrefix+id).Result()
		if err != nil {
			return nil, token.StorageError(err)
		}
		if len(fields) == 0 {
			continue
		}
		record, err := recordFromFields(id, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].IssuedOn.After(records[j].IssuedOn)
	})
	return records, nil
}

func (r *TokenRepository) Append(ctx context.Context, record *token.Record) error {
	// The secret index doubles as the uniqueness guard: if SETNX loses,
	// another record already owns this secret and creation must fail.
	ok, err := r.client.SetNX(ctx, secretKeyPrefix+record.Secret, record.ID, 0).Result()
	if err != nil {
		return token.StorageError(err)
	}
	if !ok {
		return errors.Wrap(token.DuplicateSecretErr, "[TokenRepository.Append]")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, tokenKeyPrefix+record.ID,
			"owner_id", record.OwnerID,
			"secret", record.Secret,
			"issued_on", record.IssuedOn.Format(issuedOnLayout),
			"counter", record.Counter,
		)
		pipe.SAdd(ctx, ownerKeyPrefix+record.OwnerID, record.ID)
		return nil
	})
	if err != nil {
		return token.StorageError(err)
	}
	return nil
}

func (r *TokenRepository) IncrementCounter(ctx context.Context, id string, expectedPrior int) (int, error) {
	key := tokenKeyPrefix + id

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "counter").Int()
		if errors.Is(err, redis.Nil) {
			return token.NotFoundErr
		}
		if err != nil {
			return token.StorageError(err)
		}
		if current != expectedPrior {
			return token.CounterConflictErr
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "counter", expectedPrior+1)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return expectedPrior + 1, nil
	case errors.Is(err, redis.TxFailedErr):
		return 0, errors.Wrap(token.CounterConflictErr, "[TokenRepository.IncrementCounter] watch aborted")
	case errors.Is(err, token.NotFoundErr), errors.Is(err, token.CounterConflictErr), errors.Is(err, token.StorageUnavailableErr):
		return 0, err
	default:
		return 0, token.StorageError(err)
	}
}

func recordFromFields(id string, fields map[string]string) (*token.Record, error) {
	issuedOn, err := time.ParseInLocation(issuedOnLayout, fields["issued_on"], time.UTC)
	if err != nil {
		return nil, token.StorageError(fmt.Errorf("record %s: bad issued_on %q", id, fields["issued_on"]))
	}
	counter, err := strconv.Atoi(fields["counter"])
	if err != nil {
		return nil, token.StorageError(fmt.Errorf("record %s: bad counter %q", id, fields["counter"]))
	}
	return &token.Record{
		ID:       id,
		OwnerID:  fields["owner_id"],
		Secret:   fields["secret"],
		IssuedOn: issuedOn,
		Counter:  counter,
	}, nil
}

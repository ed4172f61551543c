package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/token"
	"gorm.io/gorm"
)

var _ token.Repo = (*TokenRepository)(nil)

type TokenRepository struct {
	db *gorm.DB
}

func NewTokenRepository(db *gorm.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) ListByOwner(ctx context.Context, ownerID string) ([]*token.Record, error) {
	var models []TokenModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("issued_on DESC, created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, token.StorageError(err)
	}

	records := make([]*token.Record, 0, len(models))
	for _, m := range models {
		records = append(records, &token.Record{
			ID:       m.ID,
			OwnerID:  m.OwnerID,
			Secret:   m.Secret,
			IssuedOn: token.DateOf(m.IssuedOn),
			Counter:  m.Counter,
		})
	}
	return records, nil
}

func (r *TokenRepository) Append(ctx context.Context, record *token.Record) error {
	model := TokenModel{
		ID:       record.ID,
		OwnerID:  record.OwnerID,
		Secret:   record.Secret,
		IssuedOn: record.IssuedOn,
		Counter:  record.Counter,
	}

	err := r.db.WithContext(ctx).Create(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrap(token.DuplicateSecretErr, "[TokenRepository.Append]")
		}
		return token.StorageError(err)
	}
	return nil
}

// IncrementCounter is a single conditional UPDATE keyed on the
// expected prior value, so concurrent consumers serialize on the row
// instead of losing updates.
func (r *TokenRepository) IncrementCounter(ctx context.Context, id string, expectedPrior int) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&TokenModel{}).
		Where("id = ? AND counter = ?", id, expectedPrior).
		UpdateColumn("counter", expectedPrior+1)
	if res.Error != nil {
		return 0, token.StorageError(res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&TokenModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return 0, token.StorageError(err)
		}
		if count == 0 {
			return 0, errors.Wrap(token.NotFoundErr, "[TokenRepository.IncrementCounter]")
		}
		return 0, errors.Wrap(token.CounterConflictErr, "[TokenRepository.IncrementCounter]")
	}
	return expectedPrior + 1, nil
}

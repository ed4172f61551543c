package storage

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
	"gorm.io/gorm"
)

var _ accounts.Directory = (*AccountRepository)(nil)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Upsert(ctx context.Context, account *accounts.Account) error {
	model := AccountModel{
		ID:           account.ID,
		Email:        account.Email,
		SmtpHost:     account.Credentials.SmtpHost,
		SmtpPort:     account.Credentials.SmtpPort,
		SmtpPassword: account.Credentials.Password,
	}

	err := r.db.WithContext(ctx).Save(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errors.Wrap(accounts.EmailExistsErr, "[AccountRepository.Upsert]")
		}
		return errors.Wrap(err, "[AccountRepository.Upsert]")
	}
	return nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	var model AccountModel
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(accounts.NotFoundErr, "[AccountRepository.GetByEmail]")
		}
		return nil, errors.Wrap(err, "[AccountRepository.GetByEmail]")
	}
	return toAccount(&model), nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*accounts.Account, error) {
	var model AccountModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(accounts.NotFoundErr, "[AccountRepository.GetByID]")
		}
		return nil, errors.Wrap(err, "[AccountRepository.GetByID]")
	}
	return toAccount(&model), nil
}

func (r *AccountRepository) List(ctx context.Context, offset, limit int) ([]*accounts.Account, error) {
	var models []AccountModel
	q := r.db.WithContext(ctx).Order("created_at ASC").Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, errors.Wrap(err, "[AccountRepository.List]")
	}

	list := make([]*accounts.Account, 0, len(models))
	for i := range models {
		list = append(list, toAccount(&models[i]))
	}
	return list, nil
}

func toAccount(m *AccountModel) *accounts.Account {
	return &accounts.Account{
		ID:    m.ID,
		Email: m.Email,
		Credentials: accounts.RelayCredentials{
			SmtpHost: m.SmtpHost,
			SmtpPort: m.SmtpPort,
			Password: m.SmtpPassword,
		},
		CreatedAt: m.CreatedAt,
	}
}

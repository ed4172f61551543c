package storage

import "time"

type AccountModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	Email        string `gorm:"uniqueIndex"`
	SmtpHost     string
	SmtpPort     int
	SmtpPassword string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AccountModel) TableName() string {
	return "sender_accounts"
}

type TokenModel struct {
	ID       string    `gorm:"type:uuid;primaryKey"`
	OwnerID  string    `gorm:"type:uuid;index"`
	Secret   string    `gorm:"uniqueIndex"`
	IssuedOn time.Time `gorm:"type:date"`
	Counter  int       `gorm:"not null;default:0"`
	// No unique (owner_id, issued_on) constraint: two same-day records
	// may coexist when issuance races, and both are honored.
	CreatedAt time.Time
}

func (TokenModel) TableName() string {
	return "token_records"
}

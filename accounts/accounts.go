package accounts

import "time"

// RelayCredentials is what a sender needs to authenticate against its
// third-party SMTP gateway. The password is stored verbatim because the
// gateway requires it in cleartext during SMTP AUTH.
type RelayCredentials struct {
	SmtpHost string `json:"smtp_host,omitempty"`
	SmtpPort int    `json:"smtp_port,omitempty"`
	Password string `json:"-"` // never serialize
}

// Account identifies a party permitted to relay mail. Immutable once
// provisioned, as far as the token core is concerned.
type Account struct {
	ID          string           `json:"id,omitempty"`    // Unique identifier for the sender
	Email       string           `json:"email,omitempty"` // Sender address, unique system-wide
	Credentials RelayCredentials `json:"credentials,omitempty"`
	CreatedAt   time.Time        `json:"created_at,omitempty"`
}

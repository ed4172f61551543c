package relay

import (
	"context"

	"github.com/relaygate/go-relay-server/accounts"
)

// Message is a fully formed outbound mail. From is always the
// authenticated sender; the authorizer never relays on behalf of a
// different address.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Gateway performs the SMTP transaction for an authorized relay. A
// single attempt is made; failures are reported, not retried.
type Gateway interface {
	Send(ctx context.Context, creds accounts.RelayCredentials, msg *Message) error
}

// SendAction is the caller-supplied relay attempt. The authorizer
// invokes it strictly between validation and consumption, so a failed
// send never consumes quota.
type SendAction func(ctx context.Context, creds accounts.RelayCredentials) error

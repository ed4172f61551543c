// Package mailer is the production relay gateway: it performs the SMTP
// transaction against the sender's own third-party gateway using the
// credentials held in the account directory.
package mailer

import (
	"context"

	"github.com/pkg/errors"
	"github.com/relaygate/go-relay-server/accounts"
	"github.com/relaygate/go-relay-server/relay"
	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"
)

var _ relay.Gateway = (*Mailer)(nil)

type Mailer struct{}

func New() *Mailer {
	return &Mailer{}
}

// Send dials the sender's SMTP gateway and submits the message. One
// attempt only: transient failures surface to the caller instead of
// being retried, so a failed send never consumes quota upstream.
// gomail negotiates STARTTLS when the server offers it.
func (m *Mailer) Send(ctx context.Context, creds accounts.RelayCredentials, msg *relay.Message) error {
	dialer := gomail.NewDialer(creds.SmtpHost, creds.SmtpPort, msg.From, creds.Password)

	gm := gomail.NewMessage()
	gm.SetHeader("From", msg.From)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	gm.SetBody("text/plain", msg.Body)

	// DialAndSend has no context support; run it off to the side so
	// the caller's deadline still bounds the attempt.
	done := make(chan error, 1)
	go func() {
		done <- dialer.DialAndSend(gm)
	}()

	select {
	case err := <-done:
		if err != nil {
			log.Warn().Err(err).Str("host", creds.SmtpHost).Msg("smtp send failed")
			return errors.Wrap(err, "[Mailer.Send] DialAndSend")
		}
		log.Debug().Str("host", creds.SmtpHost).Str("to", msg.To).Msg("mail relayed")
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "[Mailer.Send] send deadline exceeded")
	}
}

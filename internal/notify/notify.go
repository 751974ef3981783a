// Package notify sends transactional email. Delivery is fire-and-forget for callers.
package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type Email struct {
	From    string
	To      []string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, email Email) error
}

// Dispatcher sends in the background and only logs failures, so email problems never
// fail the operation that triggered them.
type Dispatcher struct {
	mailer  Mailer
	from    string
	timeout time.Duration
	log     zerolog.Logger
	done    func()
}

func NewDispatcher(mailer Mailer, from string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		mailer:  mailer,
		from:    from,
		timeout: 15 * time.Second,
		log:     log.With().Str("component", "notify").Logger(),
	}
}

// Dispatch queues the email. The caller's context is not used for the send since the
// request will usually have finished by then.
func (d *Dispatcher) Dispatch(email Email) {
	if d == nil || d.mailer == nil || len(email.To) == 0 {
		return
	}
	if email.From == "" {
		email.From = d.from
	}

	go func() {
		if d.done != nil {
			defer d.done()
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.mailer.Send(ctx, email); err != nil {
			d.log.Error().Err(err).Strs("to", email.To).Str("subject", email.Subject).Msg("email delivery failed")
			return
		}
		d.log.Debug().Strs("to", email.To).Str("subject", email.Subject).Msg("email sent")
	}()
}

// LogMailer writes emails to the log instead of sending them.
type LogMailer struct {
	Log zerolog.Logger
}

func (m LogMailer) Send(_ context.Context, email Email) error {
	m.Log.Info().Str("from", email.From).Strs("to", email.To).Str("subject", email.Subject).Msg("email (not sent)")
	return nil
}

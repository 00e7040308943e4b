// Package notification turns account events from the broker into emails.
package notification

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/account-management/internal/domain/event"
	mailtpl "github.com/oksasatya/account-management/pkg/mailer/templates"
)

// Sender is satisfied by *mailer.Mailgun.
type Sender interface {
	Send(ctx context.Context, to, subject, text, html string) (string, error)
}

// Outcome says how a delivery is settled.
type Outcome int

const (
	Ack Outcome = iota
	Requeue
	Drop
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "drop"
	}
}

var templateFor = map[string]string{
	event.AccountRegistered:    mailtpl.Welcome,
	event.AccountAuthenticated: mailtpl.SignIn,
	event.AccountUpdated:       mailtpl.AccountUpdated,
	event.AccountDeleted:       mailtpl.AccountClosed,
}

type Notifier struct {
	sender  Sender
	brand   mailtpl.Brand
	logger  *logrus.Logger
	enabled bool
}

// NewNotifier builds a Notifier. With enabled=false messages are rendered and
// logged but nothing is sent.
func NewNotifier(sender Sender, brand mailtpl.Brand, logger *logrus.Logger, enabled bool) *Notifier {
	return &Notifier{sender: sender, brand: brand, logger: logger, enabled: enabled}
}

// Handle processes one event body.
func (n *Notifier) Handle(ctx context.Context, body []byte) Outcome {
	var e event.Account
	if err := json.Unmarshal(body, &e); err != nil {
		n.logger.WithError(err).Warn("bad account event payload")
		return Drop
	}
	log := n.logger.WithFields(logrus.Fields{"event": e.Type, "event_id": e.ID, "account_id": e.AccountID})

	name, ok := templateFor[e.Type]
	if !ok {
		log.Debug("no email for event type")
		return Ack
	}
	if e.Email == "" {
		log.Warn("account event without email")
		return Ack
	}

	data := mailtpl.NewEmailData(n.brand, e.Username, e.Email, mailtpl.WithTime(e.OccurredAt), mailtpl.WithChanges(e.Changes...))
	subject, text, html, err := mailtpl.Render(name, data)
	if err != nil {
		log.WithError(err).Error("render email")
		return Drop
	}

	if !n.enabled {
		log.WithField("subject", subject).Info("mail sending disabled, skipping")
		return Ack
	}
	id, err := n.sender.Send(ctx, e.Email, subject, text, html)
	if err != nil {
		log.WithError(err).Warn("send email")
		return Requeue
	}
	log.WithField("message_id", id).Info("email sent")
	return Ack
}

// Consume settles deliveries until the channel closes or ctx is done. A
// delivery that already failed once is dropped instead of requeued again.
func (n *Notifier) Consume(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			outcome := n.Handle(ctx, d.Body)
			if outcome == Requeue && d.Redelivered {
				outcome = Drop
			}
			var err error
			switch outcome {
			case Ack:
				err = d.Ack(false)
			case Requeue:
				err = d.Nack(false, true)
			default:
				err = d.Nack(false, false)
			}
			if err != nil {
				n.logger.WithError(err).WithField("outcome", outcome.String()).Error("settle delivery")
			}
		}
	}
}

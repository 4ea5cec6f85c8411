package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"
	"github.com/yamdb/apiserver/config"
	"github.com/yamdb/apiserver/internal/mq"
	"github.com/yamdb/apiserver/internal/storage"
	"github.com/yamdb/apiserver/types"
)

// Message is a plain-text mail ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers messages through one transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

const confirmationSubject = "Your YaMDb confirmation code"

// Confirmations turns confirmation codes into mail for a Sender.
type Confirmations struct {
	sender Sender
}

func NewConfirmations(sender Sender) *Confirmations {
	return &Confirmations{sender: sender}
}

// SendConfirmation mails code to the user's address.
func (c *Confirmations) SendConfirmation(ctx context.Context, user types.User, code string) error {
	return c.sender.Send(ctx, ConfirmationMessage(user, code))
}

// ConfirmationMessage builds the mail carrying a confirmation code.
func ConfirmationMessage(user types.User, code string) Message {
	var body strings.Builder
	fmt.Fprintf(&body, "Hello, %s!\n\n", user.Username)
	fmt.Fprintf(&body, "Your confirmation code: %s\n\n", code)
	body.WriteString("Exchange it for an access token at POST /api/v1/auth/token.\n")
	return Message{
		To:      user.Email,
		Subject: confirmationSubject,
		Body:    body.String(),
	}
}

// NewSender builds the direct delivery transport selected by cfg.Mail.Backend.
func NewSender(ctx context.Context, cfg config.Config) (Sender, error) {
	switch cfg.Mail.Backend {
	case "", "log":
		return NewLogSender(nil), nil
	case "smtp":
		return NewSMTPSender(cfg.Mail)
	case "outbox":
		objects, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			return nil, fmt.Errorf("open outbox storage: %w", err)
		}
		return NewOutboxSender(objects, cfg.Mail.From), nil
	default:
		return nil, fmt.Errorf("unknown mail backend %q", cfg.Mail.Backend)
	}
}

// NewConfirmationSender returns the sender used by the API. With a queue
// configured, mail is published for the mailer worker; otherwise it is
// delivered inline.
func NewConfirmationSender(ctx context.Context, cfg config.Config) (*Confirmations, Sender, error) {
	if strings.TrimSpace(cfg.Mail.Queue) != "" {
		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return nil, nil, fmt.Errorf("open mail queue: %w", err)
		}
		sender := NewQueueSender(broker, cfg.Mail.Queue)
		return NewConfirmations(sender), sender, nil
	}

	sender, err := NewSender(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewConfirmations(sender), sender, nil
}

func render(from string, msg Message) (*mail.Msg, error) {
	if strings.TrimSpace(msg.To) == "" {
		return nil, errors.New("mail recipient is required")
	}

	m := mail.NewMsg()
	if err := m.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mailersend/mailersend-go"

	"github.com/rentavacation/escrow-backend/pkg/config"
	"github.com/rentavacation/escrow-backend/pkg/enums"
)

const sendTimeout = 10 * time.Second

// MailerSendSender delivers notifications through the MailerSend API.
type MailerSendSender struct {
	client  *mailersend.Mailersend
	from    mailersend.From
	enabled bool
}

// NewMailerSendSender builds the sender. An empty API key or from-address
// yields a disabled sender whose Send always errors; the Dispatcher contains
// that error like any other delivery failure.
func NewMailerSendSender(cfg config.MailerConfig) *MailerSendSender {
	s := &MailerSendSender{
		enabled: cfg.APIKey != "" && cfg.FromEmail != "",
		from: mailersend.From{
			Name:  cfg.FromName,
			Email: cfg.FromEmail,
		},
	}
	if s.enabled {
		s.client = mailersend.NewMailersend(cfg.APIKey)
	}
	return s
}

// Send implements Sender.
func (s *MailerSendSender) Send(ctx context.Context, to Recipient, kind enums.NotificationKind, data Payload) error {
	if !s.enabled {
		return errors.New("mailer disabled (missing api key or from address)")
	}

	subject, text, ok := Render(kind, data)
	if !ok {
		return fmt.Errorf("no template for notification kind %q", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := s.client.Email.NewMessage()
	msg.SetFrom(s.from)
	msg.SetRecipients([]mailersend.Recipient{{Name: to.Name, Email: to.Email}})
	msg.SetSubject(subject)
	msg.SetText(text)

	res, err := s.client.Email.Send(ctx, msg)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("mailersend error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

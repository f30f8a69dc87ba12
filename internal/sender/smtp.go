package sender

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/opsportal/notifier/internal/domain"
	"gopkg.in/gomail.v2"
)

const (
	smtpConfigHost     = "host"
	smtpConfigPort     = "port"
	smtpConfigUsername = "username"
	smtpConfigPassword = "password"
	smtpConfigFrom     = "from"
	smtpConfigTo       = "to"
)

// SMTPDialer is the seam between the sender and the SMTP session so tests
// can substitute a fake without opening connections.
type SMTPDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPDialerFactory builds a dialer for the host/credentials of one
// transport. The default wraps gomail.
type SMTPDialerFactory func(host string, port int, username string, password string) SMTPDialer

func defaultSMTPDialerFactory(host string, port int, username string, password string) SMTPDialer {
	return gomail.NewDialer(host, port, username, password)
}

// SMTPSender delivers mail through an operator-configured SMTP relay.
type SMTPSender struct {
	dial SMTPDialerFactory
}

func NewSMTPSender() *SMTPSender {
	return &SMTPSender{dial: defaultSMTPDialerFactory}
}

func NewSMTPSenderWithDialer(factory SMTPDialerFactory) (*SMTPSender, error) {
	if factory == nil {
		return nil, errors.New("dialer factory is required")
	}
	return &SMTPSender{dial: factory}, nil
}

func (s *SMTPSender) Channel() domain.Channel { return domain.ChannelSMTP }

func (s *SMTPSender) ValidateConfig(config map[string]any) error {
	for _, key := range []string{smtpConfigHost, smtpConfigUsername, smtpConfigPassword, smtpConfigFrom, smtpConfigTo} {
		if _, err := requireConfigString(config, key); err != nil {
			return err
		}
	}
	if _, err := requireConfigInt(config, smtpConfigPort); err != nil {
		return err
	}
	return nil
}

func (s *SMTPSender) Send(ctx context.Context, transport domain.Transport, notification domain.Notification) (*Outcome, error) {
	host, err := requireConfigString(transport.Config, smtpConfigHost)
	if err != nil {
		return nil, err
	}
	port, err := requireConfigInt(transport.Config, smtpConfigPort)
	if err != nil {
		return nil, err
	}
	username, err := requireConfigString(transport.Config, smtpConfigUsername)
	if err != nil {
		return nil, err
	}
	password, err := requireConfigString(transport.Config, smtpConfigPassword)
	if err != nil {
		return nil, err
	}
	from, err := requireConfigString(transport.Config, smtpConfigFrom)
	if err != nil {
		return nil, err
	}
	to, err := requireConfigString(transport.Config, smtpConfigTo)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, &SendError{Kind: KindTransient, Message: "context done before smtp send", Cause: err}
	}

	subject, body := messageText(notification)
	msg := gomail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := s.dial(host, port, username, password).DialAndSend(msg); err != nil {
		return nil, classifySMTPError(err)
	}

	return &Outcome{}, nil
}

// classifySMTPError separates connectivity problems from explicit server
// rejections such as bad credentials.
func classifySMTPError(err error) *SendError {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &SendError{Kind: KindTransient, Message: "smtp connection failed", Cause: err}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") {
		return &SendError{Kind: KindTransient, Message: "smtp connection failed", Cause: err}
	}
	if strings.Contains(msg, "535") || strings.Contains(msg, "auth") {
		return &SendError{Kind: KindPermanent, Message: "smtp authentication rejected", Cause: err}
	}

	return &SendError{Kind: KindPermanent, Message: "smtp send rejected", Cause: err}
}

package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/sirupsen/logrus"

	"notify-mail-relay-go/internal/model"
)

// Transport sends one composed message using the given configuration
type Transport interface {
	Send(ctx context.Context, cfg model.EmailConfig, msg []byte) error
}

// SMTPTransport delivers over SMTP with implicit TLS, STARTTLS or plaintext
type SMTPTransport struct {
	Timeout   time.Duration
	LocalName string
	// TLSConfig is cloned per connection. Tests use it to trust a local certificate.
	TLSConfig *tls.Config
}

func NewSMTPTransport(timeout time.Duration, localName string) *SMTPTransport {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if localName == "" {
		localName = "localhost"
	}
	return &SMTPTransport{Timeout: timeout, LocalName: localName}
}

func (t *SMTPTransport) tlsConfig(server string) *tls.Config {
	if t.TLSConfig != nil {
		cfg := t.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = server
		}
		return cfg
	}
	return &tls.Config{ServerName: server, MinVersion: tls.VersionTLS12}
}

// Send runs one SMTP conversation. The whole conversation, not only the dial,
// is bounded by t.Timeout.
func (t *SMTPTransport) Send(ctx context.Context, cfg model.EmailConfig, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, t.Timeout)
	defer cancel()

	fail := func(op string, err error) error {
		err = fmt.Errorf("%s: %w", op, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return classify(err)
	}

	addr := net.JoinHostPort(cfg.SMTPServer, cfg.SMTPPort)
	dialer := &net.Dialer{Timeout: t.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Encryption == model.EncryptionSSL {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: t.tlsConfig(cfg.SMTPServer)}
		conn, err = tlsDialer.DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fail("failed to connect to "+addr, err)
	}
	defer conn.Close()

	// go-smtp resets the connection deadline around every command, so the
	// attempt deadline is enforced by closing the connection.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var c *smtp.Client
	if cfg.Encryption == model.EncryptionTLS {
		// Greets as "localhost"; go-smtp runs EHLO itself before STARTTLS.
		c, err = smtp.NewClientStartTLS(conn, t.tlsConfig(cfg.SMTPServer))
		if err != nil {
			return fail("STARTTLS failed", err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	defer c.Close()
	c.CommandTimeout = t.Timeout
	c.SubmissionTimeout = t.Timeout

	if cfg.Encryption != model.EncryptionTLS {
		if err := c.Hello(t.LocalName); err != nil {
			return fail("EHLO failed", err)
		}
	}

	auth := sasl.NewPlainClient("", cfg.SenderEmail, cfg.SenderPassword)
	if err := c.Auth(auth); err != nil {
		return fail("AUTH failed", err)
	}
	if err := c.SendMail(cfg.SenderEmail, []string{cfg.RecipientEmail}, bytes.NewReader(msg)); err != nil {
		return fail("send failed", err)
	}
	if err := c.Quit(); err != nil {
		logrus.Warnf("QUIT failed after message was accepted: %v", err)
	}
	return nil
}

package model

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Encryption modes supported by the SMTP transport
const (
	EncryptionSSL  = "ssl"
	EncryptionTLS  = "tls"
	EncryptionNone = "none"
)

var validate = validator.New()

// EmailConfig holds the SMTP transport credentials. It is replaced wholesale on save.
type EmailConfig struct {
	SMTPServer     string `json:"smtp_server" validate:"required"`
	SMTPPort       string `json:"smtp_port" validate:"required"`
	Encryption     string `json:"encryption" validate:"required,oneof=ssl tls none"`
	SenderEmail    string `json:"sender_email" validate:"required,email"`
	SenderPassword string `json:"sender_password" validate:"required"`
	RecipientEmail string `json:"recipient_email" validate:"required,email"`
}

// DefaultEmailConfig returns the configuration used before anything was saved
func DefaultEmailConfig() EmailConfig {
	return EmailConfig{
		SMTPServer: "smtp.qq.com",
		SMTPPort:   "465",
		Encryption: EncryptionSSL,
	}
}

// DefaultPort returns the conventional SMTP port for an encryption mode
func DefaultPort(encryption string) string {
	switch encryption {
	case EncryptionTLS:
		return "587"
	case EncryptionNone:
		return "25"
	default:
		return "465"
	}
}

// IsValid reports whether the configuration can be used to send mail
func (c EmailConfig) IsValid() bool {
	for _, field := range []string{c.SMTPServer, c.SMTPPort, c.Encryption, c.SenderEmail, c.SenderPassword, c.RecipientEmail} {
		if strings.TrimSpace(field) == "" {
			return false
		}
	}

	port, err := strconv.Atoi(c.SMTPPort)
	if err != nil || port <= 0 {
		return false
	}

	return validate.Struct(c) == nil
}

// Redacted returns a copy safe for logs and API responses
func (c EmailConfig) Redacted() EmailConfig {
	if c.SenderPassword != "" {
		c.SenderPassword = "********"
	}
	return c
}

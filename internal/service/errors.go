package service

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/emersion/go-smtp"
)

var (
	// ErrConfigInvalid means delivery cannot be attempted until the email
	// configuration is fixed. It is never retried.
	ErrConfigInvalid = errors.New("email configuration is incomplete or invalid")

	ErrTransportTimeout = errors.New("smtp timeout")
	ErrTransportAuth    = errors.New("smtp authentication failed")
	ErrTransportNetwork = errors.New("smtp transport error")
)

// IsRetryable reports whether a delivery failing with err may be attempted again
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrConfigInvalid)
}

// classify wraps a raw transport error with one of the transport sentinels
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrConfigInvalid, ErrTransportTimeout, ErrTransportAuth, ErrTransportNetwork} {
		if errors.Is(err, known) {
			return err
		}
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch smtpErr.Code {
		case 530, 534, 535, 538:
			return fmt.Errorf("%w: %w", ErrTransportAuth, err)
		}
		return fmt.Errorf("%w: %w", ErrTransportNetwork, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTransportTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrTransportNetwork, err)
}

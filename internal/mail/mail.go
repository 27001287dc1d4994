// Package mail delivers composed letters through an outbound email provider.
package mail

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for mail delivery.
var (
	ErrSendFailed = errors.New("mail send failed")
	ErrTimeout    = errors.New("mail send timed out")
)

// Message is a plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Transport sends a message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// DefaultSendTimeout bounds a single transport call.
const DefaultSendTimeout = 15 * time.Second

type timeoutTransport struct {
	next    Transport
	timeout time.Duration
}

// WithTimeout bounds every Send on next. Expiry is reported as ErrTimeout.
func WithTimeout(next Transport, timeout time.Duration) Transport {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &timeoutTransport{next: next, timeout: timeout}
}

func (t *timeoutTransport) Send(ctx context.Context, msg Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	type result struct {
		id  string
		err error
	}
	done := make(chan result, 1)
	go func() {
		id, err := t.next.Send(ctx, msg)
		done <- result{id, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
		}
		return r.id, r.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w after %s", ErrTimeout, t.timeout)
		}
		return "", ctx.Err()
	}
}

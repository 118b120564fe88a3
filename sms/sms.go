// Package sms wraps the outbound SMS providers.
//
// Send never returns an error: every outcome, including exhausted retries,
// is reported through Result so the caller can record it on the delivery log.
package sms

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

var (
	// ErrUncertainDelivery means the gateway may have accepted the message but
	// the response never arrived. Such sends are never retried.
	ErrUncertainDelivery = errors.New("uncertain delivery: response timed out after request was sent")

	ErrConnect  = errors.New("could not connect to sms provider")
	ErrRejected = errors.New("sms provider rejected message")

	// errNotWritten and errWritten tag transport failures by whether the
	// request reached the wire. Only the gateway client can tell.
	errNotWritten = errors.New("request not sent")
	errWritten    = errors.New("request sent")
)

// Result is the outcome of a single Send call.
type Result struct {
	Success    bool
	ProviderID string
	Raw        string
	Error      string
	Uncertain  bool
}

func failed(err error, raw string) Result {
	return Result{Error: err.Error(), Raw: raw, Uncertain: errors.Is(err, ErrUncertainDelivery)}
}

// Provider is implemented by every SMS backend.
type Provider interface {
	Name() string
	Send(ctx context.Context, phone, message string) Result
	Balance(ctx context.Context) (int, error)
}

// isConnectError reports whether err happened before the request reached the
// provider, which makes it safe to retry.
func isConnectError(err error) bool {
	if errors.Is(err, errNotWritten) {
		return true
	}
	if errors.Is(err, errWritten) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	// net/http does not export its handshake timeout type.
	return strings.Contains(err.Error(), "TLS handshake timeout")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// classify maps a transport error to the error recorded on the delivery log.
// Once a request is written, any failure leaves the outcome unknown.
func classify(err error) error {
	switch {
	case isConnectError(err):
		return errors.Join(ErrConnect, err)
	case errors.Is(err, errWritten), isTimeout(err), errors.Is(err, context.Canceled):
		return errors.Join(ErrUncertainDelivery, err)
	default:
		return err
	}
}

// retryConnect runs attempt once plus up to maxRetries more times, but only
// while attempt keeps failing to establish a connection. Any other error,
// including a read timeout, ends the loop immediately.
func retryConnect(ctx context.Context, maxRetries int, delay time.Duration, onRetry func(n int, err error), attempt func() error) error {
	var err error
	for n := 0; n <= maxRetries; n++ {
		if n > 0 {
			if onRetry != nil {
				onRetry(n, err)
			}
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return errors.Join(ErrConnect, ctx.Err())
			case <-t.C:
			}
		}
		err = attempt()
		if err == nil || !isConnectError(err) {
			return err
		}
	}
	return err
}

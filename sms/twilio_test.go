package sms

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeTwilio struct {
	calls   int
	errs    []error
	message *twilioApi.ApiV2010Message
	params  *twilioApi.CreateMessageParams
	balance string
}

func (f *fakeTwilio) CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.calls++
	f.params = params
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return f.message, nil
}

func (f *fakeTwilio) FetchBalance(*twilioApi.FetchBalanceParams) (*twilioApi.ApiV2010Balance, error) {
	return &twilioApi.ApiV2010Balance{Balance: &f.balance}, nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func strPtr(s string) *string { return &s }

func TestTwilioSend(t *testing.T) {
	t.Parallel()
	api := &fakeTwilio{message: &twilioApi.ApiV2010Message{Sid: strPtr("SM123"), Status: strPtr("queued")}}
	c := newTwilioClient(TwilioConfig{PhoneNumber: "+15005550006"}, api, zerolog.Nop())

	res := c.Send(context.Background(), "09171234567", "hello")
	require.True(t, res.Success)
	assert.Equal(t, "SM123", res.ProviderID)
	assert.Equal(t, "+639171234567", *api.params.To)
	assert.Equal(t, "+15005550006", *api.params.From)
}

func TestTwilioRetriesOnlyConnectErrors(t *testing.T) {
	t.Parallel()
	dialErr := &url.Error{Op: "Post", URL: "https://api.twilio.com", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}
	api := &fakeTwilio{
		errs:    []error{dialErr, dialErr},
		message: &twilioApi.ApiV2010Message{Sid: strPtr("SM9")},
	}
	c := newTwilioClient(TwilioConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, api, zerolog.Nop())

	res := c.Send(context.Background(), "09171234567", "hello")
	assert.True(t, res.Success)
	assert.Equal(t, 3, api.calls)

	readErr := &url.Error{Op: "Post", URL: "https://api.twilio.com", Err: timeoutErr{}}
	api = &fakeTwilio{errs: []error{readErr}}
	c = newTwilioClient(TwilioConfig{MaxRetries: 3, RetryDelay: time.Millisecond}, api, zerolog.Nop())

	res = c.Send(context.Background(), "09171234567", "hello")
	assert.False(t, res.Success)
	assert.True(t, res.Uncertain)
	assert.Equal(t, 1, api.calls)
}

func TestTwilioBalance(t *testing.T) {
	t.Parallel()
	c := newTwilioClient(TwilioConfig{}, &fakeTwilio{balance: "42.87"}, zerolog.Nop())
	n, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, n)
}

package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"salonpro-reminders/utils"
)

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	RatePerSec  float64
}

// twilioAPI is the subset of the twilio REST client used here.
type twilioAPI interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
	FetchBalance(params *twilioApi.FetchBalanceParams) (*twilioApi.ApiV2010Balance, error)
}

// TwilioClient sends reminders through Twilio Programmable Messaging. It
// applies the same retry classification as the gateway client.
type TwilioClient struct {
	cfg     TwilioConfig
	api     twilioAPI
	limiter *rate.Limiter
	log     zerolog.Logger
}

func NewTwilioClient(cfg TwilioConfig, log zerolog.Logger) *TwilioClient {
	rest := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	if cfg.Timeout > 0 {
		rest.SetTimeout(cfg.Timeout)
	}
	return newTwilioClient(cfg, rest.Api, log)
}

func newTwilioClient(cfg TwilioConfig, api twilioAPI, log zerolog.Logger) *TwilioClient {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return &TwilioClient{
		cfg:     cfg,
		api:     api,
		limiter: limiter,
		log:     log.With().Str("comp", "sms.twilio").Logger(),
	}
}

func (c *TwilioClient) Name() string { return "twilio" }

func (c *TwilioClient) Send(ctx context.Context, phone, message string) Result {
	local, err := utils.NormalizePHMobile(phone)
	if err != nil {
		return failed(fmt.Errorf("%w: %q", err, phone), "")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return failed(fmt.Errorf("send throttled: %w", err), "")
	}

	params := &twilioApi.CreateMessageParams{}
	params.SetTo("+" + local)
	params.SetFrom(c.cfg.PhoneNumber)
	params.SetBody(message)

	var resp *twilioApi.ApiV2010Message
	err = retryConnect(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay,
		func(n int, err error) {
			c.log.Warn().Err(err).Int("retry", n).Msg("twilio connect failed, retrying")
		},
		func() error {
			var err error
			resp, err = c.api.CreateMessage(params)
			return err
		})
	if err != nil {
		return failed(classify(err), "")
	}

	raw, _ := json.Marshal(resp)
	if resp == nil || resp.Sid == nil {
		return failed(fmt.Errorf("%w: no message sid returned", ErrRejected), string(raw))
	}
	if resp.Status != nil && (*resp.Status == "failed" || *resp.Status == "undelivered") {
		msg := *resp.Status
		if resp.ErrorMessage != nil {
			msg = *resp.ErrorMessage
		}
		return failed(fmt.Errorf("%w: %s", ErrRejected, msg), string(raw))
	}
	return Result{Success: true, ProviderID: *resp.Sid, Raw: string(raw)}
}

// Balance reports the account balance truncated to whole currency units.
func (c *TwilioClient) Balance(ctx context.Context) (int, error) {
	var resp *twilioApi.ApiV2010Balance
	err := retryConnect(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay, nil, func() error {
		var err error
		resp, err = c.api.FetchBalance(&twilioApi.FetchBalanceParams{})
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	if resp == nil || resp.Balance == nil {
		return 0, fmt.Errorf("%w: empty balance", ErrRejected)
	}
	f, err := strconv.ParseFloat(*resp.Balance, 64)
	if err != nil {
		return 0, fmt.Errorf("balance %q: %w", *resp.Balance, err)
	}
	return int(f), nil
}

package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"salonpro-reminders/utils"
)

const maxRawResponse = 8 << 10

// Config configures the HTTP gateway client.
type Config struct {
	BaseURL        string
	Token          string
	SenderID       string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	RatePerSec     float64
}

// Client talks to the bearer-authenticated SMS gateway:
//
//	POST {base}/sms/send  {recipient, sender_id, type:"plain", message}
//	GET  {base}/balance
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     zerolog.Logger
}

type ClientOption func(*Client)

// WithHTTPClient replaces the default client built from Config timeouts.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

func NewClient(cfg Config, log zerolog.Logger, opts ...ClientOption) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.ConnectTimeout + cfg.ReadTimeout,
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
				TLSHandshakeTimeout:   cfg.ConnectTimeout,
				ResponseHeaderTimeout: cfg.ReadTimeout,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Inf, 1),
		log:     log.With().Str("comp", "sms.gateway").Logger(),
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return "gateway" }

type sendRequest struct {
	Recipient string `json:"recipient"`
	SenderID  string `json:"sender_id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
}

type gatewayResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (c *Client) Send(ctx context.Context, phone, message string) Result {
	recipient, err := utils.NormalizePHMobile(phone)
	if err != nil {
		return failed(fmt.Errorf("%w: %q", err, phone), "")
	}
	body, err := json.Marshal(sendRequest{
		Recipient: recipient,
		SenderID:  c.cfg.SenderID,
		Type:      "plain",
		Message:   message,
	})
	if err != nil {
		return failed(err, "")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return failed(fmt.Errorf("send throttled: %w", err), "")
	}

	var raw []byte
	var status int
	err = retryConnect(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay,
		func(n int, err error) {
			c.log.Warn().Err(err).Int("retry", n).Str("recipient", recipient).Msg("sms send connect failed, retrying")
		},
		func() error {
			var err error
			status, raw, err = c.do(ctx, http.MethodPost, "/sms/send", body)
			return err
		})
	if err != nil {
		err = classify(err)
		if errors.Is(err, ErrUncertainDelivery) {
			c.log.Warn().Err(err).Str("recipient", recipient).Msg("sms send outcome unknown, not retrying")
		}
		return failed(err, "")
	}

	res, err := decodeGateway(raw)
	if err != nil {
		return failed(fmt.Errorf("decode response (http %d): %w", status, err), string(raw))
	}
	if res.Status != "success" {
		msg := res.Message
		if msg == "" {
			msg = fmt.Sprintf("http %d, status %q", status, res.Status)
		}
		return failed(fmt.Errorf("%w: %s", ErrRejected, msg), string(raw))
	}
	return Result{
		Success:    true,
		ProviderID: stringField(res.Data, "uid"),
		Raw:        string(raw),
	}
}

// Balance returns the remaining provider-side credit units.
func (c *Client) Balance(ctx context.Context) (int, error) {
	var raw []byte
	err := retryConnect(ctx, c.cfg.MaxRetries, c.cfg.RetryDelay, nil, func() error {
		var err error
		_, raw, err = c.do(ctx, http.MethodGet, "/balance", nil)
		return err
	})
	if err != nil {
		return 0, classify(err)
	}
	res, err := decodeGateway(raw)
	if err != nil {
		return 0, fmt.Errorf("decode balance: %w", err)
	}
	if res.Status != "success" {
		return 0, fmt.Errorf("%w: %s", ErrRejected, res.Message)
	}
	units, err := strconv.Atoi(stringField(res.Data, "remaining_unit"))
	if err != nil {
		return 0, fmt.Errorf("remaining_unit: %w", err)
	}
	return units, nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	var wrote atomic.Bool
	req = req.WithContext(httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}))

	resp, err := c.http.Do(req)
	if err != nil {
		if wrote.Load() {
			return 0, nil, errors.Join(errWritten, err)
		}
		return 0, nil, errors.Join(errNotWritten, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRawResponse))
	if err != nil {
		return resp.StatusCode, raw, errors.Join(errWritten, err)
	}
	return resp.StatusCode, raw, nil
}

func decodeGateway(raw []byte) (gatewayResponse, error) {
	var res gatewayResponse
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	err := dec.Decode(&res)
	return res, err
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

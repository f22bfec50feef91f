package nowpayments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const (
	DefaultBaseURL = "https://api.nowpayments.io/v1"
	DefaultTimeout = 15 * time.Second

	apiKeyHeader = "x-api-key"
	maxBodyBytes = 1 << 20
)

type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	timeout     time.Duration
	httpClient  *http.Client
}

func NewClient(cfg models.NowPaymentsConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("nowpayments api key cannot be empty")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient, err := newHttpClient(timeout)
	if err != nil {
		return nil, fmt.Errorf("unable to create http client: %w", err)
	}

	return &Client{
		baseURL:     baseURL,
		apiKey:      cfg.APIKey,
		callbackURL: cfg.CallbackURL,
		timeout:     timeout,
		httpClient:  httpClient,
	}, nil
}

func newHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ResponseHeaderTimeout: timeout,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	// The per-call context deadline is the real bound; this is a backstop.
	return &http.Client{Transport: tr, Timeout: 2 * timeout}, nil
}

// CreatePayment opens a payment with the provider. The callback URL from
// configuration is used when the request does not carry one.
func (c *Client) CreatePayment(ctx context.Context, req PaymentRequest) (*Payment, error) {
	if req.IPNCallbackURL == "" {
		req.IPNCallbackURL = c.callbackURL
	}
	req.PriceCurrency = strings.ToLower(req.PriceCurrency)
	req.PayCurrency = strings.ToLower(req.PayCurrency)

	zap.L().Info("Creating NOWPayments payment",
		zap.String("order_id", req.OrderId),
		zap.String("price_amount", req.PriceAmount.String()),
		zap.String("price_currency", req.PriceCurrency),
		zap.String("pay_currency", req.PayCurrency))

	var payment Payment
	if err := c.do(ctx, "create_payment", http.MethodPost, "/payment", nil, req, &payment); err != nil {
		return nil, err
	}

	zap.L().Info("NOWPayments payment created",
		zap.String("payment_id", string(payment.PaymentId)),
		zap.String("order_id", payment.OrderId),
		zap.String("payment_status", string(payment.PaymentStatus)))

	return &payment, nil
}

func (c *Client) GetPayment(ctx context.Context, paymentId string) (*Payment, error) {
	var payment Payment
	if err := c.do(ctx, "get_payment", http.MethodGet, "/payment/"+url.PathEscape(paymentId), nil, nil, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *Client) MinAmount(ctx context.Context, currencyFrom, currencyTo string) (*MinAmount, error) {
	query := url.Values{}
	query.Set("currency_from", strings.ToLower(currencyFrom))
	query.Set("currency_to", strings.ToLower(currencyTo))

	var minAmount MinAmount
	if err := c.do(ctx, "min_amount", http.MethodGet, "/min-amount", query, nil, &minAmount); err != nil {
		return nil, err
	}
	return &minAmount, nil
}

func (c *Client) Estimate(ctx context.Context, amount decimal.Decimal, currencyFrom, currencyTo string) (*Estimate, error) {
	query := url.Values{}
	query.Set("amount", amount.String())
	query.Set("currency_from", strings.ToLower(currencyFrom))
	query.Set("currency_to", strings.ToLower(currencyTo))

	var estimate Estimate
	if err := c.do(ctx, "estimate", http.MethodGet, "/estimate", query, nil, &estimate); err != nil {
		return nil, err
	}
	return &estimate, nil
}

func (c *Client) Currencies(ctx context.Context) ([]string, error) {
	var response struct {
		Currencies []string `json:"currencies"`
	}
	if err := c.do(ctx, "currencies", http.MethodGet, "/currencies", nil, nil, &response); err != nil {
		return nil, err
	}
	return response.Currencies, nil
}

// Status checks that the provider API is reachable
func (c *Client) Status(ctx context.Context) error {
	var response struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, "status", http.MethodGet, "/status", nil, nil, &response); err != nil {
		return err
	}
	if !strings.EqualFold(response.Message, "ok") {
		return &ProviderError{Op: "status", Message: response.Message}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("unable to encode %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("unable to build %s request: %w", op, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		zap.L().Error("NOWPayments request failed",
			zap.String("op", op),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return &ProviderError{Op: op, Timeout: isTimeout(err), Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Timeout: isTimeout(err), Err: err}
	}

	zap.L().Debug("NOWPayments response received",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		message := apiErr.Message
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Code: apiErr.Code, Message: message}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Op: op, StatusCode: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

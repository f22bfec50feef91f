package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/database"
	"wallet-ledger-go/internal/fees"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
)

var (
	testJWTSecret = []byte("jwt-test-secret")
	testIPNSecret = "ipn-test-secret"
)

type fakeProvider struct {
	mu     sync.Mutex
	nextId int
}

func (p *fakeProvider) CreatePayment(_ context.Context, req nowpayments.PaymentRequest) (*nowpayments.Payment, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextId++
	return &nowpayments.Payment{
		PaymentId:     nowpayments.PaymentId(fmt.Sprintf("%d", 7000+p.nextId)),
		PaymentStatus: models.PaymentStatusWaiting,
		PayAddress:    "bc1qrouteraddress",
		PriceAmount:   req.PriceAmount,
		PriceCurrency: req.PriceCurrency,
		PayAmount:     decimal.RequireFromString("0.002"),
		PayCurrency:   req.PayCurrency,
		OrderId:       req.OrderId,
	}, nil
}

func (p *fakeProvider) GetPayment(_ context.Context, paymentId string) (*nowpayments.Payment, error) {
	return &nowpayments.Payment{
		PaymentId:     nowpayments.PaymentId(paymentId),
		PaymentStatus: models.PaymentStatusWaiting,
	}, nil
}

func (p *fakeProvider) MinAmount(_ context.Context, from, to string) (*nowpayments.MinAmount, error) {
	return &nowpayments.MinAmount{CurrencyFrom: from, CurrencyTo: to, MinAmount: decimal.RequireFromString("0.0001")}, nil
}

func (p *fakeProvider) Estimate(_ context.Context, amount decimal.Decimal, from, to string) (*nowpayments.Estimate, error) {
	return &nowpayments.Estimate{CurrencyFrom: from, AmountFrom: amount, CurrencyTo: to, EstimatedAmount: amount}, nil
}

func (p *fakeProvider) Currencies(context.Context) ([]string, error) {
	return []string{"btc", "eth"}, nil
}

func setupRouter(t *testing.T, limiter ratelimit.Limiter) *gin.Engine {
	t.Helper()
	return setupRouterWithProvider(t, limiter, &fakeProvider{})
}

func setupRouterWithProvider(t *testing.T, limiter ratelimit.Limiter, provider api.PaymentProvider) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       database.DriverSQLite,
		Path:         filepath.Join(t.TempDir(), "router.db"),
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		PingTimeout:  5 * time.Second,
	}, "usd")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(db.Close)

	ledger, err := api.NewLedgerService(api.Options{
		Store:     db,
		Provider:  provider,
		Policy:    fees.DefaultPolicy(),
		IPNSecret: testIPNSecret,
	})
	if err != nil {
		t.Fatalf("Failed to create ledger service: %v", err)
	}

	return NewRouter(RouterOptions{
		Ledger:    ledger,
		Limiter:   limiter,
		JWTSecret: testJWTSecret,
		Health:    NewHealth(true, ledger.HealthCheck),
	})
}

func token(t *testing.T, subject string, roles ...string) string {
	t.Helper()
	claims := Claims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	if err != nil {
		t.Fatalf("Failed to sign token: %v", err)
	}
	return signed
}

func perform(router *gin.Engine, method, path, bearer string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("Failed to decode response %q: %v", w.Body.String(), err)
	}
}

func signedNotification(t *testing.T, paymentId, status, paid string) ([]byte, string) {
	t.Helper()
	body := []byte(fmt.Sprintf(`{"payment_id":%s,"payment_status":%q,"actually_paid":%s,"price_currency":"usd","pay_currency":"btc"}`, paymentId, status, paid))
	signature, err := nowpayments.Sign(body, testIPNSecret)
	if err != nil {
		t.Fatalf("Failed to sign notification: %v", err)
	}
	return body, signature
}

func TestHealthEndpoints(t *testing.T) {
	router := setupRouter(t, nil)

	if w := perform(router, http.MethodGet, "/healthz", "", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /healthz, got %d", w.Code)
	}
	if w := perform(router, http.MethodGet, "/readyz", "", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 from /readyz, got %d", w.Code)
	}
}

func TestReadinessNotReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	health := NewHealth(false, nil)
	router := gin.New()
	router.GET("/readyz", ReadinessHandler(health))

	if w := perform(router, http.MethodGet, "/readyz", "", nil, nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 while not ready, got %d", w.Code)
	}
	health.SetReady(true)
	if w := perform(router, http.MethodGet, "/readyz", "", nil, nil); w.Code != http.StatusOK {
		t.Errorf("Expected 200 once ready, got %d", w.Code)
	}
}

func TestAuthentication(t *testing.T) {
	router := setupRouter(t, nil)

	tests := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not-a-jwt", http.StatusUnauthorized},
		{"valid token", token(t, "user-1"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := perform(router, http.MethodGet, "/api/balance", tt.bearer, nil, nil)
			if w.Code != tt.want {
				t.Errorf("Expected %d, got %d", tt.want, w.Code)
			}
		})
	}

	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("other"))
	if w := perform(router, http.MethodGet, "/api/balance", wrongKey, nil, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for token signed with another key, got %d", w.Code)
	}
}

func TestOperatorRoutesRequireRole(t *testing.T) {
	router := setupRouter(t, nil)

	w := perform(router, http.MethodGet, "/api/admin/reconciliation", token(t, "user-1"), nil, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 without operator role, got %d", w.Code)
	}

	w = perform(router, http.MethodGet, "/api/admin/reconciliation", token(t, "ops-1", "operator"), nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for operator, got %d", w.Code)
	}

	body := []byte(`{"status":"completed"}`)
	w = perform(router, http.MethodPost, "/api/withdrawal/WD-1/process", token(t, "user-1"), body, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 processing without operator role, got %d", w.Code)
	}
}

func TestNotificationRejectsBadSignature(t *testing.T) {
	router := setupRouter(t, nil)

	body, _ := signedNotification(t, "1", "finished", "10")
	w := perform(router, http.MethodPost, "/api/deposit/ipn", "", body, map[string]string{nowpayments.SignatureHeader: "deadbeef"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d", w.Code)
	}

	var resp errorResponse
	decode(t, w, &resp)
	if resp.Code != "INVALID_SIGNATURE" {
		t.Errorf("Expected INVALID_SIGNATURE, got %s", resp.Code)
	}
}

func TestDepositAndWithdrawalFlow(t *testing.T) {
	router := setupRouter(t, nil)
	user := token(t, "user-1")

	w := perform(router, http.MethodPost, "/api/deposit", user, []byte(`{"amount":"100","payCurrency":"btc"}`), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating deposit, got %d: %s", w.Code, w.Body.String())
	}
	var deposit models.DepositSummary
	decode(t, w, &deposit)

	body, signature := signedNotification(t, deposit.PaymentId, "finished", "100")
	w = perform(router, http.MethodPost, "/api/deposit/ipn", "", body, map[string]string{nowpayments.SignatureHeader: signature})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 from notification, got %d: %s", w.Code, w.Body.String())
	}
	var status map[string]string
	decode(t, w, &status)
	if status["status"] != "credited" {
		t.Errorf("Expected credited, got %s", status["status"])
	}

	w = perform(router, http.MethodGet, "/api/balance", user, nil, nil)
	var balance models.BalanceResponse
	decode(t, w, &balance)
	if !balance.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance 100, got %s", balance.Balance.String())
	}

	create := []byte(`{"amount":"50","method":"bank","details":{"accountName":"Jane Doe","accountNumber":"12345678","bankName":"First Bank"}}`)
	w = perform(router, http.MethodPost, "/api/withdrawal", user, create, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201 creating withdrawal, got %d: %s", w.Code, w.Body.String())
	}
	// Details is an interface on the summary, so only the scalar fields are decoded
	var withdrawal struct {
		Id            string          `json:"id"`
		ProcessingFee decimal.Decimal `json:"processingFee"`
	}
	decode(t, w, &withdrawal)
	if !withdrawal.ProcessingFee.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("Expected fee 0.5, got %s", withdrawal.ProcessingFee.String())
	}

	w = perform(router, http.MethodGet, "/api/withdrawal/"+withdrawal.Id, token(t, "user-2"), nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 reading another account's withdrawal, got %d", w.Code)
	}

	w = perform(router, http.MethodPost, "/api/withdrawal/"+withdrawal.Id+"/cancel", user, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 cancelling, got %d: %s", w.Code, w.Body.String())
	}
	w = perform(router, http.MethodPost, "/api/withdrawal/"+withdrawal.Id+"/cancel", user, nil, nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 cancelling twice, got %d", w.Code)
	}

	w = perform(router, http.MethodGet, "/api/balance", user, nil, nil)
	decode(t, w, &balance)
	if !balance.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected balance restored to 100, got %s", balance.Balance.String())
	}
}

func TestErrorMapping(t *testing.T) {
	router := setupRouter(t, nil)
	user := token(t, "user-1")

	w := perform(router, http.MethodPost, "/api/withdrawal", user, []byte(`{"amount":"50","method":"bank","details":{"accountName":"A","accountNumber":"1","bankName":"B"}}`), nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", w.Code)
	}
	var resp errorResponse
	decode(t, w, &resp)
	if resp.Code != "INSUFFICIENT_BALANCE" {
		t.Errorf("Expected INSUFFICIENT_BALANCE, got %s", resp.Code)
	}
	if resp.Details["available"] != "0" {
		t.Errorf("Expected available 0, got %q", resp.Details["available"])
	}

	w = perform(router, http.MethodPost, "/api/deposit", user, []byte(`{"amount":"-5","payCurrency":"btc"}`), nil)
	decode(t, w, &resp)
	if w.Code != http.StatusBadRequest || resp.Code != "VALIDATION_ERROR" {
		t.Errorf("Expected 400 VALIDATION_ERROR, got %d %s", w.Code, resp.Code)
	}

	w = perform(router, http.MethodGet, "/api/transactions?page=x", user, nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for non-numeric page, got %d", w.Code)
	}

	w = perform(router, http.MethodGet, "/api/deposit/order/DEP-missing", "", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown order, got %d", w.Code)
	}
}

func TestRateLimitedWithdrawal(t *testing.T) {
	router := setupRouter(t, ratelimit.NewMemory(1, time.Minute))
	user := token(t, "user-1")
	body := []byte(`{"amount":"50","method":"bank","details":{"accountName":"A","accountNumber":"1","bankName":"B"}}`)

	if w := perform(router, http.MethodPost, "/api/withdrawal", user, body, nil); w.Code == http.StatusTooManyRequests {
		t.Fatal("Expected first request to pass the limiter")
	}

	w := perform(router, http.MethodPost, "/api/withdrawal", user, body, nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
	var resp errorResponse
	decode(t, w, &resp)
	if resp.Code != "RATE_LIMITED" {
		t.Errorf("Expected RATE_LIMITED, got %s", resp.Code)
	}

	// Other users have their own window
	if w := perform(router, http.MethodPost, "/api/withdrawal", token(t, "user-2"), body, nil); w.Code == http.StatusTooManyRequests {
		t.Error("Expected user-2 to pass the limiter")
	}
}

func TestExtractBearer(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"":             "",
	}
	for header, want := range tests {
		if got := ExtractBearer(header); got != want {
			t.Errorf("Expected %q for %q, got %q", want, header, got)
		}
	}
}

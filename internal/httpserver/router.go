package httpserver

import (
	"fmt"
	"net/http"

	"wallet-ledger-go/internal/api"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultOperatorRole = "operator"

type RouterOptions struct {
	Ledger    *api.LedgerService
	Limiter   ratelimit.Limiter
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Health    *Health
	JWTSecret []byte
	// OperatorRole defaults to "operator"
	OperatorRole string
	MetricsPath  string
}

func NewRouter(opts RouterOptions) *gin.Engine {
	operatorRole := opts.OperatorRole
	if operatorRole == "" {
		operatorRole = defaultOperatorRole
	}
	health := opts.Health
	if health == nil {
		health = NewHealth(true, nil)
	}

	router := gin.New()
	router.Use(RequestId())
	router.Use(Logger(opts.Metrics))
	router.Use(Recovery())

	router.GET("/healthz", LivenessHandler)
	router.GET("/readyz", ReadinessHandler(health))
	if opts.Registry != nil {
		path := opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(metrics.Handler(opts.Registry)))
	}

	h := NewHandler(opts.Ledger)
	authenticated := Authenticate(opts.JWTSecret)
	limit := func(route string) gin.HandlerFunc {
		if opts.Limiter == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return RateLimit(opts.Limiter, opts.Metrics, route)
	}

	apiGroup := router.Group("/api")

	deposit := apiGroup.Group("/deposit")
	deposit.POST("", authenticated, limit("deposit"), h.CreateDeposit)
	deposit.GET("/order/:orderId", h.GetDepositByOrder)
	deposit.GET("/payments", authenticated, h.ListDeposits)
	deposit.GET("/payments/:paymentId/status", authenticated, h.PaymentStatus)
	deposit.GET("/currencies", h.Currencies)
	deposit.GET("/min-amount/:currency", h.MinAmount)
	deposit.GET("/estimate", h.Estimate)
	deposit.POST("/ipn", h.Notification)

	apiGroup.GET("/balance", authenticated, h.Balance)
	apiGroup.GET("/transactions", authenticated, h.Transactions)

	withdrawal := apiGroup.Group("/withdrawal", authenticated)
	withdrawal.POST("", limit("withdrawal"), h.CreateWithdrawal)
	withdrawal.GET("/my", h.MyWithdrawals)
	withdrawal.GET("/stats", h.WithdrawalStats)
	withdrawal.GET("/:id", h.GetWithdrawal)
	withdrawal.POST("/:id/cancel", h.CancelWithdrawal)
	withdrawal.POST("/:id/process", RequireRole(operatorRole), h.ProcessWithdrawal)

	admin := apiGroup.Group("/admin", authenticated, RequireRole(operatorRole))
	admin.GET("/reconciliation", h.Reconciliation)

	return router
}

func NewServer(cfg models.HTTPConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

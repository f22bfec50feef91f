package prime

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const defaultPortfolioName = "Default Portfolio"

// Service pays out crypto withdrawals from a Coinbase Prime portfolio
type Service struct {
	portfoliosSvc   portfolios.PortfoliosService
	walletsSvc      wallets.WalletsService
	transactionsSvc transactions.TransactionsService
}

func NewService(cfg models.PrimeConfig) (*Service, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(&credentials.Credentials{
		AccessKey:  cfg.AccessKey,
		Passphrase: cfg.Passphrase,
		SigningKey: cfg.SigningKey,
	}, httpClient)

	return &Service{
		portfoliosSvc:   portfolios.NewPortfoliosService(restClient),
		walletsSvc:      wallets.NewWalletsService(restClient),
		transactionsSvc: transactions.NewTransactionsService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func (s *Service) FindDefaultPortfolio(ctx context.Context) (*models.Portfolio, error) {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return nil, fmt.Errorf("unable to list portfolios: %w", err)
	}

	for _, p := range response.Portfolios {
		if p.Name == defaultPortfolioName {
			return &models.Portfolio{Id: p.Id, Name: p.Name}, nil
		}
	}
	return nil, fmt.Errorf("default portfolio not found")
}

// FindTradingWallet returns the trading wallet holding symbol in the portfolio
func (s *Service) FindTradingWallet(ctx context.Context, portfolioId, symbol string) (*models.Wallet, error) {
	response, err := s.walletsSvc.ListWallets(ctx, &wallets.ListWalletsRequest{
		PortfolioId: portfolioId,
		Type:        "TRADING",
		Symbols:     []string{strings.ToUpper(symbol)},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to list wallets: %w", err)
	}
	if len(response.Wallets) == 0 {
		return nil, fmt.Errorf("no trading wallet for %s in portfolio %s", symbol, portfolioId)
	}

	w := response.Wallets[0]
	return &models.Wallet{Id: w.Id, Name: w.Name, Symbol: w.Symbol, Type: w.Type}, nil
}

// PayoutParams describes one blockchain payout
type PayoutParams struct {
	PortfolioId        string
	WalletId           string
	DestinationAddress string
	Amount             string
	Symbol             string
	Network            string // e.g. "ethereum-mainnet"; empty lets Prime pick the default
	IdempotencyKey     string
}

// networkDetails splits "ethereum-mainnet" into the id and type Prime expects
func networkDetails(network string) *model.NetworkDetails {
	parts := strings.SplitN(network, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil
	}
	return &model.NetworkDetails{Id: parts[0], Type: parts[1]}
}

// CreatePayout sends funds from a Prime wallet to a blockchain address
func (s *Service) CreatePayout(ctx context.Context, params PayoutParams) (*models.PrimePayout, error) {
	zap.L().Info("Creating payout via Prime API",
		zap.String("portfolio_id", params.PortfolioId),
		zap.String("wallet_id", params.WalletId),
		zap.String("symbol", params.Symbol),
		zap.String("network", params.Network),
		zap.String("amount", params.Amount),
		zap.String("destination", params.DestinationAddress))

	blockchainAddr := &model.BlockchainAddress{
		Address: params.DestinationAddress,
		Network: networkDetails(params.Network),
	}

	request := &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       params.PortfolioId,
		SourceWalletId:    params.WalletId,
		Amount:            params.Amount,
		IdempotencyKey:    params.IdempotencyKey,
		Symbol:            strings.ToUpper(params.Symbol),
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	}

	response, err := s.transactionsSvc.CreateWalletWithdrawal(ctx, request)
	if err != nil {
		zap.L().Error("Failed to create payout",
			zap.String("wallet_id", params.WalletId),
			zap.String("amount", params.Amount),
			zap.Error(err))
		return nil, fmt.Errorf("unable to create withdrawal: %w", err)
	}

	zap.L().Info("Payout created",
		zap.String("activity_id", response.ActivityId),
		zap.String("idempotency_key", params.IdempotencyKey))

	return &models.PrimePayout{
		ActivityId:     response.ActivityId,
		Asset:          params.Symbol,
		Amount:         params.Amount,
		Destination:    params.DestinationAddress,
		IdempotencyKey: params.IdempotencyKey,
	}, nil
}

package main

import (
	"context"
	"flag"
	"fmt"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/prime"

	"go.uber.org/zap"
)

// checkProvider verifies the payment provider answers with the configured key
func checkProvider(ctx context.Context, cfg models.NowPaymentsConfig) error {
	if cfg.APIKey == "" {
		zap.L().Warn("NOWPAYMENTS_API_KEY is not set; skipping provider check")
		return nil
	}

	client, err := nowpayments.NewClient(cfg)
	if err != nil {
		return err
	}
	if err := client.Status(ctx); err != nil {
		return fmt.Errorf("payment provider unavailable: %w", err)
	}

	currencies, err := client.Currencies(ctx)
	if err != nil {
		return fmt.Errorf("failed to list provider currencies: %w", err)
	}
	zap.L().Info("Payment provider reachable", zap.Int("currencies", len(currencies)))
	return nil
}

// checkTreasury confirms every configured payout asset has a Prime trading wallet
func checkTreasury(ctx context.Context, cfg models.PrimeConfig) error {
	zap.L().Info("Loading asset configuration", zap.String("file", cfg.AssetsFile))
	assetConfigs, err := common.LoadAssetConfig(cfg.AssetsFile)
	if err != nil {
		return err
	}

	primeService, err := prime.NewService(cfg)
	if err != nil {
		return err
	}

	portfolio, err := primeService.FindDefaultPortfolio(ctx)
	if err != nil {
		return err
	}
	zap.L().Info("Using default portfolio",
		zap.String("name", portfolio.Name),
		zap.String("id", portfolio.Id))

	var missing []string
	for _, asset := range assetConfigs {
		wallet, err := primeService.FindTradingWallet(ctx, portfolio.Id, asset.Symbol)
		if err != nil {
			zap.L().Warn("No trading wallet for payout asset",
				zap.String("asset", asset.Symbol),
				zap.String("network", asset.Network),
				zap.Error(err))
			missing = append(missing, fmt.Sprintf("%s-%s", asset.Symbol, asset.Network))
			continue
		}
		zap.L().Info("Payout wallet ready",
			zap.String("asset", asset.Symbol),
			zap.String("network", asset.Network),
			zap.String("wallet_id", wallet.Id))
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing trading wallets for %v", missing)
	}
	return nil
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	primeFlag := flag.Bool("prime", false, "Also verify Coinbase Prime payout wallets")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Initializing database schema",
		zap.String("driver", cfg.Database.Driver))
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if err := services.Ledger.HealthCheck(ctx); err != nil {
		zap.L().Fatal("Database health check failed", zap.Error(err))
	}
	zap.L().Info("Database ready")

	if err := checkProvider(ctx, cfg.NowPayments); err != nil {
		zap.L().Fatal("Provider check failed", zap.Error(err))
	}

	if *primeFlag {
		if err := checkTreasury(ctx, cfg.Prime); err != nil {
			zap.L().Fatal("Prime check failed", zap.Error(err))
		}
	}

	zap.L().Info("Setup complete")
}

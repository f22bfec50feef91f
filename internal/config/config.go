/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"wallet-ledger-go/internal/models"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Load reads configuration from the environment, optionally layered over the
// yaml file named by CONFIG_FILE. Environment values win.
func Load() (*models.Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	connMaxLifetime, err := getDuration(v, "DB_CONN_MAX_LIFETIME")
	if err != nil {
		return nil, err
	}
	connMaxIdleTime, err := getDuration(v, "DB_CONN_MAX_IDLE_TIME")
	if err != nil {
		return nil, err
	}
	pingTimeout, err := getDuration(v, "DB_PING_TIMEOUT")
	if err != nil {
		return nil, err
	}
	readTimeout, err := getDuration(v, "HTTP_READ_TIMEOUT")
	if err != nil {
		return nil, err
	}
	writeTimeout, err := getDuration(v, "HTTP_WRITE_TIMEOUT")
	if err != nil {
		return nil, err
	}
	idleTimeout, err := getDuration(v, "HTTP_IDLE_TIMEOUT")
	if err != nil {
		return nil, err
	}
	providerTimeout, err := getDuration(v, "NOWPAYMENTS_TIMEOUT")
	if err != nil {
		return nil, err
	}
	rateWindow, err := getDuration(v, "RATE_LIMIT_WINDOW")
	if err != nil {
		return nil, err
	}

	bankFeeRate, err := getDecimal(v, "BANK_FEE_RATE")
	if err != nil {
		return nil, err
	}
	cryptoFeeRate, err := getDecimal(v, "CRYPTO_FEE_RATE")
	if err != nil {
		return nil, err
	}
	minimumWithdrawal, err := getDecimal(v, "MINIMUM_WITHDRAWAL")
	if err != nil {
		return nil, err
	}
	minimumDeposit, err := getDecimal(v, "MINIMUM_DEPOSIT")
	if err != nil {
		return nil, err
	}

	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:          v.GetString("DATABASE_DRIVER"),
			Path:            v.GetString("DATABASE_PATH"),
			URL:             v.GetString("DATABASE_URL"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: connMaxLifetime,
			ConnMaxIdleTime: connMaxIdleTime,
			PingTimeout:     pingTimeout,
			MaxRetries:      v.GetInt("DB_MAX_RETRIES"),
		},
		HTTP: models.HTTPConfig{
			Host:         v.GetString("HTTP_HOST"),
			Port:         v.GetInt("HTTP_PORT"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
			MetricsPath:  v.GetString("METRICS_PATH"),
			JWTSecret:    v.GetString("JWT_SECRET"),
			OperatorRole: v.GetString("OPERATOR_ROLE"),
		},
		Policy: models.PolicyConfig{
			BankFeeRate:       bankFeeRate,
			CryptoFeeRate:     cryptoFeeRate,
			MinimumWithdrawal: minimumWithdrawal,
			MinimumDeposit:    minimumDeposit,
			Currency:          strings.ToLower(v.GetString("CURRENCY")),
			Precision:         v.GetInt32("CURRENCY_PRECISION"),
		},
		NowPayments: models.NowPaymentsConfig{
			BaseURL:     v.GetString("NOWPAYMENTS_API_URL"),
			APIKey:      v.GetString("NOWPAYMENTS_API_KEY"),
			IPNSecret:   v.GetString("NOWPAYMENTS_IPN_SECRET"),
			CallbackURL: v.GetString("NOWPAYMENTS_CALLBACK_URL"),
			Timeout:     providerTimeout,
		},
		RateLimit: models.RateLimitConfig{
			Requests:  v.GetInt("RATE_LIMIT_REQUESTS"),
			Window:    rateWindow,
			RedisAddr: v.GetString("REDIS_ADDR"),
		},
		Kafka: models.KafkaConfig{
			Brokers: splitList(v.GetString("KAFKA_BROKERS")),
			Topic:   v.GetString("KAFKA_TOPIC"),
		},
		Formance: models.FormanceConfig{
			StackURL:     v.GetString("FORMANCE_STACK_URL"),
			ClientID:     v.GetString("FORMANCE_CLIENT_ID"),
			ClientSecret: v.GetString("FORMANCE_CLIENT_SECRET"),
			LedgerName:   v.GetString("FORMANCE_LEDGER"),
		},
		Prime: models.PrimeConfig{
			AccessKey:  v.GetString("PRIME_ACCESS_KEY"),
			Passphrase: v.GetString("PRIME_PASSPHRASE"),
			SigningKey: v.GetString("PRIME_SIGNING_KEY"),
			AssetsFile: v.GetString("ASSETS_FILE"),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_DRIVER", "sqlite3")
	v.SetDefault("DATABASE_PATH", "wallet.db")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "5m")
	v.SetDefault("DB_CONN_MAX_IDLE_TIME", "30s")
	v.SetDefault("DB_PING_TIMEOUT", "5s")
	v.SetDefault("DB_MAX_RETRIES", 5)

	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("HTTP_READ_TIMEOUT", "5s")
	v.SetDefault("HTTP_WRITE_TIMEOUT", "10s")
	v.SetDefault("HTTP_IDLE_TIMEOUT", "60s")
	v.SetDefault("METRICS_PATH", "/metrics")
	v.SetDefault("OPERATOR_ROLE", "operator")

	v.SetDefault("BANK_FEE_RATE", "0.01")
	v.SetDefault("CRYPTO_FEE_RATE", "0.02")
	v.SetDefault("MINIMUM_WITHDRAWAL", "20")
	v.SetDefault("MINIMUM_DEPOSIT", "10")
	v.SetDefault("CURRENCY", "usd")
	v.SetDefault("CURRENCY_PRECISION", 2)

	v.SetDefault("NOWPAYMENTS_API_URL", "https://api.nowpayments.io/v1")
	v.SetDefault("NOWPAYMENTS_TIMEOUT", "15s")

	v.SetDefault("RATE_LIMIT_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("KAFKA_TOPIC", "wallet.ledger.events")
	v.SetDefault("FORMANCE_LEDGER", "wallet-ledger")
	v.SetDefault("ASSETS_FILE", "assets.yaml")
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite3":
		if cfg.Database.Path == "" {
			return errors.New("DATABASE_PATH is required for sqlite3")
		}
	case "pgx":
		if cfg.Database.URL == "" {
			return errors.New("DATABASE_URL is required for pgx")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", cfg.Database.Driver)
	}

	one := decimal.NewFromInt(1)
	for key, rate := range map[string]decimal.Decimal{
		"BANK_FEE_RATE":   cfg.Policy.BankFeeRate,
		"CRYPTO_FEE_RATE": cfg.Policy.CryptoFeeRate,
	} {
		if rate.IsNegative() || rate.GreaterThanOrEqual(one) {
			return fmt.Errorf("%s must be in [0, 1), got %s", key, rate.String())
		}
	}
	if !cfg.Policy.MinimumWithdrawal.IsPositive() {
		return fmt.Errorf("MINIMUM_WITHDRAWAL must be positive, got %s", cfg.Policy.MinimumWithdrawal.String())
	}
	if !cfg.Policy.MinimumDeposit.IsPositive() {
		return fmt.Errorf("MINIMUM_DEPOSIT must be positive, got %s", cfg.Policy.MinimumDeposit.String())
	}
	if cfg.HTTP.Port <= 0 {
		return errors.New("HTTP_PORT must be positive")
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	value := v.GetString(key)
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
	}
	return d, nil
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	value := v.GetString(key)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal for %s: %q (%w)", key, value, err)
	}
	return d, nil
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database    DatabaseConfig
	HTTP        HTTPConfig
	Policy      PolicyConfig
	NowPayments NowPaymentsConfig
	RateLimit   RateLimitConfig
	Kafka       KafkaConfig
	Formance    FormanceConfig
	Prime       PrimeConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string
	Path            string
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PingTimeout     time.Duration
	MaxRetries      int
}

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MetricsPath  string
	JWTSecret    string
	OperatorRole string
}

// PolicyConfig holds the fee schedule and amount limits
type PolicyConfig struct {
	BankFeeRate       decimal.Decimal
	CryptoFeeRate     decimal.Decimal
	MinimumWithdrawal decimal.Decimal
	MinimumDeposit    decimal.Decimal
	Currency          string
	Precision         int32
}

type NowPaymentsConfig struct {
	BaseURL     string
	APIKey      string
	IPNSecret   string
	CallbackURL string
	Timeout     time.Duration
}

type RateLimitConfig struct {
	Requests  int
	Window    time.Duration
	RedisAddr string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FormanceConfig holds settings for the journal mirror; empty StackURL disables it
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// PrimeConfig holds the Coinbase Prime credentials used for crypto payouts
type PrimeConfig struct {
	AccessKey  string
	Passphrase string
	SigningKey string
	AssetsFile string
}

func (c PrimeConfig) Enabled() bool {
	return c.AccessKey != "" && c.Passphrase != "" && c.SigningKey != ""
}

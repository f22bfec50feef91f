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

package api

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/fees"
	"wallet-ledger-go/internal/metrics"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/nowpayments"
	"wallet-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// PaymentProvider is the part of the NOWPayments client the ledger uses
type PaymentProvider interface {
	CreatePayment(ctx context.Context, req nowpayments.PaymentRequest) (*nowpayments.Payment, error)
	GetPayment(ctx context.Context, paymentId string) (*nowpayments.Payment, error)
	MinAmount(ctx context.Context, currencyFrom, currencyTo string) (*nowpayments.MinAmount, error)
	Estimate(ctx context.Context, amount decimal.Decimal, currencyFrom, currencyTo string) (*nowpayments.Estimate, error)
	Currencies(ctx context.Context) ([]string, error)
}

// EventPublisher receives every committed transition
type EventPublisher interface {
	Publish(ctx context.Context, event models.LedgerEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, models.LedgerEvent) {}

// LedgerService implements deposits, withdrawals and balance queries on top of the wallet store
type LedgerService struct {
	store     store.WalletStore
	provider  PaymentProvider
	policy    fees.Policy
	events    EventPublisher
	metrics   *metrics.Metrics
	ipnSecret string
	currency  string
}

type Options struct {
	Store     store.WalletStore
	Provider  PaymentProvider
	Policy    fees.Policy
	Events    EventPublisher // optional
	Metrics   *metrics.Metrics
	IPNSecret string
	Currency  string
}

func NewLedgerService(opts Options) (*LedgerService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fee policy: %w", err)
	}
	if opts.Events == nil {
		opts.Events = noopPublisher{}
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	return &LedgerService{
		store:     opts.Store,
		provider:  opts.Provider,
		policy:    opts.Policy,
		events:    opts.Events,
		metrics:   opts.Metrics,
		ipnSecret: opts.IPNSecret,
		currency:  opts.Currency,
	}, nil
}

func (s *LedgerService) Policy() fees.Policy {
	return s.policy
}

func (s *LedgerService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// NormalizePage applies the list defaults: limit 10, at most 100, page from 0
func NormalizePage(page, limit int) models.Page {
	if page < 0 {
		page = 0
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return models.Page{Page: page, Limit: limit}
}

func entryEvent(eventType models.EventType, entry *models.LedgerEntry, balanceAfter decimal.Decimal) models.LedgerEvent {
	return models.LedgerEvent{
		Type:         eventType,
		AccountId:    entry.AccountId,
		EntryId:      entry.Id,
		Reference:    entry.Reference,
		Amount:       entry.Amount,
		Currency:     entry.Currency,
		BalanceAfter: balanceAfter,
		OccurredAt:   entry.UpdatedAt,
	}
}

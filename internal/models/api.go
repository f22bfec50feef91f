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
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// DepositRequest is the body of POST /deposit
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PayCurrency string          `json:"payCurrency"`
}

// DepositSummary is returned when a deposit intent is created or looked up
type DepositSummary struct {
	OrderId       string          `json:"orderId"`
	PaymentId     string          `json:"paymentId"`
	PayAddress    string          `json:"payAddress"`
	PayAmount     decimal.Decimal `json:"payAmount"`
	PayCurrency   string          `json:"payCurrency"`
	PriceAmount   decimal.Decimal `json:"priceAmount"`
	PriceCurrency string          `json:"priceCurrency"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	ActuallyPaid  decimal.Decimal `json:"actuallyPaid"`
	EntryStatus   EntryStatus     `json:"transactionStatus,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// WithdrawalCreate is the body of POST /withdrawal
type WithdrawalCreate struct {
	Amount  decimal.Decimal  `json:"amount"`
	Method  WithdrawalMethod `json:"method"`
	Details json.RawMessage  `json:"details"`
}

// WithdrawalProcess is the body of POST /withdrawal/:id/process
type WithdrawalProcess struct {
	Status          WithdrawalStatus `json:"status"`
	Notes           string           `json:"notes"`
	TransactionHash string           `json:"transaction_hash"`
}

// WithdrawalSummary is the client view of a withdrawal request
type WithdrawalSummary struct {
	Id                      string           `json:"id"`
	Amount                  decimal.Decimal  `json:"amount"`
	Currency                string           `json:"currency"`
	Method                  WithdrawalMethod `json:"method"`
	Details                 Destination      `json:"details"`
	Status                  WithdrawalStatus `json:"status"`
	ProcessingFee           decimal.Decimal  `json:"processingFee"`
	NetAmount               decimal.Decimal  `json:"netAmount"`
	TransactionHash         string           `json:"transactionHash,omitempty"`
	Notes                   string           `json:"notes,omitempty"`
	EstimatedProcessingTime string           `json:"estimatedProcessingTime"`
	CreatedAt               time.Time        `json:"createdAt"`
	ProcessedAt             *time.Time       `json:"processedAt,omitempty"`
}

// BalanceResponse is returned by GET /balance
type BalanceResponse struct {
	Balance   decimal.Decimal `json:"balance"`
	Currency  string          `json:"currency"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// TransactionRecord is one ledger entry in the user's history
type TransactionRecord struct {
	Id            string          `json:"id"`
	Type          EntryKind       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        EntryStatus     `json:"status"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	Description   string          `json:"description"`
	Reference     string          `json:"reference"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Page carries list paging parameters
type Page struct {
	Page  int
	Limit int
}

func (p Page) Offset() int {
	return p.Page * p.Limit
}

// PageResult wraps a list response with totals
type PageResult[T any] struct {
	Items      []T `json:"items"`
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func NewPageResult[T any](items []T, total int, page Page) PageResult[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if page.Limit > 0 {
		totalPages = (total + page.Limit - 1) / page.Limit
	}
	return PageResult[T]{
		Items:      items,
		Total:      total,
		Page:       page.Page,
		Limit:      page.Limit,
		TotalPages: totalPages,
	}
}

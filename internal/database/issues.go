package database

import (
	"context"
	"fmt"

	"wallet-ledger-go/internal/models"
)

// RecordIssue stores a case for manual reconciliation outside any account transaction
func (s *Service) RecordIssue(ctx context.Context, issue models.ReconciliationIssue) error {
	return s.insertIssue(ctx, s.db, issue)
}

func (s *Service) ListOpenIssues(ctx context.Context, limit int) ([]models.ReconciliationIssue, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.rebind(queryListOpenIssues), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reconciliation issues: %w", err)
	}
	defer closeRows(rows)

	var issues []models.ReconciliationIssue
	for rows.Next() {
		var issue models.ReconciliationIssue
		if err := rows.Scan(&issue.Id, &issue.AccountId, &issue.Reference, &issue.Kind, &issue.Detail,
			&issue.CreatedAt, &issue.ResolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan reconciliation issue: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reconciliation issues: %w", err)
	}
	return issues, nil
}

package reporting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"calltrack/internal/calls"
	"calltrack/internal/tenants"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts the tenant-scoped reads and the snapshot write.
//
// IMPORTANT:
// - ListLeadIDs and ListCalls must only return documents of the given tenant.
// - Only calls whose LeadID is among ListLeadIDs are counted.
// - MergeStats overwrites the counters and lastRecalcAt and leaves other tenant fields alone.
type Repository interface {
	ListLeadIDs(ctx context.Context, tenantID string) ([]string, error)
	ListCalls(ctx context.Context, tenantID string) ([]calls.Call, error)
	MergeStats(ctx context.Context, tenantID string, stats tenants.Stats) error
}

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the clock used to stamp LastRecalcAt.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Compute derives a fresh snapshot from the tenant's leads and calls without writing it.
func (s *Service) Compute(ctx context.Context, tenantID string) (tenants.Stats, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return tenants.Stats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return tenants.Stats{}, errors.New("reporting: repository not configured")
	}

	leadIDs, err := s.repo.ListLeadIDs(ctx, tenantID)
	if err != nil {
		return tenants.Stats{}, fmt.Errorf("reporting: list leads for %s: %w", tenantID, err)
	}
	rows, err := s.repo.ListCalls(ctx, tenantID)
	if err != nil {
		return tenants.Stats{}, fmt.Errorf("reporting: list calls for %s: %w", tenantID, err)
	}

	out := Summarize(underLeads(rows, leadIDs)).Stats(int64(len(leadIDs)))
	out.LastRecalcAt = s.now()
	return out, nil
}

// underLeads keeps the calls filed under one of the listed leads. Calls of a lead
// that is not listed are not part of the tenant's snapshot.
func underLeads(rows []calls.Call, leadIDs []string) []calls.Call {
	listed := make(map[string]struct{}, len(leadIDs))
	for _, id := range leadIDs {
		listed[id] = struct{}{}
	}
	out := rows[:0:0]
	for _, c := range rows {
		if _, ok := listed[c.LeadID]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Recompute computes the snapshot and merges it onto the tenant.
// A read failure aborts before anything is written.
func (s *Service) Recompute(ctx context.Context, tenantID string) (tenants.Stats, error) {
	out, err := s.Compute(ctx, tenantID)
	if err != nil {
		return tenants.Stats{}, err
	}
	if err := s.repo.MergeStats(ctx, strings.TrimSpace(tenantID), out); err != nil {
		return tenants.Stats{}, fmt.Errorf("reporting: write stats for %s: %w", tenantID, err)
	}
	return out, nil
}
